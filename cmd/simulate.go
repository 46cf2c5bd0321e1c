package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/gridbalance/infra/logger"
	"github.com/kilianp07/gridbalance/simulator"
)

var (
	simCfg   simulator.Config
	simPort  int
	simSpeed float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve simulated ES batteries and a P1 meter for local testing",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simCfg.Batteries, "batteries", 3, "number of simulated batteries")
	f.StringVar(&simCfg.BatteryProfile, "profile", "medium", "battery size: small, medium or large")
	f.Float64Var(&simCfg.InitialSoC, "soc", 50, "initial state of charge")
	f.Float64Var(&simCfg.LoadW, "load", 800, "household load in watts")
	f.Float64Var(&simCfg.SolarPeakW, "solar-peak", 3000, "clear-sky solar peak in watts")
	f.StringVar(&simCfg.ListenHost, "host", "127.0.0.1", "address the ES servers bind to")
	f.StringVar(&simCfg.P1Address, "p1", "127.0.0.1:8081", "address of the simulated P1 meter")
	f.IntVar(&simPort, "es-port", 0, "first ES port, 0 picks ephemeral ports")
	f.Float64Var(&simSpeed, "speed", 1, "simulated seconds per wall clock second")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := simCfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return simulate(ctx, cmd, simCfg, simPort, simSpeed)
}

func simulate(ctx context.Context, cmd *cobra.Command, cfg simulator.Config, basePort int, speed float64) error {
	log := logger.New("simulator")
	capacity, maxPower := simulator.Profile(cfg.BatteryProfile)
	site := &simulator.Site{LoadW: cfg.LoadW}

	g, ctx := errgroup.WithContext(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "batteries:\n  addresses:")
	for i := 0; i < cfg.Batteries; i++ {
		port := 0
		if basePort > 0 {
			port = basePort + i
		}
		b := simulator.NewBattery(capacity, cfg.InitialSoC, maxPower)
		site.Batteries = append(site.Batteries, b)
		srv, err := simulator.ListenES(net.JoinHostPort(cfg.ListenHost, strconv.Itoa(port)), b)
		if err != nil {
			return fmt.Errorf("listen battery %d: %w", i, err)
		}
		g.Go(func() error { return srv.Serve(ctx) })
		fmt.Fprintf(out, "    - %q\n", srv.Addr())
	}
	fmt.Fprintf(out, "meter:\n  address: %q\n", "http://"+cfg.P1Address)

	meter := &http.Server{Addr: cfg.P1Address, Handler: simulator.P1Handler(site), ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		if err := meter.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return meter.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		step(ctx, site, cfg, speed, log)
		return nil
	})
	return g.Wait()
}

// step advances the site once per second and logs the grid flow every minute
// of wall time.
func step(ctx context.Context, site *simulator.Site, cfg simulator.Config, speed float64, log logger.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	dt := time.Duration(speed * float64(time.Second))
	simTime := time.Now()
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		simTime = simTime.Add(dt)
		site.SetLoad(cfg.LoadW, simulator.SolarProfile(simTime, cfg.SolarPeakW))
		site.Step(dt)
		if n%60 == 0 {
			log.Infof("sim %s grid=%.0fW", simTime.Format(time.TimeOnly), site.GridPower())
		}
	}
}
