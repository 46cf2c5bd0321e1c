package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridbalance/config"
	"github.com/kilianp07/gridbalance/infra/battery"
	"github.com/kilianp07/gridbalance/infra/logger"
)

var batteriesCmd = &cobra.Command{
	Use:   "batteries",
	Short: "Battery related commands",
}

var batteriesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Query and print the status of every configured battery",
	RunE:  runBatteriesLs,
}

func init() {
	batteriesCmd.AddCommand(batteriesLsCmd)
	rootCmd.AddCommand(batteriesCmd)
}

func runBatteriesLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := battery.NewClient(cfg.Batteries, logger.New("battery"))
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSOC\tMODE\tPOWER\tERROR")
	for _, res := range client.StatusAll(ctx, cfg.Batteries.Addresses) {
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", res.ID, res.Err)
			continue
		}
		b := res.Status.Battery()
		fmt.Fprintf(tw, "%s\t%.0f%%\t%s\t%dW\t\n", res.ID, b.Charge, res.Status.Mode, b.EffectivePower)
	}
	return tw.Flush()
}
