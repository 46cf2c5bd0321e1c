package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridbalance/config"
	"github.com/kilianp07/gridbalance/core/model"
	"github.com/kilianp07/gridbalance/core/policy"
)

// Snapshot is the input of a one-shot decision. YAML or JSON.
type Snapshot struct {
	Batteries []model.Battery `yaml:"batteries"`
	Car       model.CarState  `yaml:"car"`
	GridUsage float64         `yaml:"gridUsage"`
	// Time defaults to now.
	Time *time.Time `yaml:"time"`
}

var snapshotPath string

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Compute one decision from a snapshot file and print it as JSON",
	Long: `Reads a snapshot (batteries, car, gridUsage, optional time) and prints the
decision. Thresholds come from the policy section of --config when the flag
is given, the defaults otherwise.`,
	RunE: decide,
}

func init() {
	decideCmd.Flags().StringVarP(&snapshotPath, "file", "f", "", "snapshot file (yaml or json)")
	_ = decideCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(decideCmd)
}

// LoadSnapshot reads a snapshot file. JSON is accepted as a YAML subset.
func LoadSnapshot(path string) (Snapshot, error) {
	var s Snapshot
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse snapshot: %w", err)
	}
	return s, nil
}

func decide(cmd *cobra.Command, args []string) error {
	snap, err := LoadSnapshot(snapshotPath)
	if err != nil {
		return err
	}
	th := policy.DefaultThresholds()
	if cmd.Flags().Changed("config") {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		th = cfg.Policy
	}
	now := time.Now()
	if snap.Time != nil {
		now = *snap.Time
	}
	dec, err := policy.New(th).Decide(snap.Batteries, snap.Car, snap.GridUsage, now)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(dec)
}
