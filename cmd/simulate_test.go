package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridbalance/simulator"
)

func TestSimulatePrintsSiteConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	cfg := simulator.Config{Batteries: 2, InitialSoC: 50, ListenHost: "127.0.0.1", P1Address: "127.0.0.1:0"}
	require.NoError(t, simulate(ctx, c, cfg, 0, 1))

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, `- "127.0.0.1:`))
	assert.Contains(t, text, `address: "http://127.0.0.1:0"`)
}

func TestSimulateRejectsInvalidConfig(t *testing.T) {
	saved := simCfg
	t.Cleanup(func() { simCfg = saved })
	simCfg = simulator.Config{Batteries: 0}
	assert.Error(t, runSimulate(simulateCmd, nil))
}
