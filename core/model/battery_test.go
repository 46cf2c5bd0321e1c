package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundWattsHalfToEven(t *testing.T) {
	assert.Equal(t, Watts(2), RoundWatts(2.5))
	assert.Equal(t, Watts(4), RoundWatts(3.5))
	assert.Equal(t, Watts(-2), RoundWatts(-2.5))
	assert.Equal(t, Watts(1875), RoundWatts(1875.4))
}

func TestWattsClamp(t *testing.T) {
	assert.Equal(t, Watts(2500), Watts(3000).Clamp(2500))
	assert.Equal(t, Watts(-2500), Watts(-2600).Clamp(2500))
	assert.Equal(t, Watts(-100), Watts(-100).Clamp(2500))
	assert.Equal(t, Watts(100), Watts(-100).Abs())
}

func TestBatteryModes(t *testing.T) {
	b := Battery{Charge: 50}
	assert.Equal(t, ModeIdle, b.Mode())
	assert.Equal(t, 1.0, b.EffectiveEfficiency())

	b.SetManual(-800)
	assert.Equal(t, ModeManual, b.Mode())
	assert.Equal(t, Watts(-800), b.ManualSetPower)

	b.SetAutomatic()
	assert.Equal(t, ModeAuto, b.Mode())
	assert.False(t, b.IsManual)
	assert.Zero(t, b.ManualSetPower)

	b.SetIdle()
	assert.Equal(t, ModeIdle, b.Mode())
}

func TestCloneBatteriesIsIndependent(t *testing.T) {
	in := []Battery{{ID: "a", Charge: 10}}
	out := CloneBatteries(in)
	out[0].SetManual(300)
	assert.False(t, in[0].IsManual)
}
