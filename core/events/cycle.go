package events

import (
	"time"

	"github.com/kilianp07/gridbalance/core/policy"
)

// CycleEvent is published after every completed control cycle.
type CycleEvent struct {
	CycleID   string
	Time      time.Time
	GridUsage float64
	Decision  policy.Decision
	Duration  time.Duration
}
