// Package logging persists one record per control cycle so decisions can be
// audited and replayed.
package logging

import (
	"context"
	"time"

	"github.com/kilianp07/gridbalance/core/model"
	"github.com/kilianp07/gridbalance/core/policy"
)

// LogRecord captures one control cycle: the snapshot the policy saw, the
// decision and the apply errors per battery.
type LogRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	CycleID   string            `json:"cycle_id"`
	GridUsage float64           `json:"grid_usage"`
	Input     []model.Battery   `json:"input"`
	Car       model.CarState    `json:"car"`
	Decision  policy.Decision   `json:"decision"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// AutoBattery returns the ID of the battery chosen as automatic.
func (r LogRecord) AutoBattery() string {
	i := r.Decision.Diagnostics.NewAutoIndex
	if i < 0 || i >= len(r.Decision.Batteries) {
		return ""
	}
	return r.Decision.Batteries[i].ID
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start     time.Time
	End       time.Time
	BatteryID string
	// Mode keeps records where the battery (or any battery when BatteryID is
	// empty) ended in that mode.
	Mode  model.Mode
	Limit int
}

// Matches reports whether r passes the time, battery and mode filters.
func (q LogQuery) Matches(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.BatteryID == "" && q.Mode == "" {
		return true
	}
	for _, b := range r.Decision.Batteries {
		if q.BatteryID != "" && b.ID != q.BatteryID {
			continue
		}
		if q.Mode == "" || b.Mode() == q.Mode {
			return true
		}
	}
	return false
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, LogRecord) error               { return nil }
func (NopStore) Query(context.Context, LogQuery) ([]LogRecord, error) { return nil, nil }
func (NopStore) Close() error                                         { return nil }

func limit(res []LogRecord, n int) []LogRecord {
	if n > 0 && len(res) > n {
		return res[len(res)-n:]
	}
	return res
}
