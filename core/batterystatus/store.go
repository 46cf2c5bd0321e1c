// Package batterystatus keeps the latest telemetry and command of every
// battery for the status API.
package batterystatus

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/model"
)

// LastCommand is the most recent command sent to a battery.
type LastCommand struct {
	CycleID   string      `json:"cycle_id"`
	Mode      model.Mode  `json:"mode"`
	Power     model.Watts `json:"power"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Status captures the current known state of a battery.
type Status struct {
	BatteryID      string      `json:"battery_id"`
	Charge         float64     `json:"charge"`
	ReportedMode   string      `json:"reported_mode,omitempty"`
	EffectivePower model.Watts `json:"effective_power"`
	Reachable      bool        `json:"reachable"`
	LastError      string      `json:"last_error,omitempty"`
	LastSeen       time.Time   `json:"last_seen,omitempty"`
	LastCommand    LastCommand `json:"last_command"`
}

// Filter narrows List results.
type Filter struct {
	Mode      model.Mode
	Reachable *bool
}

type Store interface {
	RecordTelemetry(st device.Status, at time.Time)
	RecordFailure(id string, err error)
	RecordCommand(id string, cmd LastCommand)
	List(Filter) []Status
	Get(id string) (Status, bool)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}}
}

func (s *MemoryStore) RecordTelemetry(st device.Status, at time.Time) {
	b := st.Battery()
	s.mu.Lock()
	cur := s.data[st.ID]
	cur.BatteryID = st.ID
	cur.Charge = b.Charge
	cur.ReportedMode = st.Mode
	cur.EffectivePower = b.EffectivePower
	cur.Reachable = true
	cur.LastError = ""
	cur.LastSeen = at
	s.data[st.ID] = cur
	s.mu.Unlock()
}

func (s *MemoryStore) RecordFailure(id string, err error) {
	s.mu.Lock()
	cur := s.data[id]
	cur.BatteryID = id
	cur.Reachable = false
	if err != nil {
		cur.LastError = err.Error()
	}
	s.data[id] = cur
	s.mu.Unlock()
}

func (s *MemoryStore) RecordCommand(id string, cmd LastCommand) {
	s.mu.Lock()
	cur := s.data[id]
	cur.BatteryID = id
	cur.LastCommand = cmd
	s.data[id] = cur
	s.mu.Unlock()
}

func (s *MemoryStore) Get(id string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[id]
	return st, ok
}

func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.Mode != "" && st.LastCommand.Mode != f.Mode {
			continue
		}
		if f.Reachable != nil && st.Reachable != *f.Reachable {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].BatteryID < res[j].BatteryID })
	return res
}
