package logging

import (
	"time"

	"github.com/kilianp07/gridbalance/core/model"
	"github.com/kilianp07/gridbalance/core/policy"
)

func record(ts time.Time, id string, auto string, manual string, power model.Watts) LogRecord {
	a := model.Battery{ID: auto, Charge: 60}
	a.SetAutomatic()
	m := model.Battery{ID: manual, Charge: 40}
	if power != 0 {
		m.SetManual(power)
	}
	return LogRecord{
		Timestamp: ts,
		CycleID:   id,
		GridUsage: -3500,
		Input:     []model.Battery{{ID: auto, Charge: 60}, {ID: manual, Charge: 40}},
		Decision: policy.Decision{
			Batteries:   []model.Battery{a, m},
			Diagnostics: policy.Diagnostics{NewAutoIndex: 0, PreviousAutoIndex: -1},
		},
	}
}
