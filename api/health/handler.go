// Package health serves the liveness endpoint.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// LastCycle reports when the last control cycle completed.
type LastCycle func() (time.Time, bool)

type response struct {
	Status    string     `json:"status"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
}

// NewHandler returns the GET /healthz handler. The service is unhealthy when
// no cycle completed within maxAge; before the first cycle it reports
// "starting" with status 200.
func NewHandler(last LastCycle, maxAge time.Duration, now func() time.Time) http.Handler {
	if now == nil {
		now = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := response{Status: "ok"}
		code := http.StatusOK
		if ts, ok := last(); !ok {
			resp.Status = "starting"
		} else {
			resp.LastCycle = &ts
			if maxAge > 0 && now().Sub(ts) > maxAge {
				resp.Status = "stale"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
}
