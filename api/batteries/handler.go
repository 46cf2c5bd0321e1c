// Package batteries exposes the battery status store over HTTP.
package batteries

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kilianp07/gridbalance/core/batterystatus"
	"github.com/kilianp07/gridbalance/core/model"
)

// NewStatusHandler returns an HTTP handler exposing battery status data via GET /api/batteries/status.
// Optional query parameters: mode (last commanded mode) and reachable (bool).
func NewStatusHandler(store batterystatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := batterystatus.Filter{Mode: model.Mode(r.URL.Query().Get("mode"))}
		if s := r.URL.Query().Get("reachable"); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				http.Error(w, "invalid reachable", http.StatusBadRequest)
				return
			}
			f.Reachable = &v
		}
		entries := store.List(f)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
