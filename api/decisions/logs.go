// Package decisions exposes the decision log over HTTP.
package decisions

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	"github.com/kilianp07/gridbalance/core/model"
)

// NewLogHandler returns an HTTP handler exposing decision logs via GET /api/decisions/logs.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewLogHandler(store logging.LogStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		q, err := parseQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func authorized(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func parseQuery(r *http.Request) (logging.LogQuery, error) {
	v := r.URL.Query()
	q := logging.LogQuery{BatteryID: v.Get("battery_id")}
	var err error
	if s := v.Get("start"); s != "" {
		if q.Start, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("invalid start: %w", err)
		}
	}
	if s := v.Get("end"); s != "" {
		if q.End, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("invalid end: %w", err)
		}
	}
	if s := v.Get("mode"); s != "" {
		m, ok := modeFromString(s)
		if !ok {
			return q, fmt.Errorf("invalid mode %q", s)
		}
		q.Mode = m
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		q.Limit = n
	}
	return q, nil
}

func modeFromString(s string) (model.Mode, bool) {
	switch model.Mode(strings.ToLower(s)) {
	case model.ModeAuto:
		return model.ModeAuto, true
	case model.ModeManual:
		return model.ModeManual, true
	case model.ModeIdle:
		return model.ModeIdle, true
	default:
		return "", false
	}
}
