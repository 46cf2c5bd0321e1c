package decisions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	"github.com/kilianp07/gridbalance/core/model"
	"github.com/kilianp07/gridbalance/core/policy"
)

func record(ts time.Time, id string, auto model.Battery, others ...model.Battery) logging.LogRecord {
	auto.SetAutomatic()
	bs := append([]model.Battery{auto}, others...)
	return logging.LogRecord{
		Timestamp: ts,
		CycleID:   id,
		Decision:  policy.Decision{Batteries: bs, Diagnostics: policy.Diagnostics{PreviousAutoIndex: -1}},
	}
}

func newStore(t *testing.T) logging.LogStore {
	t.Helper()
	store, err := logging.NewJSONLStore(filepath.Join(t.TempDir(), "decisions.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)
	manual := model.Battery{ID: "b", Charge: 50}
	manual.SetManual(-800)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, record(base, "c1", model.Battery{ID: "a", Charge: 70}, model.Battery{ID: "b", Charge: 50})))
	require.NoError(t, store.Append(ctx, record(base.Add(time.Minute), "c2", model.Battery{ID: "a", Charge: 69}, manual)))
	require.NoError(t, store.Append(ctx, record(base.Add(2*time.Minute), "c3", model.Battery{ID: "b", Charge: 49})))
	return store
}

func get(t *testing.T, h http.Handler, url, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) []string {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out []logging.LogRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	ids := make([]string, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.CycleID)
	}
	return ids
}

func TestLogHandlerAuth(t *testing.T) {
	h := NewLogHandler(newStore(t), "tok")

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/decisions/logs", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/decisions/logs", "wrong").Code)
	assert.Equal(t, []string{"c1", "c2", "c3"}, decode(t, get(t, h, "/api/decisions/logs", "tok")))
}

func TestLogHandlerFilters(t *testing.T) {
	h := NewLogHandler(newStore(t), "")

	assert.Equal(t, []string{"c2"}, decode(t, get(t, h, "/api/decisions/logs?battery_id=b&mode=manual", "")))
	assert.Equal(t, []string{"c2", "c3"}, decode(t, get(t, h, "/api/decisions/logs?start=2025-05-06T10:01:00Z", "")))
	assert.Equal(t, []string{"c1"}, decode(t, get(t, h, "/api/decisions/logs?end=2025-05-06T10:00:30Z", "")))
	assert.Len(t, decode(t, get(t, h, "/api/decisions/logs?limit=1", "")), 1)
	assert.Equal(t, []string{}, decode(t, get(t, h, "/api/decisions/logs?battery_id=zzz", "")))
}

func TestLogHandlerBadRequest(t *testing.T) {
	h := NewLogHandler(newStore(t), "")
	for _, url := range []string{
		"/api/decisions/logs?start=yesterday",
		"/api/decisions/logs?end=1",
		"/api/decisions/logs?mode=turbo",
		"/api/decisions/logs?limit=-3",
	} {
		assert.Equal(t, http.StatusBadRequest, get(t, h, url, "").Code, url)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/decisions/logs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
