package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridbalance/core/model"
)

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	base := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, record(base, "c1", "b1", "b2", 1500)))
	require.NoError(t, store.Append(ctx, record(base.Add(time.Minute), "c2", "b2", "b1", 0)))

	out, err := store.Query(ctx, LogQuery{BatteryID: "b2", Mode: model.ModeManual})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].CycleID)
	assert.Equal(t, model.Watts(1500), out[0].Decision.Batteries[1].ManualSetPower)

	out, err = store.Query(ctx, LogQuery{Start: base.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].CycleID)
	assert.True(t, out[0].Timestamp.Equal(base.Add(time.Minute)))
}
