package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
)

func record(id string, status models.Status, created time.Time, version uint64) models.SignalRecord {
	return models.SignalRecord{
		Signal: models.ApprovedSignal{
			ID:        id,
			Symbol:    "BTCUSDT",
			Direction: models.Long,
			Status:    status,
			Targets:   []float64{102, 104},
			CreatedAt: created,
		},
		Version: version,
	}
}

func TestMemorySignalStoreVersions(t *testing.T) {
	s := NewMemorySignalStore()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("s1", models.StatusActive, at, 2)))
	require.NoError(t, s.Save(ctx, record("s1", models.StatusPendingDelivery, at, 1)))
	rec, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, rec.Signal.Status, "older versions are ignored")

	rec.Signal.Targets[0] = 0
	again, _ := s.Get(ctx, "s1")
	assert.Equal(t, 102.0, again.Signal.Targets[0], "reads are copies")

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domrepo.ErrNotFound))
	assert.Error(t, s.Save(ctx, models.SignalRecord{}))
}

func TestMemorySignalStoreListing(t *testing.T) {
	s := NewMemorySignalStore()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, record("c", models.StatusWin, at.Add(2*time.Minute), 1)))
	require.NoError(t, s.Save(ctx, record("b", models.StatusActive, at.Add(time.Minute), 1)))
	require.NoError(t, s.Save(ctx, record("a", models.StatusPendingDelivery, at, 1)))

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].Signal.ID, "oldest first")
	assert.Equal(t, "b", open[1].Signal.ID)

	history, err := s.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].Signal.ID, "newest first")
	assert.Equal(t, "b", history[1].Signal.ID)

	all, _ := s.History(ctx, 0)
	assert.Len(t, all, 3)
}

func TestMemoryHealthStore(t *testing.T) {
	s := NewMemoryHealthStore()
	ctx := context.Background()
	require.NoError(t, s.SaveHealth(ctx, []models.StrategyHealth{
		{StrategyID: "momentum", Weight: 1},
		{StrategyID: "ma_crossover", Disabled: true},
	}))
	require.NoError(t, s.SaveHealth(ctx, []models.StrategyHealth{{StrategyID: "momentum", Weight: 0.5}}))

	got, err := s.LoadHealth(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ma_crossover", got[0].StrategyID)
	assert.True(t, got[0].Disabled)
	assert.Equal(t, 0.5, got[1].Weight)
}

func TestMemoryQuotaStore(t *testing.T) {
	s := NewMemoryQuotaStore()
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		used, ok, err := s.Consume(ctx, models.TierFree, "2024-05-01T00", 2, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, used)
	}
	used, ok, _ := s.Consume(ctx, models.TierFree, "2024-05-01T00", 2, time.Hour)
	assert.False(t, ok)
	assert.Equal(t, 2, used)

	n, _ := s.Used(ctx, models.TierPro, "2024-05-01T00")
	assert.Zero(t, n, "tiers are independent")

	require.NoError(t, s.Reset(ctx, models.TierFree, "2024-05-01T00"))
	n, _ = s.Used(ctx, models.TierFree, "2024-05-01T00")
	assert.Zero(t, n)
}

func TestSignalSchema(t *testing.T) {
	ddl := SignalSchema("ignitex")
	require.Len(t, ddl, 3)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS ignitex", ddl[0])
	assert.True(t, strings.Contains(ddl[1], "ignitex.signals"))
	assert.True(t, strings.Contains(ddl[1], "ReplacingMergeTree(version)"))
	assert.True(t, strings.Contains(ddl[2], "ignitex.ticks"))
}

func TestDecodeRecord(t *testing.T) {
	in := record("s1", models.StatusActive, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 3)
	b, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := decodeRecord(string(b))
	require.NoError(t, err)
	assert.Equal(t, "s1", out.Signal.ID)
	assert.Equal(t, uint64(3), out.Version)

	_, err = decodeRecord("{")
	assert.Error(t, err)
}
