package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/db"
	"fiscal-offline-go/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestRepository(t *testing.T) *OperationRepository {
	t.Helper()
	database, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "queue.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	return NewOperationRepository(database)
}

func TestOperationRepository_CRUD(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	op := &models.QueuedOperation{
		ID:            "op-1",
		Kind:          models.KindCreate,
		ResourceType:  "receipt",
		Endpoint:      "/mf1/receipts",
		Method:        "POST",
		Payload:       datatypes.JSON(`{"amount":"1.00"}`),
		Status:        models.StatusPending,
		MaxRetries:    3,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
	}
	require.NoError(t, repo.Set(ctx, op))

	got, err := repo.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "receipt", got.ResourceType)
	assert.JSONEq(t, `{"amount":"1.00"}`, string(got.Payload))
	assert.Nil(t, got.Headers)
	assert.True(t, now.Equal(got.CreatedAt))

	// Upsert ersetzt den vorhandenen Datensatz
	got.Status = models.StatusProcessing
	got.RetryCount = 2
	got.LastError = "timeout"
	require.NoError(t, repo.Set(ctx, got))

	again, err := repo.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, again.Status)
	assert.Equal(t, 2, again.RetryCount)
	assert.Equal(t, "timeout", again.LastError)

	require.NoError(t, repo.Remove(ctx, "op-1"))
	_, err = repo.Get(ctx, "op-1")
	assert.ErrorIs(t, err, queue.ErrNotFound)
	assert.ErrorIs(t, repo.Remove(ctx, "op-1"), queue.ErrNotFound)
}

func TestOperationRepository_ListOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Set(ctx, &models.QueuedOperation{
			ID:        id,
			Kind:      models.KindCreate,
			Endpoint:  "/mf1/receipts",
			Method:    "POST",
			Status:    models.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	ops, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "c", ops[0].ID)
	assert.Equal(t, "a", ops[1].ID)
	assert.Equal(t, "b", ops[2].ID)
}

func TestOperationRepository_WithManager(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m := queue.NewManager(repo, config.DefaultQueueConfig(), nil)
	op, err := m.Enqueue(ctx, queue.EnqueueRequest{
		Endpoint: "/mf1/receipts/r1",
		Method:   "put",
		Headers:  map[string]string{"X-Request-ID": "abc"},
	})
	require.NoError(t, err)

	batch, err := m.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "abc", batch[0].HeaderMap()["X-Request-ID"])

	_, err = m.MarkCompleted(ctx, op.ID)
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Active())

	// Nach einem Neustart sieht ein neuer Manager denselben Zustand
	restarted := queue.NewManager(repo, config.DefaultQueueConfig(), nil)
	got, err := restarted.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, models.KindUpdate, got.Kind)
}
