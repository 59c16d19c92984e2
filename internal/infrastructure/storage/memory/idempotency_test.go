package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/apperror"
	"orderflow/internal/domain/idempotency"
)

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(time.Hour)
	store.now = func() time.Time { return clock }

	req := idempotency.Request{Key: "k1", Actor: "planner", Operation: "POST /api/v1/sales-orders", RequestHash: "abc"}

	replay, err := store.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay, "first use runs the operation")

	_, err = store.Acquire(ctx, req)
	assert.True(t, hasIdempotencyCode(err), "in-flight key conflicts")

	other := req
	other.RequestHash = "def"
	_, err = store.Acquire(ctx, other)
	assert.True(t, hasIdempotencyCode(err), "different body conflicts")

	require.NoError(t, store.Complete(ctx, "k1", idempotency.StatusSuccess, idempotency.Replay{
		StatusCode: 201,
		Body:       []byte(`{"id":"x"}`),
	}))

	replay, err = store.Acquire(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.Equal(t, "application/json", replay.ContentType)
	assert.JSONEq(t, `{"id":"x"}`, string(replay.Body))

	clock = clock.Add(2 * time.Hour)
	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIdempotencyStore_StalePendingKeyIsReclaimed(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(time.Hour)
	store.now = func() time.Time { return clock }

	req := idempotency.Request{Key: "k2", Actor: "planner", Operation: "POST /x", RequestHash: "h"}
	_, err := store.Acquire(ctx, req)
	require.NoError(t, err)

	clock = clock.Add(idempotency.StaleAfter + time.Second)
	replay, err := store.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func hasIdempotencyCode(err error) bool {
	appErr, ok := apperror.AsAppError(err)
	return ok && appErr.Code == apperror.CodeIdempotency
}
