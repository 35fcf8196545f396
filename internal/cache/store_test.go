package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(ttl time.Duration) *TransactionState {
	now := time.Now()
	return &TransactionState{
		ProviderTransactionID: "ws_CO_191220191020363925",
		OrderID:               "ORD-1001",
		Gateway:               "mpesa",
		Amount:                50,
		PayerIdentifier:       "254712345678",
		Status:                "pending",
		InitiatedAt:           now,
		ExpiresAt:             now.Add(ttl),
	}
}

func TestMemoryStoreTransactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := testState(15 * time.Minute)
	require.NoError(t, store.SaveTransaction(ctx, state))

	got, err := store.GetTransaction(ctx, state.ProviderTransactionID)
	require.NoError(t, err)
	assert.Equal(t, state.OrderID, got.OrderID)
	assert.Equal(t, state.Gateway, got.Gateway)
	assert.Equal(t, state.Amount, got.Amount)

	require.NoError(t, store.DeleteTransaction(ctx, state.ProviderTransactionID))
	_, err = store.GetTransaction(ctx, state.ProviderTransactionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUnknownTransaction(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetTransaction(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiredTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := testState(30 * time.Millisecond)
	require.NoError(t, store.SaveTransaction(ctx, state))

	time.Sleep(60 * time.Millisecond)

	// Logical expiry is enforced on read; the entry reports not-found even
	// if the backing record has not been swept yet.
	_, err := store.GetTransaction(ctx, state.ProviderTransactionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsAlreadyExpired(t *testing.T) {
	store := NewMemoryStore()
	state := testState(-time.Minute)
	assert.Error(t, store.SaveTransaction(context.Background(), state))
}

func TestMemoryStoreMarkEventOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.MarkEventOnce(ctx, "mpesa", "evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	// Replay of the same event id.
	again, err := store.MarkEventOnce(ctx, "mpesa", "evt-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	// Same id arriving from another gateway is a distinct event.
	other, err := store.MarkEventOnce(ctx, "paypal", "evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMemoryStoreUnmarkEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.MarkEventOnce(ctx, "card", "evt-9", time.Hour)
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, store.UnmarkEvent(ctx, "card", "evt-9"))

	retry, err := store.MarkEventOnce(ctx, "card", "evt-9", time.Hour)
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestMemoryStoreMarkEventExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.MarkEventOnce(ctx, "mpesa", "evt-2", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, first)

	time.Sleep(60 * time.Millisecond)

	again, err := store.MarkEventOnce(ctx, "mpesa", "evt-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, again, "an expired claim can be taken again")
}

func TestMemoryStorePutIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, existing, err := store.PutIdempotencyKey(ctx, "ORD-1001", "fp-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	assert.Empty(t, existing)

	again, existing, err := store.PutIdempotencyKey(ctx, "ORD-1001", "fp-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, "fp-a", existing, "the original fingerprint wins")
}

func TestMemoryStoreDeleteIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, _, err := store.PutIdempotencyKey(ctx, "ORD-1001", "fp-a", time.Hour)
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, store.DeleteIdempotencyKey(ctx, "ORD-1001"))

	retry, existing, err := store.PutIdempotencyKey(ctx, "ORD-1001", "fp-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, retry, "a released claim can be taken again")
	assert.Empty(t, existing)
}

func TestNewStoreWithoutAddrFallsBackToMemory(t *testing.T) {
	store, err := NewStore("", "", 0)
	require.NoError(t, err)
	require.NotNil(t, store)

	first, err := store.MarkEventOnce(context.Background(), "mpesa", "evt-x", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}
