package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("transient state not found")

// TransactionState is the ephemeral record of an in-flight gateway
// transaction, keyed by the provider's transaction id. Every entry carries
// its own expiry; a read past ExpiresAt reports not-found rather than
// stale data, which is how pending payments resolve to timeout without a
// background sweep.
type TransactionState struct {
	ProviderTransactionID string    `json:"providerTransactionId"`
	OrderID               string    `json:"orderId"`
	Gateway               string    `json:"gateway"`
	Amount                float64   `json:"amount"`
	PayerIdentifier       string    `json:"payerIdentifier"`
	Status                string    `json:"status"`
	InitiatedAt           time.Time `json:"initiatedAt"`
	ExpiresAt             time.Time `json:"expiresAt"`
}

// Expired reports whether the entry's confirmation window has passed.
func (s *TransactionState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store is the TTL-bound key-value contract the orchestrator relies on.
// The backing technology is never assumed beyond get/set/delete with
// expiry and an atomic first-writer-wins marker.
type Store interface {
	SaveTransaction(ctx context.Context, state *TransactionState) error
	GetTransaction(ctx context.Context, providerTxnID string) (*TransactionState, error)
	DeleteTransaction(ctx context.Context, providerTxnID string) error

	// MarkEventOnce atomically records a webhook event id. It returns true
	// for the first delivery and false for every replay.
	MarkEventOnce(ctx context.Context, gateway, eventID string, ttl time.Duration) (bool, error)

	// UnmarkEvent releases an event claim so a provider retry can
	// reprocess after a handling failure.
	UnmarkEvent(ctx context.Context, gateway, eventID string) error

	// PutIdempotencyKey atomically records an initiation fingerprint under
	// the caller's idempotency key. It returns (true, "") the first time
	// and (false, existing fingerprint) on reuse.
	PutIdempotencyKey(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, string, error)

	// DeleteIdempotencyKey releases an initiation claim after a failed
	// attempt so an identical retry is not locked out for the TTL.
	DeleteIdempotencyKey(ctx context.Context, key string) error
}

const (
	txnPrefix   = "pay:txn:"
	eventPrefix = "pay:event:"
	idemPrefix  = "pay:idem:"
)

type redisStore struct {
	client *redis.Client
}

func (s *redisStore) SaveTransaction(ctx context.Context, state *TransactionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	ttl := time.Until(state.ExpiresAt)
	if ttl <= 0 {
		return errors.New("transaction state already expired")
	}
	// Keep the redis entry slightly past its logical expiry so an expired
	// read can still be distinguished from a never-seen key by callers
	// that need it; logical expiry is enforced on read.
	return s.client.Set(ctx, txnPrefix+state.ProviderTransactionID, data, ttl+time.Minute).Err()
}

func (s *redisStore) GetTransaction(ctx context.Context, providerTxnID string) (*TransactionState, error) {
	data, err := s.client.Get(ctx, txnPrefix+providerTxnID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var state TransactionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return &state, nil
}

func (s *redisStore) DeleteTransaction(ctx context.Context, providerTxnID string) error {
	return s.client.Del(ctx, txnPrefix+providerTxnID).Err()
}

func (s *redisStore) MarkEventOnce(ctx context.Context, gateway, eventID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, eventPrefix+gateway+":"+eventID, "1", ttl).Result()
}

func (s *redisStore) UnmarkEvent(ctx context.Context, gateway, eventID string) error {
	return s.client.Del(ctx, eventPrefix+gateway+":"+eventID).Err()
}

func (s *redisStore) PutIdempotencyKey(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, string, error) {
	stored, err := s.client.SetNX(ctx, idemPrefix+key, fingerprint, ttl).Result()
	if err != nil {
		return false, "", err
	}
	if stored {
		return true, "", nil
	}
	existing, err := s.client.Get(ctx, idemPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get; treat as first write.
		return true, "", s.client.Set(ctx, idemPrefix+key, fingerprint, ttl).Err()
	}
	if err != nil {
		return false, "", err
	}
	return false, existing, nil
}

func (s *redisStore) DeleteIdempotencyKey(ctx context.Context, key string) error {
	return s.client.Del(ctx, idemPrefix+key).Err()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nextGC  time.Time
}

// NewMemoryStore builds an in-process Store. Used as a fallback when redis
// is unreachable and as a test double.
func NewMemoryStore() Store {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		nextGC:  time.Now().Add(time.Minute),
	}
}

func (s *memoryStore) gcLocked(now time.Time) {
	if now.Before(s.nextGC) {
		return
	}
	for k, e := range s.entries {
		if e.expiresAt.Before(now) {
			delete(s.entries, k)
		}
	}
	s.nextGC = now.Add(time.Minute)
}

func (s *memoryStore) SaveTransaction(_ context.Context, state *TransactionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if !time.Now().Before(state.ExpiresAt) {
		return errors.New("transaction state already expired")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked(time.Now())
	s.entries[txnPrefix+state.ProviderTransactionID] = memoryEntry{
		value:     string(data),
		expiresAt: state.ExpiresAt.Add(time.Minute),
	}
	return nil
}

func (s *memoryStore) GetTransaction(_ context.Context, providerTxnID string) (*TransactionState, error) {
	s.mu.Lock()
	entry, ok := s.entries[txnPrefix+providerTxnID]
	s.mu.Unlock()

	if !ok || entry.expiresAt.Before(time.Now()) {
		return nil, ErrNotFound
	}

	var state TransactionState
	if err := json.Unmarshal([]byte(entry.value), &state); err != nil {
		return nil, err
	}
	if state.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return &state, nil
}

func (s *memoryStore) DeleteTransaction(_ context.Context, providerTxnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, txnPrefix+providerTxnID)
	return nil
}

func (s *memoryStore) MarkEventOnce(_ context.Context, gateway, eventID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	key := eventPrefix + gateway + ":" + eventID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked(now)

	if entry, ok := s.entries[key]; ok && entry.expiresAt.After(now) {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: "1", expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *memoryStore) UnmarkEvent(_ context.Context, gateway, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, eventPrefix+gateway+":"+eventID)
	return nil
}

func (s *memoryStore) PutIdempotencyKey(_ context.Context, key, fingerprint string, ttl time.Duration) (bool, string, error) {
	now := time.Now()
	fullKey := idemPrefix + key

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked(now)

	if entry, ok := s.entries[fullKey]; ok && entry.expiresAt.After(now) {
		return false, entry.value, nil
	}
	s.entries[fullKey] = memoryEntry{value: fingerprint, expiresAt: now.Add(ttl)}
	return true, "", nil
}

func (s *memoryStore) DeleteIdempotencyKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, idemPrefix+key)
	return nil
}

// NewStore builds a redis-backed Store and falls back to in-memory when
// redis is unreachable (the returned error reports the failed ping).
func NewStore(addr, pass string, db int) (Store, error) {
	if addr == "" {
		return NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return NewMemoryStore(), err
	}

	return &redisStore{client: client}, nil
}
