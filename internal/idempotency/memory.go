package idempotency

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hospivibe/clinic/internal/cache"
)

// MemoryStore keeps records in process memory; replays only work while the
// process lives and only against this replica.
type MemoryStore struct {
	records  *cache.Cache[Record]
	reserves atomic.Uint64
}

// Keys that are never replayed would otherwise pile up until restart.
const sweepEvery = 256

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{records: cache.New[Record](defaultTTL)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if s.reserves.Add(1)%sweepEvery == 0 {
		s.records.Sweep()
	}
	return s.records.SetNX(key, Record{State: StatePending}, ttl), nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	rec, ok := s.records.Get(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.records.Set(key, rec, ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.records.Delete(key)
	return nil
}
