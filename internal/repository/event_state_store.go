package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domrepo "Floramigo/internal/domain/repository"
	"Floramigo/internal/service/cache"
	"Floramigo/internal/services/threshold"
)

const latestEventKey = "floramigo:event:latest:"

// CacheEventStore keeps the last event per signal in a BytesCache
// (redis, or the in-memory TTL cache when redis is disabled).
type CacheEventStore struct {
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCacheEventStore(c cache.BytesCache, ttl time.Duration) *CacheEventStore {
	return &CacheEventStore{cache: c, ttl: ttl}
}

var _ domrepo.EventStateStore = (*CacheEventStore)(nil)

func (s *CacheEventStore) Save(ctx context.Context, ev threshold.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.cache.SetBytes(ctx, latestEventKey+ev.Signal, b, s.ttl); err != nil {
		return fmt.Errorf("save event %s: %w", ev.Signal, err)
	}
	return nil
}

// Latest returns nil without error when the signal has no stored event.
func (s *CacheEventStore) Latest(ctx context.Context, signal string) (*threshold.Event, error) {
	b, ok, err := s.cache.GetBytes(ctx, latestEventKey+signal)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", signal, err)
	}
	if !ok {
		return nil, nil
	}
	var ev threshold.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", signal, err)
	}
	return &ev, nil
}
