// Package rediscache wraps a contract.Store with a two-tier read cache —
// an in-memory LRU L1 in front of a Redis L2 — the way the teacher's
// internal/infrastructure/template.TwoTierTemplateCache layers caching in
// front of its template store: L1 → L2 → underlying store, with writes
// populating both tiers and deletes invalidating both tiers.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kestrel-sync/docsync/contract"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Stats mirrors the teacher's CacheStats shape.
type Stats struct {
	L1Size      int
	L1Hits      int64
	L1Misses    int64
	L2Hits      int64
	L2Misses    int64
	TotalHits   int64
	TotalMisses int64
	HitRatio    float64
}

// Store decorates a contract.Store[T] with L1 (LRU)/L2 (Redis) read caching.
// Only Get is served from the cache; every other contract.Store method
// passes through to next, with Put/PutBatch additionally writing the
// documents into both cache tiers and Delete invalidating both tiers.
type Store[T any] struct {
	next   contract.Store[T]
	l1     *lru.Cache[syncmodel.DocumentID, syncmodel.Document[T]]
	l2     *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger

	mu                           sync.RWMutex
	l1Hits, l1Misses             int64
	l2Hits, l2Misses             int64
}

var _ contract.Store[struct{}] = (*Store[struct{}])(nil)

// New wraps next with an L1 cache of l1Size entries and an L2 Redis cache
// with the given TTL. keyPrefix namespaces this store's keys within a
// shared Redis instance (spec: "template:v1:" pattern generalized to
// "docsync:<prefix>:").
func New[T any](next contract.Store[T], l2 *redis.Client, l1Size int, ttl time.Duration, keyPrefix string, logger *slog.Logger) (*Store[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if l1Size <= 0 {
		l1Size = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	l1, err := lru.New[syncmodel.DocumentID, syncmodel.Document[T]](l1Size)
	if err != nil {
		return nil, fmt.Errorf("creating L1 cache: %w", err)
	}

	return &Store[T]{
		next:   next,
		l1:     l1,
		l2:     l2,
		ttl:    ttl,
		prefix: fmt.Sprintf("docsync:%s:", keyPrefix),
		logger: logger.With("component", "two_tier_cache"),
	}, nil
}

func (s *Store[T]) cacheKey(id syncmodel.DocumentID) string {
	return s.prefix + string(id)
}

func (s *Store[T]) Get(ctx context.Context, id syncmodel.DocumentID) (*syncmodel.Document[T], error) {
	if doc, ok := s.l1.Get(id); ok {
		s.recordL1Hit()
		return &doc, nil
	}
	s.recordL1Miss()

	raw, err := s.l2.Get(ctx, s.cacheKey(id)).Bytes()
	if err == nil {
		var doc syncmodel.Document[T]
		if unmarshalErr := json.Unmarshal(raw, &doc); unmarshalErr == nil {
			s.l1.Add(id, doc)
			s.recordL2Hit()
			return &doc, nil
		}
	}
	s.recordL2Miss()

	doc, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		s.populate(ctx, *doc)
	}
	return doc, nil
}

func (s *Store[T]) populate(ctx context.Context, doc syncmodel.Document[T]) {
	s.l1.Add(doc.ID, doc)

	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.Warn("failed to marshal document for L2 cache", "document_id", doc.ID, "error", err)
		return
	}
	if err := s.l2.Set(ctx, s.cacheKey(doc.ID), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to populate L2 cache", "document_id", doc.ID, "error", err)
	}
}

func (s *Store[T]) invalidate(ctx context.Context, id syncmodel.DocumentID) {
	s.l1.Remove(id)
	if err := s.l2.Del(ctx, s.cacheKey(id)).Err(); err != nil {
		s.logger.Warn("failed to invalidate L2 cache entry", "document_id", id, "error", err)
	}
}

func (s *Store[T]) Put(ctx context.Context, doc syncmodel.Document[T]) error {
	if err := s.next.Put(ctx, doc); err != nil {
		return err
	}
	s.populate(ctx, doc)
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id syncmodel.DocumentID) error {
	if err := s.next.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Store[T]) GetBatch(ctx context.Context, ids []syncmodel.DocumentID) ([]syncmodel.Document[T], error) {
	return s.next.GetBatch(ctx, ids)
}

func (s *Store[T]) PutBatch(ctx context.Context, docs []syncmodel.Document[T]) error {
	if err := s.next.PutBatch(ctx, docs); err != nil {
		return err
	}
	for _, doc := range docs {
		s.populate(ctx, doc)
	}
	return nil
}

func (s *Store[T]) GetAll(ctx context.Context) ([]syncmodel.Document[T], error) {
	return s.next.GetAll(ctx)
}

func (s *Store[T]) GetAllIDs(ctx context.Context) ([]syncmodel.DocumentID, error) {
	return s.next.GetAllIDs(ctx)
}

func (s *Store[T]) GetChangesSince(ctx context.Context, ts syncmodel.Timestamp) ([]syncmodel.ChangeRecord[T], error) {
	return s.next.GetChangesSince(ctx, ts)
}

func (s *Store[T]) PutChange(ctx context.Context, change syncmodel.ChangeRecord[T]) error {
	return s.next.PutChange(ctx, change)
}

func (s *Store[T]) ClearChangesBefore(ctx context.Context, ts syncmodel.Timestamp) error {
	return s.next.ClearChangesBefore(ctx, ts)
}

func (s *Store[T]) GetLastSyncTimestamp(ctx context.Context) (syncmodel.Timestamp, error) {
	return s.next.GetLastSyncTimestamp(ctx)
}

func (s *Store[T]) SetLastSyncTimestamp(ctx context.Context, ts syncmodel.Timestamp) error {
	return s.next.SetLastSyncTimestamp(ctx, ts)
}

func (s *Store[T]) Close(ctx context.Context) error {
	if err := s.l2.Close(); err != nil {
		s.logger.Warn("error closing redis client", "error", err)
	}
	return s.next.Close(ctx)
}

// Stats returns a snapshot of cache hit/miss counters.
func (s *Store[T]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalHits := s.l1Hits + s.l2Hits
	totalMisses := s.l2Misses
	var ratio float64
	if total := totalHits + totalMisses; total > 0 {
		ratio = float64(totalHits) / float64(total)
	}
	return Stats{
		L1Size:      s.l1.Len(),
		L1Hits:      s.l1Hits,
		L1Misses:    s.l1Misses,
		L2Hits:      s.l2Hits,
		L2Misses:    s.l2Misses,
		TotalHits:   totalHits,
		TotalMisses: totalMisses,
		HitRatio:    ratio,
	}
}

func (s *Store[T]) recordL1Hit() {
	s.mu.Lock()
	s.l1Hits++
	s.mu.Unlock()
}

func (s *Store[T]) recordL1Miss() {
	s.mu.Lock()
	s.l1Misses++
	s.mu.Unlock()
}

func (s *Store[T]) recordL2Hit() {
	s.mu.Lock()
	s.l2Hits++
	s.mu.Unlock()
}

func (s *Store[T]) recordL2Miss() {
	s.mu.Lock()
	s.l2Misses++
	s.mu.Unlock()
}
