// Package memorystore implements contract.Store using an in-memory map, the
// way the teacher's internal/storage/memory package implements
// core.AlertStorage: a RWMutex-guarded map, defensive copies on every read
// and write so callers can never mutate store-owned state, and no external
// dependency of any kind.
//
// WARNING: data is not persisted. Intended for tests, local development, and
// graceful degradation when a durable backend is unavailable.
package memorystore

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/kestrel-sync/docsync/contract"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Store is an in-memory contract.Store[T].
type Store[T any] struct {
	mu       sync.RWMutex
	docs     map[syncmodel.DocumentID]syncmodel.Document[T]
	changes  []syncmodel.ChangeRecord[T]
	lastSync syncmodel.Timestamp
	logger   *slog.Logger
}

// New creates an empty Store. logger may be nil, in which case
// slog.Default() is used.
func New[T any](logger *slog.Logger) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{
		docs:   make(map[syncmodel.DocumentID]syncmodel.Document[T]),
		logger: logger.With("component", "memory_store"),
	}
}

var _ contract.Store[struct{}] = (*Store[struct{}])(nil)

func cloneDoc[T any](doc syncmodel.Document[T]) syncmodel.Document[T] {
	return doc
}

func (s *Store[T]) Get(_ context.Context, id syncmodel.DocumentID) (*syncmodel.Document[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	clone := cloneDoc(doc)
	return &clone, nil
}

func (s *Store[T]) Put(_ context.Context, doc syncmodel.Document[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (s *Store[T]) Delete(_ context.Context, id syncmodel.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *Store[T]) GetBatch(_ context.Context, ids []syncmodel.DocumentID) ([]syncmodel.Document[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]syncmodel.Document[T], 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func (s *Store[T]) PutBatch(_ context.Context, docs []syncmodel.Document[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.ID] = cloneDoc(doc)
	}
	return nil
}

func (s *Store[T]) GetAll(_ context.Context) ([]syncmodel.Document[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]syncmodel.Document[T], 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, cloneDoc(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store[T]) GetAllIDs(_ context.Context) ([]syncmodel.DocumentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]syncmodel.DocumentID, 0, len(s.docs))
	for id := range s.docs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store[T]) GetChangesSince(_ context.Context, ts syncmodel.Timestamp) ([]syncmodel.ChangeRecord[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]syncmodel.ChangeRecord[T], 0, len(s.changes))
	for _, c := range s.changes {
		if c.LocalTs > ts {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store[T]) PutChange(_ context.Context, change syncmodel.ChangeRecord[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, change)
	return nil
}

func (s *Store[T]) ClearChangesBefore(_ context.Context, ts syncmodel.Timestamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.changes[:0:0]
	for _, c := range s.changes {
		if c.LocalTs >= ts {
			kept = append(kept, c)
		}
	}
	s.changes = kept
	return nil
}

func (s *Store[T]) GetLastSyncTimestamp(_ context.Context) (syncmodel.Timestamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync, nil
}

func (s *Store[T]) SetLastSyncTimestamp(_ context.Context, ts syncmodel.Timestamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = ts
	return nil
}

// Close discards all state. Idempotent.
func (s *Store[T]) Close(_ context.Context) error {
	s.mu.Lock()
	s.docs = make(map[syncmodel.DocumentID]syncmodel.Document[T])
	s.changes = nil
	s.lastSync = 0
	s.mu.Unlock()
	s.logger.Info("memory store closed (data discarded)")
	return nil
}

// Size returns the current document count, mirroring the teacher's
// GetSize/GetCapacity diagnostics.
func (s *Store[T]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
