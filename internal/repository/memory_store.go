package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"waste-patrol-service/internal/domain/report"
)

type memoryEntry struct {
	mu      sync.Mutex
	current atomic.Pointer[report.Report]
	deleted bool
}

// MemoryStore keeps reports in process. Each record is published through an
// atomic pointer, so readers never wait on writers; List returns a snapshot
// in which every record is internally consistent but records changed during
// the scan may show either version.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	codes   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		codes:   make(map[string]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[r.Code]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, r.Code)
	}
	if _, ok := s.entries[r.ID]; ok {
		return fmt.Errorf("%w: report id %s already exists", report.ErrConflict, r.ID)
	}

	e := &memoryEntry{}
	e.current.Store(r.Clone())
	s.entries[r.ID] = e
	s.codes[r.Code] = r.ID
	return nil
}

func (s *MemoryStore) entry(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*report.Report, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}
	return e.current.Load().Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*report.Report) error) (*report.Report, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}

	next := e.current.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.current.Store(next)
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string, check func(*report.Report) error) (*report.Report, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}

	current := e.current.Load()
	if check != nil {
		if err := check(current.Clone()); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	delete(s.entries, id)
	delete(s.codes, current.Code)
	s.mu.Unlock()
	e.deleted = true

	return current.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter, p Page) ([]report.Report, error) {
	s.mu.RLock()
	snapshot := make([]*report.Report, 0, len(s.entries))
	for _, e := range s.entries {
		r := e.current.Load()
		if f.Match(r) {
			snapshot = append(snapshot, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if !snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].CreatedAt.After(snapshot[j].CreatedAt)
		}
		return snapshot[i].ID > snapshot[j].ID
	})

	if p.Offset > 0 {
		if p.Offset >= len(snapshot) {
			return []report.Report{}, nil
		}
		snapshot = snapshot[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(snapshot) {
		snapshot = snapshot[:p.Limit]
	}

	out := make([]report.Report, len(snapshot))
	for i, r := range snapshot {
		out[i] = *r.Clone()
	}
	return out, nil
}
