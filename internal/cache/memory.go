package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fraudocr/pkg/models"
)

// MemoryStore keeps records in process. It backs --dry-run and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.Record
	now     func() time.Time
	closed  bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Lookup(ctx context.Context, filename string) (*models.Record, error) {
	const op = "Lookup"
	if err := m.check(ctx, op); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[filename]
	if !ok {
		return nil, notFound(op, filename)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, rec *models.Record) error {
	const op = "Save"
	if err := m.check(ctx, op); err != nil {
		return err
	}
	if err := validateRecord(op, rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stored := rec.Clone()
	stored.CachedAt = now
	stored.Version = 1
	stored.CreatedAt = now
	if prev, ok := m.records[rec.Filename]; ok {
		stored.Version = prev.Version + 1
		stored.CreatedAt = prev.CreatedAt
	}
	m.records[rec.Filename] = stored

	rec.Version = stored.Version
	rec.CreatedAt = stored.CreatedAt
	rec.CachedAt = stored.CachedAt
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, filename string) error {
	const op = "Delete"
	if err := m.check(ctx, op); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[filename]; !ok {
		return notFound(op, filename)
	}
	delete(m.records, filename)
	return nil
}

func (m *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	if err := m.check(ctx, "DeleteAll"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.records))
	m.records = make(map[string]*models.Record)
	return n, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*models.Record, error) {
	if err := m.check(ctx, "List"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CachedAt.Equal(out[j].CachedAt) {
			return out[i].CachedAt.After(out[j].CachedAt)
		}
		return strings.Compare(out[i].Filename, out[j].Filename) < 0
	})
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NewStoreError(op, "", ErrConnectivity, nil)
	}
	return nil
}
