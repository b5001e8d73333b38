// Package prospecttest provides an in-memory prospect.Repository for tests.
package prospecttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
)

// MemoryRepository applies the same create-or-merge rules as the Postgres
// store. Set the *Err fields to make the matching call fail.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[prospect.Kind]map[string]*prospect.Record
	Now     func() time.Time

	CountErr  error
	UpsertErr error
	ListErr   error

	UpsertCalls int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: map[prospect.Kind]map[string]*prospect.Record{},
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func clone(r *prospect.Record) *prospect.Record {
	c := *r
	if r.Extra != nil {
		c.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Seed stores rec as-is, bypassing merge rules.
func (m *MemoryRepository) Seed(kind prospect.Kind, rec *prospect.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[kind] == nil {
		m.records[kind] = map[string]*prospect.Record{}
	}
	m.records[kind][rec.ID] = clone(rec)
}

func (m *MemoryRepository) Len(kind prospect.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[kind])
}

func (m *MemoryRepository) FindByID(_ context.Context, kind prospect.Kind, id string) (*prospect.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[kind][id]
	if !ok {
		return nil, prospect.ErrRecordNotFound
	}
	return clone(rec), nil
}

func (m *MemoryRepository) Upsert(_ context.Context, kind prospect.Kind, rec *prospect.Record) (prospect.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return prospect.UpsertResult{}, m.UpsertErr
	}
	if m.records[kind] == nil {
		m.records[kind] = map[string]*prospect.Record{}
	}

	now := m.Now()
	if stored, ok := m.records[kind][rec.ID]; ok {
		stored.Merge(rec)
		stored.UpdatedAt = now
		return prospect.UpsertResult{Record: clone(stored), Created: false}, nil
	}

	created := clone(rec)
	created.Kind = kind
	created.PrepareForCreate(now)
	m.records[kind][rec.ID] = created
	return prospect.UpsertResult{Record: clone(created), Created: true}, nil
}

func (m *MemoryRepository) CountSince(_ context.Context, kind prospect.Kind, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	n := 0
	for _, r := range m.records[kind] {
		if !r.CapturedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) List(_ context.Context, kind prospect.Kind, f prospect.ListFilter) ([]*prospect.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]*prospect.Record, 0)
	for _, r := range m.records[kind] {
		if f.Company != "" && r.Company != f.Company {
			continue
		}
		if !f.Since.IsZero() && r.CapturedAt.Before(f.Since) {
			continue
		}
		if !f.Before.IsZero() && !r.CapturedAt.Before(f.Before) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*prospect.Record{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepository) SetExtra(_ context.Context, kind prospect.Kind, id, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[kind][id]
	if !ok {
		return prospect.ErrRecordNotFound
	}
	if rec.Extra == nil {
		rec.Extra = map[string]any{}
	}
	rec.Extra[key] = value
	return nil
}
