package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RowStore. It is used by tests and by
// STORE_BACKEND=memory; nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	now    func() time.Time
}

type memTable struct {
	rows  map[string]Row
	order []string // insertion order, so unordered selects are deterministic
}

// NewMemoryStore creates a store managing the given tables, or the
// servers and profiles tables when none are named.
func NewMemoryStore(tables ...string) *MemoryStore {
	if len(tables) == 0 {
		tables = []string{TableServers, TableProfiles}
	}
	s := &MemoryStore{
		tables: make(map[string]*memTable, len(tables)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, t := range tables {
		s.tables[t] = &memTable{rows: make(map[string]Row)}
	}
	return s
}

func (s *MemoryStore) table(name string) (*memTable, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// Select returns copies of the matching rows
func (s *MemoryStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	for _, id := range t.order {
		r := t.rows[id]
		if matches(r, q.Eq) {
			out = append(out, r.Clone())
		}
	}
	orderRows(out, q.OrderBy, q.Desc)
	return out, nil
}

// Insert stores a new row, assigning id and timestamps when absent
func (s *MemoryStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return s.insertLocked(t, row)
}

func (s *MemoryStore) insertLocked(t *memTable, row Row) (Row, error) {
	r := row.Clone()
	if r == nil {
		r = Row{}
	}
	id := r.Id()
	if id == "" {
		id = uuid.NewString()
		r[ColumnId] = id
	}
	if _, exists := t.rows[id]; exists {
		return nil, ErrAlreadyExists
	}

	now := s.now()
	if _, ok := r[ColumnCreatedAt]; !ok {
		r[ColumnCreatedAt] = now
	}
	r[ColumnUpdatedAt] = now

	t.rows[id] = r
	t.order = append(t.order, id)
	return r.Clone(), nil
}

// Update merges row into the stored row with the given id
func (s *MemoryStore) Update(ctx context.Context, table, id string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	current, ok := t.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, col := range sortedColumns(row, ColumnId, ColumnCreatedAt, ColumnUpdatedAt) {
		current[col] = cloneValue(row[col])
	}
	current[ColumnUpdatedAt] = s.now()
	return current.Clone(), nil
}

// Upsert inserts row, or merges it into the row whose onConflict column matches
func (s *MemoryStore) Upsert(ctx context.Context, table string, row Row, onConflict string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if onConflict == "" {
		onConflict = ColumnId
	}

	want, ok := row[onConflict]
	if ok {
		for _, id := range t.order {
			current := t.rows[id]
			if !valuesEqual(current[onConflict], want) {
				continue
			}
			for _, col := range sortedColumns(row, ColumnId, ColumnCreatedAt, ColumnUpdatedAt) {
				current[col] = cloneValue(row[col])
			}
			current[ColumnUpdatedAt] = s.now()
			return current.Clone(), nil
		}
	}
	return s.insertLocked(t, row)
}

// Delete removes the row with the given id
func (s *MemoryStore) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	delete(t.rows, id)
	for i, rid := range t.order {
		if rid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}
