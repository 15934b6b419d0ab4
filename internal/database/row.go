package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a record already exists
	ErrAlreadyExists = errors.New("record already exists")
	// ErrUnknownTable is returned for a table the store does not manage
	ErrUnknownTable = errors.New("unknown table")
)

// Logical table names
const (
	TableServers  = "servers"
	TableProfiles = "profiles"
)

// Column names shared by every table
const (
	ColumnId        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// Row is a loosely typed record keyed by snake_case column name
type Row map[string]any

// Query selects rows by column equality and orders the result
type Query struct {
	Eq      map[string]any
	OrderBy string
	Desc    bool
}

// ById is the query for a single-row lookup
func ById(id string) Query {
	return Query{Eq: map[string]any{ColumnId: id}}
}

// RowStore is the remote row-based store. Single-row operations are
// always scoped by equality on id.
type RowStore interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	// Insert returns the stored row including store-assigned columns
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update writes only the given columns and refreshes updated_at
	Update(ctx context.Context, table, id string, row Row) (Row, error)
	// Upsert inserts row or, when onConflict matches an existing row, updates it
	Upsert(ctx context.Context, table string, row Row, onConflict string) (Row, error)
	Delete(ctx context.Context, table, id string) error
}

// Clone returns a copy of r that shares no slices or maps with it
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Id returns the row's id column as a string
func (r Row) Id() string {
	s, _ := r[ColumnId].(string)
	return s
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	}
	return v
}

// sortedColumns returns the keys of r in lexical order, skipping the excluded ones
func sortedColumns(r Row, exclude ...string) []string {
	cols := make([]string, 0, len(r))
outer:
	for k := range r {
		for _, e := range exclude {
			if k == e {
				continue outer
			}
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// matches reports whether r satisfies every equality in eq
func matches(r Row, eq map[string]any) bool {
	for k, want := range eq {
		got, ok := r[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// orderRows sorts rows in place by column, stable for equal keys
func orderRows(rows []Row, column string, desc bool) {
	if column == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(rows[i][column], rows[j][column])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// compareValues orders timestamps, numbers and strings. Strings that parse
// as RFC3339 timestamps compare chronologically.
func compareValues(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
