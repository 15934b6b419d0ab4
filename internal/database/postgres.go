package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imyashkale/mcphub/internal/logger"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresStore.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore implements RowStore on a Postgres schema created by the
// embedded migrations.
type PostgresStore struct {
	pool   PgxPool
	tables map[string]bool
}

// NewPostgresPool opens a connection pool for dsn and checks it with a ping
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps pool. Only the servers and profiles tables are accepted.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		tables: map[string]bool{TableServers: true, TableProfiles: true},
	}
}

// Close closes the underlying pool
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) ident(table string) (string, error) {
	if !s.tables[table] {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

func quote(col string) string {
	return pgx.Identifier{col}.Sanitize()
}

// Select runs SELECT * with an AND of equality predicates
func (s *PostgresStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	tbl, err := s.ident(table)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(tbl)

	cols := sortedColumns(Row(q.Eq))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, q.Eq[col])
		fmt.Fprintf(&sb, "%s = $%d", quote(col), len(args))
	}
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quote(q.OrderBy))
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}

	return s.queryRows(ctx, "select", table, sb.String(), args...)
}

// Insert runs INSERT ... RETURNING *
func (s *PostgresStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	tbl, err := s.ident(table)
	if err != nil {
		return nil, err
	}

	cols, placeholders, args := insertParts(row)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		tbl, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if len(cols) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", tbl)
	}

	rows, err := s.queryRows(ctx, "insert", table, sql, args...)
	if err != nil {
		return nil, err
	}
	return single(rows)
}

// Update runs UPDATE ... SET ..., updated_at = now() WHERE id = $n RETURNING *
func (s *PostgresStore) Update(ctx context.Context, table, id string, row Row) (Row, error) {
	tbl, err := s.ident(table)
	if err != nil {
		return nil, err
	}

	cols := sortedColumns(row, ColumnId, ColumnCreatedAt, ColumnUpdatedAt)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for _, col := range cols {
		args = append(args, row[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", quote(col), len(args)))
	}
	sets = append(sets, quote(ColumnUpdatedAt)+" = now()")
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		tbl, strings.Join(sets, ", "), quote(ColumnId), len(args))

	rows, err := s.queryRows(ctx, "update", table, sql, args...)
	if err != nil {
		return nil, err
	}
	return single(rows)
}

// Upsert runs INSERT ... ON CONFLICT (col) DO UPDATE SET col = EXCLUDED.col
func (s *PostgresStore) Upsert(ctx context.Context, table string, row Row, onConflict string) (Row, error) {
	tbl, err := s.ident(table)
	if err != nil {
		return nil, err
	}
	if onConflict == "" {
		onConflict = ColumnId
	}

	cols, placeholders, args := insertParts(row)
	updates := make([]string, 0, len(row)+1)
	for _, col := range sortedColumns(row, onConflict, ColumnCreatedAt, ColumnUpdatedAt) {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quote(col), quote(col)))
	}
	updates = append(updates, quote(ColumnUpdatedAt)+" = now()")

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING *",
		tbl, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		quote(onConflict), strings.Join(updates, ", "))

	rows, err := s.queryRows(ctx, "upsert", table, sql, args...)
	if err != nil {
		return nil, err
	}
	return single(rows)
}

// Delete removes the row with the given id
func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	tbl, err := s.ident(table)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", tbl, quote(ColumnId))
	tag, err := s.pool.Exec(ctx, sql, id)
	if err != nil {
		return s.fail("delete", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryRows(ctx context.Context, op, table, sql string, args ...any) ([]Row, error) {
	logger.WithFields(map[string]interface{}{
		"operation": op,
		"table":     table,
	}).Debug("Executing postgres query")

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, s.fail(op, table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, s.fail(op, table, err)
	}

	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

func (s *PostgresStore) fail(op, table string, err error) error {
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	logger.WithFields(map[string]interface{}{
		"operation": op,
		"table":     table,
		"error":     err.Error(),
	}).Error("Postgres operation failed")
	return fmt.Errorf("postgres %s on %s: %w", op, table, err)
}

func insertParts(row Row) (cols, placeholders []string, args []any) {
	keys := sortedColumns(row)
	cols = make([]string, len(keys))
	placeholders = make([]string, len(keys))
	args = make([]any, len(keys))
	for i, k := range keys {
		cols[i] = quote(k)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[k]
	}
	return cols, placeholders, args
}

func single(rows []Row) (Row, error) {
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
