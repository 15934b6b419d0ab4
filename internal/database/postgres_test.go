package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	return NewPostgresStore(mock), mock
}

func TestPostgresStore_SelectOrdered(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT * FROM "servers" ORDER BY "created_at" DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("b", "second", created.Add(time.Hour)).
			AddRow("a", "first", created))

	rows, err := s.Select(ctx, TableServers, Query{OrderBy: ColumnCreatedAt, Desc: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].Id())
	assert.Equal(t, "first", rows[1]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SelectById(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT * FROM "servers" WHERE "id" = $1`).
		WithArgs("srv-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}))

	rows, err := s.Select(context.Background(), TableServers, ById("srv-1"))
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert_OK_and_UniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()
	ctx := context.Background()
	row := Row{"name": "weather", "owner_id": "u1"}

	mock.ExpectQuery(`INSERT INTO "servers" ("name", "owner_id") VALUES ($1, $2) RETURNING *`).
		WithArgs("weather", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "owner_id"}).AddRow("gen-id", "weather", "u1"))

	got, err := s.Insert(ctx, TableServers, row)
	require.NoError(t, err)
	assert.Equal(t, "gen-id", got.Id())

	mock.ExpectQuery(`INSERT INTO "servers" ("name", "owner_id") VALUES ($1, $2) RETURNING *`).
		WithArgs("weather", "u1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = s.Insert(ctx, TableServers, row)
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()
	ctx := context.Background()

	// id and timestamps in the row are never written by an update
	row := Row{"status": "inactive", "description": "", "id": "ignored", "created_at": "ignored"}

	mock.ExpectQuery(`UPDATE "servers" SET "description" = $1, "status" = $2, "updated_at" = now() WHERE "id" = $3 RETURNING *`).
		WithArgs("", "inactive", "srv-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}).AddRow("srv-1", "inactive"))

	got, err := s.Update(ctx, TableServers, "srv-1", row)
	require.NoError(t, err)
	assert.Equal(t, "inactive", got["status"])

	mock.ExpectQuery(`UPDATE "servers" SET "status" = $1, "updated_at" = now() WHERE "id" = $2 RETURNING *`).
		WithArgs("active", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}))

	_, err = s.Update(ctx, TableServers, "missing", Row{"status": "active"})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO "profiles" ("email", "id") VALUES ($1, $2) ON CONFLICT ("id") DO UPDATE SET "email" = EXCLUDED."email", "updated_at" = now() RETURNING *`).
		WithArgs("a@b.c", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email"}).AddRow("u1", "a@b.c"))

	got, err := s.Upsert(context.Background(), TableProfiles, Row{"id": "u1", "email": "a@b.c"}, "id")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Id())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM "servers" WHERE "id" = $1`).
		WithArgs("srv-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, s.Delete(ctx, TableServers, "srv-1"))

	mock.ExpectExec(`DELETE FROM "servers" WHERE "id" = $1`).
		WithArgs("srv-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, s.Delete(ctx, TableServers, "srv-1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UnknownTable(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	_, err := s.Select(context.Background(), "users; DROP TABLE servers", Query{})
	require.ErrorIs(t, err, ErrUnknownTable)
	require.NoError(t, mock.ExpectationsWereMet())
}
