// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/migrations"
)

// Up runs all pending migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		logger.WithField("version", version).Info("Database schema up to date")
	}
	return nil
}

// gooseLogger routes goose output through the structured logger
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logger.Component("migrate").Infof(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logger.Component("migrate").Fatalf(format, v...)
}
