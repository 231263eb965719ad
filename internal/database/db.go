package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Open connects to Postgres, retrying while the database comes up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < cfg.ConnectRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, cfg.ConnectRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < cfg.ConnectRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", cfg.ConnectRetries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(&QueryLogger{Logger: log, SlowThreshold: cfg.SlowQuery})

	log.Info("DATABASE", "PostgreSQL connection successful")
	return db, nil
}
