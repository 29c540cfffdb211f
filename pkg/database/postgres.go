package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/course-registration-loadsim/pkg/config"
)

// DSN renders a lib/pq connection string for the configuration.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// schema creates the tables used by the run exporter. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS load_runs (
	id UUID PRIMARY KEY,
	status TEXT NOT NULL,
	params JSONB NOT NULL,
	metrics JSONB,
	slo JSONB,
	artifacts JSONB,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS registration_attempts (
	id UUID PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES load_runs(id) ON DELETE CASCADE,
	student_id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	course_code TEXT NOT NULL,
	decision TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	total_ms DOUBLE PRECISION NOT NULL,
	cache_ms DOUBLE PRECISION NOT NULL,
	reservation_ms DOUBLE PRECISION NOT NULL,
	persistence_ms DOUBLE PRECISION NOT NULL,
	cache_hit BOOLEAN NOT NULL,
	retry_count INT NOT NULL,
	is_hot BOOLEAN NOT NULL,
	waitlist_position INT NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_registration_attempts_run ON registration_attempts (run_id, decision)`,
}

// EnsureSchema applies the exporter schema.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
