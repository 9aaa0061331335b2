package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

// New opens a Postgres pool for dsn and verifies it with a ping.
func New(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Migrate creates the schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id UUID PRIMARY KEY,
		submitter_name VARCHAR(100) NOT NULL,
		submitter_email VARCHAR(254) NOT NULL,
		submission_type VARCHAR(16) NOT NULL CHECK (submission_type IN ('search', 'youtube', 'file')),
		song_search TEXT,
		youtube_id VARCHAR(11),
		song_file TEXT,
		title TEXT,
		artist TEXT NOT NULL,
		additional_info TEXT,
		is_accepted BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT,
		reviewed_by TEXT,
		reviewed_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		CONSTRAINT submissions_type_reference CHECK (
			(submission_type = 'search'  AND song_search IS NOT NULL AND youtube_id IS NULL AND song_file IS NULL) OR
			(submission_type = 'youtube' AND youtube_id IS NOT NULL AND song_search IS NULL AND song_file IS NULL) OR
			(submission_type = 'file'    AND song_file IS NOT NULL AND song_search IS NULL AND youtube_id IS NULL)
		)
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_accepted
		ON submissions(created_at) WHERE is_accepted = TRUE;
	CREATE INDEX IF NOT EXISTS idx_submissions_pending
		ON submissions(created_at) WHERE is_accepted = FALSE;

	CREATE TABLE IF NOT EXISTS settings (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		allow_new_submissions BOOLEAN NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_by TEXT
	);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping is used by the readiness check
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23514"
}
