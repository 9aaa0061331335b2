package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrSettingsNotFound = errors.New("settings not initialized")

// settingsRowID is the only row the settings table can hold
const settingsRowID = 1

type Settings struct {
	AllowNewSubmissions bool
	UpdatedAt           time.Time
	UpdatedBy           sql.NullString
}

type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row or ErrSettingsNotFound. It never writes.
func (r *SettingsRepository) Get(ctx context.Context) (*Settings, error) {
	query := `SELECT allow_new_submissions, updated_at, updated_by FROM settings WHERE id = $1`

	s := &Settings{}
	err := r.db.QueryRowContext(ctx, query, settingsRowID).Scan(&s.AllowNewSubmissions, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return s, nil
}

// Upsert writes the settings row in a single statement. Concurrent first
// writes converge on the same row because id is fixed.
func (r *SettingsRepository) Upsert(ctx context.Context, allowNewSubmissions bool, updatedBy string) (*Settings, error) {
	query := `
		INSERT INTO settings (id, allow_new_submissions, updated_at, updated_by)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (id) DO UPDATE
		SET allow_new_submissions = EXCLUDED.allow_new_submissions,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
		RETURNING allow_new_submissions, updated_at, updated_by
	`

	s := &Settings{}
	err := r.db.QueryRowContext(ctx, query, settingsRowID, allowNewSubmissions, sql.NullString{String: updatedBy, Valid: updatedBy != ""}).
		Scan(&s.AllowNewSubmissions, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return s, nil
}
