package settings

import (
	"context"
	"errors"
	"time"

	"github.com/lehrershow/songsubmit/internal/auth"
	"github.com/lehrershow/songsubmit/internal/db"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/logger"
)

const writeTimeout = 10 * time.Second

// Store reads and writes the single settings row
type Store interface {
	Get(ctx context.Context) (*db.Settings, error)
	Upsert(ctx context.Context, allowNewSubmissions bool, updatedBy string) (*db.Settings, error)
}

// Settings is the public shape of the settings row
type Settings struct {
	AllowNewSubmissions bool       `json:"allowNewSubmissions"`
	UpdatedAt           *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy           string     `json:"updatedBy,omitempty"`
}

// Default applies until staff saves settings for the first time
var Default = Settings{AllowNewSubmissions: true}

// Service guards the settings store
type Service struct {
	store Store
	log   *logger.Logger
}

// NewService creates a settings service
func NewService(store Store) *Service {
	return &Service{
		store: store,
		log:   logger.Default().WithComponent("settings"),
	}
}

// Get returns the stored settings, or Default when none were saved.
// It never writes.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}
	return s.load(ctx)
}

// Update stores allowNewSubmissions. The first call creates the row and
// later calls patch it.
func (s *Service) Update(ctx context.Context, allowNewSubmissions bool) (*Settings, error) {
	caller, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	row, err := s.store.Upsert(writeCtx, allowNewSubmissions, caller.Subject)
	if err != nil {
		s.log.Error(ctx, "failed to update settings", err)
		return nil, apperrors.DatabaseError("failed to update settings").WithCause(err)
	}

	s.log.Info(ctx, "settings updated", logger.Fields{
		"allow_new_submissions": allowNewSubmissions,
		"updated_by":            caller.Subject,
	})
	return fromRow(row), nil
}

// AllowsSubmissions is the intake gate. It needs no caller and fails closed
// when the store is unreachable.
func (s *Service) AllowsSubmissions(ctx context.Context) (bool, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return settings.AllowNewSubmissions, nil
}

func (s *Service) load(ctx context.Context) (*Settings, error) {
	row, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, db.ErrSettingsNotFound) {
			def := Default
			return &def, nil
		}
		s.log.Error(ctx, "failed to read settings", err)
		return nil, apperrors.DatabaseError("failed to read settings").WithCause(err)
	}
	return fromRow(row), nil
}

func fromRow(row *db.Settings) *Settings {
	updatedAt := row.UpdatedAt
	return &Settings{
		AllowNewSubmissions: row.AllowNewSubmissions,
		UpdatedAt:           &updatedAt,
		UpdatedBy:           row.UpdatedBy.String,
	}
}
