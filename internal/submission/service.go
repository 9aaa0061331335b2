package submission

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lehrershow/songsubmit/internal/auth"
	"github.com/lehrershow/songsubmit/internal/db"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/logger"
	"github.com/lehrershow/songsubmit/internal/turnstile"
	"github.com/lehrershow/songsubmit/internal/validators"
	"github.com/lehrershow/songsubmit/internal/youtube"
)

// Live feed event types
const (
	EventCreated  = "submission.created"
	EventApproved = "submission.approved"
)

const (
	writeTimeout   = 10 * time.Second
	maxNotesLength = 2000
)

// Store persists submissions
type Store interface {
	Create(ctx context.Context, s *db.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Submission, error)
	ListApproved(ctx context.Context) ([]*db.Submission, error)
	ListPending(ctx context.Context) ([]*db.Submission, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer string, notes sql.NullString) (*db.Submission, error)
}

// Gate reports whether new submissions are accepted
type Gate interface {
	AllowsSubmissions(ctx context.Context) (bool, error)
}

// CaptchaVerifier checks a Turnstile token
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*turnstile.Result, error)
}

// MetadataFetcher enriches YouTube submissions. It never fails.
type MetadataFetcher interface {
	VideoMetadata(ctx context.Context, videoID string) youtube.Metadata
}

// Publisher pushes events to the staff live feed without blocking
type Publisher interface {
	Publish(eventType string, payload any)
}

// Recorder counts pipeline outcomes
type Recorder interface {
	IncCounter(name string)
	SetGauge(name string, value float64)
}

// Service runs the intake pipeline and the staff operations on submissions
type Service struct {
	store     Store
	gate      Gate
	captcha   CaptchaVerifier
	metadata  MetadataFetcher
	uploads   *validators.UploadValidator
	publisher Publisher
	exporter  ObjectStore
	metrics   Recorder
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates the submission service. Publisher, exporter and
// metrics are optional and set with the With methods.
func NewService(store Store, gate Gate, captcha CaptchaVerifier, metadata MetadataFetcher, uploads *validators.UploadValidator) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		captcha:  captcha,
		metadata: metadata,
		uploads:  uploads,
		log:      logger.Default().WithComponent("submission"),
		now:      time.Now,
	}
}

// WithPublisher sets the live feed
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithExporter sets the object store used for CSV exports
func (s *Service) WithExporter(store ObjectStore) *Service {
	s.exporter = store
	return s
}

// WithMetrics sets the outcome counters
func (s *Service) WithMetrics(m Recorder) *Service {
	s.metrics = m
	return s
}

// Submit runs the intake pipeline. The steps are strictly sequential and
// nothing is written unless the CAPTCHA passed.
func (s *Service) Submit(ctx context.Context, req Request, remoteIP string) (*db.Submission, error) {
	open, err := s.gate.AllowsSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, apperrors.SubmissionsClosed()
	}

	v, err := Validate(req, s.uploads)
	if err != nil {
		return nil, err
	}

	if err := s.verifyCaptcha(ctx, v.TurnstileToken, remoteIP); err != nil {
		return nil, err
	}

	var meta youtube.Metadata
	if v.Type == db.TypeYouTube && s.metadata != nil {
		meta = s.metadata.VideoMetadata(ctx, v.YouTubeID)
		if meta.Empty() {
			s.count("metadata_miss")
		}
	}

	n := Normalize(NormalizeInput{
		Type:          v.Type,
		SongSearch:    v.SongSearch,
		YouTube:       meta,
		SongName:      v.SongName,
		SubmitterName: v.Name,
	})

	sub := &db.Submission{
		ID:             uuid.New(),
		SubmitterName:  v.Name,
		SubmitterEmail: v.Email,
		Type:           v.Type,
		SongSearch:     nullString(v.SongSearch),
		YouTubeID:      nullString(v.YouTubeID),
		SongFile:       nullString(v.SongFile),
		Title:          nullString(n.Title),
		Artist:         n.Artist,
		AdditionalInfo: nullString(v.AdditionalInfo),
		CreatedAt:      s.now().UTC(),
	}

	// the insert outlives a client disconnect
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.store.Create(writeCtx, sub); err != nil {
		if errors.Is(err, db.ErrInvalidSubmission) {
			s.log.Error(ctx, "normalized submission broke the record invariant", err)
			return nil, apperrors.InternalError("failed to save submission").WithCause(err)
		}
		s.log.Error(ctx, "failed to save submission", err)
		return nil, apperrors.DatabaseError("failed to save submission").WithCause(err)
	}

	s.count("submissions_created_" + string(sub.Type))
	s.log.Info(ctx, "submission created", logger.Fields{
		"submission_id": sub.ID.String(),
		"type":          string(sub.Type),
		"has_title":     sub.Title.Valid,
	})
	s.publish(EventCreated, sub)

	return sub, nil
}

func (s *Service) verifyCaptcha(ctx context.Context, token, remoteIP string) error {
	result, err := s.captcha.Verify(ctx, token, remoteIP)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return apperrors.BadRequest("request cancelled").WithCause(err)
		}
		s.log.Warn(ctx, "captcha verification unavailable", logger.Fields{"error": err.Error()})
		return apperrors.CaptchaUnavailable().WithCause(err)
	}
	if !result.Success {
		s.count("captcha_rejected")
		s.log.Info(ctx, "captcha rejected", logger.Fields{"error_codes": result.ErrorCodes})
		return apperrors.CaptchaFailed()
	}
	return nil
}

// Get returns one submission for the staff detail view
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*db.Submission, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}

	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrSubmissionNotFound) {
			return nil, apperrors.SubmissionNotFound()
		}
		return nil, apperrors.DatabaseError("failed to load submission").WithCause(err)
	}
	return sub, nil
}

// ListApproved returns every approved submission oldest first
func (s *Service) ListApproved(ctx context.Context) ([]*db.Submission, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}

	subs, err := s.store.ListApproved(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list approved submissions").WithCause(err)
	}
	return subs, nil
}

// ListPending returns the moderation queue oldest first
func (s *Service) ListPending(ctx context.Context) ([]*db.Submission, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}

	subs, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list pending submissions").WithCause(err)
	}
	if s.metrics != nil {
		s.metrics.SetGauge("pending_submissions", float64(len(subs)))
	}
	return subs, nil
}

// Approve marks a pending submission approved by the caller. Approval is
// one-way.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, notes string) (*db.Submission, error) {
	caller, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}

	notes = cleanText(notes)
	if len([]rune(notes)) > maxNotesLength {
		return nil, apperrors.ValidationError("notes must be at most 2000 characters")
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	sub, err := s.store.Approve(writeCtx, id, caller.Subject, nullString(notes))
	if err != nil {
		switch {
		case errors.Is(err, db.ErrSubmissionNotFound):
			return nil, apperrors.SubmissionNotFound()
		case errors.Is(err, db.ErrAlreadyReviewed):
			return nil, apperrors.AlreadyReviewed()
		default:
			s.log.Error(ctx, "failed to approve submission", err, logger.Fields{"submission_id": id.String()})
			return nil, apperrors.DatabaseError("failed to approve submission").WithCause(err)
		}
	}

	s.log.Info(ctx, "submission approved", logger.Fields{
		"submission_id": sub.ID.String(),
		"reviewed_by":   caller.Subject,
	})
	s.publish(EventApproved, sub)

	return sub, nil
}

func (s *Service) publish(eventType string, sub *db.Submission) {
	if s.publisher != nil {
		s.publisher.Publish(eventType, NewView(sub))
	}
}

func (s *Service) count(name string) {
	if s.metrics != nil {
		s.metrics.IncCounter(name)
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
