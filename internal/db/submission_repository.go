package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const submissionColumns = `
	id, submitter_name, submitter_email, submission_type, song_search, youtube_id, song_file,
	title, artist, additional_info, is_accepted, notes, reviewed_by, reviewed_at, created_at`

type SubmissionRepository struct {
	db *DB
}

func NewSubmissionRepository(db *DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts s as pending. ID and CreatedAt are assigned when zero.
func (r *SubmissionRepository) Create(ctx context.Context, s *Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.IsAccepted = false

	if err := s.CheckInvariant(); err != nil {
		return err
	}

	query := `
		INSERT INTO submissions (
			id, submitter_name, submitter_email, submission_type, song_search, youtube_id, song_file,
			title, artist, additional_info, is_accepted, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.SubmitterName, s.SubmitterEmail, string(s.Type), s.SongSearch, s.YouTubeID, s.SongFile,
		s.Title, s.Artist, s.AdditionalInfo, s.CreatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
		}
		return err
	}

	return nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListApproved returns accepted submissions oldest first. The filter matches
// the partial index idx_submissions_accepted.
func (r *SubmissionRepository) ListApproved(ctx context.Context) ([]*Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE is_accepted = TRUE ORDER BY created_at ASC`)
}

// ListPending returns submissions awaiting review oldest first
func (r *SubmissionRepository) ListPending(ctx context.Context) ([]*Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE is_accepted = FALSE ORDER BY created_at ASC`)
}

// Approve moves a pending submission to approved. The transition is one-way:
// approving twice reports ErrAlreadyReviewed.
func (r *SubmissionRepository) Approve(ctx context.Context, id uuid.UUID, reviewer string, notes sql.NullString) (*Submission, error) {
	query := `
		UPDATE submissions
		SET is_accepted = TRUE, reviewed_by = $2, reviewed_at = NOW(), notes = COALESCE($3, notes)
		WHERE id = $1 AND is_accepted = FALSE
		RETURNING ` + submissionColumns

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id, reviewer, notes))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// nothing updated: either unknown or already approved
	var accepted bool
	err = r.db.QueryRowContext(ctx, `SELECT is_accepted FROM submissions WHERE id = $1`, id).Scan(&accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrAlreadyReviewed
}

func (r *SubmissionRepository) list(ctx context.Context, query string) ([]*Submission, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]*Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, s)
	}

	return submissions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	s := &Submission{}
	var typ string
	err := row.Scan(
		&s.ID, &s.SubmitterName, &s.SubmitterEmail, &typ, &s.SongSearch, &s.YouTubeID, &s.SongFile,
		&s.Title, &s.Artist, &s.AdditionalInfo, &s.IsAccepted, &s.Notes, &s.ReviewedBy, &s.ReviewedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Type = SubmissionType(typ)
	return s, nil
}
