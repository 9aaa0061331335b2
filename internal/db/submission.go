package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubmissionType selects which song reference a submission carries
type SubmissionType string

const (
	TypeSearch  SubmissionType = "search"
	TypeYouTube SubmissionType = "youtube"
	TypeFile    SubmissionType = "file"
)

// Valid reports whether t is one of the known types
func (t SubmissionType) Valid() bool {
	switch t {
	case TypeSearch, TypeYouTube, TypeFile:
		return true
	}
	return false
}

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyReviewed    = errors.New("submission already approved")
	ErrInvalidSubmission  = errors.New("invalid submission")
)

// Submission is one song proposal. Exactly one of SongSearch, YouTubeID and
// SongFile is set, matching Type.
type Submission struct {
	ID             uuid.UUID
	SubmitterName  string
	SubmitterEmail string
	Type           SubmissionType
	SongSearch     sql.NullString
	YouTubeID      sql.NullString
	SongFile       sql.NullString
	Title          sql.NullString
	Artist         string
	AdditionalInfo sql.NullString
	IsAccepted     bool
	Notes          sql.NullString
	ReviewedBy     sql.NullString
	ReviewedAt     sql.NullTime
	CreatedAt      time.Time
}

// CheckInvariant verifies that the record carries exactly the reference its
// type requires.
func (s *Submission) CheckInvariant() error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSubmission, s.Type)
	}
	if s.SubmitterName == "" {
		return fmt.Errorf("%w: submitter name is empty", ErrInvalidSubmission)
	}
	if s.Artist == "" {
		return fmt.Errorf("%w: artist is empty", ErrInvalidSubmission)
	}

	set := map[SubmissionType]bool{
		TypeSearch:  s.SongSearch.Valid && s.SongSearch.String != "",
		TypeYouTube: s.YouTubeID.Valid && s.YouTubeID.String != "",
		TypeFile:    s.SongFile.Valid && s.SongFile.String != "",
	}
	for typ, present := range set {
		if typ == s.Type && !present {
			return fmt.Errorf("%w: %s submission is missing its reference", ErrInvalidSubmission, s.Type)
		}
		if typ != s.Type && present {
			return fmt.Errorf("%w: %s submission carries a %s reference", ErrInvalidSubmission, s.Type, typ)
		}
	}
	if s.Type == TypeFile && (!s.Title.Valid || s.Title.String == "") {
		return fmt.Errorf("%w: file submission is missing its song name", ErrInvalidSubmission)
	}
	return nil
}
