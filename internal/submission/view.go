package submission

import (
	"time"

	"github.com/google/uuid"

	"github.com/lehrershow/songsubmit/internal/db"
	"github.com/lehrershow/songsubmit/internal/validators"
)

// View is the JSON shape of a submission
type View struct {
	ID             uuid.UUID  `json:"id"`
	SubmitterName  string     `json:"submitterName"`
	SubmitterEmail string     `json:"submitterEmail,omitempty"`
	SubmissionType string     `json:"submissionType"`
	SongSearch     string     `json:"songSearch,omitempty"`
	YouTubeID      string     `json:"youtubeId,omitempty"`
	YouTubeURL     string     `json:"youtubeUrl,omitempty"`
	SongFile       string     `json:"songFile,omitempty"`
	Title          string     `json:"title,omitempty"`
	Artist         string     `json:"artist"`
	AdditionalInfo string     `json:"additionalInfo,omitempty"`
	IsAccepted     bool       `json:"isAccepted"`
	Notes          string     `json:"notes,omitempty"`
	ReviewedBy     string     `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewView renders s for staff, including contact and moderation fields
func NewView(s *db.Submission) View {
	v := NewPublicView(s)
	v.SubmitterEmail = s.SubmitterEmail
	v.Notes = s.Notes.String
	v.ReviewedBy = s.ReviewedBy.String
	if s.ReviewedAt.Valid {
		t := s.ReviewedAt.Time
		v.ReviewedAt = &t
	}
	return v
}

// NewPublicView renders s for the submitter
func NewPublicView(s *db.Submission) View {
	v := View{
		ID:             s.ID,
		SubmitterName:  s.SubmitterName,
		SubmissionType: string(s.Type),
		SongSearch:     s.SongSearch.String,
		YouTubeID:      s.YouTubeID.String,
		SongFile:       s.SongFile.String,
		Title:          s.Title.String,
		Artist:         s.Artist,
		AdditionalInfo: s.AdditionalInfo.String,
		IsAccepted:     s.IsAccepted,
		CreatedAt:      s.CreatedAt,
	}
	if s.YouTubeID.Valid {
		v.YouTubeURL = validators.CanonicalVideoURL(s.YouTubeID.String)
	}
	return v
}

// NewViews renders a list for staff
func NewViews(subs []*db.Submission) []View {
	views := make([]View, 0, len(subs))
	for _, s := range subs {
		views = append(views, NewView(s))
	}
	return views
}
