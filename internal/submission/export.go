package submission

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/lehrershow/songsubmit/internal/auth"
	"github.com/lehrershow/songsubmit/internal/db"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/logger"
	"github.com/lehrershow/songsubmit/internal/validators"
)

const (
	exportPrefix    = "exports/approved-"
	exportURLExpiry = 15 * time.Minute
)

var exportHeader = []string{
	"id", "created_at", "type", "title", "artist", "submitter_name",
	"youtube_url", "file_url", "search", "notes",
}

// ObjectStore receives CSV exports
type ObjectStore interface {
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ExportResult points at an uploaded export
type ExportResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExportApproved writes the approved list as CSV to object storage and
// returns a short-lived download link.
func (s *Service) ExportApproved(ctx context.Context) (*ExportResult, error) {
	caller, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, apperrors.ExportUnavailable()
	}

	subs, err := s.store.ListApproved(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list approved submissions").WithCause(err)
	}

	data, err := renderCSV(subs)
	if err != nil {
		return nil, apperrors.InternalError("failed to render export").WithCause(err)
	}

	now := s.now().UTC()
	key := exportPrefix + now.Format("20060102T150405Z") + ".csv"

	if err := s.exporter.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), "text/csv; charset=utf-8"); err != nil {
		s.log.Error(ctx, "failed to upload export", err, logger.Fields{"key": key})
		return nil, apperrors.StorageError("failed to upload export").WithCause(err)
	}

	url, err := s.exporter.PresignedGetURL(ctx, key, exportURLExpiry)
	if err != nil {
		s.log.Error(ctx, "failed to presign export", err, logger.Fields{"key": key})
		return nil, apperrors.StorageError("failed to create download link").WithCause(err)
	}

	s.log.Info(ctx, "approved submissions exported", logger.Fields{
		"key":         key,
		"count":       len(subs),
		"exported_by": caller.Subject,
	})

	return &ExportResult{
		Key:       key,
		URL:       url,
		Count:     len(subs),
		ExpiresAt: now.Add(exportURLExpiry),
	}, nil
}

func renderCSV(subs []*db.Submission) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}

	for _, s := range subs {
		youtubeURL := ""
		if s.YouTubeID.Valid {
			youtubeURL = validators.CanonicalVideoURL(s.YouTubeID.String)
		}
		record := []string{
			s.ID.String(),
			s.CreatedAt.UTC().Format(time.RFC3339),
			string(s.Type),
			cell(s.Title.String),
			cell(s.Artist),
			cell(s.SubmitterName),
			youtubeURL,
			cell(s.SongFile.String),
			cell(s.SongSearch.String),
			cell(s.Notes.String),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// cell keeps spreadsheet apps from evaluating user text as a formula
func cell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}
