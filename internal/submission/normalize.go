package submission

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lehrershow/songsubmit/internal/db"
	"github.com/lehrershow/songsubmit/internal/youtube"
)

// NormalizeInput carries everything Normalize reads
type NormalizeInput struct {
	Type          db.SubmissionType
	SongSearch    string
	YouTube       youtube.Metadata
	SongName      string
	SubmitterName string
}

// Normalized is the stored title and artist. An empty Title means absent.
type Normalized struct {
	Title  string
	Artist string
}

// Normalize derives title and artist from the type-specific inputs:
//
//	search   title = search text    artist = submitter
//	youtube  title = video title    artist = channel, else submitter
//	file     title = song name      artist = submitter
func Normalize(in NormalizeInput) Normalized {
	submitter := cleanText(in.SubmitterName)

	switch in.Type {
	case db.TypeSearch:
		return Normalized{Title: cleanText(in.SongSearch), Artist: submitter}
	case db.TypeYouTube:
		artist := cleanText(in.YouTube.ChannelName)
		if artist == "" {
			artist = submitter
		}
		return Normalized{Title: cleanText(in.YouTube.Title), Artist: artist}
	case db.TypeFile:
		return Normalized{Title: cleanText(in.SongName), Artist: submitter}
	default:
		return Normalized{Artist: submitter}
	}
}

// cleanText composes umlauts so "ü" and "ü" store identically
func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
