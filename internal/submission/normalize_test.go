package submission

import (
	"testing"

	"github.com/lehrershow/songsubmit/internal/db"
	"github.com/lehrershow/songsubmit/internal/youtube"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    NormalizeInput
		expected Normalized
	}{
		{
			name:     "search uses raw text and submitter",
			input:    NormalizeInput{Type: db.TypeSearch, SongSearch: "Atemlos durch die Nacht", SubmitterName: "Anna"},
			expected: Normalized{Title: "Atemlos durch die Nacht", Artist: "Anna"},
		},
		{
			name: "youtube uses video metadata",
			input: NormalizeInput{
				Type:          db.TypeYouTube,
				YouTube:       youtube.Metadata{Title: "Never Gonna Give You Up", ChannelName: "Rick Astley"},
				SubmitterName: "Anna",
			},
			expected: Normalized{Title: "Never Gonna Give You Up", Artist: "Rick Astley"},
		},
		{
			name:     "youtube without metadata falls back to submitter",
			input:    NormalizeInput{Type: db.TypeYouTube, SubmitterName: "Anna"},
			expected: Normalized{Title: "", Artist: "Anna"},
		},
		{
			name: "youtube title without channel",
			input: NormalizeInput{
				Type:          db.TypeYouTube,
				YouTube:       youtube.Metadata{Title: "Schulhymne"},
				SubmitterName: "Anna",
			},
			expected: Normalized{Title: "Schulhymne", Artist: "Anna"},
		},
		{
			name:     "file uses song name",
			input:    NormalizeInput{Type: db.TypeFile, SongName: "Unser Lied", SubmitterName: "Klasse 7b"},
			expected: Normalized{Title: "Unser Lied", Artist: "Klasse 7b"},
		},
		{
			name:     "decomposed umlauts are composed",
			input:    NormalizeInput{Type: db.TypeFile, SongName: "Gru\u0308n", SubmitterName: " Jo\u0308rg "},
			expected: Normalized{Title: "Gr\u00fcn", Artist: "J\u00f6rg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.expected {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}
