package domain

import (
	"fmt"
	"image"
	"time"
)

// PosterCandidate is one synthesized poster. ID is only stable within the
// generation call that produced it.
type PosterCandidate struct {
	ID    string
	Image *image.RGBA
}

// Width returns the candidate width in pixels.
func (c PosterCandidate) Width() int {
	if c.Image == nil {
		return 0
	}
	return c.Image.Bounds().Dx()
}

// Height returns the candidate height in pixels.
func (c PosterCandidate) Height() int {
	if c.Image == nil {
		return 0
	}
	return c.Image.Bounds().Dy()
}

// CandidateID formats the synthetic identifier for the i-th candidate.
func CandidateID(i int) string {
	return fmt.Sprintf("poster_%d", i)
}

// EncodedPoster is the transport and persistence form of a candidate.
type EncodedPoster struct {
	ID string `json:"id"`
	// Image is a base64 encoded PNG.
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// GenerationRecord is the persisted unit of one completed run. Records are
// never modified once appended.
type GenerationRecord struct {
	ID            string          `json:"id,omitempty"`
	Prompt        string          `json:"prompt"`
	RefinedPrompt string          `json:"refined_prompt,omitempty"`
	AspectRatio   string          `json:"aspect_ratio"`
	Posters       []EncodedPoster `json:"posters"`
	LogoApplied   bool            `json:"logo_applied,omitempty"`
	Timestamp     string          `json:"timestamp"`
}

// TimestampLayout is the layout written into GenerationRecord.Timestamp.
const TimestampLayout = time.RFC3339Nano

// FormatTimestamp renders t the way records store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParsedTime parses the record timestamp. Records written by older tools may
// carry a timestamp without a zone, which is read as UTC.
func (r GenerationRecord) ParsedTime() (time.Time, bool) {
	if r.Timestamp == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
