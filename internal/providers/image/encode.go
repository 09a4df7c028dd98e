package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"postergen/internal/domain"
)

// EncodeCandidates renders candidates as base64 PNG posters, preserving order
// and identifiers.
func EncodeCandidates(candidates []domain.PosterCandidate) ([]domain.EncodedPoster, error) {
	out := make([]domain.EncodedPoster, 0, len(candidates))
	for _, c := range candidates {
		if c.Image == nil {
			return nil, fmt.Errorf("image: encode %s: %w", c.ID, domain.ErrInvalidPosterData)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, c.Image); err != nil {
			return nil, fmt.Errorf("image: encode %s: %w", c.ID, err)
		}
		out = append(out, domain.EncodedPoster{
			ID:     c.ID,
			Image:  base64.StdEncoding.EncodeToString(buf.Bytes()),
			Width:  c.Width(),
			Height: c.Height(),
		})
	}
	return out, nil
}

// DecodePoster returns the PNG bytes of an encoded poster.
func DecodePoster(p domain.EncodedPoster) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Image)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("image: decode %s: %w", p.ID, domain.ErrInvalidPosterData)
	}
	return data, nil
}
