package image

import "context"

// Service is the remote image synthesis backend. It returns raw encoded
// images; an empty result with a nil error means the service produced none.
type Service interface {
	GenerateImages(ctx context.Context, prompt, aspectRatio string, count int) ([][]byte, error)
}

// MaxCandidates bounds how many images one request may ask for.
const MaxCandidates = 4

func clampCount(count, fallback int) int {
	if count <= 0 {
		count = fallback
	}
	if count <= 0 {
		count = 1
	}
	if count > MaxCandidates {
		count = MaxCandidates
	}
	return count
}
