package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

// Options configures a Synthesizer.
type Options struct {
	// DefaultCount is used when a call passes a non-positive count.
	DefaultCount int
	Logger       *infra.Logger
}

// Synthesizer turns a prompt into decoded poster candidates.
type Synthesizer struct {
	service      Service
	defaultCount int
	logger       *infra.Logger
}

// NewSynthesizer wraps service.
func NewSynthesizer(service Service, opts Options) (*Synthesizer, error) {
	if service == nil {
		return nil, errors.New("image: service is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Synthesizer{
		service:      service,
		defaultCount: clampCount(opts.DefaultCount, domain.DefaultCandidateCount),
		logger:       logger,
	}, nil
}

// Synthesize makes a single request for count images at aspectRatio and
// decodes each into RGBA. Images that fail to decode are dropped. The result
// may be empty when the service produced nothing usable; service failures
// are returned as KindSynthesis errors.
func (s *Synthesizer) Synthesize(ctx context.Context, prompt, aspectRatio string, count int) ([]domain.PosterCandidate, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, domain.NewError(domain.KindValidation, "prompt is required", domain.ErrInvalidPrompt)
	}
	aspectRatio = strings.TrimSpace(aspectRatio)
	if aspectRatio == "" {
		aspectRatio = domain.DefaultAspectRatio
	}
	count = clampCount(count, s.defaultCount)

	raw, err := s.service.GenerateImages(ctx, prompt, aspectRatio, count)
	if err != nil {
		return nil, domain.NewError(domain.KindSynthesis, "image service failed", err)
	}

	candidates := make([]domain.PosterCandidate, 0, len(raw))
	for i, data := range raw {
		img, format, err := stdimage.Decode(bytes.NewReader(data))
		if err != nil {
			s.logger.Warn().Err(err).Int("index", i).Msg("image: dropping undecodable image")
			continue
		}
		candidates = append(candidates, domain.PosterCandidate{
			ID:    domain.CandidateID(len(candidates)),
			Image: ToRGBA(img),
		})
		s.logger.Debug().Int("index", i).Str("format", format).Msg("image: decoded candidate")
	}
	return candidates, nil
}

// ToRGBA copies img into a new zero-origin *image.RGBA.
func ToRGBA(img stdimage.Image) *stdimage.RGBA {
	b := img.Bounds()
	out := stdimage.NewRGBA(stdimage.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
