// Package compose places a logo onto poster candidates.
package compose

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

const (
	// MarginFraction is the gap between a named anchor and the poster edge,
	// as a fraction of the poster width (horizontal) or height (vertical).
	MarginFraction = 0.03
	// DefaultScale is the logo width as a fraction of the poster width.
	DefaultScale = 0.2
)

// Placement is the resolved position and size of a logo on one poster.
type Placement struct {
	X, Y          int
	Width, Height int
}

// Rect returns the placement as a rectangle in poster coordinates.
func (p Placement) Rect() image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height)
}

// ComputePlacement sizes the logo to scale times the poster width, keeping
// its aspect ratio, and resolves pos to a top-left offset. Scales outside
// (0, 1] fall back to DefaultScale.
func ComputePlacement(poster, logo image.Point, pos domain.LogoPosition, scale float64) Placement {
	if scale <= 0 || scale > 1 || math.IsNaN(scale) {
		scale = DefaultScale
	}
	width := max(1, int(math.Round(scale*float64(poster.X))))
	height := 1
	if logo.X > 0 {
		height = max(1, int(math.Round(float64(logo.Y)*float64(width)/float64(logo.X))))
	}
	p := Placement{Width: width, Height: height}
	if pos.Explicit {
		p.X, p.Y = pos.X, pos.Y
		return p
	}

	mx := int(math.Round(MarginFraction * float64(poster.X)))
	my := int(math.Round(MarginFraction * float64(poster.Y)))
	switch domain.ParseAnchor(string(pos.Anchor)) {
	case domain.AnchorTopRight:
		p.X, p.Y = poster.X-width-mx, my
	case domain.AnchorBottomLeft:
		p.X, p.Y = mx, poster.Y-height-my
	case domain.AnchorBottomRight:
		p.X, p.Y = poster.X-width-mx, poster.Y-height-my
	case domain.AnchorCenter:
		p.X, p.Y = (poster.X-width)/2, (poster.Y-height)/2
	default:
		p.X, p.Y = mx, my
	}
	return p
}

// DecodeLogo decodes PNG, JPEG, GIF or WebP logo bytes.
func DecodeLogo(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, domain.NewError(domain.KindLogoDecode, "logo is empty", domain.ErrInvalidLogo)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewError(domain.KindLogoDecode, "logo could not be decoded", fmt.Errorf("%w: %v", domain.ErrInvalidLogo, err))
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, domain.NewError(domain.KindLogoDecode, "logo has no pixels", domain.ErrInvalidLogo)
	}
	return img, nil
}

// Composite returns a copy of poster with logo alpha-blended at pos. Neither
// input is modified.
func Composite(poster, logo image.Image, pos domain.LogoPosition, scale float64) *image.RGBA {
	pb := poster.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, pb.Dx(), pb.Dy()))
	xdraw.Draw(out, out.Bounds(), poster, pb.Min, xdraw.Src)

	lb := logo.Bounds()
	placement := ComputePlacement(image.Pt(pb.Dx(), pb.Dy()), image.Pt(lb.Dx(), lb.Dy()), pos, scale)

	scaled := image.NewRGBA(image.Rect(0, 0, placement.Width, placement.Height))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), logo, lb, xdraw.Src, nil)
	xdraw.Draw(out, placement.Rect(), scaled, image.Point{}, xdraw.Over)
	return out
}

// Compositor applies one uploaded logo across a set of candidates.
type Compositor struct {
	logger *infra.Logger
}

// NewCompositor builds a Compositor. A nil logger discards output.
func NewCompositor(logger *infra.Logger) *Compositor {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Compositor{logger: logger}
}

// Apply composites logo onto every candidate and reports whether any logo
// was applied. A logo that fails to decode leaves all candidates untouched;
// a candidate that cannot be composited is returned as it was.
func (c *Compositor) Apply(candidates []domain.PosterCandidate, logo *domain.LogoInput) ([]domain.PosterCandidate, bool) {
	if logo == nil || len(logo.Data) == 0 || len(candidates) == 0 {
		return candidates, false
	}
	decoded, err := DecodeLogo(logo.Data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("compose: skipping logo")
		return candidates, false
	}

	out := make([]domain.PosterCandidate, len(candidates))
	applied := false
	for i, cand := range candidates {
		out[i] = cand
		composited, err := c.compositeOne(cand, decoded, logo)
		if err != nil {
			c.logger.Warn().Err(err).Str("poster_id", cand.ID).Msg("compose: candidate left uncomposited")
			continue
		}
		out[i].Image = composited
		applied = true
	}
	return out, applied
}

func (c *Compositor) compositeOne(cand domain.PosterCandidate, logo image.Image, in *domain.LogoInput) (img *image.RGBA, err error) {
	if cand.Image == nil || cand.Image.Bounds().Empty() {
		return nil, fmt.Errorf("compose: %s has no image", cand.ID)
	}
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("compose: %s: %v", cand.ID, r)
		}
	}()
	return Composite(cand.Image, logo, in.Position, in.Scale), nil
}
