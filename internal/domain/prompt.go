package domain

import "strings"

// DefaultAspectRatio is used when a request omits the aspect ratio.
const DefaultAspectRatio = "9:16"

// DefaultCandidateCount is the number of posters requested per generation.
const DefaultCandidateCount = 3

// Anchor names a logo position relative to the poster edges.
type Anchor string

const (
	AnchorTopLeft     Anchor = "top-left"
	AnchorTopRight    Anchor = "top-right"
	AnchorBottomLeft  Anchor = "bottom-left"
	AnchorBottomRight Anchor = "bottom-right"
	AnchorCenter      Anchor = "center"
)

// ParseAnchor normalizes a user supplied anchor name. Unknown names resolve to
// AnchorTopLeft.
func ParseAnchor(v string) Anchor {
	switch a := Anchor(strings.ToLower(strings.TrimSpace(v))); a {
	case AnchorTopLeft, AnchorTopRight, AnchorBottomLeft, AnchorBottomRight, AnchorCenter:
		return a
	default:
		return AnchorTopLeft
	}
}

// LogoPosition is either a named anchor or explicit pixel coordinates.
type LogoPosition struct {
	Anchor   Anchor
	X, Y     int
	Explicit bool
}

// AnchorAt returns a LogoPosition for a named anchor.
func AnchorAt(a Anchor) LogoPosition {
	return LogoPosition{Anchor: a}
}

// PointAt returns a LogoPosition with explicit top-left coordinates.
func PointAt(x, y int) LogoPosition {
	return LogoPosition{X: x, Y: y, Explicit: true}
}

// LogoInput is an undecoded logo upload with its placement preferences.
type LogoInput struct {
	Data     []byte
	Position LogoPosition
	// Scale is the target logo width as a fraction of the poster width.
	Scale float64
}

// GenerationRequest is the canonical input of a pipeline run.
type GenerationRequest struct {
	RawPrompt string
	// RefinedPrompt is set when the caller already ran the refine step.
	RefinedPrompt             string
	AspectRatio               string
	SelectedObjects           []string
	SelectedColorCombinations []string
	Logo                      *LogoInput
	// SkipRefine sends RawPrompt to synthesis unchanged.
	SkipRefine bool
}

// Normalize trims inputs and applies defaults.
func (r *GenerationRequest) Normalize() {
	if r == nil {
		return
	}
	r.RawPrompt = strings.TrimSpace(r.RawPrompt)
	r.RefinedPrompt = strings.TrimSpace(r.RefinedPrompt)
	r.AspectRatio = strings.TrimSpace(r.AspectRatio)
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	r.SelectedObjects = compactStrings(r.SelectedObjects)
	r.SelectedColorCombinations = compactStrings(r.SelectedColorCombinations)
}

// Validate reports a validation error before any remote call is made.
func (r GenerationRequest) Validate() error {
	if r.RawPrompt == "" && r.RefinedPrompt == "" {
		return NewError(KindValidation, "prompt is required", ErrInvalidPrompt)
	}
	return nil
}

// SuggestionSet holds the best-effort suggestion lists for a refined prompt.
// Either list may be empty.
type SuggestionSet struct {
	Objects           []string `json:"objects"`
	ColorCombinations []string `json:"color_combinations"`
}

// Features maps feature names (title, visual_style, ...) to extracted text.
type Features map[string]string

func compactStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
