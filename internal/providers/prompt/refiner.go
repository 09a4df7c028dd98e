// Package prompt turns raw poster concepts into refined prompts and derives
// suggestions and descriptive features from them.
package prompt

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

// TextStreamer is the streaming text generation backend.
type TextStreamer interface {
	StreamGenerate(ctx context.Context, instruction string) ([]string, error)
}

const refineInstruction = `You are an expert prompt engineer who writes prompts for high resolution, visually striking posters rendered by the Imagen 4 model. Turn the poster concept given at the end into one detailed, structured prompt that maximizes visual quality, avoids distortions and contains no spelling errors or stray text.

Cover each of the following:
Title/Theme: State the main message or title of the poster clearly and concisely so it reads at a glance.
Visual Style: Choose one coherent style, for example:
Modern: clean lines and geometric shapes, often minimalist.
Minimalist: sparse layout focused on essentials with generous negative space.
Futuristic: sleek forms, metallic textures, glowing accents, advanced technology motifs.
Vibrant: bold colors, dynamic composition, energetic feel.
Retro/Vintage: a named historical period such as Art Deco or mid-century modern.
Artistic: a named movement such as Surrealism, Impressionism or Abstract Expressionism.
Illustrative: custom artwork or detailed drawings lead the design.
Photorealistic: lifelike imagery.
Typographic: expressive type carries the design.
Clean & Professional: organized, balanced and refined.
Color Scheme: A small, harmonious palette (a primary color, an accent and a neutral). Describe colors only by name, such as "deep ocean blue and bright coral" or "emerald green and brushed gold". Never give HEX codes or numeric color values. The palette must support the theme and style.
Typography: Describe the type for the title and other prominent text, favoring legibility at poster scale:
Font Type: sans-serif, serif, script or display.
Weight/Style: bold, heavy, condensed or italic.
Placement: where the main text sits for maximum visibility.
Hierarchy: how secondary text is ranked below the title.
Graphic Elements: Name the illustrations, icons, motifs or imagery that support the theme and describe their style and role, for example "stylized vector illustrations of orbiting planets", "minimalist icons representing connectivity" or "subtle circuitry patterns".
Background: Make the background support rather than compete with the content: a directional gradient (for example "a smooth radial gradient from dark navy to light cyan"), an abstract texture (paper grain, soft bokeh, fine noise), a solid color or a very faint repeating pattern. The background must never be distracting or contain readable text.
Audience: who the poster is for, such as young adults, tech professionals, families or the general public.
Purpose: what the poster is for, such as an event announcement, a promotional campaign, a celebratory greeting or an awareness message.
Tone: such as energetic and engaging, formal and authoritative, friendly and approachable, or sophisticated and inspiring.
Clarity: The design must be readable and eye-catching from a distance with a clear visual hierarchy and no clutter.

Constraints for Imagen 4:
No distortions: geometry and proportions must be accurate.
No spelling mistakes in any text you specify.
No unwanted text: only the text you specify may appear on the poster.
Visuals first: describe visual elements rather than writing long prose.
Incorporate Indian motifs into the design, including traditional patterns and symbols.

Output format: a single coherent prompt string, ready to pass directly to Imagen 4, with no preamble.

Example output:
"Create a high-resolution poster for an 'Annual Tech Fest 2025'. The visual style should be clean and modern, using a bold palette of electric blue and crisp white. The title 'Annual Tech Fest 2025' is set in a large, bold sans-serif font at the top. The background features subtle tech-themed geometric patterns that do not distract from the content. Leave empty space in the top-left corner for a college logo. The tone is energetic and appealing to young students, suitable for a college campus. Prioritize readability and immediate visual impact."

Poster concept:
`

// RefineInstruction returns the full instruction sent to the text service for
// raw.
func RefineInstruction(raw string) string {
	return refineInstruction + strings.TrimSpace(raw) + "\n"
}

// Refiner produces structured poster prompts.
type Refiner struct {
	text   TextStreamer
	logger *infra.Logger
}

// NewRefiner wraps text.
func NewRefiner(text TextStreamer, logger *infra.Logger) (*Refiner, error) {
	if text == nil {
		return nil, errors.New("prompt: text streamer is required")
	}
	return &Refiner{text: text, logger: loggerOrDiscard(logger)}, nil
}

// Refine streams the refinement of raw and joins the chunks in arrival
// order. There is no fallback to the raw prompt: a failing or empty stream is
// a KindRefinement error.
func (r *Refiner) Refine(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.NewError(domain.KindValidation, "prompt is required", domain.ErrInvalidPrompt)
	}
	chunks, err := r.text.StreamGenerate(ctx, RefineInstruction(raw))
	if err != nil {
		return "", domain.NewError(domain.KindRefinement, "prompt refinement failed", err)
	}
	var sb strings.Builder
	for _, chunk := range chunks {
		sb.WriteString(chunk)
	}
	refined := strings.TrimSpace(sb.String())
	if refined == "" {
		return "", domain.NewError(domain.KindRefinement, "prompt refinement returned no text", domain.ErrEmptyStream)
	}
	r.logger.Debug().Int("chunks", len(chunks)).Int("length", len(refined)).Msg("prompt: refined")
	return refined, nil
}

func loggerOrDiscard(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)
	return &logger
}
