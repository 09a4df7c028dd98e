package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

const (
	objectsInstruction = `Read the poster description below and suggest 5 to 8 short visual motifs or objects (two to four words each) that would strengthen the design.
Return only a JSON array of strings, nothing else.

Poster description:
%s
`
	colorsInstruction = `Read the poster description below and suggest 3 to 5 color combinations that suit it. Describe each combination with color names only, such as "saffron and deep teal", never HEX codes.
Return only a JSON array of strings, nothing else.

Poster description:
%s
`
)

// SuggestionExtractor asks the text service for motif and palette ideas.
type SuggestionExtractor struct {
	text   TextStreamer
	logger *infra.Logger
}

// NewSuggestionExtractor wraps text.
func NewSuggestionExtractor(text TextStreamer, logger *infra.Logger) (*SuggestionExtractor, error) {
	if text == nil {
		return nil, errors.New("prompt: text streamer is required")
	}
	return &SuggestionExtractor{text: text, logger: loggerOrDiscard(logger)}, nil
}

// Extract requests both lists independently. It never fails: a list whose
// request or parsing fails is returned empty and the other list is
// unaffected.
func (e *SuggestionExtractor) Extract(ctx context.Context, refined string) domain.SuggestionSet {
	set := domain.SuggestionSet{Objects: []string{}, ColorCombinations: []string{}}
	refined = strings.TrimSpace(refined)
	if refined == "" {
		return set
	}

	var g errgroup.Group
	g.Go(func() error {
		set.Objects = e.list(ctx, "objects", fmt.Sprintf(objectsInstruction, refined))
		return nil
	})
	g.Go(func() error {
		set.ColorCombinations = e.list(ctx, "color_combinations", fmt.Sprintf(colorsInstruction, refined))
		return nil
	})
	_ = g.Wait()
	return set
}

func (e *SuggestionExtractor) list(ctx context.Context, name, instruction string) []string {
	chunks, err := e.text.StreamGenerate(ctx, instruction)
	if err != nil {
		e.logger.Warn().Err(err).Str("list", name).Msg("prompt: suggestion request failed")
		return []string{}
	}
	items, err := parseStringList(strings.Join(chunks, ""))
	if err != nil {
		e.logger.Warn().Err(err).Str("list", name).Msg("prompt: suggestion reply unparseable")
		return []string{}
	}
	items = normalizeKeywords(items)
	if items == nil {
		return []string{}
	}
	return items
}
