package image

import (
	"fmt"
	"strings"
)

// BuildPosterPrompt appends the caller's chosen motifs and palettes to the
// refined prompt. With no selections the refined prompt is returned as is.
func BuildPosterPrompt(refined string, objects, colors []string) string {
	lines := []string{strings.TrimSpace(refined)}
	if list := joinNonEmpty(objects); list != "" {
		lines = append(lines, fmt.Sprintf("Incorporate these visual elements: %s.", list))
	}
	if list := joinNonEmpty(colors); list != "" {
		lines = append(lines, fmt.Sprintf("Use these color combinations: %s.", list))
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(values []string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSuffix(strings.TrimSpace(v), ".")
		if v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, ", ")
}
