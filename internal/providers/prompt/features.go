package prompt

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"postergen/internal/domain"
)

// FeatureNames lists the features read from a refined prompt, in display order.
var FeatureNames = []string{
	"title",
	"visual_style",
	"color_scheme",
	"typography",
	"graphic_elements",
	"background",
	"audience",
	"purpose",
	"tone",
}

var featurePatterns = compileFeaturePatterns(FeatureNames)

// FeatureLabel converts a feature name to the label searched for in text,
// e.g. "visual_style" becomes "Visual Style".
func FeatureLabel(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

func compileFeaturePatterns(names []string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(names))
	for _, name := range names {
		label := regexp.QuoteMeta(FeatureLabel(name))
		patterns[name] = regexp.MustCompile(`(?i)\b` + label + `:[ \t]*([^.\n]*)`)
	}
	return patterns
}

// ExtractFeatures finds "<Label>: value" fragments in refined and returns
// the text up to the next period or line break. Missing features map to "".
// The result is informational only; model output is not guaranteed to carry
// any label.
func ExtractFeatures(refined string) domain.Features {
	features := make(domain.Features, len(FeatureNames))
	for _, name := range FeatureNames {
		features[name] = ""
		if m := featurePatterns[name].FindStringSubmatch(refined); m != nil {
			features[name] = strings.TrimSpace(m[1])
		}
	}
	return features
}
