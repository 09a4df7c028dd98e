package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strconv"
	"strings"

	"postergen/internal/infra"
)

// Offline renders deterministic placeholder output without calling Gemini.
// It keeps the whole pipeline runnable in local and CI environments where no
// API key is available.
type Offline struct {
	logger *infra.Logger
}

// NewOffline constructs the offline backend.
func NewOffline(logger *infra.Logger) *Offline {
	return &Offline{logger: loggerOrDiscard(logger)}
}

// StreamGenerate echoes a structured poster prompt built from the last line
// of the instruction, split into word sized chunks.
func (o *Offline) StreamGenerate(ctx context.Context, instruction string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subject := lastNonEmptyLine(instruction)
	if subject == "" {
		return nil, ErrEmptyStream
	}
	if strings.Contains(instruction, "JSON array") {
		list := `["rangoli patterns", "glowing diyas", "marigold garlands", "paisley borders", "lotus motifs"]`
		if first, _, _ := strings.Cut(instruction, "\n"); strings.Contains(first, "color combinations") {
			list = `["saffron and deep teal", "gold and maroon", "magenta and emerald"]`
		}
		return strings.SplitAfter(list, ", "), nil
	}
	text := fmt.Sprintf("Title: %s. Visual Style: Vibrant and modern. Color Scheme: saffron orange and deep teal. "+
		"Typography: Bold sans-serif headline at the top. Graphic Elements: traditional rangoli patterns. "+
		"Background: A smooth radial gradient. Audience: general public. Purpose: promotional poster. "+
		"Tone: energetic and engaging.", subject)
	words := strings.SplitAfter(text, " ")
	o.logger.Debug().Int("chunks", len(words)).Msg("genai: generated offline text")
	return words, nil
}

// GenerateImages renders count JPEG placeholders sized for aspectRatio.
func (o *Offline) GenerateImages(ctx context.Context, prompt, aspectRatio string, count int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}
	width, height := normalizeAspect(aspectRatio)
	images := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		seed := deterministicSeed(prompt, aspectRatio, i)
		data, err := renderSyntheticImage(width, height, seed)
		if err != nil {
			return nil, fmt.Errorf("genai: render placeholder: %w", err)
		}
		images = append(images, data)
	}
	o.logger.Debug().
		Str("aspect_ratio", aspectRatio).
		Int("quantity", count).
		Msg("genai: generated offline images")
	return images, nil
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: parseHexByte(segment[0:2]), G: parseHexByte(segment[2:4]), B: parseHexByte(segment[4:6]), A: 255}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// normalizeAspect maps an aspect ratio to placeholder pixel dimensions.
func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1408, 768
	case "9:16":
		return 768, 1408
	case "4:5":
		return 896, 1120
	case "3:4":
		return 896, 1280
	case "4:3":
		return 1280, 896
	case "1:1", "":
		return 1024, 1024
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
			b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errA == nil && errB == nil && a > 0 && b > 0 {
				return 1024, min(4096, max(1, int(float64(1024)*float64(b)/float64(a))))
			}
		}
		return 1024, 1024
	}
}
