package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"postergen/internal/bootstrap"
	"postergen/internal/domain"
	"postergen/internal/infra"
	"postergen/internal/providers/image"
	"postergen/pkg/zip"
)

const usage = `usage: posterctl <command> [flags]

commands:
  generate   refine a prompt, synthesize posters and write them to disk
  history    list recent generations
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "posterctl").Logger()

	switch os.Args[1] {
	case "generate":
		err = runGenerate(cfg, &logger, os.Args[2:])
	case "history":
		err = runHistory(cfg, &logger, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		exitWithError(err)
	}
}

func runGenerate(cfg *infra.Config, logger *infra.Logger, args []string) error {
	var (
		promptFlag   string
		aspectFlag   string
		logoFlag     string
		positionFlag string
		scaleFlag    int
		outFlag      string
		objectsFlag  string
		colorsFlag   string
		rawFlag      bool
	)
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	fs.StringVar(&promptFlag, "prompt", "", "poster concept to generate from")
	fs.StringVar(&aspectFlag, "aspect", cfg.DefaultAspectRatio, "aspect ratio (1:1, 9:16, 16:9, 3:4, 4:3)")
	fs.StringVar(&logoFlag, "logo", "", "optional logo image to overlay")
	fs.StringVar(&positionFlag, "position", string(domain.AnchorTopLeft), "logo anchor (top-left, top-right, bottom-left, bottom-right, center)")
	fs.IntVar(&scaleFlag, "scale", int(cfg.LogoScale*100), "logo width as a percentage of the poster width")
	fs.StringVar(&outFlag, "out", "posters", "directory the posters and archive are written to")
	fs.StringVar(&objectsFlag, "objects", "", "semicolon separated visual elements to include")
	fs.StringVar(&colorsFlag, "colors", "", "semicolon separated color combinations to use")
	fs.BoolVar(&rawFlag, "raw", false, "skip prompt refinement")
	_ = fs.Parse(args)

	if strings.TrimSpace(promptFlag) == "" {
		return errors.New("-prompt is required")
	}

	req := domain.GenerationRequest{
		RawPrompt:                 promptFlag,
		AspectRatio:               aspectFlag,
		SelectedObjects:           splitSemicolons(objectsFlag),
		SelectedColorCombinations: splitSemicolons(colorsFlag),
		SkipRefine:                rawFlag,
	}
	if logoFlag != "" {
		data, err := os.ReadFile(logoFlag)
		if err != nil {
			return fmt.Errorf("failed to read logo: %w", err)
		}
		req.Logo = &domain.LogoInput{
			Data:     data,
			Position: domain.AnchorAt(domain.ParseAnchor(positionFlag)),
			Scale:    float64(scaleFlag) / 100,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*bootstrap.StageTimeout(cfg)+30*time.Second)
	defer cancel()

	backend, err := bootstrap.NewBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	stack, err := bootstrap.New(ctx, cfg, backend, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer stack.Close()

	res, err := stack.Pipeline.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", domain.KindOf(err), err)
	}

	if err := os.MkdirAll(outFlag, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	assets := make([]zip.Asset, 0, len(res.Posters))
	now := time.Now()
	for _, p := range res.Posters {
		data, err := image.DecodePoster(p)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", p.ID, err)
		}
		name := p.ID + ".png"
		if err := os.WriteFile(filepath.Join(outFlag, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		assets = append(assets, zip.Asset{Filename: name, MIME: "image/png", Data: data, Modified: now})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		return fmt.Errorf("failed to build archive: %w", err)
	}
	archivePath := filepath.Join(outFlag, "posters.zip")
	if err := os.WriteFile(archivePath, archive, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	fmt.Printf("Refined prompt:\n%s\n\n", res.RefinedPrompt)
	fmt.Printf("Wrote %d posters to %s (archive %s)\n", len(res.Posters), outFlag, archivePath)
	if res.LogoApplied {
		fmt.Println("logo applied")
	}
	if res.Warning != "" {
		fmt.Printf("warning: %s\n", res.Warning)
	}
	return nil
}

func runHistory(cfg *infra.Config, logger *infra.Logger, args []string) error {
	var limitFlag int
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	fs.IntVar(&limitFlag, "limit", 10, "number of records to show")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeStore, err := bootstrap.OpenHistory(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer closeStore()

	records, err := store.ListRecent(ctx, limitFlag)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no generations recorded")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %-36s  %-5s  %d posters  %s\n", rec.Timestamp, rec.ID, rec.AspectRatio, len(rec.Posters), oneLine(rec.Prompt, 60))
	}
	return nil
}

func splitSemicolons(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return s
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
