// Package bootstrap assembles the generation pipeline from configuration so
// the API server and the CLI share one wiring path.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"postergen/internal/compose"
	"postergen/internal/history"
	"postergen/internal/infra"
	"postergen/internal/pipeline"
	"postergen/internal/providers/genai"
	"postergen/internal/providers/image"
	"postergen/internal/providers/prompt"
)

const retryBackoff = time.Second

// Backend is what the remote text and image stages need from a model client.
type Backend interface {
	prompt.TextStreamer
	image.Service
}

// Stack is a fully wired pipeline plus the resources it holds open.
type Stack struct {
	Pipeline *pipeline.Orchestrator
	History  history.Store

	closers []func()
}

// Close releases database pools and similar resources in reverse order.
func (s *Stack) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewBackend returns the Gemini client, or the offline renderer when the
// configuration asks for it.
func NewBackend(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (Backend, error) {
	logger = loggerOrDiscard(logger)
	if cfg.OfflineMode {
		logger.Warn().Msg("bootstrap: offline mode, remote models disabled")
		return genai.NewOffline(logger), nil
	}
	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		TextModel:   cfg.GeminiTextModel,
		ImageModel:  cfg.GeminiImageModel,
		CallTimeout: cfg.RemoteCallTimeout,
		MaxRetries:  cfg.RemoteMaxRetries,
		Backoff:     retryBackoff,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// OpenHistory opens the configured history backend. The returned func
// releases it.
func OpenHistory(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (history.Store, func(), error) {
	logger = loggerOrDiscard(logger)
	switch cfg.HistoryBackend {
	case infra.HistoryBackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		runner := infra.NewSQLRunner(pool, logger.With().Str("component", "history").Logger())
		store, err := history.NewPostgresStore(runner, cfg.HistoryTable, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case infra.HistoryBackendFile, "":
		store, err := history.OpenFile(ctx, cfg.HistoryPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unsupported history backend %q", cfg.HistoryBackend)
	}
}

// StageTimeout covers every attempt of one remote stage plus the waits
// between them.
func StageTimeout(cfg *infra.Config) time.Duration {
	if cfg.RemoteCallTimeout <= 0 {
		return 0
	}
	retries := max(cfg.RemoteMaxRetries, 0)
	wait := time.Duration(0)
	for i := 0; i < retries; i++ {
		wait += retryBackoff << i
	}
	return cfg.RemoteCallTimeout*time.Duration(retries+1) + wait
}

// New wires the full pipeline against backend.
func New(ctx context.Context, cfg *infra.Config, backend Backend, logger *infra.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	refiner, err := prompt.NewRefiner(backend, logger)
	if err != nil {
		return nil, err
	}
	suggester, err := prompt.NewSuggestionExtractor(backend, logger)
	if err != nil {
		return nil, err
	}
	synth, err := image.NewSynthesizer(backend, image.Options{DefaultCount: cfg.PosterCandidates, Logger: logger})
	if err != nil {
		return nil, err
	}
	store, closeHistory, err := OpenHistory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	stack := &Stack{History: store, closers: []func(){closeHistory}}

	orch, err := pipeline.New(pipeline.Deps{
		Refiner:     refiner,
		Suggester:   suggester,
		Synthesizer: synth,
		Compositor:  compose.NewCompositor(logger),
		History:     store,
	}, pipeline.Options{
		Candidates:   cfg.PosterCandidates,
		StageTimeout: StageTimeout(cfg),
		Logger:       logger,
	})
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.Pipeline = orch
	return stack, nil
}

func loggerOrDiscard(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	return &discard
}
