// Package pipeline sequences one poster generation run: refine, optional
// suggestions, synthesis, optional logo compositing and persistence.
package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/infra"
	"postergen/internal/providers/image"
	"postergen/internal/providers/prompt"
	"postergen/pkg/metrics"
)

// Stage is the furthest state a run reached.
type Stage string

const (
	StageDraft               Stage = "draft"
	StageEnhanced            Stage = "enhanced"
	StageEnhancedWithOptions Stage = "enhanced_with_options"
	StageSynthesized         Stage = "synthesized"
	StageComposited          Stage = "composited"
	StageDone                Stage = "done"
)

// HistoryWarning is surfaced when posters were generated but not recorded.
const HistoryWarning = "posters were generated but the run was not recorded"

type Refiner interface {
	Refine(ctx context.Context, raw string) (string, error)
}

type Suggester interface {
	Extract(ctx context.Context, refined string) domain.SuggestionSet
}

type Synthesizer interface {
	Synthesize(ctx context.Context, prompt, aspectRatio string, count int) ([]domain.PosterCandidate, error)
}

type Compositor interface {
	Apply(candidates []domain.PosterCandidate, logo *domain.LogoInput) ([]domain.PosterCandidate, bool)
}

type History interface {
	Append(ctx context.Context, rec domain.GenerationRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.GenerationRecord, error)
	Get(ctx context.Context, id string) (domain.GenerationRecord, error)
}

// Options tunes an Orchestrator. Zero values pick defaults.
type Options struct {
	Candidates int
	// StageTimeout bounds each remote stage (refine, suggest, synthesize),
	// retries included. Zero leaves only the caller's deadline.
	StageTimeout time.Duration
	Logger       *infra.Logger
	Now          func() time.Time
	NewID        func() string
}

// Orchestrator owns no per-run state; everything a stepped caller needs is
// passed in explicitly on each call.
type Orchestrator struct {
	refiner     Refiner
	suggester   Suggester
	synthesizer Synthesizer
	compositor  Compositor
	history     History

	candidates   int
	stageTimeout time.Duration
	logger       *infra.Logger
	now          func() time.Time
	newID        func() string
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Refiner     Refiner
	Suggester   Suggester
	Synthesizer Synthesizer
	Compositor  Compositor
	History     History
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Refiner == nil:
		return nil, errors.New("pipeline: refiner is required")
	case deps.Suggester == nil:
		return nil, errors.New("pipeline: suggester is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer is required")
	case deps.Compositor == nil:
		return nil, errors.New("pipeline: compositor is required")
	case deps.History == nil:
		return nil, errors.New("pipeline: history is required")
	}
	o := &Orchestrator{
		refiner:      deps.Refiner,
		suggester:    deps.Suggester,
		synthesizer:  deps.Synthesizer,
		compositor:   deps.Compositor,
		history:      deps.History,
		candidates:   opts.Candidates,
		stageTimeout: opts.StageTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if o.candidates <= 0 {
		o.candidates = domain.DefaultCandidateCount
	}
	if o.logger == nil {
		discard := zerolog.New(io.Discard)
		o.logger = &discard
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o, nil
}

// Result is what a completed run hands back to its caller.
type Result struct {
	RecordID      string
	Prompt        string
	RefinedPrompt string
	AspectRatio   string
	Posters       []domain.EncodedPoster
	LogoApplied   bool
	Stage         Stage
	// Warning is non-empty when the run succeeded with a degraded outcome.
	Warning string
	// HistoryErr is the KindHistoryWrite error behind Warning, if any.
	HistoryErr error
}

// Refine runs the refinement step on its own.
func (o *Orchestrator) Refine(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", domain.NewError(domain.KindValidation, "prompt is required", domain.ErrInvalidPrompt)
	}
	var refined string
	err := o.stage(ctx, "refine", func(ctx context.Context) error {
		var err error
		refined, err = o.refiner.Refine(ctx, raw)
		return err
	})
	return refined, err
}

// Suggest fetches motif and palette suggestions. It never fails.
func (o *Orchestrator) Suggest(ctx context.Context, refined string) domain.SuggestionSet {
	var set domain.SuggestionSet
	_ = o.stage(ctx, "suggest", func(ctx context.Context) error {
		set = o.suggester.Extract(ctx, refined)
		return nil
	})
	return set
}

// Features extracts the informational feature map of refined.
func (o *Orchestrator) Features(refined string) domain.Features {
	return prompt.ExtractFeatures(refined)
}

// Run executes the whole pipeline for req, refining the raw prompt unless the
// request carries an already refined prompt or asks to skip refinement.
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Prompt: req.RawPrompt, AspectRatio: req.AspectRatio, Stage: StageDraft}

	refined := req.RefinedPrompt
	switch {
	case refined != "":
	case req.SkipRefine:
		refined = req.RawPrompt
	default:
		var err error
		if refined, err = o.Refine(ctx, req.RawPrompt); err != nil {
			o.logger.Warn().Err(err).Msg("pipeline: refine failed")
			return nil, err
		}
	}
	if res.Prompt == "" {
		res.Prompt = refined
	}
	res.RefinedPrompt = refined
	res.Stage = StageEnhanced

	return o.finish(ctx, req, res)
}

// SynthesizeAndComposite is the stepped entry point: the caller already holds
// a refined prompt (in RefinedPrompt, or in RawPrompt when that is all it
// sends) and its chosen suggestions, so no refinement happens here.
func (o *Orchestrator) SynthesizeAndComposite(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	refined := req.RefinedPrompt
	if refined == "" {
		refined = req.RawPrompt
	}
	res := &Result{Prompt: req.RawPrompt, RefinedPrompt: refined, AspectRatio: req.AspectRatio, Stage: StageEnhanced}
	if res.Prompt == "" {
		res.Prompt = refined
	}
	return o.finish(ctx, req, res)
}

func (o *Orchestrator) finish(ctx context.Context, req domain.GenerationRequest, res *Result) (*Result, error) {
	posterPrompt := res.RefinedPrompt
	if len(req.SelectedObjects) > 0 || len(req.SelectedColorCombinations) > 0 {
		posterPrompt = image.BuildPosterPrompt(res.RefinedPrompt, req.SelectedObjects, req.SelectedColorCombinations)
		res.Stage = StageEnhancedWithOptions
	}

	var candidates []domain.PosterCandidate
	err := o.stage(ctx, "synthesize", func(ctx context.Context) error {
		var err error
		candidates, err = o.synthesizer.Synthesize(ctx, posterPrompt, req.AspectRatio, o.candidates)
		if err == nil && len(candidates) == 0 {
			err = domain.NewError(domain.KindSynthesis, "failed to generate posters", domain.ErrNoImages)
		}
		return err
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("aspect_ratio", req.AspectRatio).Msg("pipeline: synthesis failed")
		return nil, err
	}
	res.Stage = StageSynthesized

	candidates = o.composite(res, candidates, req.Logo)

	encoded, err := image.EncodeCandidates(candidates)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "failed to encode posters", err)
	}
	res.Posters = encoded

	// An abandoned run must not leave a record behind.
	if err := ctx.Err(); err != nil {
		return nil, domain.NewError(domain.KindTimeout, "generation was abandoned", err)
	}

	rec := domain.GenerationRecord{
		ID:            o.newID(),
		Prompt:        res.Prompt,
		RefinedPrompt: res.RefinedPrompt,
		AspectRatio:   res.AspectRatio,
		Posters:       encoded,
		LogoApplied:   res.LogoApplied,
		Timestamp:     domain.FormatTimestamp(o.now()),
	}
	started := time.Now()
	if err := o.history.Append(ctx, rec); err != nil {
		metrics.ObserveStage("persist", string(domain.KindHistoryWrite), started)
		o.logger.Error().Err(err).Str("record_id", rec.ID).Msg("pipeline: history append failed")
		res.Warning = HistoryWarning
		res.HistoryErr = domain.NewError(domain.KindHistoryWrite, HistoryWarning, err)
		res.Stage = StageDone
		metrics.PostersGenerated.Add(float64(len(encoded)))
		return res, nil
	}
	metrics.ObserveStage("persist", "ok", started)
	metrics.PostersGenerated.Add(float64(len(encoded)))

	res.RecordID = rec.ID
	res.Stage = StageDone
	o.logger.Info().
		Str("record_id", rec.ID).
		Int("posters", len(encoded)).
		Bool("logo_applied", res.LogoApplied).
		Msg("pipeline: run completed")
	return res, nil
}

// RecentHistory returns up to limit records, most recent first.
// composite stamps logo onto candidates. The run only reaches
// StageComposited when the logo was actually applied.
func (o *Orchestrator) composite(res *Result, candidates []domain.PosterCandidate, logo *domain.LogoInput) []domain.PosterCandidate {
	if logo == nil || len(logo.Data) == 0 {
		return candidates
	}
	started := time.Now()
	candidates, res.LogoApplied = o.compositor.Apply(candidates, logo)
	if !res.LogoApplied {
		metrics.ObserveStage("composite", string(domain.KindLogoDecode), started)
		return candidates
	}
	metrics.ObserveStage("composite", "ok", started)
	res.Stage = StageComposited
	return candidates
}

func (o *Orchestrator) RecentHistory(ctx context.Context, limit int) ([]domain.GenerationRecord, error) {
	return o.history.ListRecent(ctx, limit)
}

// Record returns one stored record by id.
func (o *Orchestrator) Record(ctx context.Context, id string) (domain.GenerationRecord, error) {
	return o.history.Get(ctx, id)
}

func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}
	started := time.Now()
	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	metrics.ObserveStage(name, outcome, started)
	return err
}
