package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/infra"
	"postergen/internal/middleware"
	"postergen/internal/pipeline"
)

// Pipeline is the generation surface exposed over HTTP.
type Pipeline interface {
	Refine(ctx context.Context, raw string) (string, error)
	Suggest(ctx context.Context, refined string) domain.SuggestionSet
	Features(refined string) domain.Features
	Run(ctx context.Context, req domain.GenerationRequest) (*pipeline.Result, error)
	SynthesizeAndComposite(ctx context.Context, req domain.GenerationRequest) (*pipeline.Result, error)
	RecentHistory(ctx context.Context, limit int) ([]domain.GenerationRecord, error)
	Record(ctx context.Context, id string) (domain.GenerationRecord, error)
}

type App struct {
	Pipeline       Pipeline
	Logger         *infra.Logger
	MaxUploadBytes int64
	LogoScale      float64
	AspectRatio    string
}

func NewApp(p Pipeline, cfg *infra.Config, logger *infra.Logger) *App {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	app := &App{Pipeline: p, Logger: logger, MaxUploadBytes: 16 << 20, LogoScale: 0.2, AspectRatio: domain.DefaultAspectRatio}
	if cfg != nil {
		if cfg.MaxUploadBytes > 0 {
			app.MaxUploadBytes = cfg.MaxUploadBytes
		}
		if cfg.LogoScale > 0 {
			app.LogoScale = cfg.LogoScale
		}
		if cfg.DefaultAspectRatio != "" {
			app.AspectRatio = cfg.DefaultAspectRatio
		}
	}
	return app
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, kind, message string) {
	a.json(w, code, errorResponse{Error: kind, Message: message, RequestID: middleware.RequestIDFromContext(r.Context())})
}

// fail maps a pipeline error onto the error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	kind := string(domain.KindOf(err))
	if errors.Is(err, domain.ErrRecordNotFound) {
		kind = "not_found"
	}
	event := a.Logger.Warn()
	if code >= http.StatusInternalServerError {
		event = a.Logger.Error()
	}
	event.Err(err).Str("kind", kind).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("http: request failed")
	a.error(w, r, code, kind, domain.MessageOf(err))
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindRefinement, domain.KindSynthesis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, "validation", "request body too large")
			return false
		}
		a.error(w, r, http.StatusBadRequest, "validation", "invalid payload")
		return false
	}
	return true
}
