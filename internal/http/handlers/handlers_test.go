package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	stdimage "image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"postergen/internal/domain"
	"postergen/internal/infra"
	"postergen/internal/pipeline"
)

type fakePipeline struct {
	refine  func(ctx context.Context, raw string) (string, error)
	suggest func(ctx context.Context, refined string) domain.SuggestionSet
	run     func(ctx context.Context, req domain.GenerationRequest) (*pipeline.Result, error)
	stepped func(ctx context.Context, req domain.GenerationRequest) (*pipeline.Result, error)
	recent  func(ctx context.Context, limit int) ([]domain.GenerationRecord, error)
	record  func(ctx context.Context, id string) (domain.GenerationRecord, error)
}

func (f *fakePipeline) Refine(ctx context.Context, raw string) (string, error) {
	return f.refine(ctx, raw)
}

func (f *fakePipeline) Suggest(ctx context.Context, refined string) domain.SuggestionSet {
	return f.suggest(ctx, refined)
}

func (f *fakePipeline) Features(refined string) domain.Features {
	return domain.Features{"title": refined}
}

func (f *fakePipeline) Run(ctx context.Context, req domain.GenerationRequest) (*pipeline.Result, error) {
	return f.run(ctx, req)
}

func (f *fakePipeline) SynthesizeAndComposite(ctx context.Context, req domain.GenerationRequest) (*pipeline.Result, error) {
	return f.stepped(ctx, req)
}

func (f *fakePipeline) RecentHistory(ctx context.Context, limit int) ([]domain.GenerationRecord, error) {
	return f.recent(ctx, limit)
}

func (f *fakePipeline) Record(ctx context.Context, id string) (domain.GenerationRecord, error) {
	return f.record(ctx, id)
}

func newTestApp(p *fakePipeline) *App {
	return NewApp(p, &infra.Config{MaxUploadBytes: 1 << 20, LogoScale: 0.2, DefaultAspectRatio: "9:16"}, nil)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPromptRefine(t *testing.T) {
	app := newTestApp(&fakePipeline{refine: func(_ context.Context, raw string) (string, error) {
		if raw == "" {
			return "", domain.NewError(domain.KindValidation, "prompt is required", domain.ErrInvalidPrompt)
		}
		return "refined " + raw, nil
	}})

	rec := httptest.NewRecorder()
	app.PromptRefine(rec, httptest.NewRequest(http.MethodPost, "/v1/prompts/refine", strings.NewReader(`{"prompt":"Diwali"}`)))
	var ok refineResponse
	decodeBody(t, rec, &ok)
	if rec.Code != http.StatusOK || ok.EnhancedPrompt != "refined Diwali" {
		t.Fatalf("code = %d body = %+v", rec.Code, ok)
	}

	rec = httptest.NewRecorder()
	app.PromptRefine(rec, httptest.NewRequest(http.MethodPost, "/v1/prompts/refine", strings.NewReader(`{"prompt":""}`)))
	var bad errorResponse
	decodeBody(t, rec, &bad)
	if rec.Code != http.StatusBadRequest || bad.Error != "validation" || bad.Message != "prompt is required" {
		t.Fatalf("code = %d body = %+v", rec.Code, bad)
	}
}

func TestPromptRefineMapsServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{domain.NewError(domain.KindRefinement, "prompt refinement failed", errors.New("503")), http.StatusBadGateway, "refinement"},
		{domain.NewError(domain.KindRefinement, "prompt refinement failed", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{errors.New("unexpected"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		app := newTestApp(&fakePipeline{refine: func(context.Context, string) (string, error) { return "", tc.err }})
		rec := httptest.NewRecorder()
		app.PromptRefine(rec, httptest.NewRequest(http.MethodPost, "/v1/prompts/refine", strings.NewReader(`{"prompt":"x"}`)))
		var body errorResponse
		decodeBody(t, rec, &body)
		if rec.Code != tc.code || body.Error != tc.kind {
			t.Fatalf("err %v: code = %d kind = %q", tc.err, rec.Code, body.Error)
		}
	}
}

func TestPromptSuggestionsAndFeatures(t *testing.T) {
	app := newTestApp(&fakePipeline{suggest: func(_ context.Context, refined string) domain.SuggestionSet {
		return domain.SuggestionSet{Objects: []string{"diyas"}, ColorCombinations: []string{}}
	}})

	rec := httptest.NewRecorder()
	app.PromptSuggestions(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refined_prompt":"poster"}`)))
	var set domain.SuggestionSet
	decodeBody(t, rec, &set)
	if rec.Code != http.StatusOK || len(set.Objects) != 1 || set.ColorCombinations == nil {
		t.Fatalf("code = %d set = %+v", rec.Code, set)
	}

	rec = httptest.NewRecorder()
	app.PromptSuggestions(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing refined_prompt code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.PromptFeatures(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refined_prompt":"Festive"}`)))
	var features struct {
		Features map[string]string `json:"features"`
	}
	decodeBody(t, rec, &features)
	if features.Features["title"] != "Festive" {
		t.Fatalf("features = %v", features.Features)
	}
}

func TestGeneratePostersJSON(t *testing.T) {
	var got domain.GenerationRequest
	app := newTestApp(&fakePipeline{run: func(_ context.Context, req domain.GenerationRequest) (*pipeline.Result, error) {
		got = req
		return &pipeline.Result{
			RecordID:      "rec-1",
			RefinedPrompt: "refined",
			Posters:       []domain.EncodedPoster{{ID: "poster_0", Image: "aGk=", Width: 9, Height: 16}},
			LogoApplied:   true,
		}, nil
	}})

	logo := base64.StdEncoding.EncodeToString(pngBytes(t))
	body := `{"prompt":"Diwali campus event","selected_objects":["diyas"],"logo":"data:image/png;base64,` + logo + `","logo_position":"bottom-right","logo_scale":25}`
	rec := httptest.NewRecorder()
	app.GeneratePosters(rec, httptest.NewRequest(http.MethodPost, "/v1/posters", strings.NewReader(body)))

	var res posterResponse
	decodeBody(t, rec, &res)
	if rec.Code != http.StatusOK || res.RecordID != "rec-1" || len(res.Posters) != 1 || !res.LogoApplied {
		t.Fatalf("code = %d res = %+v", rec.Code, res)
	}
	if got.RawPrompt != "Diwali campus event" || got.AspectRatio != "9:16" || got.SkipRefine {
		t.Fatalf("request = %+v", got)
	}
	if got.Logo == nil || got.Logo.Position.Anchor != domain.AnchorBottomRight || got.Logo.Scale != 0.25 {
		t.Fatalf("logo = %+v", got.Logo)
	}
	if len(got.SelectedObjects) != 1 {
		t.Fatalf("selected objects = %v", got.SelectedObjects)
	}
}

func TestGeneratePostersSteppedUsesRefinedPrompt(t *testing.T) {
	called := false
	app := newTestApp(&fakePipeline{
		run: func(context.Context, domain.GenerationRequest) (*pipeline.Result, error) {
			t.Fatalf("Run should not be called")
			return nil, nil
		},
		stepped: func(_ context.Context, req domain.GenerationRequest) (*pipeline.Result, error) {
			called = true
			if req.RefinedPrompt != "already refined" || req.AspectRatio != "1:1" {
				t.Fatalf("request = %+v", req)
			}
			return &pipeline.Result{Posters: []domain.EncodedPoster{{ID: "poster_0"}}, Warning: pipeline.HistoryWarning}, nil
		},
	})
	rec := httptest.NewRecorder()
	app.GeneratePosters(rec, httptest.NewRequest(http.MethodPost, "/v1/posters", strings.NewReader(`{"refined_prompt":"already refined","aspect_ratio":"1:1"}`)))
	var res posterResponse
	decodeBody(t, rec, &res)
	if !called || rec.Code != http.StatusOK || res.Warning != pipeline.HistoryWarning {
		t.Fatalf("code = %d res = %+v", rec.Code, res)
	}
}

func TestGeneratePostersMultipart(t *testing.T) {
	var got domain.GenerationRequest
	app := newTestApp(&fakePipeline{run: func(_ context.Context, req domain.GenerationRequest) (*pipeline.Result, error) {
		got = req
		return &pipeline.Result{Posters: []domain.EncodedPoster{{ID: "poster_0"}}}, nil
	}})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("prompt", "Holi sale")
	_ = mw.WriteField("aspect_ratio", "4:5")
	_ = mw.WriteField("refine", "false")
	_ = mw.WriteField("selected_color_combinations[]", "pink and green")
	_ = mw.WriteField("selected_color_combinations[]", "yellow and blue")
	_ = mw.WriteField("logo_x", "12")
	_ = mw.WriteField("logo_y", "34")
	fw, _ := mw.CreateFormFile("logo", "logo.png")
	_, _ = fw.Write(pngBytes(t))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/posters", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	app.GeneratePosters(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	if got.RawPrompt != "Holi sale" || got.AspectRatio != "4:5" || !got.SkipRefine {
		t.Fatalf("request = %+v", got)
	}
	if len(got.SelectedColorCombinations) != 2 {
		t.Fatalf("colors = %v", got.SelectedColorCombinations)
	}
	if got.Logo == nil || !got.Logo.Position.Explicit || got.Logo.Position.X != 12 || got.Logo.Position.Y != 34 || got.Logo.Scale != 0.2 {
		t.Fatalf("logo = %+v", got.Logo)
	}
}

func TestGeneratePostersFailures(t *testing.T) {
	app := newTestApp(&fakePipeline{run: func(context.Context, domain.GenerationRequest) (*pipeline.Result, error) {
		return nil, domain.NewError(domain.KindSynthesis, "failed to generate posters", domain.ErrNoImages)
	}})

	rec := httptest.NewRecorder()
	app.GeneratePosters(rec, httptest.NewRequest(http.MethodPost, "/v1/posters", strings.NewReader(`{"prompt":"x"}`)))
	var body errorResponse
	decodeBody(t, rec, &body)
	if rec.Code != http.StatusBadGateway || body.Message != "failed to generate posters" {
		t.Fatalf("code = %d body = %+v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	app.GeneratePosters(rec, httptest.NewRequest(http.MethodPost, "/v1/posters", strings.NewReader(`{"prompt":"x","logo":"%%%"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad logo code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.GeneratePosters(rec, httptest.NewRequest(http.MethodPost, "/v1/posters", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json code = %d", rec.Code)
	}

	app.MaxUploadBytes = 8
	rec = httptest.NewRecorder()
	app.GeneratePosters(rec, httptest.NewRequest(http.MethodPost, "/v1/posters", strings.NewReader(`{"prompt":"a very long prompt"}`)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized code = %d", rec.Code)
	}
}

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHistoryList(t *testing.T) {
	var gotLimit int
	app := newTestApp(&fakePipeline{recent: func(_ context.Context, limit int) ([]domain.GenerationRecord, error) {
		gotLimit = limit
		return nil, nil
	}})

	rec := httptest.NewRecorder()
	app.HistoryList(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil))
	if rec.Code != http.StatusOK || gotLimit != 5 || !strings.Contains(rec.Body.String(), `"records":[]`) {
		t.Fatalf("code = %d limit = %d body = %s", rec.Code, gotLimit, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	app.HistoryList(rec, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if gotLimit != defaultHistoryLimit {
		t.Fatalf("default limit = %d", gotLimit)
	}

	rec = httptest.NewRecorder()
	app.HistoryList(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit code = %d", rec.Code)
	}
}

func TestHistoryArchive(t *testing.T) {
	img := base64.StdEncoding.EncodeToString(pngBytes(t))
	app := newTestApp(&fakePipeline{record: func(_ context.Context, id string) (domain.GenerationRecord, error) {
		if id != "rec-1" {
			return domain.GenerationRecord{}, domain.ErrRecordNotFound
		}
		return domain.GenerationRecord{
			ID:        "rec-1",
			Timestamp: "2025-10-20T09:30:00Z",
			Posters: []domain.EncodedPoster{
				{ID: "poster_0", Image: img},
				{ID: "poster_1", Image: "!!!"},
				{ID: "poster_2", Image: img},
			},
		}, nil
	}})

	rec := httptest.NewRecorder()
	app.HistoryArchive(rec, withID(httptest.NewRequest(http.MethodGet, "/v1/history/rec-1/archive", nil), "rec-1"))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("code = %d headers = %v", rec.Code, rec.Header())
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "poster_0.png" || zr.File[1].Name != "poster_2.png" {
		t.Fatalf("entries = %d", len(zr.File))
	}

	rec = httptest.NewRecorder()
	app.HistoryArchive(rec, withID(httptest.NewRequest(http.MethodGet, "/v1/history/nope/archive", nil), "nope"))
	var body errorResponse
	decodeBody(t, rec, &body)
	if rec.Code != http.StatusNotFound || body.Error != "not_found" {
		t.Fatalf("code = %d body = %+v", rec.Code, body)
	}
}

func TestHistoryGet(t *testing.T) {
	app := newTestApp(&fakePipeline{record: func(_ context.Context, id string) (domain.GenerationRecord, error) {
		return domain.GenerationRecord{ID: id, Prompt: "Diwali"}, nil
	}})
	rec := httptest.NewRecorder()
	app.HistoryGet(rec, withID(httptest.NewRequest(http.MethodGet, "/v1/history/rec-9", nil), "rec-9"))
	var got domain.GenerationRecord
	decodeBody(t, rec, &got)
	if got.ID != "rec-9" || got.Prompt != "Diwali" {
		t.Fatalf("record = %+v", got)
	}
}

func TestReadyReflectsHistoryStore(t *testing.T) {
	var fail bool
	app := newTestApp(&fakePipeline{recent: func(context.Context, int) ([]domain.GenerationRecord, error) {
		if fail {
			return nil, errors.New("disk unavailable")
		}
		return nil, nil
	}})

	rec := httptest.NewRecorder()
	app.Ready(rec, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready code = %d", rec.Code)
	}

	fail = true
	rec = httptest.NewRecorder()
	app.Ready(rec, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))
	var body map[string]string
	decodeBody(t, rec, &body)
	if rec.Code != http.StatusServiceUnavailable || body["history"] != "disk unavailable" {
		t.Fatalf("code = %d body = %v", rec.Code, body)
	}
}
