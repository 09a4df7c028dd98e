package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"postergen/internal/domain"
)

type posterRequest struct {
	Prompt                    string   `json:"prompt"`
	RefinedPrompt             string   `json:"refined_prompt"`
	AspectRatio               string   `json:"aspect_ratio"`
	Refine                    *bool    `json:"refine"`
	SelectedObjects           []string `json:"selected_objects"`
	SelectedColorCombinations []string `json:"selected_color_combinations"`
	// Logo is base64 (optionally a data URL) in JSON bodies.
	Logo         string   `json:"logo"`
	LogoPosition string   `json:"logo_position"`
	LogoX        *int     `json:"logo_x"`
	LogoY        *int     `json:"logo_y"`
	LogoScale    *float64 `json:"logo_scale"`

	logoData []byte
}

type posterResponse struct {
	Posters       []domain.EncodedPoster `json:"posters"`
	RecordID      string                 `json:"record_id,omitempty"`
	RefinedPrompt string                 `json:"refined_prompt"`
	LogoApplied   bool                   `json:"logo_applied"`
	Warning       string                 `json:"warning,omitempty"`
}

// GeneratePosters accepts JSON or multipart/form-data. A request carrying
// refined_prompt is treated as a later wizard step and skips refinement.
func (a *App) GeneratePosters(w http.ResponseWriter, r *http.Request) {
	req, ok := a.readPosterRequest(w, r)
	if !ok {
		return
	}
	genReq := a.toGenerationRequest(req)

	run := a.Pipeline.Run
	if genReq.RefinedPrompt != "" {
		run = a.Pipeline.SynthesizeAndComposite
	}
	res, err := run(r.Context(), genReq)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, posterResponse{
		Posters:       res.Posters,
		RecordID:      res.RecordID,
		RefinedPrompt: res.RefinedPrompt,
		LogoApplied:   res.LogoApplied,
		Warning:       res.Warning,
	})
}

func (a *App) readPosterRequest(w http.ResponseWriter, r *http.Request) (*posterRequest, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req posterRequest
		if !a.decodeJSON(w, r, &req) {
			return nil, false
		}
		if req.Logo != "" {
			data, err := decodeBase64Logo(req.Logo)
			if err != nil {
				a.error(w, r, http.StatusBadRequest, "validation", "logo must be base64 encoded")
				return nil, false
			}
			req.logoData = data
		}
		return &req, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, "validation", "upload too large")
			return nil, false
		}
		a.error(w, r, http.StatusBadRequest, "validation", "invalid multipart form")
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	req := &posterRequest{
		Prompt:                    r.FormValue("prompt"),
		RefinedPrompt:             r.FormValue("refined_prompt"),
		AspectRatio:               r.FormValue("aspect_ratio"),
		LogoPosition:              r.FormValue("logo_position"),
		SelectedObjects:           formList(r, "selected_objects"),
		SelectedColorCombinations: formList(r, "selected_color_combinations"),
	}
	if v := r.FormValue("refine"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			req.Refine = &b
		}
	}
	req.LogoX = formInt(r, "logo_x")
	req.LogoY = formInt(r, "logo_y")
	if v := r.FormValue("logo_scale"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			req.LogoScale = &f
		}
	}
	if file, _, err := r.FormFile("logo"); err == nil {
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			a.error(w, r, http.StatusBadRequest, "validation", "could not read logo upload")
			return nil, false
		}
		req.logoData = data
	}
	return req, true
}

func (a *App) toGenerationRequest(req *posterRequest) domain.GenerationRequest {
	out := domain.GenerationRequest{
		RawPrompt:                 req.Prompt,
		RefinedPrompt:             req.RefinedPrompt,
		AspectRatio:               strings.TrimSpace(req.AspectRatio),
		SelectedObjects:           req.SelectedObjects,
		SelectedColorCombinations: req.SelectedColorCombinations,
		SkipRefine:                req.Refine != nil && !*req.Refine,
	}
	if out.AspectRatio == "" {
		out.AspectRatio = a.AspectRatio
	}
	if len(req.logoData) > 0 {
		logo := &domain.LogoInput{
			Data:     req.logoData,
			Position: domain.AnchorAt(domain.ParseAnchor(req.LogoPosition)),
			Scale:    a.LogoScale,
		}
		if req.LogoX != nil && req.LogoY != nil {
			logo.Position = domain.PointAt(*req.LogoX, *req.LogoY)
		}
		if req.LogoScale != nil {
			logo.Scale = normalizeScale(*req.LogoScale)
		}
		out.Logo = logo
	}
	return out
}

// normalizeScale accepts a fraction (0.2) or a percentage (20). Anything out
// of range is passed on and replaced by the compositor default.
func normalizeScale(v float64) float64 {
	if v > 1 && v <= 100 {
		return v / 100
	}
	return v
}

func decodeBase64Logo(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "data:") {
		if idx := strings.Index(v, ","); idx >= 0 {
			v = v[idx+1:]
		}
	}
	return base64.StdEncoding.DecodeString(v)
}

func formList(r *http.Request, key string) []string {
	var out []string
	for _, k := range []string{key, key + "[]"} {
		for _, v := range r.MultipartForm.Value[k] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func formInt(r *http.Request, key string) *int {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
