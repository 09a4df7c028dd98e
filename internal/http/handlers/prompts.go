package handlers

import (
	"net/http"
	"strings"
)

type refineRequest struct {
	Prompt string `json:"prompt"`
}

type refineResponse struct {
	EnhancedPrompt string `json:"enhanced_prompt"`
}

type refinedPromptRequest struct {
	RefinedPrompt string `json:"refined_prompt"`
}

func (a *App) PromptRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	refined, err := a.Pipeline.Refine(r.Context(), req.Prompt)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, refineResponse{EnhancedPrompt: refined})
}

func (a *App) PromptSuggestions(w http.ResponseWriter, r *http.Request) {
	var req refinedPromptRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefinedPrompt) == "" {
		a.error(w, r, http.StatusBadRequest, "validation", "refined_prompt is required")
		return
	}
	a.json(w, http.StatusOK, a.Pipeline.Suggest(r.Context(), req.RefinedPrompt))
}

func (a *App) PromptFeatures(w http.ResponseWriter, r *http.Request) {
	var req refinedPromptRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	a.json(w, http.StatusOK, map[string]any{"features": a.Pipeline.Features(req.RefinedPrompt)})
}
