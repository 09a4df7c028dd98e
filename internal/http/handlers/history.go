package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"postergen/internal/domain"
	"postergen/internal/providers/image"
	"postergen/pkg/zip"
)

const defaultHistoryLimit = 20

func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.error(w, r, http.StatusBadRequest, "validation", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := a.Pipeline.RecentHistory(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if records == nil {
		records = []domain.GenerationRecord{}
	}
	a.json(w, http.StatusOK, map[string]any{"records": records})
}

func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadRecord(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, rec)
}

func (a *App) HistoryArchive(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadRecord(w, r)
	if !ok {
		return
	}
	modified, _ := rec.ParsedTime()
	assets := make([]zip.Asset, 0, len(rec.Posters))
	for i, p := range rec.Posters {
		data, err := image.DecodePoster(p)
		if err != nil {
			a.Logger.Warn().Err(err).Str("record_id", rec.ID).Int("index", i).Msg("http: skipping unreadable poster")
			continue
		}
		name := p.ID
		if name == "" {
			name = domain.CandidateID(i)
		}
		assets = append(assets, zip.Asset{Filename: name + ".png", MIME: "image/png", Data: data, Modified: modified})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, domain.NewError(domain.KindInternal, "failed to build archive", err))
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=posters-%s.zip", rec.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) loadRecord(w http.ResponseWriter, r *http.Request) (domain.GenerationRecord, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		a.error(w, r, http.StatusBadRequest, "validation", "id required")
		return domain.GenerationRecord{}, false
	}
	rec, err := a.Pipeline.Record(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return domain.GenerationRecord{}, false
	}
	return rec, true
}
