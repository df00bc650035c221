package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AppleLamps/gptveo/internal/history"
	"github.com/AppleLamps/gptveo/internal/infra"
)

type generationRecord struct {
	ID              string     `json:"id"`
	Prompt          string     `json:"prompt"`
	Model           string     `json:"model"`
	AspectRatio     string     `json:"aspect_ratio"`
	DurationSeconds int        `json:"duration_seconds"`
	OperationName   string     `json:"operation_name,omitempty"`
	Status          string     `json:"status"`
	FailureClass    string     `json:"failure_class,omitempty"`
	FailureMessage  string     `json:"failure_message,omitempty"`
	ArtifactURI     string     `json:"artifact_uri,omitempty"`
	ArtifactBytes   int64      `json:"artifact_bytes,omitempty"`
	Country         string     `json:"country,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func toGenerationRecord(rec *history.Record) generationRecord {
	return generationRecord{
		ID:              rec.ID,
		Prompt:          rec.Prompt,
		Model:           rec.Model,
		AspectRatio:     rec.AspectRatio,
		DurationSeconds: rec.DurationSeconds,
		OperationName:   rec.OperationName,
		Status:          rec.Status,
		FailureClass:    rec.FailureClass,
		FailureMessage:  rec.FailureMessage,
		ArtifactURI:     rec.ArtifactURI,
		ArtifactBytes:   rec.ArtifactBytes,
		Country:         rec.Country,
		StartedAt:       rec.StartedAt,
		FinishedAt:      rec.FinishedAt,
	}
}

func (a *App) GenerationsList(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.fail(w, r, http.StatusServiceUnavailable, codeHistoryUnavailable)
		return
	}
	limit := intQuery(r, "limit", a.Config.LibraryDefaultLimit)
	if limit > a.Config.LibraryMaxLimit {
		limit = a.Config.LibraryMaxLimit
	}
	offset := intQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	records, err := a.History.List(r.Context(), limit, offset)
	if err != nil {
		a.Logger.Error().Err(err).Msg("generation list failed")
		a.fail(w, r, http.StatusInternalServerError, codeInternal)
		return
	}
	items := make([]generationRecord, 0, len(records))
	for i := range records {
		items = append(items, toGenerationRecord(&records[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (a *App) GenerationGet(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.fail(w, r, http.StatusServiceUnavailable, codeHistoryUnavailable)
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		a.fail(w, r, http.StatusBadRequest, codeBadRequest)
		return
	}
	rec, err := a.History.Get(r.Context(), id)
	if err != nil {
		if infra.IsNoRows(err) {
			a.fail(w, r, http.StatusNotFound, codeNotFound)
			return
		}
		a.Logger.Error().Err(err).Str("id", id).Msg("generation lookup failed")
		a.fail(w, r, http.StatusInternalServerError, codeInternal)
		return
	}
	a.json(w, http.StatusOK, toGenerationRecord(rec))
}
