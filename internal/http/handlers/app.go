package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/history"
	"github.com/AppleLamps/gptveo/internal/infra"
	"github.com/AppleLamps/gptveo/internal/middleware"
	"github.com/AppleLamps/gptveo/internal/pipeline"
)

// GenerationRunner drives one prompt through the full generation pipeline.
type GenerationRunner interface {
	Run(ctx context.Context, req domain.GenerationRequest) (*pipeline.Run, error)
}

// ObjectStore reads finished videos back out of the output bucket.
type ObjectStore interface {
	FetchObject(ctx context.Context, ref domain.ArtifactRef) (*domain.Artifact, error)
	ListRecent(ctx context.Context, bucket, prefix string, limit int, order domain.ListOrder) ([]domain.ObjectInfo, error)
}

// HistoryReader serves past runs out of the generation history.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*history.Record, error)
	List(ctx context.Context, limit, offset int) ([]history.Record, error)
	Summary(ctx context.Context, windowHours int) (*history.Summary, error)
	TopCountries(ctx context.Context, windowHours, limit int) ([]history.CountryCount, error)
}

type App struct {
	Logger  infra.Logger
	Config  *infra.Config
	Runner  GenerationRunner
	Objects ObjectStore
	// History is nil when no database is configured; the handlers that need
	// it answer 503 in that case.
	History HistoryReader
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errorBody{Code: errCode, Message: message}})
}

// fail answers with the catalog message for errCode in the requester's locale.
func (a *App) fail(w http.ResponseWriter, r *http.Request, code int, errCode string) {
	a.error(w, code, errCode, message(middleware.LocaleFromContext(r.Context()), errCode))
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
