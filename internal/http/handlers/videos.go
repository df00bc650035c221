package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/history"
	"github.com/AppleLamps/gptveo/internal/middleware"
	"github.com/AppleLamps/gptveo/internal/pipeline"
)

type generateRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
	Model           string `json:"model"`
}

type runResponse struct {
	ID              string  `json:"id"`
	State           string  `json:"state"`
	OperationName   string  `json:"operation_name,omitempty"`
	Prompt          string  `json:"prompt"`
	Model           string  `json:"model"`
	AspectRatio     string  `json:"aspect_ratio"`
	DurationSeconds int     `json:"duration_seconds"`
	ArtifactURI     string  `json:"artifact_uri,omitempty"`
	ArtifactBytes   int64   `json:"artifact_bytes,omitempty"`
	ContentType     string  `json:"content_type,omitempty"`
	DownloadPath    string  `json:"download_path,omitempty"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// VideosGenerate runs the whole pipeline synchronously: the response arrives
// once the video is in the bucket or the run has failed. Callers should allow
// for the polling deadline.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, r, http.StatusBadRequest, codeBadRequest)
		return
	}
	ctx := history.WithCountry(r.Context(), middleware.CountryFromContext(r.Context()))
	run, err := a.Runner.Run(ctx, domain.GenerationRequest{
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     req.AspectRatio,
		Model:           req.Model,
	})
	if err != nil {
		status, code := statusForRunError(err)
		body := errorResponse{Error: errorBody{
			Code:    code,
			Message: message(middleware.LocaleFromContext(r.Context()), code),
			Detail:  err.Error(),
		}}
		if run != nil {
			body.Error.RunID = run.ID
		}
		a.json(w, status, body)
		return
	}
	a.json(w, http.StatusOK, toRunResponse(run))
}

// statusForRunError maps pipeline failures onto HTTP statuses. Bucket
// conflicts get their own code since they happen before any job exists.
func statusForRunError(err error) (int, string) {
	var conflictErr *domain.BucketConflictError
	if errors.As(err, &conflictErr) {
		return http.StatusConflict, codeBucketConflict
	}
	switch domain.ClassifyFailure(err) {
	case domain.FailureInvalidInput:
		return http.StatusUnprocessableEntity, codeInvalidInput
	case domain.FailureTimedOut:
		return http.StatusGatewayTimeout, codeTimedOut
	case domain.FailureJobFailed:
		return http.StatusBadGateway, codeJobFailed
	default:
		return http.StatusBadGateway, codeRetrieveFailed
	}
}

func toRunResponse(run *pipeline.Run) runResponse {
	resp := runResponse{
		ID:              run.ID,
		State:           string(run.State),
		OperationName:   run.OperationName,
		Prompt:          run.Request.Prompt,
		Model:           run.Request.Model,
		AspectRatio:     run.Request.AspectRatio,
		DurationSeconds: run.Request.DurationSeconds,
		ElapsedSeconds:  run.Duration().Seconds(),
	}
	if run.Artifact != nil {
		resp.ArtifactURI = run.Artifact.Ref.URI()
		resp.ArtifactBytes = run.Artifact.Size
		resp.ContentType = run.Artifact.ContentType
		resp.DownloadPath = "/v1/videos/download/" + run.Artifact.Ref.Object
	}
	return resp
}
