// Package veo submits video generation jobs to Vertex AI and fetches the
// state of the resulting long-running operations.
package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
)

// TokenSource supplies bearer tokens for outgoing API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Options configures the Vertex AI client.
type Options struct {
	// ProjectID is the Google Cloud project that hosts the model. Required.
	ProjectID string
	// Location is the Vertex AI region, e.g. "us-central1". Required.
	Location string
	// Model is the publisher model ID. Defaults to domain.DefaultModel.
	Model string
	// BaseURL overrides the regional API endpoint. Mostly for tests.
	BaseURL string
	// Tokens supplies bearer tokens. Required.
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls the predictLongRunning and fetchPredictOperation methods of a
// Veo publisher model.
type Client struct {
	projectID string
	location  string
	model     string
	baseURL   string
	tokens    TokenSource
	client    *http.Client
	logger    zerolog.Logger
}

// NewClient validates the options and builds a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("veo: project id is required")
	}
	if opts.Location == "" {
		return nil, fmt.Errorf("veo: location is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("veo: token source is required")
	}
	model := opts.Model
	if model == "" {
		model = domain.DefaultModel
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", opts.Location)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		projectID: opts.ProjectID,
		location:  opts.Location,
		model:     model,
		baseURL:   baseURL,
		tokens:    opts.Tokens,
		client:    client,
		logger:    opts.Logger,
	}, nil
}

func (c *Client) modelPath(model string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		c.projectID, c.location, model)
}

// operationModelPath extracts the model resource path embedded in a full
// operation name. Bare names return "".
func operationModelPath(name string) string {
	if idx := strings.Index(name, "/operations/"); idx > 0 {
		return name[:idx]
	}
	return ""
}

// SubmitJob validates the request and starts an asynchronous generation job.
// It returns the server-assigned operation name used for polling. A model set
// on the request overrides the one the client was configured with.
func (c *Client) SubmitJob(ctx context.Context, req domain.GenerationRequest, storageURI string) (string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}
	if storageURI == "" {
		return "", &domain.ValidationError{Field: "storage_uri", Reason: "must not be empty"}
	}

	payload := predictRequest{
		Instances: []instance{{Prompt: req.Prompt}},
		Parameters: parameters{
			AspectRatio:      req.AspectRatio,
			DurationSeconds:  req.DurationSeconds,
			PersonGeneration: "allow",
			SampleCount:      1,
			StorageURI:       storageURI,
		},
	}

	url := fmt.Sprintf("%s/%s:predictLongRunning", c.baseURL, c.modelPath(model))
	body, err := c.post(ctx, url, payload, true)
	if err != nil {
		return "", err
	}

	var envelope operationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("veo: decode submit response: %w", err)
	}
	if envelope.Name == "" {
		return "", &domain.SubmissionError{
			StatusCode: http.StatusOK,
			Status:     "OK",
			Message:    "response missing operation name",
		}
	}

	c.logger.Info().
		Str("operation", envelope.Name).
		Str("model", model).
		Msg("veo: job submitted")
	return envelope.Name, nil
}

// FetchOperation retrieves the current state of a long-running operation.
// Transport and HTTP-level failures come back as plain errors so the caller
// can decide whether to retry.
func (c *Client) FetchOperation(ctx context.Context, operationName string) (*domain.Operation, error) {
	if operationName == "" {
		return nil, fmt.Errorf("veo: operation name is required")
	}

	// fetchPredictOperation must be called on the model that owns the
	// operation. Full operation names embed that path; bare names fall back
	// to the configured model.
	path := operationModelPath(operationName)
	if path == "" {
		path = c.modelPath(c.model)
	}
	url := fmt.Sprintf("%s/%s:fetchPredictOperation", c.baseURL, path)
	body, err := c.post(ctx, url, fetchRequest{OperationName: operationName}, false)
	if err != nil {
		return nil, err
	}

	var envelope operationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("veo: decode operation: %w", err)
	}

	op := &domain.Operation{
		Name: envelope.Name,
		Done: envelope.Done,
	}
	if op.Name == "" {
		op.Name = operationName
	}
	if envelope.Error != nil {
		op.Failure = &domain.OperationFailure{
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
		}
	}
	if envelope.Response != nil {
		result := &domain.OperationResult{}
		for _, v := range envelope.Response.Videos {
			result.Videos = append(result.Videos, domain.OperationVideo{
				GCSURI:   v.GCSURI,
				MimeType: v.MimeType,
			})
		}
		op.Result = result
	}
	return op, nil
}

// post sends a JSON payload with a bearer token and returns the response
// body. When submit is true, HTTP errors are mapped to SubmissionError.
func (c *Client) post(ctx context.Context, url string, payload any, submit bool) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("veo: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("veo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("veo: call api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("veo: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status, message := parseGoogleError(body)
		if status == "" {
			status = resp.Status
		}
		if submit {
			return nil, &domain.SubmissionError{
				StatusCode: resp.StatusCode,
				Status:     status,
				Message:    message,
			}
		}
		return nil, fmt.Errorf("veo: api returned %d (%s): %s", resp.StatusCode, status, message)
	}
	return body, nil
}

// parseGoogleError extracts status and message from the standard Google API
// error envelope. Unparsable bodies yield the raw text as the message.
func parseGoogleError(body []byte) (status, message string) {
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Status, envelope.Error.Message
	}
	text := string(bytes.TrimSpace(body))
	if len(text) > 300 {
		text = text[:300] + "..."
	}
	return "", text
}

type instance struct {
	Prompt string `json:"prompt"`
}

type parameters struct {
	AspectRatio      string `json:"aspectRatio,omitempty"`
	DurationSeconds  int    `json:"durationSeconds,omitempty"`
	PersonGeneration string `json:"personGeneration,omitempty"`
	SampleCount      int    `json:"sampleCount,omitempty"`
	StorageURI       string `json:"storageUri,omitempty"`
}

type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type fetchRequest struct {
	OperationName string `json:"operationName"`
}

type operationEnvelope struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Response *operationResponse `json:"response,omitempty"`
	Error    *operationError    `json:"error,omitempty"`
}

type operationResponse struct {
	Videos []operationVideo `json:"videos"`
}

type operationVideo struct {
	GCSURI   string `json:"gcsUri"`
	MimeType string `json:"mimeType"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
