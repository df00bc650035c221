package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/metrics"
)

// Submitter starts an asynchronous generation job and returns its operation
// name.
type Submitter interface {
	SubmitJob(ctx context.Context, req domain.GenerationRequest, storageURI string) (string, error)
}

// OperationWaiter blocks until an operation completes or polling gives up.
type OperationWaiter interface {
	Wait(ctx context.Context, operationName string) (*domain.Operation, error)
}

// BucketEnsurer guarantees the output bucket exists.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

// ArtifactFetcher downloads a generated artifact.
type ArtifactFetcher interface {
	FetchObject(ctx context.Context, ref domain.ArtifactRef) (*domain.Artifact, error)
}

// RunRecorder persists run history. Recording failures are logged and never
// abort a run; losing a history row is better than losing a finished video.
type RunRecorder interface {
	RecordStart(ctx context.Context, run *Run) error
	RecordFinish(ctx context.Context, run *Run) error
}

// Run captures one trip through the pipeline.
type Run struct {
	ID            string
	Request       domain.GenerationRequest
	OperationName string
	State         domain.RunState
	Artifact      *domain.Artifact

	// FailureClass and FailureMessage are set when the run ends in an error.
	FailureClass   domain.FailureClass
	FailureMessage string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock time the run took so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Submitter Submitter
	Waiter    OperationWaiter
	Buckets   BucketEnsurer
	Artifacts ArtifactFetcher
	// Bucket receives generated videos. Required.
	Bucket string
	// OutputPrefix is the object prefix inside the bucket, e.g. "veo_outputs".
	OutputPrefix string
	// Model fills requests that don't name one. Empty falls back to
	// domain.DefaultModel.
	Model string
	// Recorder is optional run-history persistence.
	Recorder RunRecorder
	Logger   zerolog.Logger
}

// Runner drives a generation request through bucket setup, job submission,
// operation polling and artifact retrieval.
type Runner struct {
	submitter    Submitter
	waiter       OperationWaiter
	buckets      BucketEnsurer
	artifacts    ArtifactFetcher
	bucket       string
	outputPrefix string
	model        string
	recorder     RunRecorder
	logger       zerolog.Logger

	now func() time.Time
}

// NewRunner validates the options and builds a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Submitter == nil {
		return nil, fmt.Errorf("pipeline: submitter is required")
	}
	if opts.Waiter == nil {
		return nil, fmt.Errorf("pipeline: operation waiter is required")
	}
	if opts.Buckets == nil {
		return nil, fmt.Errorf("pipeline: bucket ensurer is required")
	}
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("pipeline: artifact fetcher is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("pipeline: bucket is required")
	}
	return &Runner{
		submitter:    opts.Submitter,
		waiter:       opts.Waiter,
		buckets:      opts.Buckets,
		artifacts:    opts.Artifacts,
		bucket:       opts.Bucket,
		outputPrefix: strings.Trim(opts.OutputPrefix, "/"),
		model:        opts.Model,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		now:          time.Now,
	}, nil
}

// StorageURI returns the gs:// destination passed to the video backend. It
// always ends with a slash so the backend treats it as a folder.
func (r *Runner) StorageURI() string {
	if r.outputPrefix == "" {
		return fmt.Sprintf("gs://%s/", r.bucket)
	}
	return fmt.Sprintf("gs://%s/%s/", r.bucket, r.outputPrefix)
}

// Run executes the full pipeline for one request. The returned Run carries
// the terminal state even when an error is returned; a nil Run means the
// request never made it past validation.
func (r *Runner) Run(ctx context.Context, req domain.GenerationRequest) (*Run, error) {
	if req.Model == "" {
		req.Model = r.model
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Request:   req,
		State:     domain.RunStateSubmitted,
		StartedAt: r.now(),
	}
	r.logger.Info().
		Str("run_id", run.ID).
		Str("model", req.Model).
		Int("duration_seconds", req.DurationSeconds).
		Str("aspect_ratio", req.AspectRatio).
		Msg("pipeline: run started")

	if err := r.buckets.EnsureBucket(ctx, r.bucket); err != nil {
		return r.finish(ctx, run, domain.RunStateFailed, err)
	}

	operationName, err := r.submitter.SubmitJob(ctx, req, r.StorageURI())
	if err != nil {
		return r.finish(ctx, run, domain.RunStateFailed, err)
	}
	run.OperationName = operationName
	r.recordStart(ctx, run)

	run.State = domain.RunStatePolling
	op, err := r.waiter.Wait(ctx, operationName)
	if err != nil {
		return r.finish(ctx, run, stateForPollFailure(err), err)
	}

	ref, err := Locate(op, r.bucket)
	if err != nil {
		return r.finish(ctx, run, domain.RunStateFailed, err)
	}

	artifact, err := r.artifacts.FetchObject(ctx, ref)
	if err != nil {
		return r.finish(ctx, run, domain.RunStateFailed, err)
	}
	run.Artifact = artifact

	return r.finish(ctx, run, domain.RunStateSucceeded, nil)
}

func stateForPollFailure(err error) domain.RunState {
	var timeoutErr *domain.TimeoutError
	if errors.As(err, &timeoutErr) {
		return domain.RunStateTimedOut
	}
	var pollErr *domain.PollError
	if errors.As(err, &pollErr) {
		return domain.RunStateTransportExhausted
	}
	return domain.RunStateFailed
}

func (r *Runner) finish(ctx context.Context, run *Run, state domain.RunState, err error) (*Run, error) {
	run.State = state
	run.FinishedAt = r.now()
	if err != nil {
		run.FailureClass = domain.ClassifyFailure(err)
		run.FailureMessage = err.Error()
	}
	metrics.RecordGeneration(strings.ToLower(string(state)), run.Duration())

	event := r.logger.Info()
	if err != nil {
		event = r.logger.Error().Err(err)
	}
	event.
		Str("run_id", run.ID).
		Str("operation", run.OperationName).
		Str("state", string(state)).
		Dur("took", run.Duration()).
		Msg("pipeline: run finished")

	if run.OperationName != "" {
		r.recordFinish(ctx, run)
	}
	return run, err
}

func (r *Runner) recordStart(ctx context.Context, run *Run) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordStart(ctx, run); err != nil {
		r.logger.Error().Err(err).Str("run_id", run.ID).Msg("pipeline: record start failed")
	}
}

func (r *Runner) recordFinish(ctx context.Context, run *Run) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordFinish(ctx, run); err != nil {
		r.logger.Error().Err(err).Str("run_id", run.ID).Msg("pipeline: record finish failed")
	}
}
