package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
)

type stubSubmitter struct {
	name    string
	err     error
	calls   int
	lastReq domain.GenerationRequest
	lastURI string
}

func (s *stubSubmitter) SubmitJob(ctx context.Context, req domain.GenerationRequest, storageURI string) (string, error) {
	s.calls++
	s.lastReq = req
	s.lastURI = storageURI
	return s.name, s.err
}

type stubWaiter struct {
	op    *domain.Operation
	err   error
	calls int
}

func (s *stubWaiter) Wait(ctx context.Context, name string) (*domain.Operation, error) {
	s.calls++
	return s.op, s.err
}

type stubEnsurer struct {
	err        error
	calls      int
	lastBucket string
}

func (s *stubEnsurer) EnsureBucket(ctx context.Context, bucket string) error {
	s.calls++
	s.lastBucket = bucket
	return s.err
}

type stubArtifacts struct {
	artifact *domain.Artifact
	err      error
	calls    int
	lastRef  domain.ArtifactRef
}

func (s *stubArtifacts) FetchObject(ctx context.Context, ref domain.ArtifactRef) (*domain.Artifact, error) {
	s.calls++
	s.lastRef = ref
	return s.artifact, s.err
}

type stubRecorder struct {
	startErr     error
	finishErr    error
	startStates  []domain.RunState
	finishStates []domain.RunState
}

func (s *stubRecorder) RecordStart(ctx context.Context, run *Run) error {
	s.startStates = append(s.startStates, run.State)
	return s.startErr
}

func (s *stubRecorder) RecordFinish(ctx context.Context, run *Run) error {
	s.finishStates = append(s.finishStates, run.State)
	return s.finishErr
}

type runnerFixture struct {
	submitter *stubSubmitter
	waiter    *stubWaiter
	ensurer   *stubEnsurer
	artifacts *stubArtifacts
	recorder  *stubRecorder
	runner    *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		submitter: &stubSubmitter{name: "projects/p/operations/op-1"},
		waiter: &stubWaiter{op: &domain.Operation{
			Name: "projects/p/operations/op-1",
			Done: true,
			Result: &domain.OperationResult{
				Videos: []domain.OperationVideo{{GCSURI: "gs://my-videos/veo_outputs/clip.mp4", MimeType: "video/mp4"}},
			},
		}},
		ensurer: &stubEnsurer{},
		artifacts: &stubArtifacts{artifact: &domain.Artifact{
			Ref:         domain.ArtifactRef{Bucket: "my-videos", Object: "veo_outputs/clip.mp4"},
			Data:        []byte("video"),
			ContentType: "video/mp4",
			Size:        5,
		}},
		recorder: &stubRecorder{},
	}

	runner, err := NewRunner(RunnerOptions{
		Submitter:    f.submitter,
		Waiter:       f.waiter,
		Buckets:      f.ensurer,
		Artifacts:    f.artifacts,
		Bucket:       "my-videos",
		OutputPrefix: "veo_outputs",
		Recorder:     f.recorder,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	f.runner = runner
	return f
}

func TestRunnerHappyPath(t *testing.T) {
	f := newRunnerFixture(t)

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "a red fox at dawn"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.State != domain.RunStateSucceeded {
		t.Errorf("State = %q, want SUCCEEDED", run.State)
	}
	if run.ID == "" {
		t.Error("run ID is empty")
	}
	if run.OperationName != "projects/p/operations/op-1" {
		t.Errorf("OperationName = %q", run.OperationName)
	}
	if run.Artifact == nil || string(run.Artifact.Data) != "video" {
		t.Error("artifact not attached to run")
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Error("FinishedAt precedes StartedAt")
	}

	if f.ensurer.calls != 1 || f.ensurer.lastBucket != "my-videos" {
		t.Errorf("ensure calls = %d bucket = %q", f.ensurer.calls, f.ensurer.lastBucket)
	}
	if f.submitter.lastURI != "gs://my-videos/veo_outputs/" {
		t.Errorf("storage uri = %q", f.submitter.lastURI)
	}
	if f.submitter.lastReq.DurationSeconds != domain.DefaultDurationSeconds {
		t.Errorf("request not normalized before submit: %+v", f.submitter.lastReq)
	}
	if f.submitter.lastReq.Model != domain.DefaultModel {
		t.Errorf("Model = %q, want default", f.submitter.lastReq.Model)
	}
	if f.artifacts.lastRef.Object != "veo_outputs/clip.mp4" {
		t.Errorf("fetched ref = %+v", f.artifacts.lastRef)
	}

	if len(f.recorder.startStates) != 1 || f.recorder.startStates[0] != domain.RunStateSubmitted {
		t.Errorf("start states = %v", f.recorder.startStates)
	}
	if len(f.recorder.finishStates) != 1 || f.recorder.finishStates[0] != domain.RunStateSucceeded {
		t.Errorf("finish states = %v", f.recorder.finishStates)
	}
}

func TestRunnerFillsConfiguredModel(t *testing.T) {
	f := newRunnerFixture(t)
	runner, err := NewRunner(RunnerOptions{
		Submitter:    f.submitter,
		Waiter:       f.waiter,
		Buckets:      f.ensurer,
		Artifacts:    f.artifacts,
		Bucket:       "my-videos",
		OutputPrefix: "veo_outputs",
		Model:        "veo-3.0-generate-preview",
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if _, err := runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.submitter.lastReq.Model != "veo-3.0-generate-preview" {
		t.Errorf("Model = %q, want configured model", f.submitter.lastReq.Model)
	}

	if _, err := runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox", Model: "veo-2.0-generate-001"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.submitter.lastReq.Model != "veo-2.0-generate-001" {
		t.Errorf("Model = %q, want request model kept", f.submitter.lastReq.Model)
	}
}

func TestRunnerValidationFailureShortCircuits(t *testing.T) {
	f := newRunnerFixture(t)

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "ok", DurationSeconds: 99})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *domain.ValidationError", err)
	}
	if run != nil {
		t.Error("run returned for invalid request")
	}
	if f.ensurer.calls != 0 || f.submitter.calls != 0 {
		t.Error("pipeline touched collaborators for invalid request")
	}
}

func TestRunnerBucketConflictAbortsBeforeSubmit(t *testing.T) {
	f := newRunnerFixture(t)
	f.ensurer.err = &domain.BucketConflictError{Bucket: "my-videos", Reason: "name already taken"}

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"})
	var conflict *domain.BucketConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *domain.BucketConflictError", err)
	}
	if f.submitter.calls != 0 {
		t.Error("job submitted despite bucket conflict")
	}
	if run.State != domain.RunStateFailed {
		t.Errorf("State = %q, want FAILED", run.State)
	}
	if len(f.recorder.startStates) != 0 || len(f.recorder.finishStates) != 0 {
		t.Error("history recorded for a run that never submitted")
	}
}

func TestRunnerSubmissionFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.submitter.name = ""
	f.submitter.err = &domain.SubmissionError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"})
	var subErr *domain.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("error = %v, want *domain.SubmissionError", err)
	}
	if run.State != domain.RunStateFailed {
		t.Errorf("State = %q, want FAILED", run.State)
	}
	if f.waiter.calls != 0 {
		t.Error("poller invoked after failed submission")
	}
}

func TestRunnerTimeout(t *testing.T) {
	f := newRunnerFixture(t)
	f.waiter.op = nil
	f.waiter.err = &domain.TimeoutError{OperationName: "op-1", Waited: 600}

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"})
	var timeoutErr *domain.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want *domain.TimeoutError", err)
	}
	if run.State != domain.RunStateTimedOut {
		t.Errorf("State = %q, want TIMED_OUT", run.State)
	}
	if run.FailureClass != domain.FailureTimedOut {
		t.Errorf("FailureClass = %q, want %q", run.FailureClass, domain.FailureTimedOut)
	}
	if run.FailureMessage == "" {
		t.Error("FailureMessage is empty")
	}
	if len(f.recorder.finishStates) != 1 || f.recorder.finishStates[0] != domain.RunStateTimedOut {
		t.Errorf("finish states = %v", f.recorder.finishStates)
	}
}

func TestRunnerTransportExhausted(t *testing.T) {
	f := newRunnerFixture(t)
	f.waiter.op = nil
	f.waiter.err = &domain.PollError{OperationName: "op-1", Attempts: 4, Err: fmt.Errorf("connection reset")}

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"})
	var pollErr *domain.PollError
	if !errors.As(err, &pollErr) {
		t.Fatalf("error = %v, want *domain.PollError", err)
	}
	if run.State != domain.RunStateTransportExhausted {
		t.Errorf("State = %q, want TRANSPORT_EXHAUSTED", run.State)
	}
}

func TestRunnerJobFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.waiter.op = &domain.Operation{
		Name:    "op-1",
		Done:    true,
		Failure: &domain.OperationFailure{Code: 3, Message: "prompt blocked"},
	}

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"})
	var jobErr *domain.JobFailedError
	if !errors.As(err, &jobErr) {
		t.Fatalf("error = %v, want *domain.JobFailedError", err)
	}
	if run.State != domain.RunStateFailed {
		t.Errorf("State = %q, want FAILED", run.State)
	}
	if f.artifacts.calls != 0 {
		t.Error("artifact fetched for failed job")
	}
}

func TestRunnerArtifactNotFound(t *testing.T) {
	f := newRunnerFixture(t)
	f.artifacts.artifact = nil
	f.artifacts.err = &domain.NotFoundError{
		Ref:      domain.ArtifactRef{Bucket: "my-videos", Object: "veo_outputs/clip.mp4"},
		Attempts: 3,
	}

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"})
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *domain.NotFoundError", err)
	}
	if run.State != domain.RunStateFailed {
		t.Errorf("State = %q, want FAILED", run.State)
	}
}

func TestRunnerRecorderFailuresDoNotAbort(t *testing.T) {
	f := newRunnerFixture(t)
	f.recorder.startErr = fmt.Errorf("db down")
	f.recorder.finishErr = fmt.Errorf("db down")

	run, err := f.runner.Run(context.Background(), domain.GenerationRequest{Prompt: "fox"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.State != domain.RunStateSucceeded {
		t.Errorf("State = %q, want SUCCEEDED", run.State)
	}
}

func TestRunnerStorageURIWithoutPrefix(t *testing.T) {
	f := newRunnerFixture(t)
	runner, err := NewRunner(RunnerOptions{
		Submitter: f.submitter,
		Waiter:    f.waiter,
		Buckets:   f.ensurer,
		Artifacts: f.artifacts,
		Bucket:    "my-videos",
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if got := runner.StorageURI(); got != "gs://my-videos/" {
		t.Errorf("StorageURI = %q", got)
	}
}
