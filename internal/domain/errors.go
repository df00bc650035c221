package domain

import (
	"errors"
	"fmt"
	"time"
)

// AuthError reports a malformed credential or a rejected token exchange.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError reports a generation request rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validate: " + e.Reason
	}
	return fmt.Sprintf("validate: %s: %s", e.Field, e.Reason)
}

// SubmissionError reports a job submission the backend refused. StatusCode is
// the transport status, Status the backend's status token when one was decoded.
type SubmissionError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *SubmissionError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("submit: status %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("submit: status %d: %s", e.StatusCode, e.Message)
}

// PollError reports that the transport-failure budget was exhausted while the
// operation was still being polled. It is distinct from a backend-reported
// job failure, which is a valid terminal state.
type PollError struct {
	OperationName string
	Attempts      int
	Err           error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll: %s: transport exhausted after %d attempts: %v", e.OperationName, e.Attempts, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// TimeoutError reports that the wall-clock deadline passed while the backend
// still considered the job running.
type TimeoutError struct {
	OperationName string
	Waited        time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("poll: %s: deadline exceeded after %s", e.OperationName, e.Waited)
}

// JobFailedError carries a backend-reported job failure from a terminal
// operation payload.
type JobFailedError struct {
	OperationName string
	Code          int
	Message       string
}

func (e *JobFailedError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("job failed: %s: %s (code %d)", e.OperationName, e.Message, e.Code)
	}
	return fmt.Sprintf("job failed: %s: %s", e.OperationName, e.Message)
}

// MalformedResultError reports a terminal success payload without a usable
// storage location, or one pointing outside the managed bucket.
type MalformedResultError struct {
	OperationName string
	Reason        string
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("locate: %s: %s", e.OperationName, e.Reason)
}

// BucketConflictError reports a bucket that exists but is not controlled by
// this pipeline's project.
type BucketConflictError struct {
	Bucket string
	Reason string
}

func (e *BucketConflictError) Error() string {
	return fmt.Sprintf("bucket %s: %s", e.Bucket, e.Reason)
}

// NotFoundError reports an object that stayed absent through the bounded
// eventual-consistency retry window.
type NotFoundError struct {
	Ref      ArtifactRef
	Attempts int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fetch: %s not found after %d attempts", e.Ref.URI(), e.Attempts)
}

// InvalidArtifactError reports a downloaded object that failed the size or
// content-type checks.
type InvalidArtifactError struct {
	Ref         ArtifactRef
	ContentType string
	Size        int64
	Reason      string
}

func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %s (type %q, %d bytes)", e.Ref.URI(), e.Reason, e.ContentType, e.Size)
}

// ListError reports a failed library listing. No partial results accompany it.
type ListError struct {
	Bucket string
	Prefix string
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list %s/%s: %v", e.Bucket, e.Prefix, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// FailureClass buckets pipeline errors by the user action they call for:
// rephrase the input, retry the job, wait longer, or check back for the
// artifact later.
type FailureClass string

const (
	FailureInvalidInput FailureClass = "invalid_input"
	FailureJobFailed    FailureClass = "job_failed"
	FailureTimedOut     FailureClass = "timed_out"
	FailureRetrieve     FailureClass = "retrieve_failed"
)

// ClassifyFailure maps any pipeline error onto its user-visible class.
// Submission and auth failures read as "the job failed" since the job never
// ran; everything on the storage or transport side reads as "could not
// retrieve the result".
func ClassifyFailure(err error) FailureClass {
	var (
		validationErr *ValidationError
		jobErr        *JobFailedError
		submitErr     *SubmissionError
		authErr       *AuthError
		timeoutErr    *TimeoutError
	)
	switch {
	case errors.As(err, &validationErr):
		return FailureInvalidInput
	case errors.As(err, &jobErr), errors.As(err, &submitErr), errors.As(err, &authErr):
		return FailureJobFailed
	case errors.As(err, &timeoutErr):
		return FailureTimedOut
	default:
		return FailureRetrieve
	}
}
