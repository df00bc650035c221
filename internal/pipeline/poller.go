// Package pipeline drives a video generation job from submission to a
// downloaded artifact.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/metrics"
)

// OperationFetcher retrieves the current state of a long-running operation.
type OperationFetcher interface {
	FetchOperation(ctx context.Context, operationName string) (*domain.Operation, error)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Fetcher looks up operation state. Required.
	Fetcher OperationFetcher
	// Interval between polls. Defaults to 10s.
	Interval time.Duration
	// Deadline bounds the total wall-clock wait. Defaults to 10min.
	Deadline time.Duration
	// MaxTransportRetries bounds consecutive fetch failures before the
	// poller gives up. The counter resets after any successful fetch.
	// Defaults to 3.
	MaxTransportRetries int
	Logger              zerolog.Logger
}

// Poller repeatedly fetches an operation until it completes, the deadline
// passes, or too many consecutive transport failures occur.
type Poller struct {
	fetcher             OperationFetcher
	interval            time.Duration
	deadline            time.Duration
	maxTransportRetries int
	logger              zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller validates the options and builds a Poller.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("pipeline: operation fetcher is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = 10 * time.Minute
	}
	retries := opts.MaxTransportRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 3
	}
	return &Poller{
		fetcher:             opts.Fetcher,
		interval:            interval,
		deadline:            deadline,
		maxTransportRetries: retries,
		logger:              opts.Logger,
		now:                 time.Now,
		sleep:               sleepContext,
	}, nil
}

// Wait polls the operation until it reports done and returns its final
// state. The returned operation may still carry a failure payload; callers
// inspect it via Locate. Wait returns a TimeoutError when the deadline would
// be exceeded and a PollError when transport failures exhaust the retry
// budget or the context ends.
func (p *Poller) Wait(ctx context.Context, operationName string) (*domain.Operation, error) {
	if operationName == "" {
		return nil, fmt.Errorf("pipeline: operation name is required")
	}

	start := p.now()
	attempts := 0
	transportFailures := 0

	for {
		attempts++
		op, err := p.fetcher.FetchOperation(ctx, operationName)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, &domain.PollError{OperationName: operationName, Attempts: attempts, Err: ctx.Err()}
			}
			transportFailures++
			metrics.RecordPoll("transport_error")
			p.logger.Warn().
				Err(err).
				Str("operation", operationName).
				Int("consecutive_failures", transportFailures).
				Msg("pipeline: poll failed")
			if transportFailures > p.maxTransportRetries {
				return nil, &domain.PollError{OperationName: operationName, Attempts: attempts, Err: err}
			}
		case op.Done:
			metrics.RecordPoll("done")
			p.logger.Info().
				Str("operation", operationName).
				Int("attempts", attempts).
				Bool("failed", op.Failed()).
				Msg("pipeline: operation finished")
			return op, nil
		default:
			transportFailures = 0
			metrics.RecordPoll("pending")
		}

		waited := p.now().Sub(start)
		if waited+p.interval >= p.deadline {
			p.logger.Warn().
				Str("operation", operationName).
				Dur("waited", waited).
				Int("attempts", attempts).
				Msg("pipeline: gave up waiting")
			return nil, &domain.TimeoutError{OperationName: operationName, Waited: waited}
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, &domain.PollError{OperationName: operationName, Attempts: attempts, Err: err}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
