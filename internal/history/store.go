// Package history persists generation runs in Postgres and serves them back
// for the list, detail and stats endpoints.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/infra"
	"github.com/AppleLamps/gptveo/internal/pipeline"
	"github.com/AppleLamps/gptveo/internal/sqlinline"
)

type ctxKey int

const countryKey ctxKey = iota

// WithCountry tags the context with the requester's ISO country code so runs
// recorded downstream carry their origin.
func WithCountry(ctx context.Context, code string) context.Context {
	if code == "" {
		return ctx
	}
	return context.WithValue(ctx, countryKey, code)
}

// CountryFromContext returns the country code set by WithCountry, if any.
func CountryFromContext(ctx context.Context) string {
	if code, ok := ctx.Value(countryKey).(string); ok {
		return code
	}
	return ""
}

// Record is one persisted generation run.
type Record struct {
	ID              string
	Prompt          string
	Model           string
	AspectRatio     string
	DurationSeconds int
	OperationName   string
	Status          string
	FailureClass    string
	FailureMessage  string
	ArtifactURI     string
	ArtifactBytes   int64
	Country         string
	StartedAt       time.Time
	FinishedAt      *time.Time
}

// Summary aggregates runs within a trailing window.
type Summary struct {
	Total              int64
	Succeeded          int64
	Failed             int64
	TimedOut           int64
	TransportExhausted int64
	Running            int64
	AvgSuccessSeconds  float64
	ArtifactBytesTotal int64
}

// CountryCount is one row of the per-country breakdown.
type CountryCount struct {
	Country string
	Total   int64
}

// Store reads and writes generation history through the shared SQL runner.
type Store struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
}

// NewStore builds a Store on top of the given executor.
func NewStore(sql infra.SQLExecutor, logger zerolog.Logger) *Store {
	return &Store{sql: sql, logger: logger}
}

// RecordStart inserts a RUNNING row for a freshly submitted run.
func (s *Store) RecordStart(ctx context.Context, run *pipeline.Run) error {
	_, err := s.sql.Exec(ctx, sqlinline.QInsertGeneration,
		run.ID,
		run.Request.Prompt,
		run.Request.Model,
		run.Request.AspectRatio,
		run.Request.DurationSeconds,
		run.OperationName,
		statusForState(run.State),
		CountryFromContext(ctx),
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	return nil
}

// RecordFinish updates the row with the terminal state of the run.
func (s *Store) RecordFinish(ctx context.Context, run *pipeline.Run) error {
	artifactURI := ""
	var artifactBytes int64
	if run.Artifact != nil {
		artifactURI = run.Artifact.Ref.URI()
		artifactBytes = run.Artifact.Size
	}
	_, err := s.sql.Exec(ctx, sqlinline.QFinishGeneration,
		run.ID,
		statusForState(run.State),
		string(run.FailureClass),
		run.FailureMessage,
		artifactURI,
		artifactBytes,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	return nil
}

// Get loads a single run. Missing rows surface as pgx's no-rows error, which
// callers detect with infra.IsNoRows.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectGenerationByID, id)
	var rec Record
	if err := row.Scan(
		&rec.ID,
		&rec.Prompt,
		&rec.Model,
		&rec.AspectRatio,
		&rec.DurationSeconds,
		&rec.OperationName,
		&rec.Status,
		&rec.FailureClass,
		&rec.FailureMessage,
		&rec.ArtifactURI,
		&rec.ArtifactBytes,
		&rec.Country,
		&rec.StartedAt,
		&rec.FinishedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns runs ordered newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListGenerations, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.Prompt,
			&rec.Model,
			&rec.AspectRatio,
			&rec.DurationSeconds,
			&rec.OperationName,
			&rec.Status,
			&rec.FailureClass,
			&rec.FailureMessage,
			&rec.ArtifactURI,
			&rec.ArtifactBytes,
			&rec.Country,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}
	return records, nil
}

// Summary aggregates the trailing windowHours of runs.
func (s *Store) Summary(ctx context.Context, windowHours int) (*Summary, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	row := s.sql.QueryRow(ctx, sqlinline.QGenerationSummary, windowHours)
	var sum Summary
	if err := row.Scan(
		&sum.Total,
		&sum.Succeeded,
		&sum.Failed,
		&sum.TimedOut,
		&sum.TransportExhausted,
		&sum.Running,
		&sum.AvgSuccessSeconds,
		&sum.ArtifactBytesTotal,
	); err != nil {
		return nil, fmt.Errorf("history: summary: %w", err)
	}
	return &sum, nil
}

// TopCountries breaks the trailing window down by request origin.
func (s *Store) TopCountries(ctx context.Context, windowHours, limit int) ([]CountryCount, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.sql.Query(ctx, sqlinline.QGenerationsByCountry, windowHours, limit)
	if err != nil {
		return nil, fmt.Errorf("history: countries: %w", err)
	}
	defer rows.Close()

	var counts []CountryCount
	for rows.Next() {
		var cc CountryCount
		if err := rows.Scan(&cc.Country, &cc.Total); err != nil {
			return nil, fmt.Errorf("history: scan country: %w", err)
		}
		counts = append(counts, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate countries: %w", err)
	}
	return counts, nil
}

// statusForState maps in-flight states onto the single RUNNING status the
// table uses; terminal states are stored verbatim.
func statusForState(state domain.RunState) string {
	if state.IsTerminal() {
		return string(state)
	}
	return "RUNNING"
}

var _ pipeline.RunRecorder = (*Store)(nil)
