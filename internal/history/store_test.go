package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/infra"
	"github.com/AppleLamps/gptveo/internal/pipeline"
	"github.com/AppleLamps/gptveo/internal/sqlinline"
)

type sqlCall struct {
	query string
	args  []any
}

type stubExecutor struct {
	calls    []sqlCall
	execErr  error
	row      pgx.Row
	rows     pgx.Rows
	queryErr error
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, sqlCall{query: query, args: args})
	return pgconn.CommandTag{}, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, sqlCall{query: query, args: args})
	return s.row
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, sqlCall{query: query, args: args})
	return s.rows, s.queryErr
}

type valueRow struct {
	values []any
	err    error
}

func (r valueRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignAll(dest, r.values)
}

type valueRows struct {
	data [][]any
	idx  int
}

func (r *valueRows) Close()                                       {}
func (r *valueRows) Err() error                                   { return nil }
func (r *valueRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *valueRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *valueRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}
func (r *valueRows) Scan(dest ...any) error {
	return assignAll(dest, r.data[r.idx-1])
}
func (r *valueRows) Values() ([]any, error) { return nil, fmt.Errorf("not supported") }
func (r *valueRows) RawValues() [][]byte    { return nil }
func (r *valueRows) Conn() *pgx.Conn        { return nil }

func assignAll(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d dest, %d values", len(dest), len(values))
	}
	for i, v := range values {
		if err := assign(dest[i], v); err != nil {
			return fmt.Errorf("scan dest %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, val any) error {
	switch d := dest.(type) {
	case *string:
		*d = val.(string)
	case *int:
		*d = val.(int)
	case *int64:
		switch v := val.(type) {
		case int64:
			*d = v
		case int:
			*d = int64(v)
		default:
			return fmt.Errorf("cannot assign %T to *int64", val)
		}
	case *float64:
		*d = val.(float64)
	case *time.Time:
		*d = val.(time.Time)
	case **time.Time:
		if val == nil {
			*d = nil
			return nil
		}
		t := val.(time.Time)
		*d = &t
	default:
		return fmt.Errorf("unsupported dest %T", dest)
	}
	return nil
}

func testRun() *pipeline.Run {
	return &pipeline.Run{
		ID: "6f1d9aa2-9f1e-4f7a-b9d3-0a9f6a1f2b3c",
		Request: domain.GenerationRequest{
			Prompt:          "a red fox at dawn",
			DurationSeconds: 5,
			AspectRatio:     "16:9",
			Model:           domain.DefaultModel,
		},
		OperationName: "projects/p/operations/op-1",
		State:         domain.RunStateSubmitted,
		StartedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStoreRecordStart(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec, zerolog.Nop())

	ctx := WithCountry(context.Background(), "ID")
	if err := store.RecordStart(ctx, testRun()); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(exec.calls))
	}
	call := exec.calls[0]
	if call.query != sqlinline.QInsertGeneration {
		t.Error("unexpected query")
	}
	if got := call.args[6]; got != "RUNNING" {
		t.Errorf("status arg = %v, want RUNNING", got)
	}
	if got := call.args[7]; got != "ID" {
		t.Errorf("country arg = %v, want ID", got)
	}
}

func TestStoreRecordFinishSuccess(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec, zerolog.Nop())

	run := testRun()
	run.State = domain.RunStateSucceeded
	run.FinishedAt = run.StartedAt.Add(90 * time.Second)
	run.Artifact = &domain.Artifact{
		Ref:  domain.ArtifactRef{Bucket: "my-videos", Object: "veo_outputs/clip.mp4"},
		Size: 1024,
	}

	if err := store.RecordFinish(context.Background(), run); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	call := exec.calls[0]
	if call.query != sqlinline.QFinishGeneration {
		t.Error("unexpected query")
	}
	if got := call.args[1]; got != "SUCCEEDED" {
		t.Errorf("status arg = %v", got)
	}
	if got := call.args[2]; got != "" {
		t.Errorf("failure class arg = %v, want empty", got)
	}
	if got := call.args[4]; got != "gs://my-videos/veo_outputs/clip.mp4" {
		t.Errorf("artifact uri arg = %v", got)
	}
	if got := call.args[5]; got != int64(1024) {
		t.Errorf("artifact bytes arg = %v", got)
	}
}

func TestStoreRecordFinishFailure(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec, zerolog.Nop())

	run := testRun()
	run.State = domain.RunStateTimedOut
	run.FailureClass = domain.FailureTimedOut
	run.FailureMessage = "timeout: waited 600s"
	run.FinishedAt = run.StartedAt.Add(600 * time.Second)

	if err := store.RecordFinish(context.Background(), run); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	call := exec.calls[0]
	if got := call.args[1]; got != "TIMED_OUT" {
		t.Errorf("status arg = %v", got)
	}
	if got := call.args[2]; got != "timed_out" {
		t.Errorf("failure class arg = %v", got)
	}
	if got := call.args[3]; got != "timeout: waited 600s" {
		t.Errorf("failure message arg = %v", got)
	}
}

func TestStoreGet(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(75 * time.Second)
	exec := &stubExecutor{row: valueRow{values: []any{
		"run-1", "a red fox at dawn", domain.DefaultModel, "16:9", 5,
		"projects/p/operations/op-1", "SUCCEEDED", "", "",
		"gs://my-videos/veo_outputs/clip.mp4", int64(1024), "ID",
		started, finished,
	}}}
	store := NewStore(exec, zerolog.Nop())

	rec, err := store.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "SUCCEEDED" || rec.ArtifactBytes != 1024 || rec.Country != "ID" {
		t.Errorf("record = %+v", rec)
	}
	if rec.FinishedAt == nil || !rec.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v", rec.FinishedAt)
	}
}

func TestStoreGetRunning(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exec := &stubExecutor{row: valueRow{values: []any{
		"run-1", "fox", domain.DefaultModel, "16:9", 5,
		"projects/p/operations/op-1", "RUNNING", "", "", "", int64(0), "",
		started, nil,
	}}}
	store := NewStore(exec, zerolog.Nop())

	rec, err := store.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil for running row", rec.FinishedAt)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	exec := &stubExecutor{row: valueRow{err: pgx.ErrNoRows}}
	store := NewStore(exec, zerolog.Nop())

	_, err := store.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !infra.IsNoRows(err) {
		t.Errorf("error = %v, want no-rows", err)
	}
}

func TestStoreList(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exec := &stubExecutor{rows: &valueRows{data: [][]any{
		{"run-2", "fox", domain.DefaultModel, "16:9", 5, "op-2", "RUNNING", "", "", "", int64(0), "", started.Add(time.Hour), nil},
		{"run-1", "owl", domain.DefaultModel, "9:16", 8, "op-1", "SUCCEEDED", "", "", "gs://b/o.mp4", int64(9), "US", started, started.Add(time.Minute)},
	}}}
	store := NewStore(exec, zerolog.Nop())

	records, err := store.List(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].ID != "run-2" || records[1].Country != "US" {
		t.Errorf("records = %+v", records)
	}

	call := exec.calls[0]
	if call.query != sqlinline.QListGenerations {
		t.Error("unexpected query")
	}
	if call.args[0] != 20 || call.args[1] != 0 {
		t.Errorf("args = %v", call.args)
	}
}

func TestStoreSummary(t *testing.T) {
	exec := &stubExecutor{row: valueRow{values: []any{
		int64(10), int64(7), int64(1), int64(1), int64(0), int64(1),
		72.5, int64(1 << 20),
	}}}
	store := NewStore(exec, zerolog.Nop())

	sum, err := store.Summary(context.Background(), 24)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 10 || sum.Succeeded != 7 || sum.AvgSuccessSeconds != 72.5 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestStoreTopCountries(t *testing.T) {
	exec := &stubExecutor{rows: &valueRows{data: [][]any{
		{"ID", int64(6)},
		{"US", int64(3)},
	}}}
	store := NewStore(exec, zerolog.Nop())

	counts, err := store.TopCountries(context.Background(), 24, 10)
	if err != nil {
		t.Fatalf("TopCountries: %v", err)
	}
	if len(counts) != 2 || counts[0].Country != "ID" || counts[0].Total != 6 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestCountryContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := CountryFromContext(ctx); got != "" {
		t.Errorf("empty context country = %q", got)
	}
	ctx = WithCountry(ctx, "SG")
	if got := CountryFromContext(ctx); got != "SG" {
		t.Errorf("country = %q, want SG", got)
	}
}
