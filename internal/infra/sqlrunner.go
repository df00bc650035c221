package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface the history store depends on. SQLRunner
// implements it over a pgx pool; store tests implement it with canned rows.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// Every inline statement opens with a `--sql <uuid>` line. The marker, not
// the statement text, is what reaches the logs, so queries stay traceable
// without echoing prompt values; internal/tools/sqllint enforces presence
// and uniqueness.
var sqlMarker = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner executes marked statements against Postgres and logs each one by
// its marker id with timing.
type SQLRunner struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{pool: pool, log: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	id, stmt, err := splitMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		r.log.Error().Err(err).Str("sql_id", id).Msg("sql exec failed")
		return tag, err
	}
	r.log.Debug().
		Str("sql_id", id).
		Int64("rows", tag.RowsAffected()).
		Dur("took", time.Since(start)).
		Msg("sql exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	id, stmt, err := splitMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	r.log.Debug().Str("sql_id", id).Msg("sql query row")
	return trackedRow{row: r.pool.QueryRow(ctx, stmt, args...), log: r.log, id: id}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	id, stmt, err := splitMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		r.log.Error().Err(err).Str("sql_id", id).Msg("sql query failed")
		return nil, err
	}
	return trackedRows{Rows: rows, log: r.log, id: id, start: start}, nil
}

// trackedRow logs scan failures under the statement's marker id. No-rows is
// an expected outcome, not an error worth a log line.
type trackedRow struct {
	row pgx.Row
	log zerolog.Logger
	id  string
}

func (t trackedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		t.log.Error().Err(err).Str("sql_id", t.id).Msg("sql scan failed")
	}
	return err
}

type trackedRows struct {
	pgx.Rows
	log   zerolog.Logger
	id    string
	start time.Time
}

func (t trackedRows) Close() {
	t.Rows.Close()
	t.log.Debug().
		Str("sql_id", t.id).
		Dur("took", time.Since(t.start)).
		Msg("sql query")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// splitMarker separates the audit marker from the statement that follows it.
func splitMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	line, rest, _ := strings.Cut(trimmed, "\n")
	line = strings.TrimSpace(line)
	if !sqlMarker.MatchString(line) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimPrefix(line, "--sql "), rest, nil
}

// IsNoRows reports whether err is pgx's no-rows sentinel, possibly wrapped.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)
