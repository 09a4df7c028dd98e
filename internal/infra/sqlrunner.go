package infra

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface shared by *pgxpool.Pool and SQLRunner.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql ([A-Za-z0-9_.:-]+)$`)

// SQLRunner logs every statement sent to the pool. A query may start with a
// "--sql <label>" line; the label names the statement in logs and the line
// is stripped before execution.
type SQLRunner struct {
	Pool   SQLExecutor
	Logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	label, trimmed := extractMarker(query)
	start := time.Now()
	tag, err := r.Pool.Exec(ctx, trimmed, args...)
	if err != nil {
		r.Logger.Error().Err(err).Str("sql", label).Msg("sql exec failed")
		return tag, err
	}
	r.Logger.Debug().Str("sql", label).Int64("rows", tag.RowsAffected()).Dur("took", time.Since(start)).Msg("sql exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	label, trimmed := extractMarker(query)
	r.Logger.Debug().Str("sql", label).Msg("sql query_row")
	return loggingRow{row: r.Pool.QueryRow(ctx, trimmed, args...), logger: r.Logger, label: label}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	label, trimmed := extractMarker(query)
	rows, err := r.Pool.Query(ctx, trimmed, args...)
	if err != nil {
		r.Logger.Error().Err(err).Str("sql", label).Msg("sql query failed")
		return nil, err
	}
	r.Logger.Debug().Str("sql", label).Msg("sql query")
	return rows, nil
}

type loggingRow struct {
	row    pgx.Row
	logger zerolog.Logger
	label  string
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	if err != nil && err != pgx.ErrNoRows {
		l.logger.Error().Err(err).Str("sql", l.label).Msg("sql scan failed")
	}
	return err
}

func extractMarker(query string) (string, string) {
	trimmed := strings.TrimSpace(query)
	first, rest, found := strings.Cut(trimmed, "\n")
	if m := markerRegexp.FindStringSubmatch(strings.TrimSpace(first)); m != nil {
		if !found {
			return m[1], ""
		}
		return m[1], strings.TrimSpace(rest)
	}
	return "query", trimmed
}

var _ SQLExecutor = (*SQLRunner)(nil)
