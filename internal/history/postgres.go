package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

// SQLExecutor is the subset of *pgxpool.Pool used by PostgresStore. It is
// satisfied by infra.SQLRunner.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// PostgresStore keeps one row per record. Rows are only ever inserted, and
// the record document is stored verbatim so newer fields survive old readers.
type PostgresStore struct {
	db     SQLExecutor
	table  string
	logger *infra.Logger
}

// NewPostgresStore returns a store writing to table. The name is quoted, so
// any identifier is accepted.
func NewPostgresStore(db SQLExecutor, table string, logger *infra.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("history: database is required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = "generation_history"
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table), logger: loggerOrDiscard(logger)}, nil
}

// EnsureSchema creates the history table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`--sql history.ensure_schema
CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL PRIMARY KEY,
	record_id TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NULL,
	record JSONB NOT NULL
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Append inserts rec.
func (s *PostgresStore) Append(ctx context.Context, rec domain.GenerationRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	var recordedAt *time.Time
	if ts, ok := rec.ParsedTime(); ok {
		recordedAt = &ts
	}
	query := fmt.Sprintf(`--sql history.append
INSERT INTO %s (record_id, recorded_at, record) VALUES ($1, $2, $3)`, s.table)
	if _, err := s.db.Exec(ctx, query, rec.ID, recordedAt, payload); err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, most recent first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]domain.GenerationRecord, error) {
	query := fmt.Sprintf(`--sql history.list_recent
SELECT record FROM %s ORDER BY recorded_at DESC NULLS LAST, seq ASC`, s.table)
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var records []domain.GenerationRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("history: skipping unreadable row")
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return SortRecent(records), nil
}

// Get returns the record with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (domain.GenerationRecord, error) {
	query := fmt.Sprintf(`--sql history.get
SELECT record FROM %s WHERE record_id = $1 ORDER BY seq ASC LIMIT 1`, s.table)
	var raw []byte
	if err := s.db.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GenerationRecord{}, domain.ErrRecordNotFound
		}
		return domain.GenerationRecord{}, fmt.Errorf("history: get: %w", err)
	}
	return decodeRecord(raw)
}
