package history

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"postergen/internal/domain"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecutor struct {
	execs   []execCall
	queries []execCall
	rows    [][]byte
	rowErr  error
}

func (f *fakeExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, execCall{query: query, args: args})
	return &fakeRows{data: f.rows, idx: -1}, nil
}

func (f *fakeExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.queries = append(f.queries, execCall{query: query, args: args})
	if f.rowErr != nil {
		return fakeRow{err: f.rowErr}
	}
	if len(f.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{data: f.rows[0]}
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

type fakeRows struct {
	data [][]byte
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}
func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*[]byte)) = r.data[r.idx]
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return nil, errors.New("not implemented") }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

func mustJSON(t *testing.T, rec domain.GenerationRecord) []byte {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestPostgresAppendQuotesTableAndStoresDocument(t *testing.T) {
	db := &fakeExecutor{}
	store, err := NewPostgresStore(db, `poster "history"`, nil)
	if err != nil {
		t.Fatalf("NewPostgresStore returned error: %v", err)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema returned error: %v", err)
	}
	rec := sampleRecord("Diwali", "2025-10-20T18:30:00Z")
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("execs = %d, want 2", len(db.execs))
	}
	insert := db.execs[1]
	if !strings.Contains(insert.query, `"poster ""history"""`) {
		t.Fatalf("table not quoted: %s", insert.query)
	}
	if insert.args[0] != rec.ID {
		t.Fatalf("record id arg = %v", insert.args[0])
	}
	ts, ok := insert.args[1].(*time.Time)
	if !ok || ts == nil || ts.Hour() != 18 {
		t.Fatalf("recorded_at arg = %#v", insert.args[1])
	}
	var stored domain.GenerationRecord
	if err := json.Unmarshal(insert.args[2].([]byte), &stored); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if stored.Prompt != rec.Prompt || len(stored.Posters) != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestPostgresAppendUnparseableTimestampStoresNull(t *testing.T) {
	db := &fakeExecutor{}
	store, _ := NewPostgresStore(db, "", nil)
	if err := store.Append(context.Background(), sampleRecord("x", "whenever")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if ts := db.execs[0].args[1].(*time.Time); ts != nil {
		t.Fatalf("recorded_at = %v, want nil", ts)
	}
	if !strings.Contains(db.execs[0].query, `"generation_history"`) {
		t.Fatalf("default table missing: %s", db.execs[0].query)
	}
}

func TestPostgresListRecentSortsAndSkipsBadRows(t *testing.T) {
	db := &fakeExecutor{rows: [][]byte{
		mustJSON(t, sampleRecord("old", "2025-01-01T00:00:00Z")),
		[]byte("{broken"),
		mustJSON(t, sampleRecord("new", "2025-02-01T00:00:00Z")),
	}}
	store, _ := NewPostgresStore(db, "history", nil)

	got, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(got) != 2 || got[0].Prompt != "new" || got[1].Prompt != "old" {
		t.Fatalf("ListRecent = %#v", got)
	}
	if !strings.HasSuffix(db.queries[0].query, "LIMIT $1") || db.queries[0].args[0] != 10 {
		t.Fatalf("query = %s args = %v", db.queries[0].query, db.queries[0].args)
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	store, _ := NewPostgresStore(&fakeExecutor{}, "history", nil)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("Get error = %v, want ErrRecordNotFound", err)
	}
}
