// Package history keeps the append-only log of generation records.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/infra"
	"postergen/internal/storage"
)

// ErrInvalidRecord is returned when a record cannot be stored.
var ErrInvalidRecord = errors.New("history: record is invalid")

// Store is the append-only record log. No update or delete is exposed.
type Store interface {
	Append(ctx context.Context, rec domain.GenerationRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.GenerationRecord, error)
	Get(ctx context.Context, id string) (domain.GenerationRecord, error)
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// FileStore keeps every record in memory and mirrors the whole collection to
// a single JSON document after each append. All access goes through mu.
type FileStore struct {
	mu      sync.Mutex
	records []domain.GenerationRecord
	// docs is the persisted form in append order. Entries that could not be
	// decoded stay here so a rewrite never drops them.
	docs   []json.RawMessage
	files  *storage.FileStore
	key    string
	logger *infra.Logger
	now    func() time.Time
}

// OpenFile loads the history document at path. A missing or unreadable
// document starts an empty history rather than failing.
func OpenFile(ctx context.Context, path string, logger *infra.Logger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history: path is required")
	}
	files, err := storage.NewFileStore(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	s := &FileStore{
		files:  files,
		key:    filepath.Base(path),
		logger: loggerOrDiscard(logger),
		now:    time.Now,
	}
	s.load(ctx)
	return s, nil
}

func (s *FileStore) load(ctx context.Context) {
	data, err := s.files.Read(ctx, s.key)
	if errors.Is(err, storage.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("history: read failed, starting empty")
		s.quarantine(ctx)
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("history: document is corrupt, starting empty")
		s.quarantine(ctx)
		return
	}
	for i, doc := range docs {
		rec, err := decodeRecord(doc)
		if err != nil {
			s.logger.Warn().Err(err).Int("index", i).Msg("history: skipping unreadable record")
			continue
		}
		s.records = append(s.records, rec)
	}
	s.docs = docs
	s.logger.Debug().Int("records", len(s.records)).Int("documents", len(docs)).Msg("history: loaded")
}

// quarantine moves an unusable document aside so the next append cannot
// overwrite it.
func (s *FileStore) quarantine(ctx context.Context) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.key, s.now().Unix())
	if err := s.files.Rename(ctx, s.key, aside); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("history: could not move corrupt document aside")
		return
	}
	s.logger.Warn().Str("key", s.key).Str("moved_to", aside).Msg("history: corrupt document moved aside")
}

// Append adds rec and rewrites the whole document. When the write fails the
// in-memory collection is left as it was before the call.
func (s *FileStore) Append(ctx context.Context, rec domain.GenerationRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	docs := append(s.docs[:len(s.docs):len(s.docs)], json.RawMessage(doc))
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	if _, err := s.files.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("history: persist: %w", err)
	}
	s.docs = docs
	s.records = append(s.records, cloneRecord(rec))
	return nil
}

// ListRecent returns up to limit records, most recent first. A limit of zero
// or less returns everything.
func (s *FileStore) ListRecent(ctx context.Context, limit int) ([]domain.GenerationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]domain.GenerationRecord, len(s.records))
	for i, rec := range s.records {
		out[i] = cloneRecord(rec)
	}
	s.mu.Unlock()
	return truncate(SortRecent(out), limit), nil
}

// Get returns the record with the given id.
func (s *FileStore) Get(ctx context.Context, id string) (domain.GenerationRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GenerationRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID != "" && rec.ID == id {
			return cloneRecord(rec), nil
		}
	}
	return domain.GenerationRecord{}, domain.ErrRecordNotFound
}

// Len reports how many records are held.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// SortRecent orders records by timestamp, newest first. Records whose
// timestamp is missing or unparseable sort after every dated record and keep
// their relative order.
func SortRecent(records []domain.GenerationRecord) []domain.GenerationRecord {
	sort.SliceStable(records, func(i, j int) bool {
		ti, okI := records[i].ParsedTime()
		tj, okJ := records[j].ParsedTime()
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI:
			return true
		default:
			return false
		}
	})
	return records
}

func truncate(records []domain.GenerationRecord, limit int) []domain.GenerationRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

func validate(rec domain.GenerationRecord) error {
	if strings.TrimSpace(rec.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidRecord)
	}
	if len(rec.Posters) == 0 {
		return fmt.Errorf("%w: no posters", ErrInvalidRecord)
	}
	return nil
}

func cloneRecord(rec domain.GenerationRecord) domain.GenerationRecord {
	if rec.Posters != nil {
		rec.Posters = append([]domain.EncodedPoster(nil), rec.Posters...)
	}
	return rec
}

func loggerOrDiscard(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)
	return &logger
}
