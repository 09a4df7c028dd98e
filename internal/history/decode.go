package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"postergen/internal/domain"
)

// decodeRecord reads one stored record. A timestamp that is not a JSON
// string is kept as its raw text, which never parses and so sorts oldest.
func decodeRecord(raw []byte) (domain.GenerationRecord, error) {
	var rec domain.GenerationRecord
	if err := json.Unmarshal(raw, &rec); err == nil {
		return rec, nil
	}
	var loose struct {
		domain.GenerationRecord
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return domain.GenerationRecord{}, fmt.Errorf("history: decode record: %w", err)
	}
	rec = loose.GenerationRecord
	ts := bytes.TrimSpace(loose.Timestamp)
	if !bytes.Equal(ts, []byte("null")) {
		rec.Timestamp = string(ts)
	}
	return rec, nil
}
