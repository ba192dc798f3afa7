package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// BatchRecord is the persisted summary of a batch.
type BatchRecord struct {
	ID         string    `json:"id"          db:"id"`
	Policy     string    `json:"policy"      db:"policy"`
	State      string    `json:"state"       db:"state"`
	Status     string    `json:"status"      db:"status"`
	Total      int       `json:"total"       db:"total"`
	Succeeded  int       `json:"succeeded"   db:"succeeded"`
	Failed     int       `json:"failed"      db:"failed"`
	StartedAt  time.Time `json:"started_at"  db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}

// OutcomeRecord is the persisted form of a single outcome.
type OutcomeRecord struct {
	BatchID    string          `json:"batch_id"           db:"batch_id"`
	Index      int             `json:"index"              db:"idx"`
	HandleID   string          `json:"handle_id"          db:"handle_id"`
	Succeeded  bool            `json:"succeeded"          db:"succeeded"`
	Value      json.RawMessage `json:"value,omitempty"    db:"value"`
	Error      string          `json:"error,omitempty"    db:"error_msg"`
	Attempts   int             `json:"attempts"           db:"attempts"`
	DurationMs int64           `json:"duration_ms"        db:"duration_ms"`
}

// NewBatchRecord summarizes a batch result.
func NewBatchRecord(r *domain.BatchResult) *BatchRecord {
	s := r.Summary()
	return &BatchRecord{
		ID:         r.ID,
		Policy:     string(r.Policy),
		State:      string(r.State),
		Status:     string(r.Status),
		Total:      s.Total,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// NewOutcomeRecord converts an outcome. Values that cannot be encoded are
// stored as null and the encoding error is kept in Error.
func NewOutcomeRecord(batchID string, o domain.Outcome) *OutcomeRecord {
	rec := &OutcomeRecord{
		BatchID:    batchID,
		Index:      o.Index,
		HandleID:   o.HandleID,
		Succeeded:  o.Succeeded(),
		Attempts:   o.Attempts,
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
		return rec
	}
	data, err := EncodeValue(o.Value)
	if err != nil {
		rec.Error = fmt.Sprintf("encode value: %v", err)
		return rec
	}
	rec.Value = data
	return rec
}

// NewOutcomeRecords converts every outcome of a batch.
func NewOutcomeRecords(r *domain.BatchResult) []*OutcomeRecord {
	recs := make([]*OutcomeRecord, len(r.Outcomes))
	for i, o := range r.Outcomes {
		recs[i] = NewOutcomeRecord(r.ID, o)
	}
	return recs
}
