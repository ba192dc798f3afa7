package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
	"github.com/vietddude/batchfetch/internal/infra/storage"
)

// OutcomeStore keeps batches in process memory. It is used when no database is configured.
type OutcomeStore struct {
	mu       sync.RWMutex
	batches  map[string]*storage.BatchRecord
	outcomes map[string][]*storage.OutcomeRecord
	order    []string
}

func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{
		batches:  make(map[string]*storage.BatchRecord),
		outcomes: make(map[string][]*storage.OutcomeRecord),
	}
}

func (s *OutcomeStore) SaveBatch(ctx context.Context, r *domain.BatchResult) error {
	rec := storage.NewBatchRecord(r)
	outs := storage.NewOutcomeRecords(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.batches[rec.ID] = rec
	s.outcomes[rec.ID] = outs
	return nil
}

func (s *OutcomeStore) GetBatch(ctx context.Context, id string) (*storage.BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.batches[id]
	if !ok {
		return nil, storage.ErrBatchNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *OutcomeStore) ListBatches(ctx context.Context, limit int) ([]*storage.BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.BatchRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *s.batches[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *OutcomeStore) GetOutcomes(ctx context.Context, batchID string, indexes []int) ([]*storage.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, ok := s.outcomes[batchID]
	if !ok {
		return nil, storage.ErrBatchNotFound
	}
	if len(indexes) == 0 {
		return append([]*storage.OutcomeRecord(nil), all...), nil
	}

	sorted := append([]int(nil), indexes...)
	sort.Ints(sorted)
	var out []*storage.OutcomeRecord
	for _, idx := range sorted {
		if idx >= 0 && idx < len(all) {
			out = append(out, all[idx])
		}
	}
	return out, nil
}

func (s *OutcomeStore) DeleteBatchesOlderThan(ctx context.Context, threshold time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	deleted := 0
	for _, id := range s.order {
		if s.batches[id].FinishedAt.Before(threshold) {
			delete(s.batches, id)
			delete(s.outcomes, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return deleted, nil
}
