package journal

import (
	"context"
	"sort"
	"sync"
)

type inMemoryJournal struct {
	mu       sync.RWMutex
	receipts map[string]Receipt
}

// NewInMemory creates a concurrency-safe in-memory journal useful for unit
// tests and development gateways.
func NewInMemory() Journal {
	return &inMemoryJournal{receipts: make(map[string]Receipt)}
}

func (j *inMemoryJournal) Record(_ context.Context, r Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, exists := j.receipts[r.ID]; exists {
		return ErrDuplicateReceipt
	}
	j.receipts[r.ID] = r
	return nil
}

func (j *inMemoryJournal) List(_ context.Context, recordID int64) ([]Receipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Receipt, 0)
	for _, r := range j.receipts {
		if r.RecordID == recordID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SubmittedAt.After(out[b].SubmittedAt) })
	return out, nil
}
