package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foundly/foundly/internal/item"
)

// MemoryItemStore is a mutex-protected ItemStore for tests and local
// runs. Items are copied on the way in and out so callers cannot mutate
// stored state.
type MemoryItemStore struct {
	mu    sync.RWMutex
	items map[string]*item.Item
}

func NewMemoryItemStore() *MemoryItemStore {
	return &MemoryItemStore{items: make(map[string]*item.Item)}
}

func (s *MemoryItemStore) CreateItem(_ context.Context, it *item.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	cp := *it
	s.items[cp.ID] = &cp
	return nil
}

func (s *MemoryItemStore) GetItem(_ context.Context, id string) (*item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, &NotFoundError{Kind: "item", ID: id}
	}
	cp := *it
	return &cp, nil
}

func (s *MemoryItemStore) FetchOpenCandidates(_ context.Context, typ item.Type, excludingID string) ([]*item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*item.Item
	for _, it := range s.items {
		if it.Type != typ || it.ID == excludingID || it.Status != item.StatusPending {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryItemStore) SetStatus(_ context.Context, id string, status item.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return &NotFoundError{Kind: "item", ID: id}
	}
	if !it.Status.CanAdvanceTo(status) {
		return &InvalidTransitionError{ID: id, From: it.Status, To: status}
	}
	it.Status = status
	return nil
}

// MemoryMatchStore is a mutex-protected MatchStore. The find-and-insert
// in CreateIfAbsent runs under one lock acquisition, giving the same
// at-most-one-active-record-per-pair guarantee the Postgres partial
// unique index provides.
type MemoryMatchStore struct {
	mu      sync.RWMutex
	records map[string]*MatchRecord
}

func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{records: make(map[string]*MatchRecord)}
}

func (s *MemoryMatchStore) GetMatch(_ context.Context, id string) (*MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, &NotFoundError{Kind: "match", ID: id}
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryMatchStore) FindActive(_ context.Context, lostID, foundID string) (*MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec := s.findActiveLocked(lostID, foundID); rec != nil {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryMatchStore) findActiveLocked(lostID, foundID string) *MatchRecord {
	for _, rec := range s.records {
		if rec.LostItemID == lostID && rec.FoundItemID == foundID && rec.Status != MatchRejected {
			return rec
		}
	}
	return nil
}

func (s *MemoryMatchStore) CreateIfAbsent(_ context.Context, rec *MatchRecord) (bool, *MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findActiveLocked(rec.LostItemID, rec.FoundItemID); existing != nil {
		cp := *existing
		return false, &cp, nil
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.Status == "" {
		rec.Status = MatchPending
	}

	cp := *rec
	s.records[cp.ID] = &cp
	return true, rec, nil
}

func (s *MemoryMatchStore) UpdateStatus(_ context.Context, id string, status MatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return &NotFoundError{Kind: "match", ID: id}
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryMatchStore) ListForItem(_ context.Context, itemID string) ([]*MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*MatchRecord
	for _, rec := range s.records {
		if rec.LostItemID == itemID || rec.FoundItemID == itemID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ActiveCount reports the number of non-rejected records, used by
// concurrency tests to assert the pair invariant.
func (s *MemoryMatchStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.Status != MatchRejected {
			n++
		}
	}
	return n
}

var _ ItemStore = (*MemoryItemStore)(nil)
var _ MatchStore = (*MemoryMatchStore)(nil)
