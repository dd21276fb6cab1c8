// Package store persists items and match records. A Postgres
// implementation backs production; an in-memory implementation with the
// same atomicity guarantees backs tests.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/foundly/foundly/internal/item"
	"github.com/foundly/foundly/internal/match"
)

// MatchStatus is the lifecycle state of a match record. A record counts
// as active unless it has been rejected; the uniqueness guarantee for an
// item pair only covers active records, so a rejected pair may be
// re-matched later.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchVerified MatchStatus = "verified"
	MatchRejected MatchStatus = "rejected"
)

// MatchRecord links one lost item to one found item with the score that
// justified the link.
type MatchRecord struct {
	ID          string               `json:"id"`
	LostItemID  string               `json:"lostItemId"`
	FoundItemID string               `json:"foundItemId"`
	Score       float64              `json:"score"`
	Breakdown   match.ScoreBreakdown `json:"breakdown"`
	Status      MatchStatus          `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// RetrievalError marks a read failure (items, candidate pools). The
// triggering run can be retried safely since nothing was written.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }

// PersistenceError marks a write failure. Retrying is safe because every
// write is idempotent at the pair level.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// InvalidTransitionError reports a status change the item lifecycle
// does not allow. Not retryable; the caller asked for something the
// state machine forbids.
type InvalidTransitionError struct {
	ID   string
	From item.Status
	To   item.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("item %s cannot move from %s to %s", e.ID, e.From, e.To)
}

// NotFoundError reports a lookup for an ID that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// ItemStore is the item persistence contract the matching engine and the
// API depend on.
type ItemStore interface {
	CreateItem(ctx context.Context, it *item.Item) error
	GetItem(ctx context.Context, id string) (*item.Item, error)

	// FetchOpenCandidates returns items of the given type, excluding the
	// given ID, that are still open for matching (pending status).
	FetchOpenCandidates(ctx context.Context, typ item.Type, excludingID string) ([]*item.Item, error)

	// SetStatus advances an item's status, enforcing the lifecycle:
	// transitions Status.CanAdvanceTo forbids fail with
	// InvalidTransitionError. Setting a status the item already has is
	// a no-op, not an error.
	SetStatus(ctx context.Context, id string, status item.Status) error
}

// MatchStore is the match-record persistence contract.
type MatchStore interface {
	GetMatch(ctx context.Context, id string) (*MatchRecord, error)

	// FindActive returns the non-rejected record for the pair, or nil.
	FindActive(ctx context.Context, lostID, foundID string) (*MatchRecord, error)

	// CreateIfAbsent inserts the record unless an active record for the
	// same pair already exists. It reports whether the insert happened
	// and returns the record that now holds the pair, whichever writer
	// won.
	CreateIfAbsent(ctx context.Context, rec *MatchRecord) (bool, *MatchRecord, error)

	UpdateStatus(ctx context.Context, id string, status MatchStatus) error

	// ListForItem returns every record referencing the item on either
	// side, newest first.
	ListForItem(ctx context.Context, itemID string) ([]*MatchRecord, error)
}
