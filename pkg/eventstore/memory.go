package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and by components that
// compose the ledger without a database (simulate, dry runs). It implements
// the same single-writer-over-the-tail strategy as the SQL-backed store: one
// mutex serializes every Append, so the read-compute-write of the hash chain
// is never interleaved.
type MemoryStore struct {
	mu        sync.Mutex
	events    []*Event
	byID      map[string]*Event
	sequence  uint64
	chainHead string
}

// NewMemoryStore returns an empty store whose chain head is the genesis hash.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Event),
		chainHead: GenesisHash,
	}
}

// Append assigns the next sequence number, computes the event hash chained
// off the current tail, and stores the event in memory before returning it.
func (s *MemoryStore) Append(ctx context.Context, req AppendRequest) (*Event, error) {
	if _, err := actorIDBytes(req.ActorID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Event{
		ID:               uuid.New().String(),
		Sequence:         s.sequence + 1,
		EventType:        req.EventType,
		ActorID:          req.ActorID,
		PolicyDecisionID: req.PolicyDecisionID,
		Payload:          req.Payload,
		PreviousHash:     s.chainHead,
		CreatedAt:        time.Now().UTC(),
	}

	hash, err := computeEventHash(e)
	if err != nil {
		return nil, err
	}
	e.EventHash = hash

	s.sequence = e.Sequence
	s.chainHead = e.EventHash
	s.events = append(s.events, e)
	s.byID[e.ID] = e

	return e, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) GetBySequence(ctx context.Context, seq uint64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Sequence == seq {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// List returns events matching filter, ordered by descending sequence,
// capped at MaxResults (or 500, whichever is smaller).
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.MaxResults
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	results := make([]*Event, 0, limit)
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !filter.matches(e) {
			continue
		}
		results = append(results, e)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Range returns every event with sequence in [start, end] inclusive,
// ordered ascending. Used by VerifyChain and Export.
func (s *MemoryStore) Range(ctx context.Context, start, end uint64) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*Event
	for _, e := range s.events {
		if e.Sequence >= start && e.Sequence <= end {
			results = append(results, e)
		}
	}
	return results, nil
}

// Head returns the current sequence number and chain head hash.
func (s *MemoryStore) Head(ctx context.Context) (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence, s.chainHead
}

// Filter narrows List results.
type Filter struct {
	EventType    EventType
	ActorID      string
	StartSeq     uint64
	EndSeq       uint64
	FromDate     time.Time // zero value: unbounded
	ToDate       time.Time // zero value: unbounded
	AnchoredOnly *bool     // true: only anchored events; false: only unanchored
	MaxResults   int
}

func (f Filter) matches(e *Event) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.StartSeq > 0 && e.Sequence < f.StartSeq {
		return false
	}
	if f.EndSeq > 0 && e.Sequence > f.EndSeq {
		return false
	}
	if !f.FromDate.IsZero() && e.CreatedAt.Before(f.FromDate) {
		return false
	}
	if !f.ToDate.IsZero() && e.CreatedAt.After(f.ToDate) {
		return false
	}
	if f.AnchoredOnly != nil {
		anchored := e.AnchorBatchID != ""
		if anchored != *f.AnchoredOnly {
			return false
		}
	}
	return true
}

// AssociateBatch sets anchor_batch_id on every event in [start, end] that
// doesn't already have one. Re-applying it is a no-op, satisfying the
// idempotent-association invariant.
func (s *MemoryStore) AssociateBatch(ctx context.Context, start, end uint64, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Sequence >= start && e.Sequence <= end && e.AnchorBatchID == "" {
			e.AnchorBatchID = batchID
		}
	}
	return nil
}
