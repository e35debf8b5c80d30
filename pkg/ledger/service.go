// Package ledger is the service layer over the Movement Ledger: it wires
// the append-only Event Store to Merkle proof generation, chain
// verification, and signed exports.
package ledger

import (
	"context"
	"fmt"

	"github.com/guardrail-systems/ledger/pkg/apperr"
	"github.com/guardrail-systems/ledger/pkg/crypto"
	"github.com/guardrail-systems/ledger/pkg/eventstore"
	"github.com/guardrail-systems/ledger/pkg/merkle"
)

// MaxListPageSize bounds a single ListEvents call.
const MaxListPageSize = 500

// Service is the public surface the API layer calls into. It never talks
// to a database directly; everything goes through the eventstore.Store
// interface so the same service runs against SQLite, Postgres, or the
// in-memory store used in tests.
type Service struct {
	store      eventstore.Store
	signer     crypto.Signer
	batchRange BatchRange
}

// New constructs a Service. signer may be nil if Export is never called.
func New(store eventstore.Store, signer crypto.Signer) *Service {
	return &Service{store: store, signer: signer}
}

// CreateEvent appends a new event to the chain.
func (s *Service) CreateEvent(ctx context.Context, req eventstore.AppendRequest) (*eventstore.Event, error) {
	e, err := s.store.Append(ctx, req)
	if err != nil {
		if err == eventstore.ErrInvalidActorID {
			return nil, apperr.InvalidInput(err.Error())
		}
		return nil, apperr.Internal(err)
	}
	return e, nil
}

// GetEvent fetches a single event by its id.
func (s *Service) GetEvent(ctx context.Context, id string) (*eventstore.Event, error) {
	e, err := s.store.Get(ctx, id)
	if err == eventstore.ErrNotFound {
		return nil, apperr.NotFound(fmt.Sprintf("event %s not found", id))
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return e, nil
}

// ListEvents returns up to MaxListPageSize events matching filter, newest
// first.
func (s *Service) ListEvents(ctx context.Context, filter eventstore.Filter) ([]*eventstore.Event, error) {
	if filter.MaxResults <= 0 || filter.MaxResults > MaxListPageSize {
		filter.MaxResults = MaxListPageSize
	}
	events, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}

// BatchRange is looked up from an event's anchor_batch_id to recover the
// sequence range the anchor batcher committed it under. The ledger service
// does not import the anchor package; cmd/ledger installs the batcher's
// lookup at startup via SetBatchRangeLookup.
type BatchRange func(ctx context.Context, batchID string) (startSeq, endSeq uint64, err error)

// SetBatchRangeLookup installs the function GetEventProof uses to recover
// an anchor batch's committed sequence range. Until this is set,
// GetEventProof treats every event as unanchored.
func (s *Service) SetBatchRangeLookup(lookup BatchRange) {
	s.batchRange = lookup
}

// GetEventProof returns a Merkle inclusion proof for the event, built over
// the leaf set of its owning anchor batch. It returns (nil, nil) — not an
// error — for an event that has not yet been anchored.
func (s *Service) GetEventProof(ctx context.Context, sequence uint64) (*merkle.InclusionProof, error) {
	event, err := s.store.GetBySequence(ctx, sequence)
	if err == eventstore.ErrNotFound {
		return nil, apperr.NotFound(fmt.Sprintf("sequence %d not found", sequence))
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if event.AnchorBatchID == "" || s.batchRange == nil {
		return nil, nil
	}

	rangeStart, rangeEnd, err := s.batchRange(ctx, event.AnchorBatchID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	events, err := s.store.Range(ctx, rangeStart, rangeEnd)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	leaves := make([]string, len(events))
	index := -1
	for i, e := range events {
		leaves[i] = e.EventHash
		if e.Sequence == sequence {
			index = i
		}
	}
	if index == -1 {
		return nil, apperr.Internal(fmt.Errorf("ledger: event %d missing from its own anchor batch range", sequence))
	}

	proof, err := merkle.Prove(leaves, index)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return proof, nil
}

// VerifyChain re-verifies the hash chain over [start, end], bounded by
// eventstore.MaxVerifyRange.
func (s *Service) VerifyChain(ctx context.Context, start, end uint64) (*eventstore.VerificationReport, error) {
	report, err := eventstore.VerifyChain(ctx, s.store, start, end)
	if err != nil {
		return nil, apperr.InvalidInput(err.Error())
	}
	return report, nil
}

// Head returns the current sequence number and chain head hash.
func (s *Service) Head(ctx context.Context) (uint64, string) {
	return s.store.Head(ctx)
}

// Stats is a snapshot summary of the ledger used by the dashboard and
// monitoring endpoints.
type Stats struct {
	TotalEvents      uint64
	EventsByType     map[eventstore.EventType]uint64
	UnanchoredEvents uint64
	Head             uint64
	ChainHeadHash    string
}

// Stats walks the full ledger and aggregates counts. It is O(n) in the
// number of events; callers that need this frequently should cache it.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	head, hash := s.store.Head(ctx)

	events, err := s.store.Range(ctx, 1, head)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	stats := &Stats{
		TotalEvents:   head,
		EventsByType:  make(map[eventstore.EventType]uint64),
		Head:          head,
		ChainHeadHash: hash,
	}
	for _, e := range events {
		stats.EventsByType[e.EventType]++
		if e.AnchorBatchID == "" {
			stats.UnanchoredEvents++
		}
	}
	return stats, nil
}
