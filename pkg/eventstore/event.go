// Package eventstore implements the append-only, sequenced Event Store
// described by the Movement Ledger: a per-event hash chain with a single
// serializing writer over the tail.
package eventstore

import (
	"errors"
	"time"
)

// EventType enumerates every kind of event the ledger records.
type EventType string

const (
	EventPolicyDecision     EventType = "policy-decision"
	EventIdentityCreated    EventType = "identity-created"
	EventIdentityUpdated    EventType = "identity-updated"
	EventKeyAttached        EventType = "key-attached"
	EventKeyDetached        EventType = "key-detached"
	EventCredentialAdded    EventType = "credential-added"
	EventCredentialUpdated  EventType = "credential-updated"
	EventApprovalRequested  EventType = "approval-requested"
	EventApprovalGranted    EventType = "approval-granted"
	EventApprovalRejected   EventType = "approval-rejected"
	EventPolicyCreated      EventType = "policy-created"
	EventPolicyUpdated      EventType = "policy-updated"
	EventAnchorBatchCreated EventType = "anchor-batch-created"
	EventSystemEvent        EventType = "system-event"
)

// GenesisHash is the previous_hash value for the first event ever written.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

var (
	ErrNotFound       = errors.New("eventstore: event not found")
	ErrConflict       = errors.New("eventstore: concurrent append conflict")
	ErrInvalidActorID = errors.New("eventstore: actor_id must be a valid 16-byte identifier")
)

// Event is one immutable row in the Movement Ledger.
type Event struct {
	ID                string
	Sequence          uint64
	EventType         EventType
	ActorID           string
	PolicyDecisionID  string
	Payload           map[string]any
	PreviousHash      string
	EventHash         string
	AnchorBatchID     string
	CreatedAt         time.Time
}

// AppendRequest is the input to Append: everything the caller supplies,
// before the store assigns sequence/hash/timestamp.
type AppendRequest struct {
	EventType        EventType
	ActorID          string
	PolicyDecisionID string
	Payload          map[string]any
}
