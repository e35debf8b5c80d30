// Package anchor implements the Anchor Batcher: it groups unanchored
// ledger events into Merkle-committed batches and publishes the Merkle
// root to one or more external commitment substrates.
package anchor

import (
	"errors"
	"time"
)

// Status is a batch's position in its state machine.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAnchoring Status = "ANCHORING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

var (
	ErrBatchNotFound     = errors.New("anchor: batch not found")
	ErrRetryNotFailed    = errors.New("anchor: retry is only allowed on a FAILED batch")
	ErrNoUnanchoredEvents = errors.New("anchor: no unanchored events to select")
)

// SubstrateResult records one substrate's publication outcome for a batch.
type SubstrateResult struct {
	Substrate     string `json:"substrate"`
	TxID          string `json:"tx_id"`
	BlockOrSlot   uint64 `json:"block_or_slot"`
}

// Batch is one Merkle-committed group of contiguous ledger events.
type Batch struct {
	ID            string
	MerkleRoot    string
	StartSequence uint64
	EndSequence   uint64
	EventCount    int
	Status        Status
	Results       []SubstrateResult
	CreatedAt     time.Time
	AnchoredAt    *time.Time
}

// resultFor returns the recorded result for a substrate name, if any.
func (b *Batch) resultFor(substrate string) (SubstrateResult, bool) {
	for _, r := range b.Results {
		if r.Substrate == substrate {
			return r, true
		}
	}
	return SubstrateResult{}, false
}

// setResult inserts or replaces a substrate's result. RetryBatch calls this
// to fill missing fields without overwriting previously recorded ones.
func (b *Batch) setResult(r SubstrateResult) {
	for i, existing := range b.Results {
		if existing.Substrate == r.Substrate {
			b.Results[i] = r
			return
		}
	}
	b.Results = append(b.Results, r)
}
