package anchor

import (
	"context"
	"fmt"

	"github.com/guardrail-systems/ledger/pkg/apperr"
)

// BatchRangeLookup returns a function suitable for
// ledger.Service.SetBatchRangeLookup: it recovers the sequence range a
// batch id committed, by delegating to this batcher's own Store.
func (b *Batcher) BatchRangeLookup() func(ctx context.Context, batchID string) (uint64, uint64, error) {
	return b.batches.Range
}

// GetBatch returns a single batch by id.
func (b *Batcher) GetBatch(ctx context.Context, id string) (*Batch, error) {
	batch, err := b.batches.Get(ctx, id)
	if err == ErrBatchNotFound {
		return nil, apperr.NotFound(fmt.Sprintf("batch %s not found", id))
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return batch, nil
}

// ListBatches returns every recorded batch. Callers that only want a
// status do their own filtering; status is rarely the bottleneck since
// deployments accumulate batches slowly relative to events.
func (b *Batcher) ListBatches(ctx context.Context) ([]*Batch, error) {
	batches, err := b.batches.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return batches, nil
}

// Stats is a snapshot summary of anchoring activity.
type Stats struct {
	TotalBatches     int
	PendingBatches   int
	AnchoringBatches int
	ConfirmedBatches int
	FailedBatches    int
	LastAnchoredAt   string
}

// Stats aggregates batch counts by status for the monitoring endpoint.
func (b *Batcher) Stats(ctx context.Context) (*Stats, error) {
	batches, err := b.batches.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	stats := &Stats{TotalBatches: len(batches)}
	for _, batch := range batches {
		switch batch.Status {
		case StatusPending:
			stats.PendingBatches++
		case StatusAnchoring:
			stats.AnchoringBatches++
		case StatusConfirmed:
			stats.ConfirmedBatches++
			if batch.AnchoredAt != nil {
				ts := batch.AnchoredAt.Format("2006-01-02T15:04:05Z07:00")
				if ts > stats.LastAnchoredAt {
					stats.LastAnchoredAt = ts
				}
			}
		case StatusFailed:
			stats.FailedBatches++
		}
	}
	return stats, nil
}
