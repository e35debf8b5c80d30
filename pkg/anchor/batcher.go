package anchor

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/guardrail-systems/ledger/pkg/apperr"
	"github.com/guardrail-systems/ledger/pkg/eventstore"
	"github.com/guardrail-systems/ledger/pkg/merkle"
)

// DefaultBatchSize bounds how many unanchored events a single Select pulls.
const DefaultBatchSize = 1000

// Batcher selects unanchored events, commits them into Merkle-rooted
// batches, and publishes each batch to every enabled substrate. A single
// singleflight.Group serializes the scheduled and manual trigger paths so
// two overlapping runs never select overlapping event ranges.
type Batcher struct {
	events     eventstore.Store
	batches    Store
	publishers []Publisher
	batchSize  int
	logger     *slog.Logger

	flight singleflight.Group
	cron   *cron.Cron
}

// New constructs a Batcher. Publishers are invoked in the given order
// (EVM first, Solana-like second, per the specified substrate ordering).
func New(events eventstore.Store, batches Store, publishers []Publisher, batchSize int, logger *slog.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{events: events, batches: batches, publishers: publishers, batchSize: batchSize, logger: logger}
}

// StartScheduler runs RunOnce on cronSpec (e.g. "@hourly") until the
// returned stop function is called.
func (b *Batcher) StartScheduler(ctx context.Context, cronSpec string) (stop func(), err error) {
	c := cron.New()
	_, err = c.AddFunc(cronSpec, func() {
		if _, runErr := b.RunOnce(ctx); runErr != nil && b.logger != nil {
			b.logger.ErrorContext(ctx, "scheduled anchor run failed", "error", runErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("anchor: invalid cron spec %q: %w", cronSpec, err)
	}
	c.Start()
	b.cron = c
	return func() { c.Stop() }, nil
}

// RunOnce is the manual trigger. It funnels through the same singleflight
// key as the scheduler so a manual trigger arriving mid-scheduled-run waits
// for that run instead of racing it.
func (b *Batcher) RunOnce(ctx context.Context) (*Batch, error) {
	result, err, _ := b.flight.Do("anchor-run", func() (any, error) {
		return b.selectAndCommit(ctx)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*Batch), nil
}

func (b *Batcher) selectAndCommit(ctx context.Context) (*Batch, error) {
	unanchored := false
	events, err := b.events.List(ctx, eventstore.Filter{
		AnchoredOnly: boolPtr(unanchored),
		MaxResults:   b.batchSize,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	// List returns newest-first; a batch must be built in ascending
	// sequence order since its range must be contiguous.
	reverse(events)

	leaves := make([]string, len(events))
	for i, e := range events {
		leaves[i] = e.EventHash
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	batch := &Batch{
		ID:            uuid.New().String(),
		MerkleRoot:    root,
		StartSequence: events[0].Sequence,
		EndSequence:   events[len(events)-1].Sequence,
		EventCount:    len(events),
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := b.batches.Create(ctx, batch); err != nil {
		return nil, apperr.Internal(err)
	}

	batch.Status = StatusAnchoring
	if err := b.batches.Update(ctx, batch); err != nil {
		return nil, apperr.Internal(err)
	}

	if err := b.publishAll(ctx, batch); err != nil {
		batch.Status = StatusFailed
		_ = b.batches.Update(ctx, batch)
		return batch, apperr.Wrap(apperr.KindBlockchainTxFailed, apperr.CodeBlockchainTxFailed,
			"anchor publication failed on one or more substrates", err)
	}

	now := time.Now().UTC()
	batch.Status = StatusConfirmed
	batch.AnchoredAt = &now
	if err := b.batches.Update(ctx, batch); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := b.events.AssociateBatch(ctx, batch.StartSequence, batch.EndSequence, batch.ID); err != nil {
		return nil, apperr.Internal(err)
	}

	return batch, nil
}

// publishAll runs every configured publisher concurrently but only
// commits results to the batch if every one of them succeeds — partial
// success of multi-substrate anchoring is not a permitted outcome.
func (b *Batcher) publishAll(ctx context.Context, batch *Batch) error {
	batchIDBytes := batchIDTo16Bytes(batch.ID)
	rootBytes, err := hex.DecodeString(batch.MerkleRoot)
	if err != nil || len(rootBytes) != 32 {
		return fmt.Errorf("anchor: batch %s has malformed merkle root", batch.ID)
	}
	var root32 [32]byte
	copy(root32[:], rootBytes)

	g, gctx := errgroup.WithContext(ctx)
	results := make([]SubstrateResult, len(b.publishers))
	for i, pub := range b.publishers {
		i, pub := i, pub
		g.Go(func() error {
			txID, blockOrSlot, err := pub.Publish(gctx, batchIDBytes, root32, uint32(batch.EventCount))
			if err != nil {
				return fmt.Errorf("anchor: %s publish failed: %w", pub.Name(), err)
			}
			results[i] = SubstrateResult{Substrate: pub.Name(), TxID: txID, BlockOrSlot: blockOrSlot}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, r := range results {
		batch.setResult(r)
	}
	return nil
}

// RetryBatch re-runs publication for a FAILED batch with its stored root
// and event count, filling in any substrate fields still missing without
// overwriting ones already recorded.
func (b *Batcher) RetryBatch(ctx context.Context, batchID string) (*Batch, error) {
	batch, err := b.batches.Get(ctx, batchID)
	if err == ErrBatchNotFound {
		return nil, apperr.NotFound(fmt.Sprintf("batch %s not found", batchID))
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if batch.Status != StatusFailed {
		return nil, apperr.New(apperr.KindInvalidInput, apperr.CodeInvalidInput, ErrRetryNotFailed.Error())
	}

	batch.Status = StatusAnchoring
	if err := b.batches.Update(ctx, batch); err != nil {
		return nil, apperr.Internal(err)
	}

	missing := make([]Publisher, 0, len(b.publishers))
	for _, pub := range b.publishers {
		if _, ok := batch.resultFor(pub.Name()); !ok {
			missing = append(missing, pub)
		}
	}

	saved := b.publishers
	b.publishers = missing
	err = b.publishAll(ctx, batch)
	b.publishers = saved

	if err != nil {
		batch.Status = StatusFailed
		_ = b.batches.Update(ctx, batch)
		return batch, apperr.Wrap(apperr.KindBlockchainTxFailed, apperr.CodeBlockchainTxFailed,
			"retry publication failed", err)
	}

	now := time.Now().UTC()
	batch.Status = StatusConfirmed
	batch.AnchoredAt = &now
	if err := b.batches.Update(ctx, batch); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := b.events.AssociateBatch(ctx, batch.StartSequence, batch.EndSequence, batch.ID); err != nil {
		return nil, apperr.Internal(err)
	}
	return batch, nil
}

func batchIDTo16Bytes(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		// IDs are always assigned by uuid.New() in this package; a parse
		// failure means a caller constructed a Batch by hand.
		return [16]byte{}
	}
	return parsed
}

func boolPtr(b bool) *bool { return &b }

func reverse(events []*eventstore.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
