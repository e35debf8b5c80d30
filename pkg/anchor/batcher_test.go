package anchor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guardrail-systems/ledger/pkg/anchor"
	"github.com/guardrail-systems/ledger/pkg/eventstore"
)

type fakePublisher struct {
	name    string
	fail    bool
	calls   atomic.Int32
	slotSeq uint64
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) Publish(ctx context.Context, batchID [16]byte, merkleRoot [32]byte, eventCount uint32) (string, uint64, error) {
	f.calls.Add(1)
	if f.fail {
		return "", 0, errors.New("substrate unavailable")
	}
	f.slotSeq++
	return "tx-" + f.name, f.slotSeq, nil
}

func seedUnanchored(t *testing.T, store *eventstore.MemoryStore, n int) {
	t.Helper()
	actor := uuid.New().String()
	for i := 0; i < n; i++ {
		_, err := store.Append(context.Background(), eventstore.AppendRequest{
			EventType: eventstore.EventSystemEvent,
			ActorID:   actor,
			Payload:   map[string]any{"i": i},
		})
		require.NoError(t, err)
	}
}

func TestRunOnceConfirmsOnAllSubstrateSuccess(t *testing.T) {
	events := eventstore.NewMemoryStore()
	seedUnanchored(t, events, 5)
	batches := anchor.NewMemoryBatchStore()

	evm := &fakePublisher{name: "evm"}
	sol := &fakePublisher{name: "solana-like"}
	b := anchor.New(events, batches, []anchor.Publisher{evm, sol}, 10, nil)

	batch, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Equal(t, anchor.StatusConfirmed, batch.Status)
	require.Equal(t, uint64(1), batch.StartSequence)
	require.Equal(t, uint64(5), batch.EndSequence)
	require.NotNil(t, batch.AnchoredAt)
	require.Len(t, batch.Results, 2)

	remaining, err := events.List(context.Background(), eventstore.Filter{AnchoredOnly: boolPtrTest(false)})
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestRunOnceFailsAllOrNothingWhenOneSubstrateFails(t *testing.T) {
	events := eventstore.NewMemoryStore()
	seedUnanchored(t, events, 3)
	batches := anchor.NewMemoryBatchStore()

	evm := &fakePublisher{name: "evm"}
	sol := &fakePublisher{name: "solana-like", fail: true}
	b := anchor.New(events, batches, []anchor.Publisher{evm, sol}, 10, nil)

	batch, err := b.RunOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, batch)
	require.Equal(t, anchor.StatusFailed, batch.Status)

	unanchored, err := events.List(context.Background(), eventstore.Filter{AnchoredOnly: boolPtrTest(false)})
	require.NoError(t, err)
	require.Len(t, unanchored, 3)
}

func TestRunOnceWithNoUnanchoredEventsIsNoop(t *testing.T) {
	events := eventstore.NewMemoryStore()
	batches := anchor.NewMemoryBatchStore()
	b := anchor.New(events, batches, nil, 10, nil)

	batch, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	require.Nil(t, batch)
}

func TestRetryBatchOnlyAllowedWhenFailed(t *testing.T) {
	events := eventstore.NewMemoryStore()
	seedUnanchored(t, events, 2)
	batches := anchor.NewMemoryBatchStore()

	evm := &fakePublisher{name: "evm", fail: true}
	b := anchor.New(events, batches, []anchor.Publisher{evm}, 10, nil)

	batch, err := b.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, anchor.StatusFailed, batch.Status)

	evm.fail = false
	retried, err := b.RetryBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Equal(t, anchor.StatusConfirmed, retried.Status)

	_, err = b.RetryBatch(context.Background(), batch.ID)
	require.Error(t, err)
}

func boolPtrTest(b bool) *bool { return &b }
