package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guardrail-systems/ledger/pkg/crypto"
	"github.com/guardrail-systems/ledger/pkg/eventstore"
	"github.com/guardrail-systems/ledger/pkg/ledger"
	"github.com/guardrail-systems/ledger/pkg/merkle"
)

func seedEvents(t *testing.T, store *eventstore.MemoryStore, n int) []*eventstore.Event {
	t.Helper()
	actor := uuid.New().String()
	events := make([]*eventstore.Event, n)
	for i := 0; i < n; i++ {
		e, err := store.Append(context.Background(), eventstore.AppendRequest{
			EventType: eventstore.EventSystemEvent,
			ActorID:   actor,
			Payload:   map[string]any{"i": i},
		})
		require.NoError(t, err)
		events[i] = e
	}
	return events
}

func TestCreateAndGetEvent(t *testing.T) {
	store := eventstore.NewMemoryStore()
	svc := ledger.New(store, nil)

	created, err := svc.CreateEvent(context.Background(), eventstore.AppendRequest{
		EventType: eventstore.EventSystemEvent,
		ActorID:   uuid.New().String(),
		Payload:   map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	fetched, err := svc.GetEvent(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.EventHash, fetched.EventHash)
}

func TestGetEventNotFound(t *testing.T) {
	svc := ledger.New(eventstore.NewMemoryStore(), nil)
	_, err := svc.GetEvent(context.Background(), "missing")
	require.Error(t, err)
}

func TestGetEventProofVerifies(t *testing.T) {
	store := eventstore.NewMemoryStore()
	events := seedEvents(t, store, 4)
	svc := ledger.New(store, nil)

	svc.SetBatchRangeLookup(func(ctx context.Context, batchID string) (uint64, uint64, error) {
		return 1, 4, nil
	})
	require.NoError(t, store.AssociateBatch(context.Background(), 1, 4, "batch-1"))

	proof, err := svc.GetEventProof(context.Background(), events[2].Sequence)
	require.NoError(t, err)
	require.NotNil(t, proof)
	require.Equal(t, events[2].EventHash, proof.LeafHash)

	tree, err := merkle.Build([]string{events[0].EventHash, events[1].EventHash, events[2].EventHash, events[3].EventHash})
	require.NoError(t, err)
	require.True(t, merkle.Verify(proof, tree.Root))

	report, err := svc.VerifyChain(context.Background(), 1, 4)
	require.NoError(t, err)
	require.True(t, report.Valid)
}

func TestGetEventProofReturnsNilForUnanchoredEvent(t *testing.T) {
	store := eventstore.NewMemoryStore()
	events := seedEvents(t, store, 2)
	svc := ledger.New(store, nil)

	proof, err := svc.GetEventProof(context.Background(), events[0].Sequence)
	require.NoError(t, err)
	require.Nil(t, proof)
}

func TestExportBundleIsSignedAndVerifiable(t *testing.T) {
	store := eventstore.NewMemoryStore()
	seedEvents(t, store, 3)

	signer, err := crypto.NewEd25519Signer("export-v1")
	require.NoError(t, err)

	svc := ledger.New(store, signer)
	bundle, err := svc.Export(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, bundle.Events, 3)
	require.NotEmpty(t, bundle.Signature)

	verifier, err := crypto.NewEd25519Verifier(signer.PublicKey())
	require.NoError(t, err)
	ok, err := verifier.Verify(signingPayloadForTest(bundle), bundle.Signature)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExportWithoutSignerFails(t *testing.T) {
	store := eventstore.NewMemoryStore()
	seedEvents(t, store, 1)
	svc := ledger.New(store, nil)
	_, err := svc.Export(context.Background(), 1, 1)
	require.Error(t, err)
}

func signingPayloadForTest(b *ledger.ExportBundle) []byte {
	buf := []byte(b.ExportID)
	buf = append(buf, []byte(b.MerkleRoot)...)
	seqBuf := make([]byte, 16)
	putUint64LE(seqBuf[0:8], b.StartSeq)
	putUint64LE(seqBuf[8:16], b.EndSeq)
	return append(buf, seqBuf...)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
