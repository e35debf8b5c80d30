package eventstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guardrail-systems/ledger/pkg/eventstore"
)

func newStore(t *testing.T) *eventstore.MemoryStore {
	t.Helper()
	return eventstore.NewMemoryStore()
}

func TestAppendFirstEventChainsToGenesis(t *testing.T) {
	s := newStore(t)
	actor := uuid.New().String()

	e, err := s.Append(context.Background(), eventstore.AppendRequest{
		EventType: eventstore.EventSystemEvent,
		ActorID:   actor,
		Payload:   map[string]any{"note": "bootstrap"},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), e.Sequence)
	require.Equal(t, eventstore.GenesisHash, e.PreviousHash)
	require.Len(t, e.EventHash, 64)
}

func TestAppendChainsSequentialEvents(t *testing.T) {
	s := newStore(t)
	actor := uuid.New().String()

	first, err := s.Append(context.Background(), eventstore.AppendRequest{
		EventType: eventstore.EventSystemEvent,
		ActorID:   actor,
		Payload:   map[string]any{"n": 1},
	})
	require.NoError(t, err)

	second, err := s.Append(context.Background(), eventstore.AppendRequest{
		EventType: eventstore.EventSystemEvent,
		ActorID:   actor,
		Payload:   map[string]any{"n": 2},
	})
	require.NoError(t, err)

	require.Equal(t, uint64(2), second.Sequence)
	require.Equal(t, first.EventHash, second.PreviousHash)
}

func TestAppendRejectsInvalidActorID(t *testing.T) {
	s := newStore(t)
	_, err := s.Append(context.Background(), eventstore.AppendRequest{
		EventType: eventstore.EventSystemEvent,
		ActorID:   "not-a-uuid",
		Payload:   map[string]any{},
	})
	require.ErrorIs(t, err, eventstore.ErrInvalidActorID)
}

func TestVerifyChainDetectsTamperedPayload(t *testing.T) {
	s := newStore(t)
	actor := uuid.New().String()

	for i := 0; i < 5; i++ {
		_, err := s.Append(context.Background(), eventstore.AppendRequest{
			EventType: eventstore.EventSystemEvent,
			ActorID:   actor,
			Payload:   map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	report, err := eventstore.VerifyChain(context.Background(), s, 1, 5)
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, 5, report.EventsChecked)

	tampered, err := s.Get(context.Background(), mustEventAt(t, s, 3).ID)
	require.NoError(t, err)
	tampered.Payload["n"] = 999

	report, err = eventstore.VerifyChain(context.Background(), s, 1, 5)
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.NotEmpty(t, report.Errors)
}

func TestVerifyChainRejectsRangeOverMax(t *testing.T) {
	s := newStore(t)
	_, err := eventstore.VerifyChain(context.Background(), s, 1, eventstore.MaxVerifyRange+1)
	require.Error(t, err)
}

func TestListOrdersDescendingBySequence(t *testing.T) {
	s := newStore(t)
	actor := uuid.New().String()
	for i := 0; i < 3; i++ {
		_, err := s.Append(context.Background(), eventstore.AppendRequest{
			EventType: eventstore.EventSystemEvent,
			ActorID:   actor,
			Payload:   map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	results, err := s.List(context.Background(), eventstore.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, uint64(3), results[0].Sequence)
}

func mustEventAt(t *testing.T, s *eventstore.MemoryStore, seq uint64) *eventstore.Event {
	t.Helper()
	e, err := s.GetBySequence(context.Background(), seq)
	require.NoError(t, err)
	return e
}
