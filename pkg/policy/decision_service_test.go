package policy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guardrail-systems/ledger/pkg/eventstore"
)

func TestCheckActionRecordsDecisionAndAppendsEvent(t *testing.T) {
	e, err := NewEvaluator(nil)
	require.NoError(t, err)

	source := `
package guardrail
deny := ["kyc_missing"] if { true }
`
	require.NoError(t, e.Load(context.Background(), []Policy{samplePolicy("p1", source)}))

	store := eventstore.NewMemoryStore()
	svc := NewDecisionService(e, store, func() (string, int) { return "p1", 1 })

	identityID := uuid.New().String()
	input := Input{
		Identity: Identity{ID: identityID, Type: "user"},
		Action:   Action{ActionType: "withdraw"},
		Context:  Context{Timestamp: time.Now()},
	}

	record, event, err := svc.CheckAction(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, Deny, record.Decision)
	require.Equal(t, []string{"kyc_missing"}, record.Reasons)
	require.Equal(t, eventstore.EventPolicyDecision, event.EventType)
	require.Equal(t, record.ID, event.PolicyDecisionID)
	require.Equal(t, identityID, event.ActorID)
}

func TestCheckActionPropagatesEvaluationErrors(t *testing.T) {
	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), nil))

	store := eventstore.NewMemoryStore()
	svc := NewDecisionService(e, store, nil)

	_, _, err = svc.CheckAction(context.Background(), Input{
		Identity: Identity{ID: "not-a-uuid"},
		Action:   Action{ActionType: "withdraw"},
		Context:  Context{Timestamp: time.Now()},
	})
	require.Error(t, err)
}
