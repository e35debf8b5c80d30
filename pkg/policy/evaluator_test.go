package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func samplePolicy(id, source string) Policy {
	return Policy{ID: id, Name: id, Version: 1, Source: source, Dialect: DialectRego, IsActive: true, CreatedAt: time.Now()}
}

func sampleInput() Input {
	return Input{
		Identity: Identity{ID: "id-1", Type: "user", DisplayName: "alice"},
		Action:   Action{ActionType: "withdraw"},
		Context:  Context{Timestamp: time.Now()},
	}
}

func TestPolicyPrecedenceDenyBeatsRequireApproval(t *testing.T) {
	source := `
package guardrail

deny := ["kyc_missing"] if {
	true
}

require_approval := ["admin"] if {
	true
}
`
	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), []Policy{samplePolicy("p1", source)}))

	decision, reasons, approvers, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
	require.Equal(t, []string{"kyc_missing"}, reasons)
	require.Empty(t, approvers)
}

func TestPolicyRequireApprovalWhenNoDeny(t *testing.T) {
	source := `
package guardrail

require_approval := ["admin", "compliance"] if {
	true
}
`
	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), []Policy{samplePolicy("p1", source)}))

	decision, _, approvers, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, RequireApproval, decision)
	require.ElementsMatch(t, []string{"admin", "compliance"}, approvers)
}

func TestPolicyAllowWhenNoRulesMatch(t *testing.T) {
	source := `
package guardrail
`
	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), []Policy{samplePolicy("p1", source)}))

	decision, _, _, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, Allow, decision)
}

func TestLoadRejectsInvalidRuleset(t *testing.T) {
	e, err := NewEvaluator(nil)
	require.NoError(t, err)

	err = e.Load(context.Background(), []Policy{samplePolicy("bad", "this is not rego {{{")})
	require.Error(t, err)
}

func TestEvaluateRejectsInputMissingRequiredFields(t *testing.T) {
	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), []Policy{samplePolicy("p1", "package guardrail")}))

	bad := Input{Action: Action{ActionType: "withdraw"}, Context: Context{Timestamp: time.Now()}}
	_, _, _, err = e.Evaluate(context.Background(), bad)
	require.Error(t, err)
}

func TestYAMLDialectDenies(t *testing.T) {
	source := `
rules:
  - when: "action.action_type == 'withdraw'"
    deny: ["kyc_missing"]
`
	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.Equal(t, DialectYAML, DialectFor(source))
	require.NoError(t, e.Load(context.Background(), []Policy{{ID: "p1", Name: "p1", Version: 1, Source: source, Dialect: DialectYAML, IsActive: true, CreatedAt: time.Now()}}))

	decision, reasons, _, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
	require.Equal(t, []string{"kyc_missing"}, reasons)
}

func TestSimulateNeverMutatesActiveInstance(t *testing.T) {
	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), nil))

	denySource := `
package guardrail
deny := ["blocked"] if { true }
`
	decision, reasons, _, err := e.Simulate(context.Background(), samplePolicy("sim", denySource), sampleInput())
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
	require.Equal(t, []string{"blocked"}, reasons)

	// Active instance must still allow: Simulate must not have loaded it.
	liveDecision, _, _, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, Allow, liveDecision)
}
