package policy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/guardrail-systems/ledger/pkg/eventstore"
)

// DecisionService wraps an Evaluator with the recording half of CheckAction:
// a policy-decision ledger event for every evaluated action. The
// DecisionRecord it builds is returned to the caller; no table or store
// keeps it beyond the summary in the event payload. Identity and credential
// resolution happen upstream of this service — it accepts an
// already-resolved Input.
type DecisionService struct {
	evaluator *Evaluator
	events    eventstore.Store
	policyRef func() (policyID string, policyVersion int)
}

// NewDecisionService builds a DecisionService. policyRef reports which
// rule-set the recorded decision should be cross-referenced to — the
// newest active one, for callers that evaluate a single rule-set at a
// time, or a designated aggregate record otherwise.
func NewDecisionService(evaluator *Evaluator, events eventstore.Store, policyRef func() (string, int)) *DecisionService {
	return &DecisionService{evaluator: evaluator, events: events, policyRef: policyRef}
}

// CheckAction evaluates input against the active rule-set, builds a
// DecisionRecord, and appends a policy-decision ledger event carrying the
// decision summary as its payload. The record itself is not persisted.
func (d *DecisionService) CheckAction(ctx context.Context, input Input) (*DecisionRecord, *eventstore.Event, error) {
	decision, reasons, approvers, err := d.evaluator.Evaluate(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	policyID, policyVersion := "", 0
	if d.policyRef != nil {
		policyID, policyVersion = d.policyRef()
	}

	record := &DecisionRecord{
		ID:                uuid.New().String(),
		IdentityID:        input.Identity.ID,
		PolicyID:          policyID,
		PolicyVersion:     policyVersion,
		Action:            input.Action,
		Context:           input.Context,
		Decision:          decision,
		Reasons:           reasons,
		RequiredApprovers: approvers,
		CreatedAt:         time.Now().UTC(),
	}

	payload := map[string]any{
		"decision_id":        record.ID,
		"identity_id":        record.IdentityID,
		"policy_id":          record.PolicyID,
		"policy_version":     record.PolicyVersion,
		"action_type":        input.Action.ActionType,
		"decision":           string(record.Decision),
		"reasons":            record.Reasons,
		"required_approvers": record.RequiredApprovers,
	}

	event, err := d.events.Append(ctx, eventstore.AppendRequest{
		EventType:        eventstore.EventPolicyDecision,
		ActorID:          input.Identity.ID,
		PolicyDecisionID: record.ID,
		Payload:          payload,
	})
	if err != nil {
		return nil, nil, err
	}

	return record, event, nil
}
