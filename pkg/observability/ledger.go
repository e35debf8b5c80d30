package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ledger-specific semantic convention attributes.
var (
	// Event attributes
	AttrEventType = attribute.Key("ledger.event.type")
	AttrActorID   = attribute.Key("ledger.event.actor_id")
	AttrSequence  = attribute.Key("ledger.event.sequence")

	// Anchor attributes
	AttrBatchID    = attribute.Key("ledger.anchor.batch_id")
	AttrSubstrate  = attribute.Key("ledger.anchor.substrate")
	AttrEventCount = attribute.Key("ledger.anchor.event_count")

	// Policy/decision attributes
	AttrPolicyID      = attribute.Key("ledger.policy.id")
	AttrPolicyVersion = attribute.Key("ledger.policy.version")
	AttrDecision      = attribute.Key("ledger.policy.decision")
	AttrDecisionLatMs = attribute.Key("ledger.policy.latency_ms")
)

// EventAppendOperation creates attributes for a ledger event append.
func EventAppendOperation(eventType, actorID string, sequence int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEventType.String(eventType),
		AttrActorID.String(actorID),
		AttrSequence.Int64(sequence),
	}
}

// AnchorOperation creates attributes for a batch-anchoring operation.
func AnchorOperation(batchID, substrate string, eventCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBatchID.String(batchID),
		AttrSubstrate.String(substrate),
		AttrEventCount.Int(eventCount),
	}
}

// PolicyDecisionOperation creates attributes for a policy evaluation.
func PolicyDecisionOperation(policyID string, policyVersion int, decision string, latencyMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPolicyID.String(policyID),
		AttrPolicyVersion.Int(policyVersion),
		AttrDecision.String(decision),
		AttrDecisionLatMs.Float64(latencyMs),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records an error on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
