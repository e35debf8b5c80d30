package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// RegoBackend compiles and evaluates rule-sets written in Rego, queried at
// data.guardrail, embedded in-process (no network hop to a remote OPA
// server, unlike the edge services this ledger is deployed alongside).
type RegoBackend struct{}

// NewRegoBackend constructs the default backend.
func NewRegoBackend() *RegoBackend { return &RegoBackend{} }

func (b *RegoBackend) Compile(ctx context.Context, source string) (CompiledRule, error) {
	r := rego.New(
		rego.Query("data.guardrail"),
		rego.Module("guardrail.rego", source),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid rego rule-set: %w", err)
	}
	return &regoRule{prepared: pq}, nil
}

type regoRule struct {
	prepared rego.PreparedEvalQuery
}

func (r *regoRule) Evaluate(ctx context.Context, input Input) (RawResult, error) {
	// Round-trip through JSON so struct tags produce the plain map/slice
	// shape Rego expects, rather than leaking Go-specific typing.
	raw, err := json.Marshal(input)
	if err != nil {
		return RawResult{}, fmt.Errorf("policy: marshal input: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RawResult{}, fmt.Errorf("policy: unmarshal input: %w", err)
	}

	rs, err := r.prepared.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return RawResult{}, fmt.Errorf("policy: rego evaluation failed: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return RawResult{}, nil
	}

	obj, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return RawResult{}, nil
	}
	return parseGuardrailObject(obj), nil
}

// parseGuardrailObject interprets the object found at data.guardrail as
// specified: deny/require_approval may be string arrays or booleans,
// reasons is always a string array when present.
func parseGuardrailObject(obj map[string]any) RawResult {
	var res RawResult

	switch v := obj["deny"].(type) {
	case bool:
		res.DenyBool = v
	case []any:
		res.Deny = toStringSlice(v)
	}

	switch v := obj["require_approval"].(type) {
	case bool:
		res.RequireBool = v
	case []any:
		res.RequireApproval = toStringSlice(v)
	}

	if v, ok := obj["reasons"].([]any); ok {
		res.Reasons = toStringSlice(v)
	}

	return res
}

func toStringSlice(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
