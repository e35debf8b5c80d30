package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/guardrail-systems/ledger/pkg/apperr"
)

// instance is the immutable, fully-compiled view of every active policy.
// A reload never mutates one of these in place; it builds a fresh instance
// and swaps the pointer.
type instance struct {
	rules map[string]compiledPolicy // policy id -> compiled rule
}

type compiledPolicy struct {
	policy   Policy
	compiled CompiledRule
}

// Evaluator holds the currently active rule-set behind an atomic pointer,
// so evaluation never blocks on reload and reload never blocks on a
// long-running evaluation.
type Evaluator struct {
	rego        *RegoBackend
	cel         *CELBackend
	yaml        *YAMLBackend
	inputSchema *jsonschema.Schema

	current atomic.Pointer[instance]
	logger  *slog.Logger
}

// NewEvaluator constructs an Evaluator with every backend ready and the
// evaluation-input schema compiled.
func NewEvaluator(logger *slog.Logger) (*Evaluator, error) {
	cel, err := NewCELBackend()
	if err != nil {
		return nil, fmt.Errorf("policy: evaluator init: %w", err)
	}
	yamlBackend, err := NewYAMLBackend()
	if err != nil {
		return nil, fmt.Errorf("policy: evaluator init: %w", err)
	}
	schema, err := compileInputSchema()
	if err != nil {
		return nil, fmt.Errorf("policy: evaluator init: %w", err)
	}
	e := &Evaluator{rego: NewRegoBackend(), cel: cel, yaml: yamlBackend, inputSchema: schema, logger: logger}
	e.current.Store(&instance{rules: map[string]compiledPolicy{}})
	return e, nil
}

func (e *Evaluator) backendFor(p Policy) Backend {
	switch p.Dialect {
	case DialectCEL:
		return e.cel
	case DialectYAML:
		return e.yaml
	default:
		return e.rego
	}
}

// Load builds a fresh instance from the given active policies and swaps it
// in atomically. Evaluations already in flight keep using the prior
// instance until they return.
func (e *Evaluator) Load(ctx context.Context, active []Policy) error {
	next := &instance{rules: make(map[string]compiledPolicy, len(active))}
	for _, p := range active {
		compiled, err := e.backendFor(p).Compile(ctx, p.Source)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidRuleset, apperr.CodeInvalidRuleset,
				fmt.Sprintf("policy %s failed to compile", p.ID), err)
		}
		next.rules[p.ID] = compiledPolicy{policy: p, compiled: compiled}
	}
	e.current.Store(next)
	if e.logger != nil {
		e.logger.InfoContext(ctx, "policy instance reloaded", "active_rules", len(next.rules))
	}
	return nil
}

// Evaluate runs every active rule-set against input and folds the results
// together: DENY from any rule-set makes the overall decision DENY,
// REQUIRE_APPROVAL from any (absent a DENY) makes it REQUIRE_APPROVAL,
// otherwise ALLOW. Reasons and required approvers accumulate across
// rule-sets.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Decision, []string, []string, error) {
	if err := validateInput(e.inputSchema, input); err != nil {
		return "", nil, nil, err
	}

	snap := e.current.Load()
	if len(snap.rules) == 0 {
		return Allow, nil, nil, nil
	}

	var reasons, approvers []string
	decision := Allow

	for _, cp := range snap.rules {
		raw, err := cp.compiled.Evaluate(ctx, input)
		if err != nil {
			return "", nil, nil, apperr.Wrap(apperr.KindPolicyEvaluationError,
				apperr.CodePolicyEvaluationFailed,
				fmt.Sprintf("policy %s evaluation failed", cp.policy.ID), err)
		}
		d, r, a := raw.Resolve()
		reasons = append(reasons, r...)
		approvers = append(approvers, a...)
		if d == Deny {
			decision = Deny
		} else if d == RequireApproval && decision != Deny {
			decision = RequireApproval
		}
	}

	return decision, reasons, approvers, nil
}

// Simulate evaluates a single named policy in isolation, bypassing the
// active instance entirely. It never mutates evaluator state.
func (e *Evaluator) Simulate(ctx context.Context, p Policy, input Input) (Decision, []string, []string, error) {
	if err := validateInput(e.inputSchema, input); err != nil {
		return "", nil, nil, err
	}

	compiled, err := e.backendFor(p).Compile(ctx, p.Source)
	if err != nil {
		return "", nil, nil, apperr.Wrap(apperr.KindInvalidRuleset, apperr.CodeInvalidRuleset,
			"rule-set failed to compile", err)
	}
	raw, err := compiled.Evaluate(ctx, input)
	if err != nil {
		return "", nil, nil, apperr.Wrap(apperr.KindPolicyEvaluationError,
			apperr.CodePolicyEvaluationFailed, "evaluation failed", err)
	}
	d, r, a := raw.Resolve()
	return d, r, a, nil
}

// DialectFor inspects a rule-set's source text for the CEL marker line or a
// top-level YAML "rules:" key, defaulting to Rego.
func DialectFor(source string) Dialect {
	trimmed := strings.TrimSpace(source)
	if strings.HasPrefix(source, dialectMarker) {
		return DialectCEL
	}
	if strings.HasPrefix(trimmed, "rules:") {
		return DialectYAML
	}
	return DialectRego
}
