package policy

import "context"

// Backend evaluates a single compiled rule-set against an Input document
// and returns the interpreted result at data.guardrail. Implementations
// must be fail-closed: any internal error is returned to the caller rather
// than silently defaulting to ALLOW.
type Backend interface {
	// Compile parses and prepares source for evaluation. It must reject a
	// syntactically invalid rule-set (INVALID_RULESET at the caller).
	Compile(ctx context.Context, source string) (CompiledRule, error)
}

// CompiledRule is a single rule-set ready for repeated evaluation.
type CompiledRule interface {
	Evaluate(ctx context.Context, input Input) (RawResult, error)
}
