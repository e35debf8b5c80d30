package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// CELBackend evaluates rule-sets written as a CEL expression that, given
// `identity`, `action`, and `context` variables, produces a map matching
// the same {deny, require_approval, reasons} shape the Rego backend
// interprets. Selected when a Policy's source begins with the
// "# dialect: cel" marker line.
type CELBackend struct {
	env *cel.Env
}

// NewCELBackend builds a CEL environment with the three guardrail input
// variables declared as dynamic maps.
func NewCELBackend() (*CELBackend, error) {
	env, err := cel.NewEnv(
		cel.Variable("identity", cel.DynType),
		cel.Variable("action", cel.DynType),
		cel.Variable("context", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel environment: %w", err)
	}
	return &CELBackend{env: env}, nil
}

func (b *CELBackend) Compile(ctx context.Context, source string) (CompiledRule, error) {
	ast, issues := b.env.Compile(stripDialectMarker(source))
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: invalid cel rule-set: %w", issues.Err())
	}
	prg, err := b.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: cel program construction: %w", err)
	}
	return &celRule{program: prg}, nil
}

type celRule struct {
	program cel.Program
}

func (r *celRule) Evaluate(ctx context.Context, input Input) (RawResult, error) {
	vars, err := toCELVars(input)
	if err != nil {
		return RawResult{}, err
	}
	out, _, err := r.program.Eval(vars)
	if err != nil {
		return RawResult{}, fmt.Errorf("policy: cel evaluation failed: %w", err)
	}
	obj, ok := out.Value().(map[ref.Val]ref.Val)
	if !ok {
		// A plain Go map also satisfies some CEL adapters; try ConvertToNative.
		if native, err := out.ConvertToNative(reflect.TypeOf(map[string]any{})); err == nil {
			if m, ok := native.(map[string]any); ok {
				return parseGuardrailObject(m), nil
			}
		}
		return RawResult{}, nil
	}
	plain := make(map[string]any, len(obj))
	for k, v := range obj {
		val := v.Value()
		// A CEL list literal's Value() is []ref.Val; convert lists to []any
		// so parseGuardrailObject sees the same shape Rego produces.
		if native, err := v.ConvertToNative(reflect.TypeOf([]any{})); err == nil {
			val = native
		}
		plain[fmt.Sprintf("%v", k.Value())] = val
	}
	return parseGuardrailObject(plain), nil
}

func toCELVars(input Input) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("policy: marshal cel input: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policy: unmarshal cel input: %w", err)
	}
	return map[string]any{
		"identity": doc["identity"],
		"action":   doc["action"],
		"context":  doc["context"],
	}, nil
}

const dialectMarker = "# dialect: cel"

func stripDialectMarker(source string) string {
	if len(source) >= len(dialectMarker) && source[:len(dialectMarker)] == dialectMarker {
		for i := len(dialectMarker); i < len(source); i++ {
			if source[i] == '\n' {
				return source[i+1:]
			}
		}
		return ""
	}
	return source
}
