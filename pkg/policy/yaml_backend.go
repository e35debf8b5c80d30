package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlRuleSet is the YAML-formatted rule-set source accepted as an
// alternative to raw Rego/CEL text: a flat list of guarded conditions
// instead of a full expression language, for rule authors who don't need
// Rego's or CEL's generality.
type yamlRuleSet struct {
	Rules []yamlRule `yaml:"rules"`
}

type yamlRule struct {
	When            string   `yaml:"when"`
	Deny            []string `yaml:"deny,omitempty"`
	RequireApproval []string `yaml:"require_approval,omitempty"`
	Reasons         []string `yaml:"reasons,omitempty"`
}

// YAMLBackend compiles a yamlRuleSet by transpiling it to a single CEL
// expression and delegating evaluation to a CELBackend, so the two
// declarative dialects share one evaluation engine.
type YAMLBackend struct {
	cel *CELBackend
}

// NewYAMLBackend builds a YAMLBackend around its own CEL environment.
func NewYAMLBackend() (*YAMLBackend, error) {
	cel, err := NewCELBackend()
	if err != nil {
		return nil, fmt.Errorf("policy: yaml backend init: %w", err)
	}
	return &YAMLBackend{cel: cel}, nil
}

func (b *YAMLBackend) Compile(ctx context.Context, source string) (CompiledRule, error) {
	var ruleSet yamlRuleSet
	if err := yaml.Unmarshal([]byte(source), &ruleSet); err != nil {
		return nil, fmt.Errorf("policy: invalid yaml rule-set: %w", err)
	}
	if len(ruleSet.Rules) == 0 {
		return nil, fmt.Errorf("policy: yaml rule-set has no rules")
	}

	expr, err := translateYAMLRules(ruleSet.Rules)
	if err != nil {
		return nil, fmt.Errorf("policy: translate yaml rule-set: %w", err)
	}

	return b.cel.Compile(ctx, expr)
}

// translateYAMLRules renders a yamlRuleSet as the single CEL map expression
// the CEL backend expects: each rule's `when` condition gates whether its
// deny/require_approval/reasons lists contribute to the aggregate result.
func translateYAMLRules(rules []yamlRule) (string, error) {
	var denyParts, approvalParts, reasonParts []string

	for i, r := range rules {
		when := strings.TrimSpace(r.When)
		if when == "" {
			return "", fmt.Errorf("rule %d: when condition is required", i)
		}
		if len(r.Deny) > 0 {
			denyParts = append(denyParts, fmt.Sprintf("((%s) ? %s : [])", when, stringListLiteral(r.Deny)))
		}
		if len(r.RequireApproval) > 0 {
			approvalParts = append(approvalParts, fmt.Sprintf("((%s) ? %s : [])", when, stringListLiteral(r.RequireApproval)))
		}
		if len(r.Reasons) > 0 {
			reasonParts = append(reasonParts, fmt.Sprintf("((%s) ? %s : [])", when, stringListLiteral(r.Reasons)))
		}
	}

	return fmt.Sprintf(`{"deny": %s, "require_approval": %s, "reasons": %s}`,
		concatOrEmpty(denyParts), concatOrEmpty(approvalParts), concatOrEmpty(reasonParts)), nil
}

func concatOrEmpty(parts []string) string {
	if len(parts) == 0 {
		return "[]"
	}
	return strings.Join(parts, " + ")
}

func stringListLiteral(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
