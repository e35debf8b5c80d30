package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/guardrail-systems/ledger/pkg/apperr"
)

// inputSchemaSource is the JSON Schema every Input document must satisfy
// before it reaches a rule-set backend. It only pins down the fields every
// rule-set depends on regardless of dialect; anything in Metadata is
// intentionally left open-ended.
const inputSchemaSource = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["identity", "action", "context"],
	"properties": {
		"identity": {
			"type": "object",
			"required": ["id", "type"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"type": {"type": "string", "minLength": 1}
			}
		},
		"action": {
			"type": "object",
			"required": ["action_type"],
			"properties": {
				"action_type": {"type": "string", "minLength": 1}
			}
		},
		"context": {
			"type": "object",
			"required": ["timestamp"],
			"properties": {
				"timestamp": {"type": "string", "minLength": 1}
			}
		}
	}
}`

const inputSchemaResource = "guardrail-input.json"

// compileInputSchema compiles the fixed evaluation-input schema once at
// evaluator construction time, so a malformed schema fails fast on startup
// rather than on the first decision request.
func compileInputSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(inputSchemaResource, strings.NewReader(inputSchemaSource)); err != nil {
		return nil, fmt.Errorf("policy: add input schema resource: %w", err)
	}
	schema, err := compiler.Compile(inputSchemaResource)
	if err != nil {
		return nil, fmt.Errorf("policy: compile input schema: %w", err)
	}
	return schema, nil
}

// validateInput checks input against the compiled schema before it reaches
// any rule-set backend. It round-trips through JSON the same way the Rego
// and CEL backends do, so validation sees exactly the document shape
// evaluation will see.
func validateInput(schema *jsonschema.Schema, input Input) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("policy: marshal input for validation: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("policy: unmarshal input for validation: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, apperr.CodeInvalidInput,
			"input document failed schema validation", err)
	}
	return nil
}
