// Package policy implements the Policy Decision Engine: it loads
// declarative rule-sets, evaluates them against an identity/action/context
// input, and returns one of ALLOW, DENY, REQUIRE_APPROVAL with reasons.
package policy

import "time"

// Decision is the tri-state outcome of a policy evaluation.
type Decision string

const (
	Allow            Decision = "ALLOW"
	Deny             Decision = "DENY"
	RequireApproval  Decision = "REQUIRE_APPROVAL"
)

// Dialect selects which evaluation backend interprets a Policy's source text.
type Dialect string

const (
	DialectRego Dialect = "rego"
	DialectCEL  Dialect = "cel"
	DialectYAML Dialect = "yaml"
)

// Identity is the snapshot of the acting subject passed into evaluation.
type Identity struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	DisplayName string            `json:"display_name"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Credentials []Credential      `json:"credentials,omitempty"`
}

// Credential is one active credential held by an identity.
type Credential struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Action describes what the identity is attempting to do.
type Action struct {
	ActionType    string         `json:"action_type"`
	Amount        *string        `json:"amount,omitempty"`
	Asset         string         `json:"asset,omitempty"`
	SourceAddress string         `json:"source_address,omitempty"`
	TargetAddress string         `json:"target_address,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Context is ambient request metadata.
type Context struct {
	IPAddress   string         `json:"ip_address,omitempty"`
	DeviceID    string         `json:"device_id,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	GeoLocation string         `json:"geo_location,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	SessionID   string         `json:"session_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Input is the composed document handed to the evaluator, nested exactly
// as the evaluated rule-set expects it at data.guardrail.
type Input struct {
	Identity Identity `json:"identity"`
	Action   Action   `json:"action"`
	Context  Context  `json:"context"`
}

// Policy is a stored, versioned rule-set.
type Policy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Source    string    `json:"source"`
	Dialect   Dialect   `json:"dialect"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecisionRecord is the outcome of one evaluation, cross-referenced by
// policy_decision_id from the ledger event that records its summary. Only
// that event payload is persisted; the full record is not stored.
type DecisionRecord struct {
	ID                string    `json:"id"`
	IdentityID        string    `json:"identity_id"`
	PolicyID          string    `json:"policy_id"`
	PolicyVersion     int       `json:"policy_version"`
	Action            Action    `json:"action"`
	Context           Context   `json:"context"`
	Decision          Decision  `json:"decision"`
	Reasons           []string  `json:"reasons,omitempty"`
	RequiredApprovers []string  `json:"required_approvers,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// RawResult is the evaluator's interpretation of data.guardrail before
// precedence rules are applied: each field may independently be absent.
type RawResult struct {
	Deny            []string
	DenyBool        bool
	RequireApproval []string
	RequireBool     bool
	Reasons         []string
}

// Resolve applies the spec's strict precedence: DENY beats
// REQUIRE_APPROVAL beats ALLOW. A bare `reasons` key always contributes to
// the reason list regardless of which branch wins.
func (r RawResult) Resolve() (Decision, []string, []string) {
	reasons := append([]string(nil), r.Reasons...)

	if len(r.Deny) > 0 || r.DenyBool {
		reasons = append(reasons, r.Deny...)
		return Deny, reasons, nil
	}
	if len(r.RequireApproval) > 0 || r.RequireBool {
		return RequireApproval, reasons, append([]string(nil), r.RequireApproval...)
	}
	return Allow, reasons, nil
}
