package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guardrail-systems/ledger/pkg/policy"
)

type createPolicyRequest struct {
	Name    string        `json:"name"`
	Source  string        `json:"source"`
	Dialect string        `json:"dialect,omitempty"`
	Version int           `json:"version,omitempty"`
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createPolicy(w, r)
	case http.MethodGet:
		s.listPolicies(w, r)
	default:
		WriteMethodNotAllowed(w)
	}
}

func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" || req.Source == "" {
		WriteBadRequest(w, "name and source are required")
		return
	}

	dialect := policy.Dialect(req.Dialect)
	if dialect == "" {
		dialect = policy.DialectFor(req.Source)
	}

	now := time.Now().UTC()
	p := &policy.Policy{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Version:   req.Version,
		Source:    req.Source,
		Dialect:   dialect,
		IsActive:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Policies.Create(r.Context(), p); err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusCreated, p)
}

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.Policies.List(r.Context())
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, map[string]any{"policies": policies})
}

// handlePolicyByID dispatches every /api/v1/policies/{id}[/action] route.
func (s *Server) handlePolicyByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/policies/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		WriteNotFound(w, "policy id is required")
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			WriteMethodNotAllowed(w)
			return
		}
		s.getPolicy(w, r, id)
		return
	}

	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	switch parts[1] {
	case "activate":
		s.activatePolicy(w, r, id)
	case "deactivate":
		s.deactivatePolicy(w, r, id)
	case "simulate":
		s.simulatePolicy(w, r, id)
	default:
		WriteNotFound(w, "unknown policy action")
	}
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.Policies.Get(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, p)
}

// reloadEvaluator rebuilds the evaluator's active rule-set from the store,
// called after every activation or deactivation so evaluation always
// reflects the latest committed state.
func (s *Server) reloadEvaluator(r *http.Request) error {
	active, err := s.Policies.Active(r.Context())
	if err != nil {
		return err
	}
	policies := make([]policy.Policy, len(active))
	for i, p := range active {
		policies[i] = *p
	}
	return s.Evaluator.Load(r.Context(), policies)
}

func (s *Server) activatePolicy(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.Policies.Activate(r.Context(), id); err != nil {
		WriteAppErr(w, err)
		return
	}
	if err := s.reloadEvaluator(r); err != nil {
		WriteAppErr(w, err)
		return
	}
	p, err := s.Policies.Get(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, p)
}

func (s *Server) deactivatePolicy(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.Policies.Deactivate(r.Context(), id); err != nil {
		WriteAppErr(w, err)
		return
	}
	if err := s.reloadEvaluator(r); err != nil {
		WriteAppErr(w, err)
		return
	}
	p, err := s.Policies.Get(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, p)
}

type simulateRequest struct {
	Input policy.Input `json:"input"`
}

type simulateResponse struct {
	Decision          policy.Decision `json:"decision"`
	Reasons           []string        `json:"reasons,omitempty"`
	RequiredApprovers []string        `json:"required_approvers,omitempty"`
}

func (s *Server) simulatePolicy(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.Policies.Get(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	decision, reasons, approvers, err := s.Evaluator.Simulate(r.Context(), *p, req.Input)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, simulateResponse{Decision: decision, Reasons: reasons, RequiredApprovers: approvers})
}
