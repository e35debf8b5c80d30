package api

import (
	"encoding/json"
	"net/http"

	"github.com/guardrail-systems/ledger/pkg/policy"
)

type checkResponse struct {
	Decision          policy.Decision `json:"decision"`
	Reasons           []string        `json:"reasons,omitempty"`
	RequiredApprovers []string        `json:"required_approvers,omitempty"`
	EventID           string          `json:"event_id"`
	DecisionID        string          `json:"decision_id"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var input policy.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if input.Identity.ID == "" || input.Action.ActionType == "" {
		WriteBadRequest(w, "identity.id and action.action_type are required")
		return
	}

	record, event, err := s.Decisions.CheckAction(r.Context(), input)
	if err != nil {
		WriteAppErr(w, err)
		return
	}

	WriteData(w, http.StatusOK, checkResponse{
		Decision:          record.Decision,
		Reasons:           record.Reasons,
		RequiredApprovers: record.RequiredApprovers,
		EventID:           event.ID,
		DecisionID:        record.ID,
	})
}
