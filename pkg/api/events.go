package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/guardrail-systems/ledger/pkg/eventstore"
)

// createEventRequest is the POST /api/v1/events body.
type createEventRequest struct {
	EventType        string         `json:"event_type"`
	ActorID          string         `json:"actor_id"`
	PolicyDecisionID string         `json:"policy_decision_id,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createEvent(w, r)
	case http.MethodGet:
		s.listEvents(w, r)
	default:
		WriteMethodNotAllowed(w)
	}
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.EventType == "" || req.ActorID == "" {
		WriteBadRequest(w, "event_type and actor_id are required")
		return
	}

	event, err := s.Ledger.CreateEvent(r.Context(), eventstore.AppendRequest{
		EventType:        eventstore.EventType(req.EventType),
		ActorID:          req.ActorID,
		PolicyDecisionID: req.PolicyDecisionID,
		Payload:          req.Payload,
	})
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusCreated, event)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := eventstore.Filter{
		ActorID: q.Get("actor_id"),
	}
	if et := q.Get("event_type"); et != "" {
		filter.EventType = eventstore.EventType(et)
	}
	if from := q.Get("from_date"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			WriteBadRequest(w, "from_date must be RFC3339")
			return
		}
		filter.FromDate = t
	}
	if to := q.Get("to_date"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			WriteBadRequest(w, "to_date must be RFC3339")
			return
		}
		filter.ToDate = t
	}
	if ao := q.Get("anchored_only"); ao != "" {
		anchored, err := strconv.ParseBool(ao)
		if err != nil {
			WriteBadRequest(w, "anchored_only must be a boolean")
			return
		}
		filter.AnchoredOnly = &anchored
	}
	if perPage := q.Get("per_page"); perPage != "" {
		n, err := strconv.Atoi(perPage)
		if err != nil || n <= 0 {
			WriteBadRequest(w, "per_page must be a positive integer")
			return
		}
		filter.MaxResults = n
	}
	// page is accepted for forward compatibility with cursor-free clients
	// but this store only supports newest-first capped lists today.
	_ = q.Get("page")

	events, err := s.Ledger.ListEvents(r.Context(), filter)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, map[string]any{"events": events})
}

// handleEventByID dispatches GET /api/v1/events/{id} and
// GET /api/v1/events/{id}/proof.
func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/events/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		WriteNotFound(w, "event id is required")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/proof"); ok {
		s.getEventProof(w, r, id)
		return
	}
	s.getEvent(w, r, rest)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request, id string) {
	event, err := s.Ledger.GetEvent(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, event)
}

func (s *Server) getEventProof(w http.ResponseWriter, r *http.Request, id string) {
	event, err := s.Ledger.GetEvent(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}

	proof, err := s.Ledger.GetEventProof(r.Context(), event.Sequence)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	if proof == nil {
		WriteNotFound(w, "event has not been anchored yet")
		return
	}
	WriteData(w, http.StatusOK, proof)
}
