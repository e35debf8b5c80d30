package api

import (
	"net/http"

	"github.com/guardrail-systems/ledger/pkg/anchor"
	"github.com/guardrail-systems/ledger/pkg/ledger"
	"github.com/guardrail-systems/ledger/pkg/policy"
)

// Server holds every service the HTTP surface delegates to and builds the
// route table. It has no state of its own beyond these references.
type Server struct {
	Ledger    *ledger.Service
	Decisions *policy.DecisionService
	Policies  policy.Store
	Evaluator *policy.Evaluator
	Batcher   *anchor.Batcher
}

// Router builds the full route table. Each collection's bare path goes to
// its collection handler; its trailing-slash prefix goes to the by-id
// handler, which parses the rest of the path itself.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/events/", s.handleEventByID)

	mux.HandleFunc("/api/v1/check", s.handleCheck)

	mux.HandleFunc("/api/v1/ledger/verify", s.handleLedgerVerify)
	mux.HandleFunc("/api/v1/ledger/export", s.handleLedgerExport)
	mux.HandleFunc("/api/v1/ledger/stats", s.handleLedgerStats)

	mux.HandleFunc("/api/v1/policies", s.handlePolicies)
	mux.HandleFunc("/api/v1/policies/", s.handlePolicyByID)

	mux.HandleFunc("/api/v1/anchors", s.handleAnchors)
	mux.HandleFunc("/api/v1/anchors/stats", s.handleAnchorStats)
	mux.HandleFunc("/api/v1/anchors/trigger", s.handleAnchorTrigger)
	mux.HandleFunc("/api/v1/anchors/", s.handleAnchorByID)

	return mux
}
