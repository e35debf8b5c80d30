package api_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guardrail-systems/ledger/pkg/anchor"
	"github.com/guardrail-systems/ledger/pkg/api"
	"github.com/guardrail-systems/ledger/pkg/eventstore"
	"github.com/guardrail-systems/ledger/pkg/ledger"
	"github.com/guardrail-systems/ledger/pkg/policy"
)

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	events := eventstore.NewMemoryStore()
	ledgerSvc := ledger.New(events, nil)

	batches := anchor.NewMemoryBatchStore()
	batcher := anchor.New(events, batches, nil, 100, slog.Default())
	ledgerSvc.SetBatchRangeLookup(batcher.BatchRangeLookup())

	evaluator, err := policy.NewEvaluator(slog.Default())
	require.NoError(t, err)
	policies := policy.NewMemoryStore()
	decisions := policy.NewDecisionService(evaluator, events, func() (string, int) { return "", 0 })

	return &api.Server{
		Ledger:    ledgerSvc,
		Decisions: decisions,
		Policies:  policies,
		Evaluator: evaluator,
		Batcher:   batcher,
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env api.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	if out == nil {
		return
	}
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestCreateAndGetEventRoundTrip(t *testing.T) {
	s := newTestServer(t)
	mux := s.Router()

	actorID := uuid.New().String()
	body, _ := json.Marshal(map[string]any{
		"event_type": "system-event",
		"actor_id":   actorID,
		"payload":    map[string]any{"k": "v"},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created eventstore.Event
	decodeBody(t, w, &created)
	require.NotEmpty(t, created.ID)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/"+created.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var fetched eventstore.Event
	decodeBody(t, w, &fetched)
	require.Equal(t, created.EventHash, fetched.EventHash)
}

func TestEventNotFoundReturns404Envelope(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	var env api.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.False(t, env.Success)
}

func TestUnanchoredEventProofReturns404(t *testing.T) {
	s := newTestServer(t)
	mux := s.Router()

	actorID := uuid.New().String()
	body, _ := json.Marshal(map[string]any{"event_type": "system-event", "actor_id": actorID})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body)))
	var created eventstore.Event
	decodeBody(t, w, &created)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/"+created.ID+"/proof", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPolicyCreateActivateDeactivate(t *testing.T) {
	s := newTestServer(t)
	mux := s.Router()

	body, _ := json.Marshal(map[string]any{
		"name":   "withdrawal-limits",
		"source": "package guardrail\n\nallow if { true }\n",
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/policies", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code)

	var created policy.Policy
	decodeBody(t, w, &created)
	require.False(t, created.IsActive)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/policies/"+created.ID+"/activate", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var activated policy.Policy
	decodeBody(t, w, &activated)
	require.True(t, activated.IsActive)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/policies/"+created.ID+"/deactivate", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var deactivated policy.Policy
	decodeBody(t, w, &deactivated)
	require.False(t, deactivated.IsActive)
}

func TestCheckActionRecordsDecisionAndEvent(t *testing.T) {
	s := newTestServer(t)
	mux := s.Router()

	input := map[string]any{
		"identity": map[string]any{"id": uuid.New().String(), "type": "user"},
		"action":   map[string]any{"action_type": "withdrawal"},
		"context":  map[string]any{},
	}
	body, _ := json.Marshal(input)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/check", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Decision string `json:"decision"`
		EventID  string `json:"event_id"`
	}
	decodeBody(t, w, &out)
	require.Equal(t, "ALLOW", out.Decision)
	require.NotEmpty(t, out.EventID)
}

func TestAnchorTriggerWithNoEventsReturnsNilBatch(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/anchors/trigger", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLedgerStatsReflectsAppendedEvents(t *testing.T) {
	s := newTestServer(t)
	mux := s.Router()

	body, _ := json.Marshal(map[string]any{"event_type": "system-event", "actor_id": uuid.New().String()})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats ledger.Stats
	decodeBody(t, w, &stats)
	require.Equal(t, uint64(1), stats.TotalEvents)
	require.Equal(t, uint64(1), stats.UnanchoredEvents)
}

func TestMethodNotAllowedOnEvents(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/events", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
