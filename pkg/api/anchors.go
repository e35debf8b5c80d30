package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	batches, err := s.Batcher.ListBatches(r.Context())
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) handleAnchorStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	stats, err := s.Batcher.Stats(r.Context())
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, stats)
}

func (s *Server) handleAnchorTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	batch, err := s.Batcher.RunOnce(r.Context())
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	if batch == nil {
		WriteData(w, http.StatusOK, map[string]any{"batch": nil, "message": "no unanchored events to select"})
		return
	}
	WriteData(w, http.StatusOK, batch)
}

// handleAnchorByID dispatches every other /api/v1/anchors/... route: batch
// lookups and retries (keyed by batch id), and substrate administration
// (keyed by substrate name).
func (s *Server) handleAnchorByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/anchors/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		WriteNotFound(w, "anchor id is required")
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	key := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			WriteMethodNotAllowed(w)
			return
		}
		s.getBatch(w, r, key)
		return
	}

	switch parts[1] {
	case "retry":
		if r.Method != http.MethodPost {
			WriteMethodNotAllowed(w)
			return
		}
		s.retryBatch(w, r, key)
	case "substrate-state":
		if r.Method != http.MethodGet {
			WriteMethodNotAllowed(w)
			return
		}
		s.substrateState(w, r, key)
	case "pause":
		s.substrateAction(w, r, key, http.MethodPost, func() error { return s.Batcher.PauseSubstrate(r.Context(), key) })
	case "unpause":
		s.substrateAction(w, r, key, http.MethodPost, func() error { return s.Batcher.UnpauseSubstrate(r.Context(), key) })
	case "authorize":
		s.anchorAuthorityAction(w, r, key, s.Batcher.AuthorizeAnchor)
	case "revoke":
		s.anchorAuthorityAction(w, r, key, s.Batcher.RevokeAnchor)
	default:
		WriteNotFound(w, "unknown anchor route")
	}
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request, id string) {
	batch, err := s.Batcher.GetBatch(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, batch)
}

func (s *Server) retryBatch(w http.ResponseWriter, r *http.Request, id string) {
	batch, err := s.Batcher.RetryBatch(r.Context(), id)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, batch)
}

func (s *Server) substrateState(w http.ResponseWriter, r *http.Request, batchID string) {
	substrate := r.URL.Query().Get("substrate")
	if substrate == "" {
		WriteBadRequest(w, "substrate query parameter is required")
		return
	}
	merkleRoot, eventCount, timestamp, err := s.Batcher.SubstrateState(r.Context(), batchID, substrate)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, map[string]any{
		"merkle_root": hex.EncodeToString(merkleRoot[:]),
		"event_count": eventCount,
		"timestamp":   timestamp,
	})
}

func (s *Server) substrateAction(w http.ResponseWriter, r *http.Request, substrate, method string, action func() error) {
	if r.Method != method {
		WriteMethodNotAllowed(w)
		return
	}
	if err := action(); err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, map[string]string{"substrate": substrate, "status": "ok"})
}

type anchorAuthorityRequest struct {
	AnchorAddress string `json:"anchor_address"`
}

// anchorAuthorityAction handles authorize/revoke, both of which take an
// anchor_address in the request body and are keyed by substrate name.
func (s *Server) anchorAuthorityAction(w http.ResponseWriter, r *http.Request, substrate string, action func(ctx context.Context, substrate, anchorAddress string) error) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req anchorAuthorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.AnchorAddress == "" {
		WriteBadRequest(w, "anchor_address is required")
		return
	}

	if err := action(r.Context(), substrate, req.AnchorAddress); err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, map[string]string{"substrate": substrate, "status": "ok"})
}
