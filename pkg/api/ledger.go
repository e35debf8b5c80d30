package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (s *Server) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	start, err := strconv.ParseUint(q.Get("start_seq"), 10, 64)
	if err != nil {
		WriteBadRequest(w, "start_seq must be a positive integer")
		return
	}
	end, err := strconv.ParseUint(q.Get("end_seq"), 10, 64)
	if err != nil {
		WriteBadRequest(w, "end_seq must be a positive integer")
		return
	}

	report, err := s.Ledger.VerifyChain(r.Context(), start, end)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, report)
}

type exportRequest struct {
	StartSeq uint64 `json:"start_seq"`
	EndSeq   uint64 `json:"end_seq"`
}

func (s *Server) handleLedgerExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	bundle, err := s.Ledger.Export(r.Context(), req.StartSeq, req.EndSeq)
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, bundle)
}

func (s *Server) handleLedgerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	stats, err := s.Ledger.Stats(r.Context())
	if err != nil {
		WriteAppErr(w, err)
		return
	}
	WriteData(w, http.StatusOK, stats)
}
