package server

import (
	"fmt"
	"net/http"
	"time"

	"dupegraph/internal/api"
	"dupegraph/internal/models"
)

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if !s.enqueueLimiter.Allow(requestClientIP(r), time.Now()) {
		s.writeServiceError(w, r, resourceExhausted(fmt.Errorf("enqueue rate exceeded; retry later")))
		return
	}

	var req api.EnqueueRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	pairs, err := normalizePairs(req.Pairs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	added, err := s.queue.Enqueue(r.Context(), pairs)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EnqueueResponse{Added: added})
}

func (s *Server) handleNextPotentials(w http.ResponseWriter, r *http.Request) {
	limit, err := queryIntDefault(r, "limit", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if limit > maxBatchLimit {
		limit = maxBatchLimit
	}
	pairs, err := s.queue.NextBatch(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if pairs == nil {
		pairs = []models.PotentialPair{}
	}
	s.writeJSON(w, http.StatusOK, pairs)
}

func (s *Server) handleDecidePair(w http.ResponseWriter, r *http.Request) {
	var req api.PairDecisionRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	a, err := normalizeHash(req.A)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := normalizeHash(req.B)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	action, err := normalizeAction(req.Action)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.queue.RecordDecision(r.Context(), a, b, action, req.Better)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePurgePotentials(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.pathHashOrBadRequest(w, r)
	if !ok {
		return
	}
	if !confirmed(r) {
		s.writeServiceError(w, r, confirmationRequired(fmt.Errorf("removing potential pairs requires X-Confirm: true header")))
		return
	}
	result, err := s.queue.RemoveAllPotentials(r.Context(), hash)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResetSearch(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.pathHashOrBadRequest(w, r)
	if !ok {
		return
	}
	result, err := s.queue.ResetSearchStatus(r.Context(), hash)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
