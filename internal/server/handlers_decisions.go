package server

import (
	"fmt"
	"net/http"

	"dupegraph/internal/api"
	"dupegraph/internal/models"
)

func (s *Server) handleApplyDecision(w http.ResponseWriter, r *http.Request) {
	var req api.DecisionRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	action, err := normalizeAction(string(req.Action))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if action.IsDestructive() && !confirmed(r) {
		s.writeServiceError(w, r, confirmationRequired(fmt.Errorf("%s requires X-Confirm: true header", action)))
		return
	}
	req.Action = action

	result, err := s.processor.Apply(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryLimitReq(w, r, defaultLogLimit, maxLogLimit)
	if !ok {
		return
	}
	entries, err := s.store.ListDecisions(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.DecisionLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}
