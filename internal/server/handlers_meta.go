package server

import (
	"net/http"

	"dupegraph/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.StoreInfo(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.InfoResponse{
		SchemaVersion:      info.SchemaVersion,
		Files:              info.Files,
		NeedsSearch:        info.NeedsSearch,
		DuplicateGroups:    info.DuplicateGroups,
		AlternateGroups:    info.AlternateGroups,
		FalsePositiveLinks: info.FalsePositiveLinks,
		PotentialPairs:     info.PotentialPairs,
		RejectedPairs:      info.RejectedPairs,
		Decisions:          info.Decisions,
	})
}
