package server

import (
	"net/http"

	"dupegraph/internal/api"
	"dupegraph/internal/store"
)

func (s *Server) handleRegisterFiles(w http.ResponseWriter, r *http.Request) {
	hashes, ok := s.decodeHashesReq(w, r)
	if !ok {
		return
	}
	added, err := s.store.RegisterFiles(r.Context(), hashes)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RegisterFilesResponse{Added: added, Total: len(hashes)})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.pathHashOrBadRequest(w, r)
	if !ok {
		return
	}

	var resp api.FileResponse
	err := s.store.View(r.Context(), func(tx *store.Tx) error {
		var err error
		if resp.File, err = tx.GetFile(hash); err != nil {
			return err
		}
		if resp.State, err = tx.FileState(hash); err != nil {
			return err
		}
		if resp.DuplicateGroup, err = tx.GetDuplicateGroup(hash); err != nil {
			return err
		}
		if resp.AlternateGroup, err = tx.GetAlternateGroup(hash); err != nil {
			return err
		}
		if resp.Counts, err = tx.RelationCounts(hash); err != nil {
			return err
		}
		resp.IsKing, err = tx.IsKing(hash)
		return err
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchPending(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryLimitReq(w, r, defaultPendingLimit, maxPendingLimit)
	if !ok {
		return
	}
	hashes, err := s.store.FilesNeedingSearch(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if hashes == nil {
		hashes = []string{}
	}
	s.writeJSON(w, http.StatusOK, api.PendingSearchResponse{Hashes: hashes})
}

func (s *Server) handleSearchComplete(w http.ResponseWriter, r *http.Request) {
	hashes, ok := s.decodeHashesReq(w, r)
	if !ok {
		return
	}
	updated, err := s.store.MarkSearched(r.Context(), hashes)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SearchCompleteResponse{Updated: updated})
}
