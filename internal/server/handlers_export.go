package server

import (
	"encoding/json"
	"net/http"

	"dupegraph/internal/models"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.exportLimiter, "export", func() {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		flusher, _ := w.(http.Flusher)

		records := 0
		err := s.store.Export(r.Context(), func(record models.ExportRecord) error {
			if err := enc.Encode(record); err != nil {
				return err
			}
			records++
			if flusher != nil && records%exportFlushEvery == 0 {
				flusher.Flush()
			}
			return nil
		})
		if err != nil {
			// Headers are gone; the truncated stream is all the client sees.
			s.log().Error("export", "method", r.Method, "path", r.URL.Path, "records", records, "error_code", ErrCodeExportFailed, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
}
