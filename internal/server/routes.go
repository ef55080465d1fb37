package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// File index.
	mux.HandleFunc("POST /v1/files", s.handleRegisterFiles)
	mux.HandleFunc("GET /v1/files/{hash}", s.handleGetFile)

	// Similarity search bookkeeping.
	mux.HandleFunc("GET /v1/search/pending", s.handleSearchPending)
	mux.HandleFunc("POST /v1/search/complete", s.handleSearchComplete)

	// Decisions.
	mux.HandleFunc("POST /v1/decisions", s.handleApplyDecision)
	mux.HandleFunc("GET /v1/decisions", s.handleListDecisions)

	// Potential-pair queue.
	mux.HandleFunc("POST /v1/potentials", s.handleEnqueue)
	mux.HandleFunc("GET /v1/potentials/next", s.handleNextPotentials)
	mux.HandleFunc("POST /v1/potentials/decide", s.handleDecidePair)
	mux.HandleFunc("DELETE /v1/potentials/{hash}", s.handlePurgePotentials)
	mux.HandleFunc("POST /v1/potentials/{hash}/reset", s.handleResetSearch)

	// Export.
	mux.HandleFunc("GET /v1/export", s.handleExport)

	return mux
}
