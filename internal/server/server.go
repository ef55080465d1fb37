package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dupegraph/internal/api"
	"dupegraph/internal/auth"
	"dupegraph/internal/dupes"
	"dupegraph/internal/store"
)

const (
	allowRemoteEnvKey      = "DUPEGRAPH_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	exportConcurrencyLimit = 2

	defaultEnqueueRate  = 50.0
	defaultEnqueueBurst = 100
	defaultPendingLimit = 100
	maxPendingLimit     = 10000
	defaultLogLimit     = 50
	maxLogLimit         = 1000
	maxBatchLimit       = 500
	exportFlushEvery    = 100
)

// Options configures a Server. Zero values select defaults.
type Options struct {
	Logger *slog.Logger
	// TokenHash is the bcrypt hash of the bearer token. Empty disables auth.
	TokenHash    string
	EnqueueRate  float64
	EnqueueBurst int
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server wraps HTTP handlers for the dupegraph API.
type Server struct {
	addr           string
	store          store.RelationshipStore
	processor      *dupes.Processor
	queue          *dupes.Queue
	logger         *slog.Logger
	tokenHash      string
	gatherer       prometheus.Gatherer
	enqueueLimiter *clientRateLimiter
	exportLimiter  chan struct{}

	httpServer *http.Server

	tokenMu       sync.Mutex
	verifiedToken string
}

// New creates a new server instance.
func New(addr string, st store.RelationshipStore, processor *dupes.Processor, queue *dupes.Queue, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	enqueueRate := opts.EnqueueRate
	if enqueueRate <= 0 {
		enqueueRate = defaultEnqueueRate
	}
	enqueueBurst := opts.EnqueueBurst
	if enqueueBurst <= 0 {
		enqueueBurst = defaultEnqueueBurst
	}

	s := &Server{
		addr:           addr,
		store:          st,
		processor:      processor,
		queue:          queue,
		logger:         logger,
		tokenHash:      strings.TrimSpace(opts.TokenHash),
		gatherer:       gatherer,
		enqueueLimiter: newClientRateLimiter(enqueueRate, enqueueBurst),
		exportLimiter:  make(chan struct{}, exportConcurrencyLimit),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// ListenAndServe starts the HTTP server. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr, "auth", s.tokenHash != "")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log().Info("stopping server", "addr", s.addr)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok || !s.tokenValid(token) {
			s.writeErrorReq(w, r, http.StatusUnauthorized, makeAPIError(
				http.StatusUnauthorized, api.CodeUnauthorized, ErrCodeUnauthorized, fmt.Errorf("unauthorized"),
			))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenValid checks token against the configured hash. The last accepted
// token is remembered so bcrypt runs once per token change.
func (s *Server) tokenValid(token string) bool {
	s.tokenMu.Lock()
	cached := s.verifiedToken
	s.tokenMu.Unlock()
	if cached != "" && subtle.ConstantTimeCompare([]byte(cached), []byte(token)) == 1 {
		return true
	}
	if !auth.VerifyToken(s.tokenHash, token) {
		return false
	}
	s.tokenMu.Lock()
	s.verifiedToken = token
	s.tokenMu.Unlock()
	return true
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		s.writeErrorReq(w, r, http.StatusTooManyRequests, resourceExhausted(fmt.Errorf("too many concurrent %s requests", name)))
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
