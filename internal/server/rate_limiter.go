package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientRateLimiter hands out one token bucket per client address.
type clientRateLimiter struct {
	mu            sync.Mutex
	entries       map[string]*clientRateEntry
	limit         rate.Limit
	burst         int
	staleAfter    time.Duration
	opCount       int
	cleanupEveryN int
}

type clientRateEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

func newClientRateLimiter(perSecond float64, burst int) *clientRateLimiter {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	return &clientRateLimiter{
		entries:       make(map[string]*clientRateEntry),
		limit:         rate.Limit(perSecond),
		burst:         burst,
		staleAfter:    10 * time.Minute,
		cleanupEveryN: 64,
	}
}

func (l *clientRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &clientRateEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeenAt = now
	l.maybeCleanupLocked(now)
	return entry.limiter.AllowN(now, 1)
}

func (l *clientRateLimiter) maybeCleanupLocked(now time.Time) {
	l.opCount++
	if l.opCount%l.cleanupEveryN != 0 {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeenAt) > l.staleAfter {
			delete(l.entries, key)
		}
	}
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
