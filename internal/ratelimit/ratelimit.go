// Package ratelimit throttles cloud-drop uploads and downloads per client.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultWindow        = time.Hour
	DefaultUploadLimit   = 10
	DefaultDownloadLimit = 50
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter allows limit events per key per window. Each key gets a token
// bucket holding limit tokens that refills over one window.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow records one event for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Cleanup forgets keys idle for a full window, by which time their bucket is
// full again. It returns the number of keys removed.
func (l *Limiter) Cleanup() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.window {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of the remote address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
