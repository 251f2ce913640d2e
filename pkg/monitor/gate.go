package monitor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type tagContextKey struct{}

// Tagged reports whether the request already carries the interception
// marker. Tagged requests are never intercepted a second time, which keeps a
// doubly-installed interceptor from recording the same leg twice.
func Tagged(req *http.Request) bool {
	return req.Context().Value(tagContextKey{}) != nil
}

// Gate is the allow/deny decision point placed in front of every outgoing
// request.
type Gate struct {
	active atomic.Bool

	mu             sync.RWMutex
	ignoredDomains []string

	logger *zap.Logger
}

// NewGate creates an inactive gate.
func NewGate(logger *zap.Logger) *Gate {
	return &Gate{logger: logger}
}

// Activate enables interception globally.
func (g *Gate) Activate() {
	g.active.Store(true)
}

// Deactivate disables interception globally.
func (g *Gate) Deactivate() {
	g.active.Store(false)
}

// Active reports whether interception is enabled.
func (g *Gate) Active() bool {
	return g.active.Load()
}

// ConfigureIgnoredDomains replaces the set of substrings whose presence in
// an absolute URL exempts the request from interception.
func (g *Gate) ConfigureIgnoredDomains(domains []string) {
	copied := make([]string, len(domains))
	copy(copied, domains)

	g.mu.Lock()
	g.ignoredDomains = copied
	g.mu.Unlock()
}

// Allow decides whether an outgoing request should be intercepted.
func (g *Gate) Allow(req *http.Request) bool {
	if !g.active.Load() {
		return false
	}

	if req.URL == nil || req.URL.Host == "" {
		return false
	}

	scheme := strings.ToLower(req.URL.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}

	if Tagged(req) {
		return false
	}

	absolute := req.URL.String()
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, domain := range g.ignoredDomains {
		if strings.Contains(absolute, domain) {
			return false
		}
	}

	return true
}

// Approve stamps an allowed request with the interception marker and
// preserves a copy of its body, which the transport pipeline may consume
// downstream. It returns the tagged request to dispatch plus the immutable
// snapshot to record.
func (g *Gate) Approve(req *http.Request) (*http.Request, *RequestSnapshot, error) {
	snapshot, err := snapshotRequest(req)
	if err != nil {
		return nil, nil, err
	}

	tagged := req.Clone(context.WithValue(req.Context(), tagContextKey{}, true))
	if snapshot.Body != nil {
		body := snapshot.Body
		tagged.Body = io.NopCloser(bytes.NewReader(body))
		tagged.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		tagged.ContentLength = int64(len(body))
	}

	return tagged, snapshot, nil
}
