package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"netmon/pkg/profile"
)

// errAborted concludes records whose response body was abandoned before it
// was fully read. It is internal bookkeeping, never surfaced to the caller.
var errAborted = errors.New("request aborted before completion")

// Transport is the request lifecycle handler: an http.RoundTripper that
// decides, per outgoing request, whether to serve a profile response or
// dispatch to the real network, and records the outcome exactly once.
type Transport struct {
	base  http.RoundTripper
	store *Store
	gate  *Gate

	recordMediaPayload atomic.Bool

	logger *zap.Logger
}

// NewTransport creates a lifecycle handler dispatching real requests through
// base. A nil base falls back to http.DefaultTransport; the base must not
// route back through this transport.
func NewTransport(base http.RoundTripper, store *Store, gate *Gate, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	t := &Transport{
		base:   base,
		store:  store,
		gate:   gate,
		logger: logger,
	}
	t.recordMediaPayload.Store(true)

	return t
}

// SetRecordMediaPayload toggles whether image response bodies are retained
// in completed records. Size accounting always uses the real downloaded
// size.
func (t *Transport) SetRecordMediaPayload(enabled bool) {
	t.recordMediaPayload.Store(enabled)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.gate.Allow(req) {
		return t.base.RoundTrip(req)
	}

	tagged, snapshot, err := t.gate.Approve(req)
	if err != nil {
		t.logger.Warn("Failed to snapshot request, passing through",
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return t.base.RoundTrip(req)
	}

	record := &Record{
		Key:            uuid.New().String(),
		Request:        snapshot,
		StartTimestamp: time.Now(),
		RequestSize:    snapshot.contentLength(),
	}

	// Persist before any response exists so in-flight requests are
	// observable.
	t.store.SetRecord(record)

	t.logger.Debug("Starting request", zap.String("url", snapshot.URL))

	outcome := t.store.ResolveAndClaim(snapshot.prospect())

	t.logger.Debug("Request matching concluded",
		zap.String("outcome", outcome.PrettyPrinted(snapshot.URL)))

	if outcome.Kind == profile.MatchedProfileAndResponse {
		return t.serveProfile(tagged, record.Key, snapshot, outcome.Response)
	}

	return t.dispatchNetwork(tagged, record.Key, snapshot)
}

// serveProfile synthesizes a response from a matched profile response after
// honoring its delay. The usage counter was already bumped when the response
// was claimed.
func (t *Transport) serveProfile(req *http.Request, key string, snapshot *RequestSnapshot, response *profile.Response) (*http.Response, error) {
	if response.Delay > 0 {
		timer := time.NewTimer(response.Delay)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			err := req.Context().Err()
			t.store.Conclude(key, 0, &ClientError{Err: err})
			return nil, err
		}
	}

	headers := make(map[string]string, len(response.Headers))
	for k, v := range response.Headers {
		headers[k] = v
	}

	meta := &ResponseMeta{
		StatusCode: response.StatusCode,
		Headers:    headers,
		URL:        snapshot.URL,
	}

	body := response.Body

	if response.RedirectionURL != "" {
		newRequest := &RequestSnapshot{
			Method:  http.MethodGet,
			URL:     response.RedirectionURL,
			Headers: map[string]string{},
		}
		t.store.Conclude(key, 0, &Redirected{NewRequest: newRequest})

		statusCode := response.StatusCode
		if statusCode < 300 || statusCode >= 400 {
			statusCode = http.StatusFound
		}
		headers["Location"] = response.RedirectionURL

		t.logger.Debug("Serving synthetic redirect",
			zap.String("from", snapshot.URL),
			zap.String("to", response.RedirectionURL))

		// The caller's client reissues the redirect leg untagged, so the
		// gate evaluates it fresh.
		return synthesizeResponse(req, statusCode, headers, body), nil
	}

	t.store.Conclude(key, int64(len(body)), &Completed{
		Source:   LoadSourceProfile,
		Response: meta,
		Body:     body,
	})

	t.logger.Debug("Served request from profile",
		zap.String("url", snapshot.URL),
		zap.Int("status", response.StatusCode),
		zap.String("response", response.Identifier))

	return synthesizeResponse(req, response.StatusCode, headers, body), nil
}

// dispatchNetwork forwards the request to the real transport and relays its
// lifecycle back into the store.
func (t *Transport) dispatchNetwork(req *http.Request, key string, snapshot *RequestSnapshot) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.store.Conclude(key, 0, &ClientError{Err: err})
		t.logger.Debug("Request failed",
			zap.String("url", snapshot.URL),
			zap.Error(err))
		return nil, err
	}

	if location := redirectLocation(resp); location != "" {
		newRequest := &RequestSnapshot{
			Method:  redirectedMethod(snapshot.Method, resp.StatusCode),
			URL:     location,
			Headers: map[string]string{},
		}
		t.store.Conclude(key, 0, &Redirected{NewRequest: newRequest})

		t.logger.Debug("Handled redirection",
			zap.String("from", snapshot.URL),
			zap.String("to", location))

		// The client reissues the next leg itself; it arrives untagged and
		// is evaluated fresh by the gate.
		return resp, nil
	}

	meta := &ResponseMeta{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeader(resp.Header),
		URL:        snapshot.URL,
	}

	skipBody := !t.recordMediaPayload.Load() && isImageResponse(resp)

	resp.Body = &recordingBody{
		inner: resp.Body,
		conclude: func(body []byte, readErr error) {
			if readErr != nil {
				t.store.Conclude(key, int64(len(body)), &ClientError{Err: readErr})
				return
			}

			recorded := body
			if skipBody {
				recorded = nil
			}
			t.store.Conclude(key, int64(len(body)), &Completed{
				Source:   LoadSourceNetwork,
				Response: meta,
				Body:     recorded,
			})
		},
	}

	return resp, nil
}

// recordingBody accumulates response bytes as the caller reads them and
// concludes the record exactly once, when the stream ends or is abandoned.
// The store is not touched per chunk; the response size is finalized at
// conclusion only.
type recordingBody struct {
	inner    io.ReadCloser
	buf      bytes.Buffer
	once     sync.Once
	conclude func(body []byte, err error)
}

func (b *recordingBody) Read(p []byte) (int, error) {
	n, err := b.inner.Read(p)
	if n > 0 {
		b.buf.Write(p[:n])
	}

	if err == io.EOF {
		b.finish(nil)
	} else if err != nil {
		b.finish(err)
	}

	return n, err
}

func (b *recordingBody) Close() error {
	err := b.inner.Close()
	// Closing before EOF abandons the stream; whichever path caused it
	// already knows, so the conclusion is bookkeeping only.
	b.finish(errAborted)
	return err
}

func (b *recordingBody) finish(err error) {
	b.once.Do(func() {
		b.conclude(b.buf.Bytes(), err)
	})
}

// prospect converts the snapshot into the matcher's request view.
func (s *RequestSnapshot) prospect() profile.Prospect {
	return profile.Prospect{
		Method:  s.Method,
		URL:     s.URL,
		Headers: s.Headers,
		Body:    s.Body,
	}
}

// synthesizeResponse builds an http.Response carrying a profile body.
func synthesizeResponse(req *http.Request, statusCode int, headers map[string]string, body []byte) *http.Response {
	header := make(http.Header, len(headers))
	for k, v := range headers {
		header.Set(k, v)
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// redirectLocation returns the resolved target URL when the response is a
// redirect the caller's client will follow, and "" otherwise.
func redirectLocation(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return ""
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return ""
	}

	if resp.Request != nil && resp.Request.URL != nil {
		if target, err := resp.Request.URL.Parse(location); err == nil {
			return target.String()
		}
	}

	return location
}

// redirectedMethod mirrors the method rewrite the client applies when
// following a redirect.
func redirectedMethod(method string, statusCode int) string {
	switch statusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		if method != http.MethodGet && method != http.MethodHead {
			return http.MethodGet
		}
	}
	return method
}

func isImageResponse(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "image")
}

func flattenHeader(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}
	return flat
}
