package monitor

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RequestSnapshot is an immutable copy of an outgoing request, captured at
// interception time before the transport pipeline can consume or discard the
// body stream.
type RequestSnapshot struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// snapshotRequest captures the request into a RequestSnapshot. The body
// stream is read fully; callers are responsible for reinstating it on the
// request that continues down the pipeline.
func snapshotRequest(req *http.Request) (*RequestSnapshot, error) {
	snapshot := &RequestSnapshot{
		Method:  req.Method,
		Headers: make(map[string]string, len(req.Header)),
	}

	if req.URL != nil {
		snapshot.URL = req.URL.String()
	}

	for key, values := range req.Header {
		if len(values) > 0 {
			snapshot.Headers[key] = values[0]
		}
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot request body: %w", err)
		}
		req.Body.Close()
		snapshot.Body = body
	}

	return snapshot, nil
}

// contentLength returns the request payload size: the Content-Length header
// when present, otherwise the measured body length.
func (s *RequestSnapshot) contentLength() int64 {
	if value, ok := s.Headers["Content-Length"]; ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return int64(len(s.Body))
}

// Record is the captured lifecycle of one real or simulated HTTP request.
// The store owns the canonical copy; the immutable fields are freely shared.
type Record struct {
	// Key is a process-unique identifier assigned at interception time.
	Key string

	Request        *RequestSnapshot
	StartTimestamp time.Time

	// EndTimestamp and Conclusion are written exactly once, at conclusion.
	EndTimestamp time.Time
	Conclusion   Conclusion

	RequestSize  int64
	ResponseSize int64
}

// TimeSpent returns the elapsed time between start and conclusion, and false
// while the record is still in flight.
func (r *Record) TimeSpent() (time.Duration, bool) {
	if r.Conclusion == nil {
		return 0, false
	}
	return r.EndTimestamp.Sub(r.StartTimestamp), true
}

// clone returns a copy safe to hand to observers and exporters. Conclusion
// payloads and the request snapshot are immutable after construction, so a
// shallow copy suffices.
func (r *Record) clone() *Record {
	copied := *r
	return &copied
}

// LoadSource identifies whether a completed request was served from the
// network or short-circuited by a profile.
type LoadSource int

const (
	LoadSourceNetwork LoadSource = iota
	LoadSourceProfile
)

// String returns the source name.
func (s LoadSource) String() string {
	if s == LoadSourceProfile {
		return "profile"
	}
	return "network"
}

// ResponseMeta is the synthesized or observed HTTP response metadata
// attached to a completed record.
type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	URL        string
}

// Conclusion is the terminal, write-once outcome of a request. It is a
// sealed sum type with three variants: Completed, Redirected and
// ClientError.
type Conclusion interface {
	isConclusion()

	// DisplayRepresentation returns a short human-readable summary.
	DisplayRepresentation() string
}

// Completed concludes a request that received a full response.
type Completed struct {
	Source   LoadSource
	Response *ResponseMeta

	// Body is the accumulated response payload. Nil when media payload
	// recording is disabled and the response carried an image.
	Body []byte
}

func (c *Completed) isConclusion() {}

// DisplayRepresentation returns "Completed: <status>".
func (c *Completed) DisplayRepresentation() string {
	if c.Response == nil {
		return "-"
	}
	return fmt.Sprintf("Completed: %d", c.Response.StatusCode)
}

// Redirected concludes a request whose response leg was abandoned in favor
// of a follow-up request.
type Redirected struct {
	NewRequest *RequestSnapshot
}

func (c *Redirected) isConclusion() {}

// DisplayRepresentation returns "Redirected: <url>".
func (c *Redirected) DisplayRepresentation() string {
	if c.NewRequest == nil {
		return "-"
	}
	return fmt.Sprintf("Redirected: %s", c.NewRequest.URL)
}

// ClientError concludes a request that failed with a transport or client
// error.
type ClientError struct {
	Err error
}

func (c *ClientError) isConclusion() {}

// DisplayRepresentation returns "Client Error: <error>".
func (c *ClientError) DisplayRepresentation() string {
	if c.Err == nil {
		return "-"
	}
	return fmt.Sprintf("Client Error: %s", c.Err.Error())
}
