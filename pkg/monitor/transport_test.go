package monitor

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"netmon/pkg/profile"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// unreachableBase fails the test when the real network is consulted.
func unreachableBase(t *testing.T) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected network dispatch for %s", req.URL)
		return nil, errors.New("unreachable")
	})
}

func newTestTransport(t *testing.T, base http.RoundTripper) (*Transport, *Store) {
	logger := zaptest.NewLogger(t)
	store := NewStore(logger)
	gate := NewGate(logger)
	gate.Activate()
	return NewTransport(base, store, gate, logger), store
}

func staticProfile(url, identifier string, response profile.Response) *profile.Profile {
	response.Identifier = identifier
	return &profile.Profile{
		Request:   profile.ProfileRequest{Pattern: profile.StaticPattern(url), Method: "GET"},
		Responses: []*profile.Response{&response},
	}
}

func TestTransportPassthroughWhenInactive(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := NewStore(logger)
	gate := NewGate(logger) // never activated

	passed := false
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		passed = true
		return synthesizeResponse(req, 200, nil, nil), nil
	})

	transport := NewTransport(base, store, gate, logger)

	req, _ := http.NewRequest("GET", "https://a.test/x", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, passed)
	assert.Empty(t, store.Snapshot(), "unintercepted requests leave no record")
}

func TestTransportServesProfileResponse(t *testing.T) {
	transport, store := newTestTransport(t, unreachableBase(t))

	require.NoError(t, store.ConfigureProfiles([]*profile.Profile{
		staticProfile("https://a.test/x", "resp-a", profile.Response{
			StatusCode: 200,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte(`{"A":1}`),
		}),
	}))

	client := &http.Client{Transport: transport}
	resp, err := client.Get("https://a.test/x")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, `{"A":1}`, string(body))

	assert.Equal(t, uint(1), store.UsageCount("resp-a"))

	records := store.Snapshot()
	require.Len(t, records, 1)
	record := records[0]

	completed, ok := record.Conclusion.(*Completed)
	require.True(t, ok, "record must conclude as completed")
	assert.Equal(t, LoadSourceProfile, completed.Source)
	assert.Equal(t, 200, completed.Response.StatusCode)
	assert.Equal(t, []byte(`{"A":1}`), completed.Body)
	assert.Equal(t, int64(len(`{"A":1}`)), record.ResponseSize)
	assert.Equal(t, "Completed: 200", record.Conclusion.DisplayRepresentation())
}

func TestTransportExhaustedProfileFallsThroughToNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "from network")
	}))
	defer server.Close()

	transport, store := newTestTransport(t, nil)
	url := server.URL + "/x"

	require.NoError(t, store.ConfigureProfiles([]*profile.Profile{
		staticProfile(url, "once", profile.Response{
			StatusCode:    200,
			Body:          []byte("from profile"),
			Repeatability: profile.Limited(1),
		}),
	}))

	client := &http.Client{Transport: transport}

	get := func() string {
		resp, err := client.Get(url)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, "from profile", get())
	assert.Equal(t, "from network", get(), "exhausted response falls through to the network")
	assert.Equal(t, uint(1), store.UsageCount("once"))

	records := store.Snapshot()
	require.Len(t, records, 2)

	first := records[0].Conclusion.(*Completed)
	second := records[1].Conclusion.(*Completed)
	assert.Equal(t, LoadSourceProfile, first.Source)
	assert.Equal(t, LoadSourceNetwork, second.Source)
}

func TestTransportSyntheticRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "landing")
	}))
	defer server.Close()

	transport, store := newTestTransport(t, nil)
	target := server.URL + "/landing"

	require.NoError(t, store.ConfigureProfiles([]*profile.Profile{
		staticProfile("https://a.test/moved", "redir", profile.Response{
			RedirectionURL: target,
		}),
	}))

	client := &http.Client{Transport: transport}
	resp, err := client.Get("https://a.test/moved")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "landing", string(body))

	records := store.Snapshot()
	require.Len(t, records, 2, "the redirect leg and the follow-up leg are distinct records")

	redirected, ok := records[0].Conclusion.(*Redirected)
	require.True(t, ok)
	assert.Equal(t, target, redirected.NewRequest.URL)
	assert.Equal(t, http.MethodGet, redirected.NewRequest.Method)

	completed, ok := records[1].Conclusion.(*Completed)
	require.True(t, ok)
	assert.Equal(t, LoadSourceNetwork, completed.Source)
	assert.Equal(t, target, records[1].Request.URL)
}

func TestTransportNetworkRedirectConcludesFirstLeg(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "final")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	transport, store := newTestTransport(t, nil)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(server.URL + "/moved")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "final", string(body))

	records := store.Snapshot()
	require.Len(t, records, 2)

	redirected, ok := records[0].Conclusion.(*Redirected)
	require.True(t, ok)
	assert.Equal(t, server.URL+"/final", redirected.NewRequest.URL, "relative location is resolved")

	_, ok = records[1].Conclusion.(*Completed)
	assert.True(t, ok)
}

func TestTransportNetworkFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	base := roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, dialErr
	})

	transport, store := newTestTransport(t, base)

	req, _ := http.NewRequest("GET", "https://down.test/", nil)
	_, err := transport.RoundTrip(req)
	require.ErrorIs(t, err, dialErr)

	records := store.Snapshot()
	require.Len(t, records, 1)

	clientErr, ok := records[0].Conclusion.(*ClientError)
	require.True(t, ok)
	assert.ErrorIs(t, clientErr.Err, dialErr)
}

func TestTransportMediaPayloadSkipped(t *testing.T) {
	pixels := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pixels)
	}))
	defer server.Close()

	transport, store := newTestTransport(t, nil)
	transport.SetRecordMediaPayload(false)

	client := &http.Client{Transport: transport}
	resp, err := client.Get(server.URL + "/pixel.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pixels, body, "the caller still receives the full payload")

	records := store.Snapshot()
	require.Len(t, records, 1)

	completed := records[0].Conclusion.(*Completed)
	assert.Nil(t, completed.Body, "image payload is not retained")
	assert.Equal(t, int64(len(pixels)), records[0].ResponseSize, "size accounting uses the real download size")
}

func TestTransportAbandonedBodyConcludes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "never fully read")
	}))
	defer server.Close()

	transport, store := newTestTransport(t, nil)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(server.URL + "/stream")
	require.NoError(t, err)
	resp.Body.Close()

	records := store.Snapshot()
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Conclusion, "abandoning the body still concludes the record")
}

func TestTransportRecordsRequestBeforeResolution(t *testing.T) {
	transport, store := newTestTransport(t, unreachableBase(t))

	require.NoError(t, store.ConfigureProfiles([]*profile.Profile{
		staticProfile("https://a.test/x", "resp", profile.Response{StatusCode: 204}),
	}))

	var sawInFlight bool
	store.Subscribe(NewFuncObserver(func(records []*Record) {
		for _, record := range records {
			if record.Conclusion == nil {
				sawInFlight = true
			}
		}
	}))

	req, _ := http.NewRequest("GET", "https://a.test/x", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, sawInFlight, "the record is observable before it concludes")
}

func TestRedirectedMethod(t *testing.T) {
	tests := []struct {
		method     string
		statusCode int
		want       string
	}{
		{"POST", http.StatusFound, "GET"},
		{"POST", http.StatusSeeOther, "GET"},
		{"POST", http.StatusTemporaryRedirect, "POST"},
		{"GET", http.StatusFound, "GET"},
		{"HEAD", http.StatusMovedPermanently, "HEAD"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, redirectedMethod(tt.method, tt.statusCode),
			"%s with %d", tt.method, tt.statusCode)
	}
}

func TestRedirectLocation(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	assert.Empty(t, redirectLocation(resp), "non-redirect status")

	resp.StatusCode = http.StatusFound
	assert.Empty(t, redirectLocation(resp), "redirect without location header")
}
