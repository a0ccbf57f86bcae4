// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/httputil"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

const sampleBody = `{
	"web": {
		"results": [
			{
				"title": "Quantum computing - Wikipedia",
				"url": "https://en.wikipedia.org/wiki/Quantum_computing",
				"description": "A quantum computer is a computer that exploits quantum mechanics.",
				"age": "3 days ago",
				"language": "en",
				"meta_url": {"hostname": "en.wikipedia.org"}
			},
			{
				"title": "What is quantum computing?",
				"url": "https://example.com/qc",
				"description": "An introduction."
			}
		]
	}
}`

func testClient(ts *httptest.Server) *BraveClient {
	return NewBraveClient(types.SearchConfig{
		Endpoint:  ts.URL,
		APIKey:    "test-token",
		UserAgent: "test/0.1",
	}, ts.Client())
}

func TestFetchParsesResults(t *testing.T) {
	var gotToken, gotQuery, gotCount string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		w.Write([]byte(sampleBody))
	}))
	defer ts.Close()

	results, err := testClient(ts).Fetch(context.Background(), "quantum computing", 20)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("auth header = %q, want test-token", gotToken)
	}
	if gotQuery != "quantum computing" || gotCount != "20" {
		t.Errorf("query params = %q/%q", gotQuery, gotCount)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	first := results[0]
	if first.Domain != "en.wikipedia.org" || first.Age != "3 days ago" || first.Position != 0 {
		t.Errorf("first record = %+v", first)
	}
	// Missing meta_url falls back to the URL's host.
	if results[1].Domain != "example.com" {
		t.Errorf("fallback domain = %q, want example.com", results[1].Domain)
	}
	if results[1].Position != 1 {
		t.Errorf("position = %d, want 1", results[1].Position)
	}
}

func TestFetchRateLimitIsTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := testClient(ts).Fetch(context.Background(), "q", 5)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %v", err)
	}
	if fe.Kind != FailureUpstreamRateLimit {
		t.Errorf("kind = %s, want %s", fe.Kind, FailureUpstreamRateLimit)
	}
}

func TestFetchMalformedJSONIsTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"web": {"results": [`))
	}))
	defer ts.Close()

	_, err := testClient(ts).Fetch(context.Background(), "q", 5)

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FailureMalformedResponse {
		t.Fatalf("want malformed_response FetchError, got %v", err)
	}
}

func TestFetchServerErrorIsConnectivity(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := testClient(ts).Fetch(context.Background(), "q", 5)

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FailureConnectivity {
		t.Fatalf("want connectivity FetchError, got %v", err)
	}
}

func TestFetchTimeoutIsTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(sampleBody))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testClient(ts).Fetch(ctx, "q", 5)

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FailureTimeout {
		t.Fatalf("want timeout FetchError, got %v", err)
	}
}
