// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/httputil"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// DefaultEndpoint is the Brave web search endpoint used when the
// configuration leaves Search.Endpoint empty.
const DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveClient queries the Brave-style web search API: one HTTP GET per
// fetch, authenticated with a subscription token header.
type BraveClient struct {
	Client   *http.Client
	Endpoint string
	APIKey   string
	// UserAgent is sent with every request.
	UserAgent string
}

// NewBraveClient builds a client from the search configuration. The
// HTTP client's timeout covers connection establishment.
func NewBraveClient(cfg types.SearchConfig, client *http.Client) *BraveClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	return &BraveClient{
		Client:    client,
		Endpoint:  endpoint,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
	}
}

// Name returns the provider identifier.
func (b *BraveClient) Name() string { return "brave" }

// Fetch issues one search request and parses the full response. The
// response body is always fully consumed and closed, so abandoning the
// surrounding stream never leaks the connection. Failures are typed:
// transport errors classify as connectivity or timeout, non-success
// statuses as upstream rate limit or connectivity, and undecodable
// bodies as malformed response.
func (b *BraveClient) Fetch(ctx context.Context, query string, count int) ([]types.SearchResult, error) {
	if count <= 0 {
		count = 20
	}

	params := url.Values{
		"q":     {query},
		"count": {fmt.Sprintf("%d", count)},
	}
	reqURL := b.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FailureConnectivity, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, newFetchError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{
			Kind: FailureUpstreamRateLimit,
			Err:  fmt.Errorf("provider returned HTTP 429 after retries"),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{
			Kind: FailureConnectivity,
			Err:  fmt.Errorf("provider returned HTTP %d", resp.StatusCode),
		}
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, &FetchError{
			Kind: FailureMalformedResponse,
			Err:  fmt.Errorf("parsing provider response: %w", err),
		}
	}

	results := make([]types.SearchResult, 0, len(br.Web.Results))
	for i, r := range br.Web.Results {
		rec := types.SearchResult{
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
			Age:         r.Age,
			Language:    r.Language,
			Position:    i,
		}
		rec.Domain = r.MetaURL.Hostname
		if rec.Domain == "" {
			rec.Domain = hostOf(r.URL)
		}
		results = append(results, rec)
	}
	return results, nil
}

// hostOf extracts the lowercased hostname from a raw URL, or "".
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Brave API JSON structures.
type braveResponse struct {
	Web braveWeb `json:"web"`
}

type braveWeb struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Description string       `json:"description"`
	Age         string       `json:"age"`
	Language    string       `json:"language"`
	MetaURL     braveMetaURL `json:"meta_url"`
}

type braveMetaURL struct {
	Hostname string `json:"hostname"`
}
