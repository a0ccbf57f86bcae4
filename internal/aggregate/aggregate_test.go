// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/analyzer"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/source"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProvider fails its first `failures` calls with err, then
// returns results.
type scriptedProvider struct {
	mu        sync.Mutex
	calls     int
	lastCount int
	failures  int
	err       error
	results   []types.SearchResult
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Fetch(_ context.Context, _ string, count int) ([]types.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastCount = count
	if p.calls <= p.failures {
		return nil, p.err
	}
	return p.results, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) requestedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCount
}

// blockingProvider parks until the caller's context is cancelled.
type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Fetch(ctx context.Context, _ string, _ int) ([]types.SearchResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func makeResults(n int) []types.SearchResult {
	out := make([]types.SearchResult, n)
	for i := range out {
		out[i] = types.SearchResult{
			Title:       fmt.Sprintf("Result %d", i),
			URL:         fmt.Sprintf("https://site%02d.example.com/articles/%d", i, i),
			Description: fmt.Sprintf("An in-depth discussion of topic %d covering background, trade-offs, and references [1].", i),
			Position:    i,
		}
	}
	return out
}

func testConfig() types.EngineConfig {
	cfg := types.DefaultEngineConfig()
	cfg.Recovery.Backoff = time.Millisecond
	return cfg
}

func drain(t *testing.T, ch <-chan types.StreamEvent) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("event channel did not close; got %d events", len(events))
		}
	}
}

func eventsOfType(events []types.StreamEvent, et types.EventType) []types.StreamEvent {
	var out []types.StreamEvent
	for _, ev := range events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

func TestProcessQueryFullFlow(t *testing.T) {
	provider := &scriptedProvider{results: makeResults(25)}
	agg, err := New(testConfig(), analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	events := drain(t, agg.ProcessQuery(context.Background(), "how does garbage collection work in go?"))
	require.NotEmpty(t, events)

	// One correlation ID and strictly increasing sequence across the
	// whole request.
	for i, ev := range events {
		assert.Equal(t, events[0].RequestID, ev.RequestID)
		assert.Equal(t, i, ev.Sequence)
		assert.False(t, ev.Timestamp.IsZero())
	}

	require.Equal(t, types.EventStatus, events[0].Type)
	require.NotNil(t, events[0].Status)
	assert.Equal(t, types.StatusSearchStarted, events[0].Status.State)
	assert.NotEmpty(t, events[0].Status.Query)

	// Upstream overflow (25) truncates to max_results (20).
	results := eventsOfType(events, types.EventSearchResult)
	assert.Len(t, results, 20)
	assert.Equal(t, 1, provider.callCount())

	// Interim analyses every batch_size=3 results: after 3..18.
	interims := eventsOfType(events, types.EventInterimAnalysis)
	require.Len(t, interims, 6)
	assert.Equal(t, 3, interims[0].Interim.Processed)
	assert.Equal(t, 18, interims[5].Interim.Processed)
	for _, ev := range interims {
		assert.Greater(t, ev.Interim.Domains, 0)
		assert.InDelta(t, 0.5, ev.Interim.AverageQuality, 0.5)
	}

	selections := eventsOfType(events, types.EventSourceSelection)
	require.Len(t, selections, 1)
	sel := selections[0].Selection.Sources
	require.Len(t, sel, 5)
	for i := 1; i < len(sel); i++ {
		assert.GreaterOrEqual(t, sel[i-1].Combined, sel[i].Combined, "selection must be best-first")
	}

	// Summary closes the stream.
	last := events[len(events)-1]
	require.Equal(t, types.EventSummary, last.Type)
	require.NotNil(t, last.Summary)
	assert.Equal(t, 20, last.Summary.TotalResults)
	assert.Equal(t, 5, last.Summary.Selected)
	assert.NotEmpty(t, last.Summary.KeyFindings)
}

func TestProcessQueryRecoversFromTransientFailure(t *testing.T) {
	provider := &scriptedProvider{
		failures: 1,
		err:      &source.FetchError{Kind: source.FailureConnectivity, Err: fmt.Errorf("upstream status 500")},
		results:  makeResults(4),
	}
	agg, err := New(testConfig(), analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	events := drain(t, agg.ProcessQuery(context.Background(), "transient upstream failure"))

	assert.Empty(t, eventsOfType(events, types.EventError))
	require.Len(t, eventsOfType(events, types.EventSummary), 1)
	assert.Equal(t, 2, provider.callCount())

	stats := agg.Stats()
	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, 0, stats.Unrecoverable)
}

func TestProcessQueryExhaustsRecoveryAttempts(t *testing.T) {
	provider := &scriptedProvider{
		failures: 100,
		err:      &source.FetchError{Kind: source.FailureConnectivity, Err: fmt.Errorf("connection refused")},
	}
	agg, err := New(testConfig(), analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	events := drain(t, agg.ProcessQuery(context.Background(), "permanently unreachable upstream"))

	assert.Equal(t, 3, provider.callCount())
	assert.Empty(t, eventsOfType(events, types.EventSummary))

	errs := eventsOfType(events, types.EventError)
	require.Len(t, errs, 1)
	payload := errs[0].Error
	require.NotNil(t, payload)
	assert.Equal(t, "network", payload.Class)
	assert.Equal(t, 3, payload.Attempts)
	assert.Empty(t, payload.Partial)

	// The error event is terminal.
	assert.Equal(t, types.EventError, events[len(events)-1].Type)
}

func TestProcessQueryNoResults(t *testing.T) {
	provider := &scriptedProvider{results: nil}
	agg, err := New(testConfig(), analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	events := drain(t, agg.ProcessQuery(context.Background(), "query matching nothing"))

	require.Len(t, events, 2)
	assert.Equal(t, types.StatusSearchStarted, events[0].Status.State)
	assert.Equal(t, types.StatusNoResults, events[1].Status.State)
}

func TestProcessQueryRejectsEmptyQuery(t *testing.T) {
	provider := &scriptedProvider{results: makeResults(3)}
	agg, err := New(testConfig(), analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	events := drain(t, agg.ProcessQuery(context.Background(), "   "))

	require.Len(t, events, 1)
	require.Equal(t, types.EventError, events[0].Type)
	assert.Equal(t, "validation", events[0].Error.Class)
	assert.Equal(t, 0, provider.callCount())
}

func TestProcessQueryPreservesPartialsOnResourceExhaustion(t *testing.T) {
	results := makeResults(6)
	// The fourth record alone exceeds the whole budget, so tracking it
	// must fail even after everything evictable is dropped.
	results[3].Description = strings.Repeat("x", 4096)

	cfg := testConfig()
	cfg.Memory.Budget = 2048

	provider := &scriptedProvider{results: results}
	agg, err := New(cfg, analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	events := drain(t, agg.ProcessQuery(context.Background(), "memory pressure during aggregation"))

	assert.Len(t, eventsOfType(events, types.EventSearchResult), 3)

	errs := eventsOfType(events, types.EventError)
	require.Len(t, errs, 1)
	payload := errs[0].Error
	assert.Equal(t, "resource", payload.Class)
	require.Len(t, payload.Partial, 3, "results scored before the failure must survive")
	for i, partial := range payload.Partial {
		assert.Equal(t, fmt.Sprintf("Result %d", i), partial.Title)
	}
}

func TestProcessQueryDeadlineWithStalledConsumer(t *testing.T) {
	cfg := testConfig()
	cfg.Timeouts.Operation = 150 * time.Millisecond

	provider := &scriptedProvider{results: makeResults(25)}
	agg, err := New(cfg, analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	ch := agg.ProcessQuery(context.Background(), "consumer stalls past the deadline")

	// Read nothing until well past the operation deadline; the request
	// fills the channel buffer and blocks on the next send.
	time.Sleep(500 * time.Millisecond)

	events := drain(t, ch)
	require.NotEmpty(t, events)

	// The deadline must surface as a terminal error event, never as a
	// silently truncated stream.
	last := events[len(events)-1]
	require.Equal(t, types.EventError, last.Type)
	assert.Equal(t, "timeout", last.Error.Class)
	assert.NotEmpty(t, last.Error.Partial)
	assert.Empty(t, eventsOfType(events, types.EventSummary))
}

func TestProcessQueryUpstreamCount(t *testing.T) {
	provider := &scriptedProvider{results: makeResults(3)}
	cfg := testConfig()
	cfg.Search.Count = 30
	agg, err := New(cfg, analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	drain(t, agg.ProcessQuery(context.Background(), "configured upstream count"))
	assert.Equal(t, 30, provider.requestedCount())

	// Unset count falls back to max_results.
	provider = &scriptedProvider{results: makeResults(3)}
	agg, err = New(testConfig(), analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	drain(t, agg.ProcessQuery(context.Background(), "default upstream count"))
	assert.Equal(t, testConfig().Search.MaxResults, provider.requestedCount())
}

func TestProcessQueryCancellation(t *testing.T) {
	agg, err := New(testConfig(), analyzer.NewHeuristic(), blockingProvider{}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := agg.ProcessQuery(ctx, "request abandoned mid flight")

	// First event arrives, then the consumer walks away.
	select {
	case ev := <-ch:
		require.Equal(t, types.EventStatus, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no status event before cancellation")
	}
	cancel()

	// Cancellation ends the stream without a terminal error event.
	events := drain(t, ch)
	assert.Empty(t, eventsOfType(events, types.EventError))
}

func TestProcessQuerySkipsRecordsWithoutURL(t *testing.T) {
	results := makeResults(4)
	results[1].URL = ""
	results[2].URL = "ftp://mirror.example.com/file"

	provider := &scriptedProvider{results: results}
	agg, err := New(testConfig(), analyzer.NewHeuristic(), provider, nil, nil)
	require.NoError(t, err)

	events := drain(t, agg.ProcessQuery(context.Background(), "records lacking citable urls"))

	assert.Len(t, eventsOfType(events, types.EventSearchResult), 2)
	require.Len(t, eventsOfType(events, types.EventSummary), 1)
}

func TestQueryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	cfg := testConfig()
	cfg.Search.Count = 15
	queries := []string{"first query", "second query"}
	runs := []QueryRun{
		{
			Query:          "first query",
			TotalResults:   7,
			AverageQuality: 0.61,
			Selected: []types.SelectedSource{
				{URL: "https://arxiv.org/abs/1", Title: "Paper", Type: types.SourceAcademic, Combined: 0.8, Trust: 0.9},
			},
			Timestamp: time.Now().UTC(),
		},
		{Query: "second query", Error: "no results", Timestamp: time.Now().UTC()},
	}

	require.NoError(t, WriteQueryFile(path, cfg, queries, runs))

	qf, err := ReadQueryFile(path)
	require.NoError(t, err)
	assert.Equal(t, queries, qf.Queries)
	assert.Equal(t, cfg.Search.MaxResults, qf.Config.MaxResults)
	assert.Equal(t, 15, qf.Config.Count)
	assert.Equal(t, cfg.TopK, qf.Config.TopK)
	require.Len(t, qf.Runs, 2)
	assert.Equal(t, 7, qf.Runs[0].TotalResults)
	assert.Equal(t, "no results", qf.Runs[1].Error)
}

func TestReadQueryFileRejectsEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, WriteQueryFile(path, testConfig(), nil, nil))

	_, err := ReadQueryFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no queries")
}
