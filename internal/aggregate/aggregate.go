// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate drives the end-to-end flow of one request: analyze
// the query, open the streaming result source, pull records through
// the quality pipeline under rate and memory control, emit periodic
// interim analyses, select top sources, and close with a summary. The
// ordered stream of events it emits is its sole output contract.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/analyzer"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/quality"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/ratelimit"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/recovery"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/resource"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/source"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// eventBuffer is the channel depth per request. Small on purpose: a
// stalled consumer exerts backpressure instead of growing memory.
const eventBuffer = 8

// Aggregator orchestrates requests. All collaborators are injected;
// the rate limiter is the only one shared across requests.
type Aggregator struct {
	cfg      types.EngineConfig
	analyzer analyzer.Analyzer
	provider source.Provider
	limiter  *ratelimit.Limiter
	coord    *recovery.Coordinator
	logger   *zap.Logger
}

// Option overrides optional collaborators.
type Option func(*Aggregator)

// WithLogger attaches a structured logger; the default is a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New validates cfg and builds an aggregator. analyzer and provider
// are required; a nil limiter disables admission control (tests) and a
// nil coordinator gets the configured default.
func New(cfg types.EngineConfig, an analyzer.Analyzer, provider source.Provider, limiter *ratelimit.Limiter, coord *recovery.Coordinator, opts ...Option) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if an == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("search provider is required")
	}
	if coord == nil {
		coord = recovery.NewCoordinator(cfg.Recovery.MaxAttempts, cfg.Recovery.Backoff)
	}

	a := &Aggregator{
		cfg:      cfg,
		analyzer: an,
		provider: provider,
		limiter:  limiter,
		coord:    coord,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Stats exposes the process-wide recovery counters.
func (a *Aggregator) Stats() recovery.Stats {
	return a.coord.Snapshot()
}

// ProcessQuery starts one request and returns its ordered event
// stream. The channel is always closed, after a terminal summary,
// no_results, or error event. Cancelling ctx stops the request within
// one suspension point and releases every held resource.
func (a *Aggregator) ProcessQuery(ctx context.Context, text string) <-chan types.StreamEvent {
	ch := make(chan types.StreamEvent, eventBuffer)
	go a.run(ctx, text, ch)
	return ch
}

// emitter assigns request correlation and strict per-request ordering.
type emitter struct {
	ch        chan<- types.StreamEvent
	requestID string
	seq       int
}

// send delivers ev, blocking under backpressure until the consumer
// reads or ctx is done. It reports whether delivery happened.
func (e *emitter) send(ctx context.Context, ev types.StreamEvent) bool {
	ev.RequestID = e.requestID
	ev.Sequence = e.seq
	ev.Timestamp = time.Now().UTC()

	select {
	case e.ch <- ev:
		e.seq++
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Aggregator) run(ctx context.Context, text string, ch chan<- types.StreamEvent) {
	defer close(ch)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeouts.Operation)
	defer cancel()

	em := &emitter{ch: ch, requestID: uuid.NewString()}
	tracker := resource.NewTracker(a.cfg.Memory.Budget, a.cfg.Memory.EvictThreshold)
	defer tracker.ReleaseAll()

	log := a.logger.With(zap.String("request_id", em.requestID))
	start := time.Now()

	var accumulated []types.ScoredContent

	// fail emits the terminal error event carrying every partial
	// result, on a cleanup-bounded context so a slow consumer cannot
	// hold the request open past the cleanup timeout. A consumer-side
	// cancellation ends the request without an event: nobody is
	// listening anymore.
	fail := func(err error) {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Debug("request cancelled", zap.Int("partial_results", len(accumulated)))
			return
		}
		class, attempts := classify(err)
		log.Warn("request failed",
			zap.String("class", class),
			zap.Int("attempts", attempts),
			zap.Int("partial_results", len(accumulated)),
			zap.Error(err))

		cctx, ccancel := context.WithTimeout(context.Background(), a.cfg.Timeouts.Cleanup)
		defer ccancel()
		em.send(cctx, types.StreamEvent{
			Type: types.EventError,
			Error: &types.ErrorPayload{
				Class:    class,
				Message:  err.Error(),
				Attempts: attempts,
				Partial:  accumulated,
			},
		})
	}

	// emit delivers ev; a send cut short by the operation deadline is
	// routed through fail so the stream is never silently truncated.
	emit := func(ev types.StreamEvent) bool {
		if em.send(ctx, ev) {
			return true
		}
		fail(ctx.Err())
		return false
	}

	analysis, err := a.analyzer.Analyze(ctx, text)
	if err != nil {
		fail(err)
		return
	}
	log.Info("query analyzed",
		zap.String("optimized", analysis.Optimized),
		zap.String("input_type", string(analysis.Type)),
		zap.Float64("complexity", analysis.Complexity))

	if !emit(types.StreamEvent{
		Type:   types.EventStatus,
		Status: &types.StatusPayload{State: types.StatusSearchStarted, Query: analysis.Optimized},
	}) {
		return
	}

	// The provider is wrapped so transient fetch failures recover
	// before the stream ever sees them.
	prov := &recoveringProvider{inner: a.provider, coord: a.coord}
	count := a.cfg.Search.Count
	if count <= 0 {
		count = a.cfg.Search.MaxResults
	}
	stream := source.NewStream(prov, a.limiter, analysis.Optimized, count)
	defer stream.Close()

	pipeline := quality.NewPipeline(a.cfg.Quality)
	inBatch := 0

	for len(accumulated) < a.cfg.Search.MaxResults {
		rec, ok, err := stream.Next(ctx)
		if err != nil {
			fail(err)
			return
		}
		if !ok {
			break
		}

		scored, skip := pipeline.Process(rec)
		if skip {
			log.Debug("record skipped by validation policy", zap.String("url", rec.URL))
			continue
		}

		id := fmt.Sprintf("result-%d", len(accumulated))
		if err := tracker.Track(id, resource.EstimateSize(rec), true); err != nil {
			fail(err)
			return
		}
		accumulated = append(accumulated, scored)

		if !emit(types.StreamEvent{Type: types.EventSearchResult, Result: &scored}) {
			return
		}
		// The raw buffer is no longer essential once scored + emitted.
		tracker.MarkEvictable(id)

		inBatch++
		if inBatch >= a.cfg.BatchSize {
			if !emit(types.StreamEvent{Type: types.EventInterimAnalysis, Interim: interim(accumulated)}) {
				return
			}
			pipeline.ResetBatch()
			inBatch = 0
		}
	}

	if len(accumulated) == 0 {
		emit(types.StreamEvent{
			Type:   types.EventStatus,
			Status: &types.StatusPayload{State: types.StatusNoResults, Query: analysis.Optimized},
		})
		return
	}

	selected := a.selectTop(accumulated)
	if !emit(types.StreamEvent{Type: types.EventSourceSelection, Selection: &types.SourceSelection{Sources: selected}}) {
		return
	}

	emit(types.StreamEvent{
		Type:    types.EventSummary,
		Summary: a.summarize(analysis, accumulated, selected, time.Since(start)),
	})
	log.Info("request complete",
		zap.Int("results", len(accumulated)),
		zap.Int("selected", len(selected)),
		zap.Duration("elapsed", time.Since(start)))
}

// classify extracts the error class and attempt count for the terminal
// event.
func classify(err error) (string, int) {
	var f *recovery.Failure
	if errors.As(err, &f) {
		return string(f.Class), f.Attempts
	}
	return string(recovery.Classify(err)), 1
}

// interim summarizes the patterns in everything scored so far.
func interim(accumulated []types.ScoredContent) *types.InterimAnalysis {
	counts := make(map[types.SourceType]int)
	domains := make(map[string]struct{})
	var qualitySum, trustSum float64
	for _, c := range accumulated {
		counts[c.SourceType]++
		if c.Domain != "" {
			domains[c.Domain] = struct{}{}
		}
		qualitySum += c.Quality
		trustSum += c.Trust
	}

	dominant := types.SourceUnknown
	best := 0
	for st, n := range counts {
		if n > best {
			dominant, best = st, n
		}
	}

	n := float64(len(accumulated))
	return &types.InterimAnalysis{
		Processed:          len(accumulated),
		DominantSourceType: dominant,
		AverageQuality:     qualitySum / n,
		AverageTrust:       trustSum / n,
		Domains:            len(domains),
	}
}

// selectTop ranks by combined score with trust then earlier arrival as
// tie-breaks. Results under the quality/confidence floors are excluded
// unless that would empty the selection entirely.
func (a *Aggregator) selectTop(accumulated []types.ScoredContent) []types.SelectedSource {
	candidates := make([]types.ScoredContent, 0, len(accumulated))
	for _, c := range accumulated {
		if c.Quality >= a.cfg.Quality.MinQuality && c.Confidence >= a.cfg.Quality.MinConfidence {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, accumulated...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Combined() != cj.Combined() {
			return ci.Combined() > cj.Combined()
		}
		if ci.Trust != cj.Trust {
			return ci.Trust > cj.Trust
		}
		return ci.Position < cj.Position
	})

	k := a.cfg.TopK
	if k > len(candidates) {
		k = len(candidates)
	}

	out := make([]types.SelectedSource, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, types.SelectedSource{
			URL:      c.URL,
			Title:    c.Title,
			Type:     c.SourceType,
			Combined: c.Combined(),
			Trust:    c.Trust,
		})
	}
	return out
}

func (a *Aggregator) summarize(analysis types.QueryAnalysis, accumulated []types.ScoredContent, selected []types.SelectedSource, elapsed time.Duration) *types.AggregateSummary {
	inter := interim(accumulated)

	findings := make([]string, 0, 3)
	for i, s := range selected {
		if i == 3 {
			break
		}
		findings = append(findings, fmt.Sprintf("%s (%s)", s.Title, s.Type))
	}

	return &types.AggregateSummary{
		Query:          analysis.Optimized,
		TotalResults:   len(accumulated),
		Selected:       len(selected),
		AverageQuality: inter.AverageQuality,
		TopSourceType:  inter.DominantSourceType,
		KeyFindings:    findings,
		Elapsed:        elapsed.Seconds(),
	}
}

// recoveringProvider routes fetches through the recovery coordinator
// so transient upstream failures are retried before surfacing.
type recoveringProvider struct {
	inner source.Provider
	coord *recovery.Coordinator
}

func (r *recoveringProvider) Name() string { return r.inner.Name() }

func (r *recoveringProvider) Fetch(ctx context.Context, query string, count int) ([]types.SearchResult, error) {
	var out []types.SearchResult
	err := r.coord.Execute(ctx, func(ctx context.Context) error {
		results, err := r.inner.Fetch(ctx, query, count)
		if err != nil {
			return err
		}
		out = results
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
