// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quality scores, validates, and enriches every search result
// before it may reach the event stream. All computation is pure and
// CPU-bound; nothing here blocks on I/O.
package quality

import (
	"net/url"
	"strings"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// Documented defaults substituted during normalization.
const (
	defaultTitle = "Untitled"
)

// Pipeline runs the three cooperating scorers over normalized records.
// One pipeline serves one request; only the enricher carries state,
// scoped to the current analysis batch.
type Pipeline struct {
	cfg       types.QualityConfig
	scorer    *Scorer
	validator *Validator
	enricher  *Enricher
}

// NewPipeline wires the scorers over one quality configuration.
func NewPipeline(cfg types.QualityConfig) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		scorer:    NewScorer(cfg),
		validator: NewValidator(cfg),
		enricher:  NewEnricher(),
	}
}

// Normalize applies the at-least validation pass: missing fields get
// documented defaults rather than being dropped. The only
// policy-flagged skip is a record with no usable URL, since nothing
// downstream can cite it.
func Normalize(rec types.SearchResult) (types.SearchResult, bool) {
	rec.URL = strings.TrimSpace(rec.URL)
	if rec.URL == "" {
		return rec, true
	}
	u, err := url.Parse(rec.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return rec, true
	}

	if strings.TrimSpace(rec.Title) == "" {
		rec.Title = defaultTitle
	}
	rec.Description = strings.TrimSpace(rec.Description)
	if rec.Domain == "" {
		rec.Domain = strings.ToLower(u.Hostname())
	}
	return rec, false
}

// Process normalizes and scores one record. The returned skip flag is
// true only for the policy-flagged case in Normalize; every other
// malformation is recovered via fallbacks.
func (p *Pipeline) Process(rec types.SearchResult) (types.ScoredContent, bool) {
	normalized, skip := Normalize(rec)
	if skip {
		return types.ScoredContent{}, true
	}

	sig := ExtractSignals(normalized)
	q, conf, depthScore, tier := p.scorer.Score(sig)
	trust, reliability := p.validator.Validate(sig.SourceType, normalized.Domain)
	enrichment, diversity := p.enricher.Enrich(sig.SourceType, normalized.Domain, q, trust)

	return types.ScoredContent{
		SearchResult: normalized,
		SourceType:   sig.SourceType,
		Depth:        tier,
		Quality:      q,
		Confidence:   conf,
		Diversity:    diversity,
		DepthScore:   depthScore,
		Trust:        trust,
		Reliability:  reliability,
		Enrichment:   enrichment,
	}, false
}

// ResetBatch forwards the analysis batch boundary to the enricher.
func (p *Pipeline) ResetBatch() { p.enricher.ResetBatch() }
