// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the knowledge
// aggregation engine: query analyses, search result records, scored
// content, stream events, and the engine configuration surface.
package types

// InputType classifies the shape of the user's query text.
type InputType string

const (
	InputQuestion  InputType = "question"
	InputStatement InputType = "statement"
	InputCode      InputType = "code"
	InputURL       InputType = "url"
)

// QueryAnalysis is the immutable output of the query analyzer. It is
// produced once per request before any network work starts.
type QueryAnalysis struct {
	// Original is the query text exactly as submitted.
	Original string `json:"original" yaml:"original"`

	// Optimized is the search string actually sent upstream, with
	// filler words trimmed and whitespace collapsed.
	Optimized string `json:"optimized" yaml:"optimized"`

	// Type is the detected input type.
	Type InputType `json:"type" yaml:"type"`

	// Complexity is a 0..1 estimate of how much work the query implies.
	Complexity float64 `json:"complexity" yaml:"complexity"`

	// Ambiguity is a 0..1 estimate of how underspecified the query is.
	Ambiguity float64 `json:"ambiguity" yaml:"ambiguity"`

	// Segments are the sub-questions the query decomposes into, in order.
	Segments []string `json:"segments" yaml:"segments"`
}

// SearchResult is one record yielded by the streaming result source.
// Results are immutable once yielded and ephemeral: the orchestrator
// discards the raw record after scoring.
type SearchResult struct {
	// Title is the result title as returned upstream.
	Title string `json:"title" yaml:"title"`

	// URL is the result's canonical address.
	URL string `json:"url" yaml:"url"`

	// Description is the upstream snippet or summary.
	Description string `json:"description" yaml:"description"`

	// Age is the upstream freshness label (e.g. "2 days ago"), if any.
	Age string `json:"age,omitempty" yaml:"age,omitempty"`

	// Domain is the hostname the result points at.
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// Language is the result language code (e.g. "en"), if reported.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Position is the zero-based arrival order within one fetch.
	Position int `json:"position" yaml:"position"`
}

// SourceType buckets a result's origin for trust weighting.
type SourceType string

const (
	SourceAcademic      SourceType = "academic"
	SourceDocumentation SourceType = "documentation"
	SourceNews          SourceType = "news"
	SourceBlog          SourceType = "blog"
	SourceForum         SourceType = "forum"
	SourceUnknown       SourceType = "unknown"
)

// DepthTier is the categorical content-depth label used to scale
// quality scoring.
type DepthTier string

const (
	DepthShallow       DepthTier = "shallow"
	DepthIntermediate  DepthTier = "intermediate"
	DepthComprehensive DepthTier = "comprehensive"
)

// ScoredContent is a SearchResult annotated by the content quality
// pipeline. It is never mutated after creation; re-scoring produces a
// new record.
type ScoredContent struct {
	SearchResult `yaml:",inline"`

	// SourceType is the origin bucket the validator assigned.
	SourceType SourceType `json:"source_type" yaml:"source_type"`

	// Depth is the depth tier the quality scorer assigned.
	Depth DepthTier `json:"depth" yaml:"depth"`

	// Quality is the weighted content quality score, 0..1.
	Quality float64 `json:"quality_score" yaml:"quality_score"`

	// Confidence reflects how much signal backed the quality score, 0..1.
	Confidence float64 `json:"confidence_score" yaml:"confidence_score"`

	// Diversity is the distinctness of this result's source type and
	// domain within the current analysis batch, 0..1.
	Diversity float64 `json:"diversity_score" yaml:"diversity_score"`

	// DepthScore is the multiplier derived from the depth tier, 0..1.
	DepthScore float64 `json:"depth_score" yaml:"depth_score"`

	// Trust is the per-source-type trust weight, 0..1.
	Trust float64 `json:"trust_score" yaml:"trust_score"`

	// Reliability combines trust with domain signals, 0..1.
	Reliability float64 `json:"reliability_score" yaml:"reliability_score"`

	// Enrichment is the combined enrichment score, 0..1.
	Enrichment float64 `json:"enrichment_score" yaml:"enrichment_score"`
}

// Combined returns the single ranking score used for source selection.
func (c ScoredContent) Combined() float64 {
	return 0.4*c.Quality + 0.2*c.Trust + 0.2*c.Reliability + 0.1*c.Diversity + 0.1*c.DepthScore
}
