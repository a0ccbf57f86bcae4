// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// EventType tags one StreamEvent variant.
type EventType string

const (
	EventStatus          EventType = "status"
	EventSearchResult    EventType = "search_result"
	EventInterimAnalysis EventType = "interim_analysis"
	EventSourceSelection EventType = "source_selection"
	EventSummary         EventType = "summary"
	EventError           EventType = "error"
)

// Status values carried by EventStatus events.
const (
	StatusSearchStarted = "search_started"
	StatusNoResults     = "no_results"
)

// StreamEvent is the sole output contract of the aggregation
// orchestrator: an ordered, append-only sequence of tagged payloads.
// Exactly one payload pointer is set, matching Type. Events are
// immutable after emission and are suitable for line-delimited or
// server-push serialization as-is.
type StreamEvent struct {
	// Type selects which payload field is populated.
	Type EventType `json:"type"`

	// RequestID correlates every event of one request.
	RequestID string `json:"request_id"`

	// Sequence increases strictly by one per event within a request.
	Sequence int `json:"sequence"`

	// Timestamp is the UTC emission time.
	Timestamp time.Time `json:"timestamp"`

	Status    *StatusPayload    `json:"status,omitempty"`
	Result    *ScoredContent    `json:"result,omitempty"`
	Interim   *InterimAnalysis  `json:"interim,omitempty"`
	Selection *SourceSelection  `json:"selection,omitempty"`
	Summary   *AggregateSummary `json:"summary,omitempty"`
	Error     *ErrorPayload     `json:"error,omitempty"`
}

// StatusPayload carries lifecycle notices (search_started, no_results).
type StatusPayload struct {
	State string `json:"state"`

	// Query is the optimized search string, included on search_started.
	Query string `json:"query,omitempty"`
}

// InterimAnalysis summarizes the patterns seen so far, emitted every
// batch_size results.
type InterimAnalysis struct {
	// Processed is the number of results scored so far.
	Processed int `json:"processed"`

	// DominantSourceType is the most frequent source type so far.
	DominantSourceType SourceType `json:"dominant_source_type"`

	// AverageQuality is the running mean quality score.
	AverageQuality float64 `json:"average_quality"`

	// AverageTrust is the running mean trust score.
	AverageTrust float64 `json:"average_trust"`

	// Domains is the count of distinct domains seen so far.
	Domains int `json:"domains"`
}

// SelectedSource is one entry of a source selection.
type SelectedSource struct {
	URL      string     `json:"url"`
	Title    string     `json:"title"`
	Type     SourceType `json:"source_type"`
	Combined float64    `json:"combined_score"`
	Trust    float64    `json:"trust_score"`
}

// SourceSelection lists the top sources chosen for synthesis, best first.
type SourceSelection struct {
	Sources []SelectedSource `json:"sources"`
}

// AggregateSummary closes a successful request with aggregate counts
// and key findings.
type AggregateSummary struct {
	Query          string     `json:"query"`
	TotalResults   int        `json:"total_results"`
	Selected       int        `json:"selected"`
	AverageQuality float64    `json:"average_quality"`
	TopSourceType  SourceType `json:"top_source_type"`
	KeyFindings    []string   `json:"key_findings,omitempty"`
	Elapsed        float64    `json:"elapsed_seconds"`
}

// ErrorPayload is the terminal payload of a failed request. Partial
// results accumulated before the failure are always included; their
// preservation is a hard contract, not an optimization.
type ErrorPayload struct {
	// Class is the recovery classification (network, timeout,
	// validation, resource).
	Class string `json:"class"`

	// Message describes the terminal failure.
	Message string `json:"message"`

	// Attempts is how many recovery attempts were made.
	Attempts int `json:"attempts"`

	// Partial carries every result scored before the failure.
	Partial []ScoredContent `json:"partial_results"`
}
