// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quality

import "github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"

// Enricher combines the other scorers' outputs into enrichment and
// diversity scores. It is the only scorer with cross-record state:
// diversity measures the distinctness of source types and domains seen
// within the current analysis batch, and resets when the batch does.
type Enricher struct {
	seenTypes   map[types.SourceType]struct{}
	seenDomains map[string]struct{}
}

// NewEnricher starts an enricher with an empty batch.
func NewEnricher() *Enricher {
	e := &Enricher{}
	e.ResetBatch()
	return e
}

// ResetBatch clears the diversity state at an analysis batch boundary.
func (e *Enricher) ResetBatch() {
	e.seenTypes = make(map[types.SourceType]struct{})
	e.seenDomains = make(map[string]struct{})
}

// Enrich scores one record against the current batch and records its
// type and domain for the records that follow.
func (e *Enricher) Enrich(st types.SourceType, domain string, quality, trust float64) (enrichment, diversity float64) {
	_, typeSeen := e.seenTypes[st]
	_, domainSeen := e.seenDomains[domain]

	switch {
	case !typeSeen && !domainSeen:
		diversity = 1.0
	case !typeSeen || !domainSeen:
		diversity = 0.6
	default:
		diversity = 0.2
	}

	e.seenTypes[st] = struct{}{}
	if domain != "" {
		e.seenDomains[domain] = struct{}{}
	}

	enrichment = clamp01(0.5*quality + 0.3*trust + 0.2*diversity)
	return enrichment, diversity
}
