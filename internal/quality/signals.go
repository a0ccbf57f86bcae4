// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quality

import (
	"strconv"
	"strings"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// Signals are the raw scoring inputs extracted from one record.
// Citations and TechnicalAccuracy stay strings here: upstream metadata
// is untrusted and the scorer substitutes fallbacks for values that do
// not parse.
type Signals struct {
	SourceType        types.SourceType
	Citations         string
	TechnicalAccuracy string
	Depth             string
}

// academicMarkers etc. bucket a domain into a source type. First match
// wins, checked from most to least specific.
var (
	academicMarkers = []string{"arxiv.org", "doi.org", "scholar.", "pubmed", ".edu", ".gov", "nature.com", "acm.org", "ieee.org"}
	docsMarkers     = []string{"docs.", "documentation.", "developer.", "readthedocs", "wikipedia.org", "github.com", "pkg.go.dev"}
	forumMarkers    = []string{"reddit.com", "stackoverflow.com", "stackexchange.com", "news.ycombinator.com", "forum.", "discourse."}
	newsMarkers     = []string{"reuters.com", "apnews.com", "bbc.", "cnn.com", "nytimes.com", "news.", "theguardian.com"}
	blogMarkers     = []string{"medium.com", "substack.com", "blog.", "blogspot.", "wordpress.", "dev.to", "hashnode."}
)

// ClassifySource maps a hostname to a source type bucket.
func ClassifySource(domain string) types.SourceType {
	d := strings.ToLower(domain)
	if d == "" {
		return types.SourceUnknown
	}
	for _, m := range academicMarkers {
		if strings.Contains(d, m) {
			return types.SourceAcademic
		}
	}
	for _, m := range docsMarkers {
		if strings.Contains(d, m) {
			return types.SourceDocumentation
		}
	}
	for _, m := range forumMarkers {
		if strings.Contains(d, m) {
			return types.SourceForum
		}
	}
	for _, m := range newsMarkers {
		if strings.Contains(d, m) {
			return types.SourceNews
		}
	}
	for _, m := range blogMarkers {
		if strings.Contains(d, m) {
			return types.SourceBlog
		}
	}
	return types.SourceUnknown
}

// classifyDepth labels a description by how much substance it carries.
// The word boundaries are deliberately coarse: the label only selects a
// configurable multiplier tier.
func classifyDepth(description string) string {
	words := len(strings.Fields(description))
	switch {
	case words < 15:
		return string(types.DepthShallow)
	case words < 40:
		return string(types.DepthIntermediate)
	default:
		return string(types.DepthComprehensive)
	}
}

// citationSignal counts reference-like markers in the description:
// inline links, bracketed citations, and "cited by" phrasing.
func citationSignal(description string) int {
	d := strings.ToLower(description)
	n := strings.Count(d, "http://") + strings.Count(d, "https://")
	n += strings.Count(d, "[")
	if strings.Contains(d, "cited by") || strings.Contains(d, "references") {
		n += 2
	}
	return n
}

// ExtractSignals derives the scoring inputs from a normalized record.
func ExtractSignals(rec types.SearchResult) Signals {
	return Signals{
		SourceType:        ClassifySource(rec.Domain),
		Citations:         strconv.Itoa(citationSignal(rec.Description)),
		TechnicalAccuracy: accuracySignal(rec),
		Depth:             classifyDepth(rec.Description),
	}
}

// accuracySignal estimates stated technical accuracy from the record's
// provenance: fresher and better-attributed results read as more
// accurate. Returned as a string because the scorer treats it as an
// untrusted numeric field.
func accuracySignal(rec types.SearchResult) string {
	score := 0.5
	if rec.Age != "" {
		score += 0.1
	}
	if rec.Language == "en" || rec.Language == "" {
		score += 0.1
	}
	if len(rec.Title) > 10 {
		score += 0.1
	}
	return strconv.FormatFloat(score, 'f', 2, 64)
}
