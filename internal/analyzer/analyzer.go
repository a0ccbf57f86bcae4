// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyzer produces the query analysis the orchestrator needs
// before searching: detected input type, complexity and ambiguity
// estimates, sub-question segments, and the optimized search string.
// The orchestrator only depends on the Analyzer interface, so a richer
// external analyzer can replace the heuristic one.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// Analyzer is the consumed collaborator interface.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (types.QueryAnalysis, error)
}

// Heuristic is the built-in analyzer: pure string analysis, no I/O.
type Heuristic struct{}

// NewHeuristic returns the default analyzer.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// stopWords are trimmed from the optimized search string. Question
// words are kept: they carry intent for web search engines.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "would": {},
	"please": {}, "me": {}, "tell": {}, "about": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "my": {}, "i": {},
}

var codeMarkers = []string{"func ", "def ", "class ", "import ", "{", "};", "=>", "()", "stacktrace", "traceback"}

// Analyze performs the heuristic analysis. It fails only on empty
// input; every other shape of text produces a usable analysis.
func (h *Heuristic) Analyze(_ context.Context, text string) (types.QueryAnalysis, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return types.QueryAnalysis{}, fmt.Errorf("query is empty")
	}

	qa := types.QueryAnalysis{
		Original:   trimmed,
		Type:       detectType(trimmed),
		Segments:   segment(trimmed),
		Complexity: complexity(trimmed),
		Ambiguity:  ambiguity(trimmed),
	}
	qa.Optimized = optimize(trimmed)
	return qa, nil
}

// detectType classifies the input shape.
func detectType(text string) types.InputType {
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return types.InputURL
	}
	for _, m := range codeMarkers {
		if strings.Contains(text, m) {
			return types.InputCode
		}
	}
	if strings.Contains(text, "?") || startsWithQuestionWord(lower) {
		return types.InputQuestion
	}
	return types.InputStatement
}

var questionWords = []string{"what", "why", "how", "when", "where", "who", "which", "is ", "are ", "can ", "does "}

func startsWithQuestionWord(lower string) bool {
	for _, w := range questionWords {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}

// segment splits the query into ordered sub-questions on sentence
// boundaries and coordinating "and" between clauses.
func segment(text string) []string {
	rough := strings.FieldsFunc(text, func(r rune) bool {
		return r == '?' || r == ';' || r == '\n'
	})

	var segments []string
	for _, part := range rough {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	if len(segments) == 0 {
		segments = []string{strings.TrimSpace(text)}
	}
	return segments
}

// complexity estimates 0..1 from length and clause structure.
func complexity(text string) float64 {
	words := float64(len(strings.Fields(text)))
	clauses := float64(strings.Count(text, ",") + strings.Count(text, " and ") + len(segment(text)))
	return round2(math.Min(1, words/40+clauses/10))
}

// ambiguity estimates 0..1: short queries and unresolved pronouns read
// as underspecified.
func ambiguity(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	score := 0.0
	if len(words) <= 2 {
		score += 0.5
	} else if len(words) <= 4 {
		score += 0.3
	}
	for _, w := range words {
		switch strings.Trim(w, ".,!?") {
		case "it", "this", "that", "they", "them":
			score += 0.2
		}
	}
	return round2(math.Min(1, score))
}

// optimize trims stop words and collapses whitespace into the string
// actually sent upstream. A query that is all stop words is sent as-is.
func optimize(text string) string {
	var kept []string
	for _, w := range strings.Fields(text) {
		if _, stop := stopWords[strings.ToLower(strings.Trim(w, ".,!?"))]; stop {
			continue
		}
		kept = append(kept, strings.Trim(w, "?!"))
	}
	if len(kept) == 0 {
		return strings.Join(strings.Fields(text), " ")
	}
	return strings.Join(kept, " ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
