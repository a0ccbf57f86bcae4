// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quality

import (
	"math"
	"strconv"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// Scorer maps raw signals to quality and confidence scores via a
// weighted combination. It is pure: identical inputs always yield
// identical scores.
type Scorer struct {
	cfg types.QualityConfig
}

// NewScorer builds a scorer over the configured weights and fallback.
func NewScorer(cfg types.QualityConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score combines source-type weight, citation count, stated technical
// accuracy, and depth tier. Malformed numeric input and unknown depth
// labels substitute the configured fallback and lower confidence; a
// single bad record never raises.
func (s *Scorer) Score(sig Signals) (quality, confidence, depthScore float64, tier types.DepthTier) {
	clean := 0
	total := 4

	srcWeight, ok := s.cfg.SourceWeights[sig.SourceType]
	if !ok {
		srcWeight = s.cfg.SourceWeights[types.SourceUnknown]
		if srcWeight == 0 {
			srcWeight = s.cfg.Fallback
		}
	} else {
		clean++
	}

	citations := s.cfg.Fallback
	if n, err := strconv.Atoi(sig.Citations); err == nil && n >= 0 {
		citations = clamp01(float64(n) / 10)
		clean++
	}

	accuracy := s.cfg.Fallback
	if a, err := strconv.ParseFloat(sig.TechnicalAccuracy, 64); err == nil && a >= 0 && a <= 1 {
		accuracy = a
		clean++
	}

	tier = types.DepthTier(sig.Depth)
	mult, ok := s.cfg.DepthMultipliers[tier]
	if !ok {
		tier = types.DepthIntermediate
		mult = s.cfg.Fallback
	} else {
		clean++
	}

	quality = clamp01(0.3*srcWeight + 0.25*citations + 0.25*accuracy + 0.2*mult)
	confidence = clamp01(0.4 + 0.6*float64(clean)/float64(total))
	return quality, confidence, mult, tier
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
