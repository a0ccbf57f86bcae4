// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// RateLimitConfig controls admission of outbound search requests.
type RateLimitConfig struct {
	// MaxRate is the sustained request rate in tokens per second (default 20).
	MaxRate float64 `json:"max_rate" yaml:"max_rate"`

	// BurstSize is the bucket capacity. Zero means same as MaxRate.
	BurstSize int `json:"burst_size" yaml:"burst_size"`
}

// TimeoutConfig holds the three timeout levels of one request.
type TimeoutConfig struct {
	// Connection bounds HTTP connection establishment (default 30s).
	Connection time.Duration `json:"connection" yaml:"connection"`

	// Operation bounds the whole request end to end (default 25s).
	Operation time.Duration `json:"operation" yaml:"operation"`

	// Cleanup bounds post-failure resource release (default 5s).
	Cleanup time.Duration `json:"cleanup" yaml:"cleanup"`
}

// SearchConfig holds settings for the upstream search provider.
type SearchConfig struct {
	// Endpoint is the provider's web search URL. Empty selects the
	// built-in default endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxResults caps results per request (default 20). Upstream
	// overflow is truncated, never an error.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Count is how many results to request upstream per fetch. Zero
	// means same as MaxResults.
	Count int `json:"count,omitempty" yaml:"count,omitempty"`

	// UserAgent is sent with every upstream request.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// QualityConfig holds the scoring weights and thresholds of the
// content quality pipeline. Depth multipliers are configuration rather
// than constants: historical defaults disagreed, so neither is baked in.
type QualityConfig struct {
	// MinQuality is the quality floor below which a result still flows
	// through but is excluded from source selection (default 0.3).
	MinQuality float64 `json:"min_quality" yaml:"min_quality"`

	// MinConfidence is the confidence floor for selection (default 0.3).
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`

	// Fallback substitutes for malformed or missing numeric signals
	// (default 0.5).
	Fallback float64 `json:"fallback" yaml:"fallback"`

	// DepthMultipliers maps depth tiers to score multipliers.
	DepthMultipliers map[DepthTier]float64 `json:"depth_multipliers" yaml:"depth_multipliers"`

	// SourceWeights maps source types to trust weights. Unknown source
	// types use the SourceUnknown entry.
	SourceWeights map[SourceType]float64 `json:"source_weights" yaml:"source_weights"`
}

// MemoryConfig bounds per-request memory.
type MemoryConfig struct {
	// Budget is the hard per-request cap in bytes (default 10MB).
	Budget int64 `json:"budget" yaml:"budget"`

	// EvictThreshold is the fraction of Budget at which proactive
	// eviction starts (default 0.8).
	EvictThreshold float64 `json:"evict_threshold" yaml:"evict_threshold"`
}

// RecoveryConfig bounds the error/recovery coordinator.
type RecoveryConfig struct {
	// MaxAttempts caps recovery attempts per failed operation (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Backoff is the base delay between recovery attempts (default 200ms).
	Backoff time.Duration `json:"backoff" yaml:"backoff"`
}

// EngineConfig groups every configuration surface of the engine.
// Loading (files, environment) is the caller's concern; the engine
// only ever sees this record.
type EngineConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Timeouts  TimeoutConfig   `json:"timeouts" yaml:"timeouts"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Quality   QualityConfig   `json:"quality" yaml:"quality"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Recovery  RecoveryConfig  `json:"recovery" yaml:"recovery"`

	// BatchSize is the interim-analysis cadence in results (default 3).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// TopK is how many sources the selection keeps (default 5).
	TopK int `json:"top_k" yaml:"top_k"`
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RateLimit: RateLimitConfig{
			MaxRate:   20,
			BurstSize: 0,
		},
		Timeouts: TimeoutConfig{
			Connection: 30 * time.Second,
			Operation:  25 * time.Second,
			Cleanup:    5 * time.Second,
		},
		Search: SearchConfig{
			MaxResults: 20,
			UserAgent:  "knowledge-aggregator/0.1",
		},
		Quality: QualityConfig{
			MinQuality:    0.3,
			MinConfidence: 0.3,
			Fallback:      0.5,
			DepthMultipliers: map[DepthTier]float64{
				DepthShallow:       0.4,
				DepthIntermediate:  0.7,
				DepthComprehensive: 0.9,
			},
			SourceWeights: map[SourceType]float64{
				SourceAcademic:      0.9,
				SourceDocumentation: 0.85,
				SourceNews:          0.6,
				SourceBlog:          0.5,
				SourceForum:         0.4,
				SourceUnknown:       0.3,
			},
		},
		Memory: MemoryConfig{
			Budget:         10 * 1024 * 1024,
			EvictThreshold: 0.8,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 3,
			Backoff:     200 * time.Millisecond,
		},
		BatchSize: 3,
		TopK:      5,
	}
}

// Validate checks ranges and reports the first violation.
func (c EngineConfig) Validate() error {
	if c.RateLimit.MaxRate <= 0 {
		return fmt.Errorf("rate_limit.max_rate must be positive, got %v", c.RateLimit.MaxRate)
	}
	if c.RateLimit.BurstSize < 0 {
		return fmt.Errorf("rate_limit.burst_size must not be negative, got %d", c.RateLimit.BurstSize)
	}
	if c.Timeouts.Connection <= 0 || c.Timeouts.Operation <= 0 || c.Timeouts.Cleanup <= 0 {
		return fmt.Errorf("timeouts must all be positive: %+v", c.Timeouts)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.Count < 0 {
		return fmt.Errorf("search.count must not be negative, got %d", c.Search.Count)
	}
	for name, v := range map[string]float64{
		"quality.min_quality":    c.Quality.MinQuality,
		"quality.min_confidence": c.Quality.MinConfidence,
		"quality.fallback":       c.Quality.Fallback,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	for tier, m := range c.Quality.DepthMultipliers {
		if m < 0 || m > 1 {
			return fmt.Errorf("quality.depth_multipliers[%s] must be in [0,1], got %v", tier, m)
		}
	}
	for st, w := range c.Quality.SourceWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("quality.source_weights[%s] must be in [0,1], got %v", st, w)
		}
	}
	if c.Memory.Budget <= 0 {
		return fmt.Errorf("memory.budget must be positive, got %d", c.Memory.Budget)
	}
	if c.Memory.EvictThreshold <= 0 || c.Memory.EvictThreshold > 1 {
		return fmt.Errorf("memory.evict_threshold must be in (0,1], got %v", c.Memory.EvictThreshold)
	}
	if c.Recovery.MaxAttempts < 0 {
		return fmt.Errorf("recovery.max_attempts must not be negative, got %d", c.Recovery.MaxAttempts)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	return nil
}
