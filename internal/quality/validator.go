// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quality

import (
	"strings"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// Validator maps source type and domain provenance to trust and
// reliability scores using the configurable per-source-type weight
// table. Unknown and invalid source types fall back to the
// conservative SourceUnknown weight.
type Validator struct {
	cfg types.QualityConfig
}

// NewValidator builds a validator over the configured weight table.
func NewValidator(cfg types.QualityConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns (trust, reliability) in [0,1].
func (v *Validator) Validate(st types.SourceType, domain string) (trust, reliability float64) {
	trust, ok := v.cfg.SourceWeights[st]
	if !ok {
		trust = v.cfg.SourceWeights[types.SourceUnknown]
		if trust == 0 {
			trust = 0.3
		}
	}

	// Reliability starts from trust and shifts on domain signals.
	reliability = trust
	d := strings.ToLower(domain)
	switch {
	case d == "":
		reliability -= 0.2
	case strings.HasSuffix(d, ".gov"), strings.HasSuffix(d, ".edu"):
		reliability += 0.1
	case strings.HasSuffix(d, ".org"):
		reliability += 0.05
	}
	return clamp01(trust), clamp01(reliability)
}
