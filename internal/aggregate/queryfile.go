// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// QueryFile is the on-disk representation of a batch run: the queries
// submitted and, after the run, the per-query outcomes. The operator can
// save a run to a file and replay or inspect it later.
type QueryFile struct {
	Queries []string        `yaml:"queries"`
	Config  QueryFileConfig `yaml:"config"`
	Runs    []QueryRun      `yaml:"runs,omitempty"`
}

// QueryFileConfig stores the engine settings that produced the runs.
type QueryFileConfig struct {
	MaxResults int `yaml:"max_results"`
	Count      int `yaml:"count,omitempty"`
	TopK       int `yaml:"top_k"`
}

// QueryRun is the recorded outcome of one query in a batch.
type QueryRun struct {
	Query          string                 `yaml:"query"`
	Analysis       types.QueryAnalysis    `yaml:"analysis"`
	TotalResults   int                    `yaml:"total_results"`
	Selected       []types.SelectedSource `yaml:"selected,omitempty"`
	AverageQuality float64                `yaml:"average_quality"`
	Error          string                 `yaml:"error,omitempty"`
	Timestamp      time.Time              `yaml:"timestamp"`
}

// ReadQueryFile loads a batch query file from disk. At least one query
// is required.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	if len(qf.Queries) == 0 {
		return nil, fmt.Errorf("query file %s lists no queries", path)
	}
	return &qf, nil
}

// WriteQueryFile saves a batch run, queries plus outcomes, to a YAML file.
func WriteQueryFile(path string, cfg types.EngineConfig, queries []string, runs []QueryRun) error {
	qf := QueryFile{
		Queries: queries,
		Config: QueryFileConfig{
			MaxResults: cfg.Search.MaxResults,
			Count:      cfg.Search.Count,
			TopK:       cfg.TopK,
		},
		Runs: runs,
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
