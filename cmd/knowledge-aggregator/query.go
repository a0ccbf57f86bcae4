// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/aggregate"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/analyzer"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/cache"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/ratelimit"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/recovery"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/secrets"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/source"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run an aggregation request and stream its events",
	Long: `Query runs one aggregation request: the text is analyzed, searched,
scored, and the resulting events are written to stdout as NDJSON in
emission order. With --query-file, every query listed in the YAML file
runs as a batch and the outcomes are written to --out.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().Int("count", 0, "results requested upstream (default: max-results)")
	queryCmd.Flags().Int("max-results", 0, "cap on results per request (default from config)")
	queryCmd.Flags().String("query-file", "", "YAML file listing queries to run as a batch")
	queryCmd.Flags().String("out", "", "write batch outcomes to this YAML file")
	queryCmd.Flags().String("cache-dir", "", "directory for the SQLite response cache (empty disables caching)")
	queryCmd.Flags().Duration("cache-ttl", cache.DefaultTTL, "response cache TTL")
	queryCmd.Flags().Bool("table", false, "print a human-readable summary instead of NDJSON events")
	queryCmd.Flags().Bool("stats", false, "print recovery statistics to stderr after the run")
	queryCmd.Flags().Int("parallel", 2, "concurrent queries in batch mode")

	rootCmd.AddCommand(queryCmd)
}

// loadEngineConfig merges the documented defaults with the config file
// and environment, then applies flag overrides.
func loadEngineConfig(cmd *cobra.Command) (types.EngineConfig, error) {
	def := types.DefaultEngineConfig()

	viper.SetDefault("rate_limit.max_rate", def.RateLimit.MaxRate)
	viper.SetDefault("rate_limit.burst_size", def.RateLimit.BurstSize)
	viper.SetDefault("timeouts.connection", def.Timeouts.Connection)
	viper.SetDefault("timeouts.operation", def.Timeouts.Operation)
	viper.SetDefault("timeouts.cleanup", def.Timeouts.Cleanup)
	viper.SetDefault("search.endpoint", def.Search.Endpoint)
	viper.SetDefault("search.max_results", def.Search.MaxResults)
	viper.SetDefault("search.count", def.Search.Count)
	viper.SetDefault("search.user_agent", def.Search.UserAgent)
	viper.SetDefault("memory.budget", def.Memory.Budget)
	viper.SetDefault("memory.evict_threshold", def.Memory.EvictThreshold)
	viper.SetDefault("recovery.max_attempts", def.Recovery.MaxAttempts)
	viper.SetDefault("recovery.backoff", def.Recovery.Backoff)
	viper.SetDefault("batch_size", def.BatchSize)
	viper.SetDefault("top_k", def.TopK)

	cfg := def
	cfg.RateLimit.MaxRate = viper.GetFloat64("rate_limit.max_rate")
	cfg.RateLimit.BurstSize = viper.GetInt("rate_limit.burst_size")
	cfg.Timeouts.Connection = viper.GetDuration("timeouts.connection")
	cfg.Timeouts.Operation = viper.GetDuration("timeouts.operation")
	cfg.Timeouts.Cleanup = viper.GetDuration("timeouts.cleanup")
	cfg.Search.Endpoint = viper.GetString("search.endpoint")
	cfg.Search.MaxResults = viper.GetInt("search.max_results")
	cfg.Search.Count = viper.GetInt("search.count")
	cfg.Search.UserAgent = viper.GetString("search.user_agent")
	cfg.Memory.Budget = viper.GetInt64("memory.budget")
	cfg.Memory.EvictThreshold = viper.GetFloat64("memory.evict_threshold")
	cfg.Recovery.MaxAttempts = viper.GetInt("recovery.max_attempts")
	cfg.Recovery.Backoff = viper.GetDuration("recovery.backoff")
	cfg.BatchSize = viper.GetInt("batch_size")
	cfg.TopK = viper.GetInt("top_k")

	if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
		cfg.Search.MaxResults = n
	}
	if n, _ := cmd.Flags().GetInt("count"); n > 0 {
		cfg.Search.Count = n
	}

	cfg.Search.APIKey = viper.GetString("search.api_key")
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = secrets.Resolve(loadedSecrets, secrets.BraveSearchAPIKey, "BRAVE_SEARCH_API_KEY")
	}
	if cfg.Search.APIKey == "" {
		return cfg, fmt.Errorf("no search API key: place it in .secrets/%s or set BRAVE_SEARCH_API_KEY", secrets.BraveSearchAPIKey)
	}

	return cfg, cfg.Validate()
}

// buildAggregator wires the engine: HTTP client, provider, optional
// response cache, rate limiter, recovery coordinator, logger. The
// returned cleanup closes whatever was opened.
func buildAggregator(cmd *cobra.Command, cfg types.EngineConfig) (*aggregate.Aggregator, func(), error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, err := buildLogger(verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeouts.Connection}
	var provider source.Provider = source.NewBraveClient(cfg.Search, httpClient)

	cleanup := func() { _ = logger.Sync() }
	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		ttl, _ := cmd.Flags().GetDuration("cache-ttl")
		store, err := cache.NewStore(dir, ttl)
		if err != nil {
			return nil, nil, err
		}
		provider = cache.Wrap(provider, store)
		cleanup = func() {
			_ = store.Close()
			_ = logger.Sync()
		}
		logger.Debug("response cache enabled", zap.String("dir", dir), zap.Duration("ttl", ttl))
	}

	limiter := ratelimit.New(cfg.RateLimit.MaxRate, cfg.RateLimit.BurstSize)
	coord := recovery.NewCoordinator(cfg.Recovery.MaxAttempts, cfg.Recovery.Backoff)

	agg, err := aggregate.New(cfg, analyzer.NewHeuristic(), provider, limiter, coord, aggregate.WithLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return agg, cleanup, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}

	agg, cleanup, err := buildAggregator(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path, _ := cmd.Flags().GetString("query-file"); path != "" {
		return runBatch(ctx, cmd, cfg, agg, path)
	}

	if len(args) != 1 {
		return fmt.Errorf("query text is required (or use --query-file)")
	}

	events := agg.ProcessQuery(ctx, args[0])

	table, _ := cmd.Flags().GetBool("table")
	var failure *types.ErrorPayload
	if table {
		failure = printTable(os.Stdout, events)
	} else {
		failure, err = streamNDJSON(os.Stdout, events)
		if err != nil {
			return err
		}
	}

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		printStats(agg)
	}

	if failure != nil {
		return fmt.Errorf("aggregation failed (%s): %s", failure.Class, failure.Message)
	}
	return nil
}

// streamNDJSON writes every event as one JSON line, in order, and
// returns the terminal error payload if the request failed.
func streamNDJSON(w *os.File, events <-chan types.StreamEvent) (*types.ErrorPayload, error) {
	enc := json.NewEncoder(w)
	var failure *types.ErrorPayload
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return failure, fmt.Errorf("encoding event: %w", err)
		}
		if ev.Type == types.EventError {
			failure = ev.Error
		}
	}
	return failure, nil
}

// printTable renders a compact human-readable view of the stream.
func printTable(w *os.File, events <-chan types.StreamEvent) *types.ErrorPayload {
	var failure *types.ErrorPayload
	for ev := range events {
		switch ev.Type {
		case types.EventStatus:
			fmt.Fprintf(w, "[%s] %s\n", ev.Status.State, ev.Status.Query)
		case types.EventSearchResult:
			r := ev.Result
			fmt.Fprintf(w, "%3d. [%-13s q=%.2f t=%.2f] %s\n      %s\n",
				r.Position+1, r.SourceType, r.Quality, r.Trust, r.Title, r.URL)
		case types.EventInterimAnalysis:
			ia := ev.Interim
			fmt.Fprintf(w, "  -- %d processed, dominant=%s, avg quality %.2f, %d domains\n",
				ia.Processed, ia.DominantSourceType, ia.AverageQuality, ia.Domains)
		case types.EventSourceSelection:
			fmt.Fprintf(w, "Selected sources:\n")
			for i, s := range ev.Selection.Sources {
				fmt.Fprintf(w, "  %d. (%.2f) %s\n", i+1, s.Combined, s.URL)
			}
		case types.EventSummary:
			s := ev.Summary
			fmt.Fprintf(w, "Summary: %d results, %d selected, avg quality %.2f, top type %s (%.1fs)\n",
				s.TotalResults, s.Selected, s.AverageQuality, s.TopSourceType, s.Elapsed)
		case types.EventError:
			failure = ev.Error
			fmt.Fprintf(w, "Error (%s after %d attempt(s)): %s; %d partial result(s) kept\n",
				ev.Error.Class, ev.Error.Attempts, ev.Error.Message, len(ev.Error.Partial))
		}
	}
	return failure
}

func printStats(agg *aggregate.Aggregator) {
	stats := agg.Stats()
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "recovery stats: %s\n", data)
}

// runBatch runs every query in the file with bounded parallelism and
// writes the outcomes to --out when given.
func runBatch(ctx context.Context, cmd *cobra.Command, cfg types.EngineConfig, agg *aggregate.Aggregator, path string) error {
	qf, err := aggregate.ReadQueryFile(path)
	if err != nil {
		return err
	}

	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel <= 0 {
		parallel = 1
	}

	an := analyzer.NewHeuristic()
	runs := make([]aggregate.QueryRun, len(qf.Queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, q := range qf.Queries {
		i, q := i, q
		g.Go(func() error {
			run := aggregate.QueryRun{Query: q, Timestamp: time.Now().UTC()}
			if analysis, err := an.Analyze(gctx, q); err == nil {
				run.Analysis = analysis
			}
			for ev := range agg.ProcessQuery(gctx, q) {
				switch ev.Type {
				case types.EventSourceSelection:
					run.Selected = ev.Selection.Sources
				case types.EventSummary:
					run.TotalResults = ev.Summary.TotalResults
					run.AverageQuality = ev.Summary.AverageQuality
				case types.EventError:
					run.Error = ev.Error.Message
					run.TotalResults = len(ev.Error.Partial)
				}
			}
			runs[i] = run
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, run := range runs {
		if run.Error != "" {
			fmt.Fprintf(os.Stdout, "%-40q FAILED: %s\n", run.Query, run.Error)
			continue
		}
		fmt.Fprintf(os.Stdout, "%-40q %3d results, %d selected, avg quality %.2f\n",
			run.Query, run.TotalResults, len(run.Selected), run.AverageQuality)
	}

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		printStats(agg)
	}

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := aggregate.WriteQueryFile(out, cfg, qf.Queries, runs); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Wrote batch outcomes to", out)
	}
	return nil
}
