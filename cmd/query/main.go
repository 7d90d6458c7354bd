// Command query runs a single search through a locally wired pipeline and
// prints the ranked results. Only the parts index is contacted; the LLM,
// Redis and NATS tiers stay off, so the output reflects the token parser
// and the deterministic stages.
//
// Usage:
//
//	query -index http://localhost:9200 toyota camry 2020 brake pads
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/explain"
	"github.com/partlinq/partsearch/engine/filter"
	"github.com/partlinq/partsearch/engine/rank"
	"github.com/partlinq/partsearch/engine/retrieve"
	"github.com/partlinq/partsearch/engine/search"
	"github.com/partlinq/partsearch/engine/understand"
	"github.com/partlinq/partsearch/pkg/cache"
	"github.com/partlinq/partsearch/pkg/config"
	"github.com/partlinq/partsearch/pkg/esindex"
	"github.com/partlinq/partsearch/pkg/metrics"
	"github.com/partlinq/partsearch/pkg/resilience"
)

func main() {
	var (
		indexURL = flag.String("index", "http://localhost:9200", "parts index base URL")
		parts    = flag.String("parts", "parts", "index name to search")
		limit    = flag.Int("limit", 10, "results per page")
		page     = flag.Int("page", 1, "result page")
		profile  = flag.String("profile", rank.ProfileControl, "ranking profile")
		timeout  = flag.Duration("timeout", 10*time.Second, "overall deadline")
		asJSON   = flag.Bool("json", false, "print the raw response envelope")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: query [flags] <search terms>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	idx := esindex.NewClient(*indexURL, 5*time.Second)
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	err := idx.Ping(pingCtx)
	pingCancel()
	if err != nil {
		logger.Error("parts index unreachable", "url", *indexURL, "error", err)
		os.Exit(1)
	}

	svc := buildPipeline(idx, *parts, *profile, logger)
	resp := svc.Search(ctx, search.Request{
		Query:   query,
		Options: search.RequestOptions{Page: *page, Limit: *limit},
	})

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
	} else {
		printResponse(os.Stdout, resp)
	}
	if !resp.Success {
		os.Exit(1)
	}
}

// buildPipeline wires the five stages against a live index with the
// optional tiers absent. Breaker and limit settings track the server
// defaults. The response cache stays off; a one-shot process cannot get a
// second hit on it.
func buildPipeline(idx *esindex.Client, index, profile string, logger *slog.Logger) *search.Service {
	cfg := config.Default()
	reg := metrics.New()
	store := cache.NewTiered(cache.DefaultNamespaces, nil, reg, logger)

	llmBr := resilience.NewBreaker(resilience.BreakerOpts{
		Name:             "llm",
		FailThreshold:    cfg.Breakers.LLM.Threshold,
		Timeout:          cfg.Breakers.LLM.Timeout,
		SuccessThreshold: cfg.Breakers.LLM.SuccessThreshold,
		Logger:           logger,
	})
	idxBr := resilience.NewBreaker(resilience.BreakerOpts{
		Name:             "index",
		FailThreshold:    cfg.Breakers.Index.Threshold,
		Timeout:          cfg.Breakers.Index.Timeout,
		SuccessThreshold: cfg.Breakers.Index.SuccessThreshold,
		Logger:           logger,
	})

	ropts := retrieve.DefaultOptions()
	ropts.Index = index

	kopts := rank.DefaultOptions()
	kopts.Profile = profile

	return search.New(search.Deps{
		Understander: understand.New(nil, llmBr, store, understand.DefaultOptions(), logger),
		Retriever:    retrieve.New(idx, idxBr, store, ropts, logger),
		Filterer:     filter.New(filter.DefaultOptions(), logger),
		Ranker:       rank.New(nil, kopts, logger),
		Explainer:    explain.New(nil, nil, llmBr, explain.DefaultOptions(), logger),
		Cache:        store,
		Metrics:      reg,
	}, search.Options{
		DefaultLimit: cfg.Limits.PageSize,
		MaxLimit:     cfg.Limits.MaxResults,
	}, logger)
}

func printResponse(w io.Writer, resp *search.Response) {
	if !resp.Success {
		fmt.Fprintf(w, "error (%s): %s\n", resp.ErrorCode, resp.Error)
		return
	}
	if u := resp.Understanding; u != nil {
		fmt.Fprintf(w, "understood: %s via %s (confidence %.2f)\n",
			describeIntent(u.Intent), u.Method, u.Confidence)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "no results")
		if resp.Explanation != nil {
			for _, s := range resp.Explanation.Suggestions {
				fmt.Fprintf(w, "  try: %s\n", s.Text)
			}
		}
		return
	}
	fmt.Fprintf(w, "\n%-4s %-18s %-14s %9s %6s  %s\n",
		"#", "PART", "BRAND", "PRICE", "STOCK", "DESCRIPTION")
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%-4d %-18s %-14s %9.2f %6d  %s\n",
			r.Rank, r.PartNumber, r.Brand, r.Price, r.Stock, truncate(r.Description, 60))
	}
	if t := resp.Timing; t != nil {
		fmt.Fprintf(w, "\n%d of %d results in %dms (parse:%d retrieve:%d filter:%d rank:%d explain:%d)\n",
			len(resp.Results), resp.Pagination.Total, t.Total,
			t.Understanding, t.Retrieval, t.Filtering, t.Ranking, t.Explanation)
	}
}

// describeIntent renders an Intent as a short human-readable phrase.
func describeIntent(in domain.Intent) string {
	var parts []string
	if in.PartNumber != "" {
		parts = append(parts, "part "+in.PartNumber)
	}
	if in.Category != "" {
		parts = append(parts, in.Category)
	}
	if len(in.Brands) > 0 {
		parts = append(parts, strings.Join(in.Brands, "/"))
	}
	if in.HasVehicle() {
		v := strings.TrimSpace(in.VehicleMake + " " + in.VehicleModel)
		if in.VehicleYear != 0 {
			v = strings.TrimSpace(fmt.Sprintf("%s %d", v, in.VehicleYear))
		}
		parts = append(parts, "for "+v)
	}
	if len(parts) == 0 {
		return string(in.SearchType) + " search"
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
