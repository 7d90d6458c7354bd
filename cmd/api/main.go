// Package main implements the parts search API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/partlinq/partsearch/engine/analytics"
	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/explain"
	"github.com/partlinq/partsearch/engine/filter"
	"github.com/partlinq/partsearch/engine/graph"
	"github.com/partlinq/partsearch/engine/rank"
	"github.com/partlinq/partsearch/engine/retrieve"
	"github.com/partlinq/partsearch/engine/search"
	"github.com/partlinq/partsearch/engine/understand"
	"github.com/partlinq/partsearch/pkg/cache"
	"github.com/partlinq/partsearch/pkg/config"
	"github.com/partlinq/partsearch/pkg/esindex"
	"github.com/partlinq/partsearch/pkg/gemini"
	"github.com/partlinq/partsearch/pkg/metrics"
	"github.com/partlinq/partsearch/pkg/mid"
	"github.com/partlinq/partsearch/pkg/natsutil"
	"github.com/partlinq/partsearch/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("PARTSEARCH_CONFIG"))
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}
	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	llmBreaker := resilience.NewBreaker(breakerOpts("llm", cfg.Breakers.LLM, logger))
	indexBreaker := resilience.NewBreaker(breakerOpts("index", cfg.Breakers.Index, logger))
	dbBreaker := resilience.NewBreaker(breakerOpts("db", cfg.Breakers.DB, logger))

	// --- Distributed cache tier (optional) ---
	var l2 cache.KV
	if cfg.Redis.Enabled {
		kv, err := cache.NewRedisKV(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer kv.Close()
		l2 = kv
	}
	store := cache.NewTiered(cacheNamespaces(cfg), l2, reg, logger)

	// --- Parts index ---
	idx := esindex.NewClient(cfg.Index.URL, cfg.Index.Timeout)
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := idx.Ping(pingCtx); err != nil {
		logger.Warn("parts index unreachable at startup", "url", cfg.Index.URL, "err", err)
	}
	cancelPing()

	// --- Query interpretation model (optional) ---
	var llmClient *gemini.Client
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		llmClient = gemini.NewClient(gemini.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		})
	} else {
		logger.Info("llm disabled, queries parse token-only")
	}
	var completer understand.Completer
	var beautifier explain.Beautifier
	if llmClient != nil {
		completer = llmClient
		beautifier = llmClient
	}

	// --- Category graph (optional) ---
	var graphStore *graph.Store
	if cfg.Graph.Enabled {
		driver, err := neo4j.NewDriverWithContext(cfg.Graph.URL, neo4j.BasicAuth(cfg.Graph.User, cfg.Graph.Password, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		graphStore = graph.New(driver, dbBreaker, logger)
		if err := graphStore.Seed(ctx); err != nil {
			logger.Warn("category graph seed failed", "err", err)
		}
	}
	var categories explain.CategorySource
	if graphStore != nil {
		categories = graphStore
	}

	// --- Event bus (optional) ---
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		conn, err := natsutil.Connect(cfg.NATS.URL, "partsearch-api")
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer conn.Close()
		nc = conn
	}

	an := analytics.New(nc, reg, analytics.DefaultOptions(), logger)
	if err := an.SubscribeEvents(); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}

	// --- Pipeline stages ---
	uopts := understand.DefaultOptions()
	uopts.SkipConfidence = cfg.Pipeline.LLMSkipConfidence
	uopts.CacheConfidence = cfg.Pipeline.CacheConfidence
	understander := understand.New(completer, llmBreaker, store, uopts, logger)

	ropts := retrieve.DefaultOptions()
	ropts.Index = cfg.Index.PartsIndex
	ropts.MaxCandidates = cfg.Pipeline.MaxCandidates
	ropts.MinScore = cfg.Pipeline.MinScore
	ropts.Timeout = cfg.Index.Timeout
	retriever := retrieve.New(idx, indexBreaker, store, ropts, logger)

	fopts := filter.DefaultOptions()
	fopts.MaxResults = cfg.Pipeline.MaxResults
	filterer := filter.New(fopts, logger)

	kopts := rank.DefaultOptions()
	kopts.Profile = cfg.Pipeline.DefaultProfile
	ranker := rank.New(an.Engagement(), kopts, logger)

	explainer := explain.New(categories, beautifier, llmBreaker, explain.DefaultOptions(), logger)

	svc := search.New(search.Deps{
		Understander: understander,
		Retriever:    retriever,
		Filterer:     filterer,
		Ranker:       ranker,
		Explainer:    explainer,
		Cache:        store,
		Metrics:      reg,
	}, search.Options{
		CacheEnabled: cfg.Caching.Enabled,
		DefaultLimit: cfg.Limits.PageSize,
		MaxLimit:     cfg.Limits.MaxResults,
		Stages:       stageFlags(cfg.Stages),
	}, logger)
	svc.AddListener(an)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth(idx, store, graphStore, nc))
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("GET /stats", handleStats(an, store, reg))
	mux.HandleFunc("GET /categories", handleCategories(graphStore, logger))
	mux.HandleFunc("POST /search", handleSearch(svc))
	mux.HandleFunc("POST /events/click", handleClick(an, logger))
	mux.HandleFunc("POST /events/purchase", handlePurchase(an, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.OTel("partsearch-api"),
		mid.Throttle(cfg.Server.ThrottleRPS, cfg.Server.ThrottleBurst),
		mid.RequestMetrics(reg),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port, "profile", cfg.Pipeline.DefaultProfile)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Wiring helpers ---

func breakerOpts(name string, bc config.BreakerConfig, logger *slog.Logger) resilience.BreakerOpts {
	return resilience.BreakerOpts{
		Name:             name,
		FailThreshold:    bc.Threshold,
		Timeout:          bc.Timeout,
		SuccessThreshold: bc.SuccessThreshold,
		Logger:           logger,
	}
}

// cacheNamespaces applies the configured response TTL onto the default
// namespace set.
func cacheNamespaces(cfg *config.Config) []cache.Namespace {
	ns := make([]cache.Namespace, len(cache.DefaultNamespaces))
	copy(ns, cache.DefaultNamespaces)
	for i := range ns {
		if ns[i].Name == cache.NSSearch && cfg.Caching.SearchResultsTTL > 0 {
			ns[i].TTL = cfg.Caching.SearchResultsTTL
		}
	}
	return ns
}

func stageFlags(sc config.StagesConfig) search.StageFlags {
	flag := func(s config.StageConfig) search.StageFlag {
		return search.StageFlag{Disabled: !s.Enabled, Timeout: s.Timeout}
	}
	return search.StageFlags{
		Understanding: flag(sc.Understanding),
		Retrieval:     flag(sc.Retrieval),
		Filtering:     flag(sc.Filtering),
		Ranking:       flag(sc.Ranking),
		Explanation:   flag(sc.Explanation),
	}
}

// --- Handlers ---

func handleSearch(svc *search.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req search.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, &search.Response{
				Success:   false,
				Error:     "invalid request body",
				ErrorCode: search.CodeInvalidQuery,
			})
			return
		}
		resp := svc.Search(r.Context(), req)
		if resp.Meta != nil {
			w.Header().Set("X-Request-ID", resp.Meta.RequestID)
		}
		writeJSON(w, statusFor(resp), resp)
	}
}

// statusFor maps the envelope onto an HTTP status. The envelope itself is
// the contract; the status is a courtesy for plain HTTP clients.
func statusFor(resp *search.Response) int {
	switch {
	case resp.Success:
		return http.StatusOK
	case resp.ErrorCode == search.CodeInvalidQuery:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth pings each wired dependency. Only the parts index is
// load-bearing; the optional tiers degrade the report without failing it.
func handleHealth(idx *esindex.Client, store *cache.Tiered, gs *graph.Store, nc *nats.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string)
		healthy := true

		if err := idx.Ping(ctx); err != nil {
			checks["index"] = err.Error()
			healthy = false
		} else {
			checks["index"] = "ok"
		}
		if err := store.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
		} else {
			checks["cache"] = "ok"
		}
		if gs != nil {
			if err := gs.Ping(ctx); err != nil {
				checks["graph"] = err.Error()
			} else {
				checks["graph"] = "ok"
			}
		}
		if nc != nil {
			if st := nc.Status(); st != nats.CONNECTED {
				checks["nats"] = st.String()
			} else {
				checks["nats"] = "ok"
			}
		}

		status, code := "ok", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, healthStatus{Status: status, Checks: checks})
	}
}

type statsResponse struct {
	Search analytics.Snapshot                `json:"search"`
	Stages map[string]metrics.SampleSnapshot `json:"stageLatencyMs"`
	Cache  cache.Stats                       `json:"cache"`
}

func handleStats(an *analytics.Service, store *cache.Tiered, reg *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recent := 10
		if v := r.URL.Query().Get("recent"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				recent = n
			}
		}
		writeJSON(w, http.StatusOK, statsResponse{
			Search: an.Stats(recent),
			Stages: stageSnapshots(reg),
			Cache:  store.Snapshot(),
		})
	}
}

// stageSnapshots reads the orchestrator's latency rings back out of the
// shared registry.
func stageSnapshots(reg *metrics.Registry) map[string]metrics.SampleSnapshot {
	out := make(map[string]metrics.SampleSnapshot, 6)
	for _, stage := range []string{"understanding", "retrieval", "filtering", "ranking", "explanation"} {
		s := reg.Sample(metrics.WithLabels("search_stage_ms", "stage", stage), "", 0)
		out[stage] = s.Snapshot()
	}
	out["total"] = reg.Sample("search_total_ms", "", 0).Snapshot()
	return out
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
	Total      int64    `json:"total"`
	Source     string   `json:"source"`
}

// handleCategories lists category nodes from the graph, or the built-in
// vocabulary when no graph is wired.
func handleCategories(gs *graph.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		if gs == nil {
			names := make([]string, 0, len(domain.Categories))
			for name := range domain.Categories {
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) > limit {
				names = names[:limit]
			}
			writeJSON(w, http.StatusOK, categoriesResponse{
				Categories: names,
				Total:      int64(len(domain.Categories)),
				Source:     "static",
			})
			return
		}

		cats, err := gs.Categories(r.Context(), limit)
		if err != nil {
			logger.Error("category listing failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		total, err := gs.CategoryCount(r.Context())
		if err != nil {
			total = int64(len(cats))
		}
		names := make([]string, len(cats))
		for i, c := range cats {
			names[i] = c.Name
		}
		writeJSON(w, http.StatusOK, categoriesResponse{Categories: names, Total: total, Source: "graph"})
	}
}

func handleClick(an *analytics.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev analytics.ClickEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if ev.PartID == "" {
			http.Error(w, `{"error":"partId is required"}`, http.StatusBadRequest)
			return
		}
		if err := an.PublishClick(r.Context(), ev); err != nil {
			logger.Error("click publish failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func handlePurchase(an *analytics.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev analytics.PurchaseEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if ev.PartID == "" {
			http.Error(w, `{"error":"partId is required"}`, http.StatusBadRequest)
			return
		}
		if err := an.PublishPurchase(r.Context(), ev); err != nil {
			logger.Error("purchase publish failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
