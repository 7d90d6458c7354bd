package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/partlinq/partsearch/engine/analytics"
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

const frontPadsDoc = `{"partNumber":"BP-1042-F","brand":"Brembo","category":"brake pad","description":"Front ceramic brake pad set for Toyota Camry","price":49.9,"stock":12,"vehicleFitments":[{"make":"Toyota","model":"Camry","yearFrom":2018,"yearTo":2023}],"crossReferences":["D1222"],"oemReferences":["04465-33471"]}`

const rearPadsDoc = `{"partNumber":"BP-1042-R","brand":"Bosch","category":"brake pad","description":"Rear low-dust brake pad set for Toyota Camry","price":39.9,"stock":8,"vehicleFitments":[{"make":"Toyota","model":"Camry","yearFrom":2019,"yearTo":2024}],"crossReferences":["D1223"]}`

// fakeIndex answers pings on GET and serves the given documents for every
// search, counting search calls.
func fakeIndex(t *testing.T, docs []string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var searches atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{}`))
			return
		}
		searches.Add(1)
		hits := make([]map[string]any, 0, len(docs))
		for i, doc := range docs {
			hits = append(hits, map[string]any{
				"_id":     fmt.Sprintf("p%d", i+1),
				"_score":  9.1 - float64(i),
				"_source": json.RawMessage(doc),
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"took": 3,
			"hits": map[string]any{
				"total":     map[string]any{"value": len(docs)},
				"max_score": 9.1,
				"hits":      hits,
			},
		})
	}))
	t.Cleanup(ts.Close)
	return ts, &searches
}

// newPipeline wires real stages against a test index the way run does, with
// the optional tiers absent.
func newPipeline(t *testing.T, indexURL string) (*search.Service, *analytics.Service) {
	t.Helper()
	cfg := config.Default()
	reg := metrics.New()
	store := cache.NewTiered(cacheNamespaces(cfg), nil, reg, nil)
	idx := esindex.NewClient(indexURL, time.Second)
	an := analytics.New(nil, reg, analytics.DefaultOptions(), nil)

	llmBr := resilience.NewBreaker(breakerOpts("llm", cfg.Breakers.LLM, nil))
	idxBr := resilience.NewBreaker(breakerOpts("index", cfg.Breakers.Index, nil))

	ropts := retrieve.DefaultOptions()
	ropts.Index = cfg.Index.PartsIndex

	svc := search.New(search.Deps{
		Understander: understand.New(nil, llmBr, store, understand.DefaultOptions(), nil),
		Retriever:    retrieve.New(idx, idxBr, store, ropts, nil),
		Filterer:     filter.New(filter.DefaultOptions(), nil),
		Ranker:       rank.New(an.Engagement(), rank.DefaultOptions(), nil),
		Explainer:    explain.New(nil, nil, llmBr, explain.DefaultOptions(), nil),
		Cache:        store,
		Metrics:      reg,
	}, search.Options{
		CacheEnabled: cfg.Caching.Enabled,
		DefaultLimit: cfg.Limits.PageSize,
		MaxLimit:     cfg.Limits.MaxResults,
		Stages:       stageFlags(cfg.Stages),
	}, nil)
	svc.AddListener(an)
	return svc, an
}

func postSearch(t *testing.T, handler http.HandlerFunc, body string) (*httptest.ResponseRecorder, *search.Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("POST", "/search", bytes.NewBufferString(body)))
	var resp search.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, &resp
}

func TestSearchEndpoint(t *testing.T) {
	backend, _ := fakeIndex(t, []string{frontPadsDoc, rearPadsDoc})
	svc, _ := newPipeline(t, backend.URL)
	handler := handleSearch(svc)

	rec, resp := postSearch(t, handler, `{"query":"toyota camry 2020 brake pads"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Fatalf("envelope not successful: %s %s", resp.ErrorCode, resp.Error)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Understanding == nil {
		t.Fatal("understanding section missing")
	}
	if resp.Understanding.Intent.VehicleMake != "Toyota" {
		t.Errorf("make = %q, want Toyota", resp.Understanding.Intent.VehicleMake)
	}
	if resp.Results[0].Rank != 1 {
		t.Errorf("first result rank = %d, want 1", resp.Results[0].Rank)
	}
	if resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Fatal("meta request id missing")
	}
	if got := rec.Header().Get("X-Request-ID"); got != resp.Meta.RequestID {
		t.Errorf("X-Request-ID header = %q, want %q", got, resp.Meta.RequestID)
	}
	if resp.Meta.CacheStatus != search.CacheStatusMiss {
		t.Errorf("cache status = %q, want miss", resp.Meta.CacheStatus)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestSearchEndpointCachedResponse(t *testing.T) {
	backend, searches := fakeIndex(t, []string{frontPadsDoc})
	svc, _ := newPipeline(t, backend.URL)
	handler := handleSearch(svc)

	body := `{"query":"toyota camry 2020 brake pads"}`
	if _, resp := postSearch(t, handler, body); !resp.Success {
		t.Fatalf("first search failed: %s", resp.Error)
	}
	_, resp := postSearch(t, handler, body)
	if !resp.Success {
		t.Fatalf("second search failed: %s", resp.Error)
	}
	if resp.Meta.CacheStatus != search.CacheStatusResponse {
		t.Errorf("cache status = %q, want %q", resp.Meta.CacheStatus, search.CacheStatusResponse)
	}
	if n := searches.Load(); n != 1 {
		t.Errorf("backend searches = %d, want 1", n)
	}
}

func TestSearchEndpointNoResults(t *testing.T) {
	backend, _ := fakeIndex(t, nil)
	svc, _ := newPipeline(t, backend.URL)
	handler := handleSearch(svc)

	rec, resp := postSearch(t, handler, `{"query":"toyota camry 2020 brake pads"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Success {
		t.Fatalf("zero hits must stay a success envelope: %s", resp.Error)
	}
	if len(resp.Results) != 0 || resp.Pagination.Total != 0 {
		t.Errorf("results = %d, total = %d, want 0/0", len(resp.Results), resp.Pagination.Total)
	}
}

func TestSearchEndpointEmptyQuery(t *testing.T) {
	backend, _ := fakeIndex(t, nil)
	svc, _ := newPipeline(t, backend.URL)
	handler := handleSearch(svc)

	rec, resp := postSearch(t, handler, `{"query":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp.Success || resp.ErrorCode != search.CodeInvalidQuery {
		t.Errorf("envelope = success %v code %q", resp.Success, resp.ErrorCode)
	}
}

func TestSearchEndpointInvalidJSON(t *testing.T) {
	backend, _ := fakeIndex(t, nil)
	svc, _ := newPipeline(t, backend.URL)
	handler := handleSearch(svc)

	rec, resp := postSearch(t, handler, `{"query":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp.ErrorCode != search.CodeInvalidQuery {
		t.Errorf("code = %q, want %q", resp.ErrorCode, search.CodeInvalidQuery)
	}
}

func TestSearchEndpointBackendDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{}`))
			return
		}
		http.Error(w, `{"error":"shard failure"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)
	svc, _ := newPipeline(t, ts.URL)
	handler := handleSearch(svc)

	rec, resp := postSearch(t, handler, `{"query":"toyota camry 2020 brake pads"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if resp.Success || resp.ErrorCode != search.CodeSearchError {
		t.Errorf("envelope = success %v code %q", resp.Success, resp.ErrorCode)
	}
}

func TestSearchFeedsAnalytics(t *testing.T) {
	backend, _ := fakeIndex(t, []string{frontPadsDoc})
	svc, an := newPipeline(t, backend.URL)
	handler := handleSearch(svc)

	if _, resp := postSearch(t, handler, `{"query":"toyota camry 2020 brake pads"}`); !resp.Success {
		t.Fatalf("search failed: %s", resp.Error)
	}
	snap := an.Stats(1)
	if snap.Searches != 1 {
		t.Errorf("tracked searches = %d, want 1", snap.Searches)
	}
	if len(snap.RecentSearches) != 1 || snap.RecentSearches[0].Query != "toyota camry 2020 brake pads" {
		t.Errorf("recent searches = %+v", snap.RecentSearches)
	}
}

func TestRunStartsAndShuts(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0

	errCh := make(chan error, 1)
	go func() { errCh <- run(cfg, slog.Default()) }()

	go func() {
		<-time.After(200 * time.Millisecond)
		p, _ := os.FindProcess(os.Getpid())
		p.Signal(syscall.SIGINT)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit within 5 seconds")
	}
}

func TestRunRedisUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "localhost:1"

	if err := run(cfg, slog.Default()); err == nil {
		t.Error("expected error for unreachable redis")
	}
}

func TestRunBadGraphURL(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Graph.Enabled = true
	cfg.Graph.URL = "://invalid"

	if err := run(cfg, slog.Default()); err == nil {
		t.Error("expected error for bad graph url")
	}
}
