package analytics

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/rank"
	"github.com/partlinq/partsearch/engine/search"
	"github.com/partlinq/partsearch/pkg/metrics"
)

func sampleMetrics(id string, results int) *search.Metrics {
	return &search.Metrics{
		RequestID:         id,
		Query:             "oil filter for 2019 Toyota Camry",
		Start:             time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Intent:            domain.Intent{SearchType: domain.SearchFitment, Category: "oil filter"},
		ParseMethod:       "token",
		ParseConfidence:   0.85,
		Understanding:     3 * time.Millisecond,
		Retrieval:         41 * time.Millisecond,
		Filtering:         time.Millisecond,
		Ranking:           2 * time.Millisecond,
		Total:             48 * time.Millisecond,
		RetrievalStrategy: "fitment",
		CandidateCount:    12,
		PreFilterCount:    12,
		PostFilterCount:   9,
		FiltersApplied:    []string{"fitment"},
		Profile:           rank.ProfileControl,
		Weights:           rank.Weights{"textScore": 0.3},
		ResultCount:       results,
		TopResultID:       "p1",
		TopResultScore:    0.91,
		Success:           true,
	}
}

func sampleResponse(ids ...string) *search.Response {
	resp := &search.Response{Success: true}
	for i, id := range ids {
		resp.Results = append(resp.Results, search.Result{ID: id, Rank: i + 1})
	}
	return resp
}

func TestEntryFromMetrics(t *testing.T) {
	entry := entryFromMetrics(sampleMetrics("req-1", 9))

	if entry.RequestID != "req-1" || entry.RawQuery != "oil filter for 2019 Toyota Camry" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.ParseTimeMs != 3 || entry.RetrievalTimeMs != 41 || entry.TotalTimeMs != 48 {
		t.Errorf("timings = %d/%d/%d", entry.ParseTimeMs, entry.RetrievalTimeMs, entry.TotalTimeMs)
	}
	if entry.RetrievalSource != "fitment" || entry.RankingMethod != rank.ProfileControl {
		t.Errorf("source = %q method = %q", entry.RetrievalSource, entry.RankingMethod)
	}
	if entry.PreFilterCount != 12 || entry.PostFilterCount != 9 || entry.ResultCount != 9 {
		t.Errorf("counts = %d/%d/%d", entry.PreFilterCount, entry.PostFilterCount, entry.ResultCount)
	}

	// The wire shape is a fixed contract for downstream consumers.
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{
		`"requestId"`, `"timestamp"`, `"rawQuery"`, `"parsedIntent"`, `"parseMethod"`,
		`"parseTimeMs"`, `"parseConfidence"`, `"retrievalSource"`, `"candidateCount"`,
		`"retrievalTimeMs"`, `"preFilterCount"`, `"postFilterCount"`, `"filtersApplied"`,
		`"filterTimeMs"`, `"rankingMethod"`, `"weights"`, `"rankTimeMs"`,
		`"resultCount"`, `"topResultId"`, `"topResultScore"`, `"totalTimeMs"`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("log entry JSON missing %s", key)
		}
	}
}

func TestAfterSearchRecords(t *testing.T) {
	svc := New(nil, metrics.New(), DefaultOptions(), nil)

	svc.AfterSearch(context.Background(), sampleMetrics("req-1", 2), sampleResponse("p1", "p2"))

	snap := svc.Stats(10)
	if snap.Searches != 1 || snap.ZeroResults != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.AvgResultCount != 2 {
		t.Errorf("avgResultCount = %v", snap.AvgResultCount)
	}
	if len(snap.RecentSearches) != 1 || snap.RecentSearches[0].RequestID != "req-1" {
		t.Errorf("recent = %+v", snap.RecentSearches)
	}

	// Both shown parts picked up an impression.
	rates, err := svc.Engagement().Engagement(context.Background(), []string{"p1", "p3"})
	if err != nil {
		t.Fatalf("Engagement: %v", err)
	}
	if got := rates["p1"].ClickRate; got >= 0.5 {
		t.Errorf("p1 clickRate = %v, want below neutral after unclicked impression", got)
	}
	if rates["p3"] != domain.NeutralEngagement {
		t.Errorf("unknown part = %+v, want neutral", rates["p3"])
	}
}

func TestAfterSearchSkipsFailures(t *testing.T) {
	svc := New(nil, metrics.New(), DefaultOptions(), nil)

	m := sampleMetrics("req-1", 0)
	m.Success = false
	m.ErrorCode = search.CodeSearchError
	svc.AfterSearch(context.Background(), m, &search.Response{})

	snap := svc.Stats(10)
	if snap.Searches != 0 || len(snap.RecentSearches) != 0 {
		t.Errorf("failed request should not enter the quality window: %+v", snap)
	}
}

func TestZeroResultRate(t *testing.T) {
	svc := New(nil, metrics.New(), DefaultOptions(), nil)

	svc.AfterSearch(context.Background(), sampleMetrics("req-1", 5), sampleResponse("p1"))
	svc.AfterSearch(context.Background(), sampleMetrics("req-2", 0), sampleResponse())

	snap := svc.Stats(10)
	if snap.ZeroResults != 1 {
		t.Errorf("zeroResults = %d", snap.ZeroResults)
	}
	if snap.ZeroResultRate != 0.5 {
		t.Errorf("zeroResultRate = %v", snap.ZeroResultRate)
	}
}

func TestClickMRR(t *testing.T) {
	svc := New(nil, metrics.New(), DefaultOptions(), nil)
	ctx := context.Background()

	svc.AfterSearch(ctx, sampleMetrics("req-1", 3), sampleResponse("p1", "p2", "p3"))
	svc.AfterSearch(ctx, sampleMetrics("req-2", 3), sampleResponse("p1", "p2", "p3"))

	svc.HandleClick(ctx, ClickEvent{RequestID: "req-1", PartID: "p2", Position: 2})
	if got := svc.Stats(0).MRR; got != 0.5 {
		t.Errorf("MRR after first click = %v, want 0.5", got)
	}

	// Second click on the same request does not move MRR.
	svc.HandleClick(ctx, ClickEvent{RequestID: "req-1", PartID: "p3", Position: 3})
	if got := svc.Stats(0).MRR; got != 0.5 {
		t.Errorf("MRR after repeat click = %v, want 0.5", got)
	}

	svc.HandleClick(ctx, ClickEvent{RequestID: "req-2", PartID: "p1", Position: 1})
	snap := svc.Stats(0)
	if snap.MRR != 0.75 {
		t.Errorf("MRR = %v, want 0.75", snap.MRR)
	}
	if snap.MRRSamples != 2 {
		t.Errorf("MRRSamples = %d, want 2", snap.MRRSamples)
	}
	if snap.Clicks != 3 {
		t.Errorf("Clicks = %d, want 3", snap.Clicks)
	}
	if snap.ClicksByPosition[0] != 1 || snap.ClicksByPosition[1] != 1 || snap.ClicksByPosition[2] != 1 {
		t.Errorf("clicksByPosition = %v", snap.ClicksByPosition)
	}
}

func TestClickPositionBounds(t *testing.T) {
	svc := New(nil, metrics.New(), DefaultOptions(), nil)
	ctx := context.Background()

	svc.HandleClick(ctx, ClickEvent{RequestID: "req-1", PartID: "p1", Position: 0})
	svc.HandleClick(ctx, ClickEvent{RequestID: "req-2", PartID: "p1", Position: 25})

	snap := svc.Stats(0)
	if snap.Clicks != 2 {
		t.Errorf("Clicks = %d", snap.Clicks)
	}
	for i, n := range snap.ClicksByPosition {
		if n != 0 {
			t.Errorf("position %d = %d, histogram only spans 1..%d", i+1, n, maxPosition)
		}
	}
	// Position 0 carries no rank information; position 25 still counts for MRR.
	if snap.MRRSamples != 1 || snap.MRR != 1.0/25 {
		t.Errorf("MRR = %v samples = %d", snap.MRR, snap.MRRSamples)
	}
}

func TestNDCG(t *testing.T) {
	svc := New(nil, metrics.New(), DefaultOptions(), nil)
	ctx := context.Background()

	svc.AfterSearch(ctx, sampleMetrics("req-1", 3), sampleResponse("p1", "p2", "p3"))
	svc.AfterSearch(ctx, sampleMetrics("req-2", 2), sampleResponse("a1", "a2"))

	if snap := svc.Stats(0); snap.NDCGSamples != 0 || snap.NDCG != 0 {
		t.Errorf("before engagement: ndcg = %v samples = %d", snap.NDCG, snap.NDCGSamples)
	}

	// A click on the top result is a perfect ordering.
	svc.HandleClick(ctx, ClickEvent{RequestID: "req-1", PartID: "p1", Position: 1})
	snap := svc.Stats(0)
	if snap.NDCGSamples != 1 || snap.NDCG != 1 {
		t.Errorf("ndcg = %v samples = %d, want 1 and 1", snap.NDCG, snap.NDCGSamples)
	}

	// A purchase lands at the part's position; gain at position 2 against
	// an ideal at position 1 discounts the score.
	svc.HandlePurchase(ctx, PurchaseEvent{RequestID: "req-2", PartID: "a2", Quantity: 1})
	snap = svc.Stats(0)
	want := (1 + 3/math.Log2(3)/3) / 2
	if snap.NDCGSamples != 2 || math.Abs(snap.NDCG-want) > 1e-9 {
		t.Errorf("ndcg = %v samples = %d, want %v and 2", snap.NDCG, snap.NDCGSamples, want)
	}

	// Purchases for parts the request never showed change nothing.
	svc.HandlePurchase(ctx, PurchaseEvent{RequestID: "req-1", PartID: "zz"})
	if got := svc.Stats(0).NDCG; math.Abs(got-want) > 1e-9 {
		t.Errorf("ndcg after stray purchase = %v, want %v", got, want)
	}
}

func TestQualityGauges(t *testing.T) {
	reg := metrics.New()
	svc := New(nil, reg, DefaultOptions(), nil)
	ctx := context.Background()

	svc.AfterSearch(ctx, sampleMetrics("req-1", 2), sampleResponse("p1", "p2"))
	svc.HandleClick(ctx, ClickEvent{RequestID: "req-1", PartID: "p1", Position: 1})

	if got := reg.Gauge("search_mrr", "").Value(); got != 1 {
		t.Errorf("search_mrr = %v, want 1", got)
	}
	if got := reg.Gauge("search_ndcg", "").Value(); got != 1 {
		t.Errorf("search_ndcg = %v, want 1", got)
	}
	if got := reg.Gauge("search_avg_results", "").Value(); got != 2 {
		t.Errorf("search_avg_results = %v, want 2", got)
	}
	name := metrics.WithLabels("search_clicks_by_position_total", "position", "1")
	if got := reg.Counter(name, "").Value(); got != 1 {
		t.Errorf("clicks-by-position counter = %d, want 1", got)
	}
}

func TestRecentSearchesWindow(t *testing.T) {
	svc := New(nil, metrics.New(), Options{RecentWindow: 3}, nil)
	ctx := context.Background()

	for _, id := range []string{"req-1", "req-2", "req-3", "req-4"} {
		svc.AfterSearch(ctx, sampleMetrics(id, 1), sampleResponse("p1"))
	}

	snap := svc.Stats(0)
	if snap.Searches != 4 {
		t.Errorf("Searches = %d", snap.Searches)
	}
	if len(snap.RecentSearches) != 3 {
		t.Fatalf("recent len = %d, want 3", len(snap.RecentSearches))
	}
	// Newest first; req-1 fell out of the window.
	if snap.RecentSearches[0].RequestID != "req-4" || snap.RecentSearches[2].RequestID != "req-2" {
		t.Errorf("recent = %+v", snap.RecentSearches)
	}

	limited := svc.Stats(2)
	if len(limited.RecentSearches) != 2 || limited.RecentSearches[0].RequestID != "req-4" {
		t.Errorf("limited recent = %+v", limited.RecentSearches)
	}

	// Engagement for the evicted request no longer lands.
	svc.HandleClick(ctx, ClickEvent{RequestID: "req-1", PartID: "p1", Position: 1})
	if snap := svc.Stats(0); snap.NDCGSamples != 0 {
		t.Errorf("NDCGSamples = %d, want 0 for evicted request", snap.NDCGSamples)
	}
}

func TestPurchaseCounters(t *testing.T) {
	reg := metrics.New()
	svc := New(nil, reg, DefaultOptions(), nil)
	ctx := context.Background()

	svc.HandlePurchase(ctx, PurchaseEvent{RequestID: "req-1", PartID: "p1", Quantity: 2})

	if got := svc.Stats(0).Purchases; got != 1 {
		t.Errorf("Purchases = %d", got)
	}
	if got := reg.Counter("search_purchases_total", "").Value(); got != 1 {
		t.Errorf("counter = %d", got)
	}
}

func TestPublishFallbackWithoutNATS(t *testing.T) {
	svc := New(nil, metrics.New(), DefaultOptions(), nil)
	ctx := context.Background()

	if err := svc.PublishClick(ctx, ClickEvent{RequestID: "req-1", PartID: "p1", Position: 1}); err != nil {
		t.Fatalf("PublishClick: %v", err)
	}
	if err := svc.PublishPurchase(ctx, PurchaseEvent{RequestID: "req-1", PartID: "p1"}); err != nil {
		t.Fatalf("PublishPurchase: %v", err)
	}

	snap := svc.Stats(0)
	if snap.Clicks != 1 || snap.Purchases != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if err := svc.SubscribeEvents(); err != nil {
		t.Fatalf("SubscribeEvents without NATS: %v", err)
	}
}
