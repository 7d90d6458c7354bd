package explain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/pkg/resilience"
)

type mockCompleter struct {
	reply string
	err   error
	calls int
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	return m.reply, m.err
}

type mockCategorySource struct {
	related []string
	err     error
}

func (m *mockCategorySource) Related(ctx context.Context, category string, limit int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.related, nil
}

func TestInterpretTemplates(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		in       domain.Intent
		want     string
	}{
		{
			name: "part number",
			in:   domain.Intent{PartNumber: "04152-YZZA1", SearchType: domain.SearchPartNumber},
			want: "Showing results for part number 04152-YZZA1",
		},
		{
			name: "cross reference",
			in:   domain.Intent{CrossReference: "OE-5512", SearchType: domain.SearchCrossReference},
			want: "Showing replacements for reference OE-5512",
		},
		{
			name: "fitment with full vehicle",
			in: domain.Intent{
				Category: "brake pad", VehicleMake: "Toyota", VehicleModel: "Camry",
				VehicleYear: 2019, SearchType: domain.SearchFitment,
			},
			want: "Showing brake pad for 2019 Toyota Camry",
		},
		{
			name: "fitment without category",
			in: domain.Intent{
				VehicleMake: "Toyota", VehicleYear: 2019, SearchType: domain.SearchFitment,
			},
			want: "Showing parts for 2019 Toyota",
		},
		{
			name: "catalog with brand",
			in: domain.Intent{
				Category: "oil filter", Brands: []string{"Bosch"}, SearchType: domain.SearchCatalog,
			},
			want: "Browsing Bosch oil filter",
		},
		{
			name: "catalog with several brands",
			in: domain.Intent{
				Category: "oil filter", Brands: []string{"Bosch", "Mann-Filter"}, SearchType: domain.SearchCatalog,
			},
			want: "Browsing Bosch, Mann-Filter oil filter",
		},
		{
			name: "catalog without brand",
			in:   domain.Intent{Category: "oil filter", SearchType: domain.SearchCatalog},
			want: "Browsing oil filter",
		},
		{
			name:     "general falls back to the query",
			rawQuery: "something odd",
			in:       domain.Intent{SearchType: domain.SearchGeneral},
			want:     "Showing results for \"something odd\"",
		},
		{
			name: "general without query",
			in:   domain.Intent{SearchType: domain.SearchGeneral},
			want: "Showing search results",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := interpretTemplate(tt.rawQuery, tt.in); got != tt.want {
				t.Errorf("interpretTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInterpretBeautify(t *testing.T) {
	in := domain.Intent{PartNumber: "04152-YZZA1", SearchType: domain.SearchPartNumber}

	llm := &mockCompleter{reply: "Here is your Toyota oil filter, part 04152-YZZA1."}
	svc := New(nil, llm, nil, DefaultOptions(), nil)
	if got := svc.interpret(context.Background(), "", in); got != llm.reply {
		t.Errorf("interpret() = %q, want the polished sentence", got)
	}

	failing := &mockCompleter{err: errors.New("llm down")}
	svc = New(nil, failing, nil, DefaultOptions(), nil)
	if got := svc.interpret(context.Background(), "", in); got != "Showing results for part number 04152-YZZA1" {
		t.Errorf("interpret() after failure = %q, want the template", got)
	}

	empty := &mockCompleter{reply: "   "}
	svc = New(nil, empty, nil, DefaultOptions(), nil)
	if got := svc.interpret(context.Background(), "", in); got != "Showing results for part number 04152-YZZA1" {
		t.Errorf("interpret() on empty reply = %q, want the template", got)
	}
}

func TestInterpretSkipsOpenBreaker(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerOpts{Name: "llm", FailThreshold: 1})
	_ = breaker.Call(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	if breaker.State() != resilience.StateOpen {
		t.Fatal("breaker did not open")
	}

	llm := &mockCompleter{reply: "polished"}
	svc := New(nil, llm, breaker, DefaultOptions(), nil)
	in := domain.Intent{PartNumber: "04152-YZZA1", SearchType: domain.SearchPartNumber}
	if got := svc.interpret(context.Background(), "", in); got != "Showing results for part number 04152-YZZA1" {
		t.Errorf("interpret() with open breaker = %q, want the template", got)
	}
	if llm.calls != 0 {
		t.Errorf("llm called %d times through an open breaker", llm.calls)
	}
}

func TestReasons(t *testing.T) {
	in := domain.Intent{
		PartNumber:  "04152-YZZA1",
		VehicleMake: "Toyota",
		SearchType:  domain.SearchPartNumber,
	}
	c := &domain.Candidate{
		ID: "p1",
		Part: domain.Part{
			PartNumber: "04152-YZZA1",
			Stock:      5,
		},
		QualityScore: 0.8,
		Features: map[string]float64{
			featurePartNumber: 1,
			featureFitment:    1,
		},
	}

	svc := New(nil, nil, nil, DefaultOptions(), nil)
	got := svc.reasons(in, c)
	if len(got) != 3 {
		t.Fatalf("reasons = %v, want 3", got)
	}
	want := []Reason{
		{Reason: "Exact part number match", Weight: WeightHigh},
		{Reason: "Fits your vehicle", Weight: WeightHigh},
		{Reason: "In stock", Weight: WeightLow},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reasons[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReasonsCrossReference(t *testing.T) {
	in := domain.Intent{PartNumber: "OE-5512", SearchType: domain.SearchPartNumber}
	c := &domain.Candidate{
		ID: "p1",
		Part: domain.Part{
			PartNumber:      "BP91234-X",
			CrossReferences: []string{"oe5512", "XX-1"},
		},
		Features: map[string]float64{featurePartNumber: 0},
	}

	svc := New(nil, nil, nil, DefaultOptions(), nil)
	got := svc.reasons(in, c)
	if len(got) == 0 || got[0].Reason != "Listed as a cross reference for your part number" {
		t.Errorf("reasons = %v, want the cross reference reason first", got)
	}
	if got[0].Weight != WeightHigh {
		t.Errorf("cross reference weight = %q, want high", got[0].Weight)
	}
}

func TestReasonsPartialAndBrand(t *testing.T) {
	in := domain.Intent{
		PartNumber: "04152",
		Brands:     []string{"Toyota"},
	}
	c := &domain.Candidate{
		ID:   "p1",
		Part: domain.Part{PartNumber: "04152-YZZA1", Brand: "Toyota"},
		Features: map[string]float64{
			featurePartNumber: 0.5,
			featureBrand:      1,
		},
	}
	svc := New(nil, nil, nil, DefaultOptions(), nil)
	got := svc.reasons(in, c)
	want := []Reason{
		{Reason: "Part number closely matches", Weight: WeightMedium},
		{Reason: "Brand matches your search", Weight: WeightMedium},
	}
	if len(got) != len(want) {
		t.Fatalf("reasons = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reasons[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHighlightsPartNumber(t *testing.T) {
	svc := New(nil, nil, nil, DefaultOptions(), nil)
	in := domain.Intent{PartNumber: "04152-yzza1"}
	p := domain.Part{PartNumber: "04152-YZZA1"}

	h := svc.highlights(in, nil, &p)
	if h == nil || h.PartNumber == nil {
		t.Fatal("expected a part number highlight")
	}
	if h.PartNumber.Start != 0 || h.PartNumber.End != 11 {
		t.Errorf("highlight span = [%d, %d), want [0, 11)", h.PartNumber.Start, h.PartNumber.End)
	}
}

func TestHighlightsDescriptionWindow(t *testing.T) {
	desc := strings.Repeat("x", 50) + " premium brake pad set " + strings.Repeat("y", 50)
	terms := searchTerms("brake pads for camry")

	got := descriptionWindow(desc, terms, 30)
	if got == "" {
		t.Fatal("expected a description window")
	}
	if !strings.Contains(got, "brake") {
		t.Errorf("window %q does not contain the matched term", got)
	}
	// 30 chars each side plus the term itself.
	if len(got) > len("brake")+60 {
		t.Errorf("window too wide: %d bytes", len(got))
	}

	if got := descriptionWindow(desc, searchTerms("zz"), 30); got != "" {
		t.Errorf("window for unmatched terms = %q, want empty", got)
	}
}

func TestDescriptionWindowRuneSafe(t *testing.T) {
	desc := strings.Repeat("ä", 40) + " bremsbeläge vorne " + strings.Repeat("ö", 40)
	got := descriptionWindow(desc, []string{"bremsbeläge"}, 30)
	if got == "" {
		t.Fatal("expected a window")
	}
	if !utf8.ValidString(got) {
		t.Errorf("window cut through a rune: %q", got)
	}
	if !strings.Contains(got, "bremsbeläge") {
		t.Errorf("window %q lost the matched term", got)
	}
}

func TestSearchTerms(t *testing.T) {
	got := searchTerms("Oil Filter for a VW")
	want := []string{"oil", "filter", "for"}
	if len(got) != len(want) {
		t.Fatalf("searchTerms() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("terms[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSuggestZeroResults(t *testing.T) {
	svc := New(nil, nil, nil, DefaultOptions(), nil)
	got := svc.suggest(context.Background(), domain.Intent{Category: "brake pad"}, 0)
	if len(got) != 3 {
		t.Fatalf("suggestions = %v, want 3 tips", got)
	}
	for _, sg := range got {
		if sg.Type != SuggestTip {
			t.Errorf("suggestion type = %q, want tip", sg.Type)
		}
	}
}

func TestSuggestWideResults(t *testing.T) {
	svc := New(nil, nil, nil, DefaultOptions(), nil)

	got := svc.suggest(context.Background(), domain.Intent{}, 150)
	types := make([]string, len(got))
	for i, sg := range got {
		types[i] = sg.Type
	}
	want := []string{SuggestAddVehicle, SuggestAddBrand, SuggestAddPosition}
	if len(types) != len(want) {
		t.Fatalf("suggestion types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types[%d] = %q, want %q", i, types[i], want[i])
		}
	}

	// Facets already present are not suggested again.
	in := domain.Intent{VehicleMake: "Toyota", Brands: []string{"Bosch"}}
	got = svc.suggest(context.Background(), in, 150)
	if len(got) != 1 || got[0].Type != SuggestAddPosition {
		t.Errorf("suggestions = %v, want only addPosition", got)
	}
}

func TestSuggestYearBand(t *testing.T) {
	svc := New(nil, nil, nil, DefaultOptions(), nil)

	in := domain.Intent{VehicleMake: "Toyota"}
	got := svc.suggest(context.Background(), in, 50)
	if len(got) != 1 || got[0].Type != SuggestAddYear {
		t.Fatalf("suggestions = %v, want addYear", got)
	}

	in.VehicleYear = 2019
	if got := svc.suggest(context.Background(), in, 50); len(got) != 0 {
		t.Errorf("suggestions with year present = %v, want none", got)
	}
}

func TestSuggestRelatedCategories(t *testing.T) {
	svc := New(nil, nil, nil, DefaultOptions(), nil)
	in := domain.Intent{Category: "oil filter"}

	got := svc.suggest(context.Background(), in, 30)
	if len(got) != 3 {
		t.Fatalf("suggestions = %v, want 3 related categories", got)
	}
	values := map[string]bool{}
	for _, sg := range got {
		if sg.Type != SuggestRelatedCategory {
			t.Errorf("type = %q, want relatedCategory", sg.Type)
		}
		if !strings.HasPrefix(sg.Text, "Also consider ") {
			t.Errorf("text = %q", sg.Text)
		}
		values[sg.Value] = true
	}
	if !values["air filter"] || !values["fuel filter"] {
		t.Errorf("related values = %v, want the oil filter adjacency", values)
	}
}

func TestSuggestRelatedFromGraph(t *testing.T) {
	src := &mockCategorySource{related: []string{"brake disc"}}
	svc := New(src, nil, nil, DefaultOptions(), nil)
	in := domain.Intent{Category: "brake pad"}

	got := svc.suggest(context.Background(), in, 30)
	if len(got) != 1 || got[0].Value != "brake disc" {
		t.Fatalf("suggestions = %v, want the graph category", got)
	}

	// Graph failure falls back to the static adjacency.
	src.err = errors.New("graph down")
	got = svc.suggest(context.Background(), in, 30)
	if len(got) == 0 {
		t.Fatal("no fallback suggestions after graph failure")
	}
	if got[0].Value != "brake disc" {
		t.Errorf("fallback value = %q, want the static adjacency head", got[0].Value)
	}
}

func TestSuggestCap(t *testing.T) {
	svc := New(nil, nil, nil, DefaultOptions(), nil)
	in := domain.Intent{Category: "oil filter"}

	got := svc.suggest(context.Background(), in, 150)
	if len(got) != DefaultOptions().MaxSuggestions {
		t.Errorf("suggestions = %d, want capped at %d", len(got), DefaultOptions().MaxSuggestions)
	}
}

func TestExplainEndToEnd(t *testing.T) {
	svc := New(nil, nil, nil, DefaultOptions(), nil)
	in := domain.Intent{
		Category: "brake pad", VehicleMake: "Toyota", VehicleModel: "Camry",
		VehicleYear: 2019, SearchType: domain.SearchFitment, Confidence: 0.85,
	}
	cands := []*domain.Candidate{
		{
			ID: "p1",
			Part: domain.Part{
				PartNumber:  "BP91234-X",
				Description: "Premium ceramic brake pad set for Toyota Camry 2018-2022",
				Stock:       4,
			},
			QualityScore: 0.8,
			Features:     map[string]float64{featureFitment: 1},
		},
	}

	res := svc.Explain(context.Background(), "brake pads for 2019 toyota camry", in, cands, 42)
	if !res.Success {
		t.Fatal("Explain() not successful")
	}
	if res.Explanation.Interpretation != "Showing brake pad for 2019 Toyota Camry" {
		t.Errorf("interpretation = %q", res.Explanation.Interpretation)
	}
	pe := res.PerResult["p1"]
	if pe == nil {
		t.Fatal("missing per-result explanation")
	}
	if len(pe.Reasons) == 0 {
		t.Error("no reasons for a fitting candidate")
	}
	if pe.Highlights == nil || pe.Highlights.Description == "" {
		t.Error("no description highlight despite matching terms")
	}
	if res.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}
