// Package explain implements the explanation stage, the last of the search
// pipeline. It renders a human interpretation of the parsed intent, per-result
// match reasons and highlights, and refinement or cross-sell suggestions.
// Everything is template-driven; an optional LLM pass polishes the
// interpretation sentence when a completer is wired in.
package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/pkg/resilience"
)

// Suggestion types.
const (
	SuggestTip             = "tip"
	SuggestAddVehicle      = "addVehicle"
	SuggestAddYear         = "addYear"
	SuggestAddBrand        = "addBrand"
	SuggestAddPosition     = "addPosition"
	SuggestRelatedCategory = "relatedCategory"
)

// Reason weight tags.
const (
	WeightHigh   = "high"
	WeightMedium = "medium"
	WeightLow    = "low"
)

// Result-count bands driving the suggestion rules.
const (
	wideResultCount   = 100
	narrowBandFloor   = 20
	defaultMaxRelated = 3
)

// CategorySource supplies cross-sell categories for a given category.
// Implemented by the parts-relation graph; nil falls back to the built-in
// adjacency map.
type CategorySource interface {
	Related(ctx context.Context, category string, limit int) ([]string, error)
}

// Beautifier optionally rewrites the interpretation sentence. Satisfied by
// the LLM client; nil disables the pass.
type Beautifier interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options configures the explanation stage.
type Options struct {
	// MaxReasons caps per-result match reasons.
	MaxReasons int
	// MaxSuggestions caps the suggestion list.
	MaxSuggestions int
	// MaxRelated caps cross-sell categories.
	MaxRelated int
	// HighlightWindow is the number of characters kept on each side of a
	// description match.
	HighlightWindow int
}

// DefaultOptions returns the shipped explanation parameters.
func DefaultOptions() Options {
	return Options{
		MaxReasons:      3,
		MaxSuggestions:  5,
		MaxRelated:      defaultMaxRelated,
		HighlightWindow: 30,
	}
}

// Service is the explanation stage.
type Service struct {
	categories CategorySource
	llm        Beautifier
	breaker    *resilience.Breaker
	opts       Options
	logger     *slog.Logger
}

// New creates the explanation stage. The breaker guards the optional LLM
// pass and is shared with every other LLM consumer.
func New(categories CategorySource, llm Beautifier, breaker *resilience.Breaker, opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.MaxReasons <= 0 {
		opts.MaxReasons = def.MaxReasons
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = def.MaxSuggestions
	}
	if opts.MaxRelated <= 0 {
		opts.MaxRelated = def.MaxRelated
	}
	if opts.HighlightWindow <= 0 {
		opts.HighlightWindow = def.HighlightWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		categories: categories,
		llm:        llm,
		breaker:    breaker,
		opts:       opts,
		logger:     logger,
	}
}

// Suggestion is one refinement or cross-sell proposal.
type Suggestion struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Value string `json:"value,omitempty"`
}

// Reason is one match reason with its weight tag.
type Reason struct {
	Reason string `json:"reason"`
	Weight string `json:"weight"`
}

// Match is a half-open byte range inside a field value.
type Match struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Highlights marks where the search hit inside a result's display fields.
type Highlights struct {
	PartNumber  *Match `json:"partNumber,omitempty"`
	Description string `json:"description,omitempty"`
}

// ResultExplanation is the per-result portion of the stage output.
type ResultExplanation struct {
	Reasons    []Reason    `json:"reasons,omitempty"`
	Highlights *Highlights `json:"highlights,omitempty"`
}

// Explanation is the response-level portion of the stage output.
type Explanation struct {
	Interpretation string       `json:"interpretation"`
	Suggestions    []Suggestion `json:"suggestions"`
}

// Result is the stage outcome handed to the orchestrator.
type Result struct {
	Success     bool
	Explanation Explanation
	PerResult   map[string]*ResultExplanation
	Duration    time.Duration
}

// Explain builds the explanation for one search. Candidates are the page
// being returned; total is the full post-filter result count, which drives
// the suggestion rules.
func (s *Service) Explain(ctx context.Context, rawQuery string, in domain.Intent, cands []*domain.Candidate, total int) Result {
	start := time.Now()

	interpretation := s.interpret(ctx, rawQuery, in)
	suggestions := s.suggest(ctx, in, total)

	per := make(map[string]*ResultExplanation, len(cands))
	terms := searchTerms(rawQuery)
	for _, c := range cands {
		per[c.ID] = &ResultExplanation{
			Reasons:    s.reasons(in, c),
			Highlights: s.highlights(in, terms, &c.Part),
		}
	}

	s.logger.Info("explanation done",
		"results", len(cands),
		"suggestions", len(suggestions),
		"duration", time.Since(start))

	return Result{
		Success: true,
		Explanation: Explanation{
			Interpretation: interpretation,
			Suggestions:    suggestions,
		},
		PerResult: per,
		Duration:  time.Since(start),
	}
}

// interpret renders the template for the search type and optionally runs the
// LLM polish. Any LLM trouble keeps the template.
func (s *Service) interpret(ctx context.Context, rawQuery string, in domain.Intent) string {
	sentence := interpretTemplate(rawQuery, in)
	if s.llm == nil {
		return sentence
	}
	if s.breaker != nil && s.breaker.State() == resilience.StateOpen {
		return sentence
	}
	polished, err := s.beautify(ctx, sentence)
	if err != nil {
		s.logger.Warn("interpretation polish failed, keeping template", "err", err)
		return sentence
	}
	return polished
}

func (s *Service) beautify(ctx context.Context, sentence string) (string, error) {
	prompt := "Rewrite this search result summary in one short, natural sentence. " +
		"Keep every fact, add nothing:\n\n" + sentence
	call := func(ctx context.Context) error {
		reply, err := s.llm.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return fmt.Errorf("empty reply")
		}
		sentence = reply
		return nil
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("explain: polish: %w", err)
	}
	return sentence, nil
}

func interpretTemplate(rawQuery string, in domain.Intent) string {
	switch in.SearchType {
	case domain.SearchPartNumber:
		if in.PartNumber != "" {
			return "Showing results for part number " + in.PartNumber
		}
	case domain.SearchCrossReference:
		if in.CrossReference != "" {
			return "Showing replacements for reference " + in.CrossReference
		}
	case domain.SearchFitment:
		subject := in.Category
		if subject == "" {
			subject = "parts"
		}
		if vehicle := vehiclePhrase(in); vehicle != "" {
			return "Showing " + subject + " for " + vehicle
		}
		return "Showing " + subject
	case domain.SearchCatalog:
		subject := in.Category
		if subject == "" {
			subject = "parts"
		}
		if len(in.Brands) > 0 {
			return "Browsing " + strings.Join(in.Brands, ", ") + " " + subject
		}
		return "Browsing " + subject
	}
	q := strings.TrimSpace(rawQuery)
	if q == "" {
		return "Showing search results"
	}
	return "Showing results for \"" + q + "\""
}

// vehiclePhrase renders "2019 Toyota Camry" from whichever vehicle fields
// the intent carries.
func vehiclePhrase(in domain.Intent) string {
	var parts []string
	if in.VehicleYear != 0 {
		parts = append(parts, strconv.Itoa(in.VehicleYear))
	}
	if in.VehicleMake != "" {
		parts = append(parts, in.VehicleMake)
	}
	if in.VehicleModel != "" {
		parts = append(parts, in.VehicleModel)
	}
	return strings.Join(parts, " ")
}

// reasonCheck is one candidate match reason, evaluated in priority order.
type reasonCheck struct {
	weight string
	text   string
	hit    func(in domain.Intent, c *domain.Candidate) bool
}

var reasonChecks = []reasonCheck{
	{WeightHigh, "Exact part number match", func(in domain.Intent, c *domain.Candidate) bool {
		return c.Features[featurePartNumber] == 1
	}},
	{WeightHigh, "Listed as a cross reference for your part number", func(in domain.Intent, c *domain.Candidate) bool {
		return in.PartNumber != "" && matchesReference(&c.Part, in.PartNumber)
	}},
	{WeightHigh, "Fits your vehicle", func(in domain.Intent, c *domain.Candidate) bool {
		return in.HasVehicle() && c.Features[featureFitment] >= 0.7
	}},
	{WeightMedium, "Part number closely matches", func(in domain.Intent, c *domain.Candidate) bool {
		f := c.Features[featurePartNumber]
		return f > 0 && f < 1
	}},
	{WeightMedium, "Matches your vehicle make", func(in domain.Intent, c *domain.Candidate) bool {
		f := c.Features[featureFitment]
		return in.HasVehicle() && f >= 0.4 && f < 0.7
	}},
	{WeightMedium, "Brand matches your search", func(in domain.Intent, c *domain.Candidate) bool {
		return len(in.Brands) > 0 && c.Features[featureBrand] >= 0.8
	}},
	{WeightMedium, "Category matches your search", func(in domain.Intent, c *domain.Candidate) bool {
		return in.Category != "" && c.Features[featureCategory] >= 0.8
	}},
	{WeightLow, "In stock", func(in domain.Intent, c *domain.Candidate) bool {
		return c.Part.Available()
	}},
	{WeightLow, "Complete, well-documented listing", func(in domain.Intent, c *domain.Candidate) bool {
		return c.QualityScore >= 0.7
	}},
}

// Feature names as stored by the ranking stage.
const (
	featurePartNumber = "partNumberMatch"
	featureCategory   = "categoryMatch"
	featureBrand      = "brandMatch"
	featureFitment    = "vehicleFitment"
)

func (s *Service) reasons(in domain.Intent, c *domain.Candidate) []Reason {
	var out []Reason
	for _, check := range reasonChecks {
		if len(out) == s.opts.MaxReasons {
			break
		}
		if check.hit(in, c) {
			out = append(out, Reason{Reason: check.text, Weight: check.weight})
		}
	}
	return out
}

func matchesReference(p *domain.Part, partNumber string) bool {
	want := domain.NormalizePartNumber(partNumber)
	if want == "" {
		return false
	}
	for _, ref := range p.CrossReferences {
		if domain.NormalizePartNumber(ref) == want {
			return true
		}
	}
	for _, ref := range p.OEMReferences {
		if domain.NormalizePartNumber(ref) == want {
			return true
		}
	}
	return false
}

func (s *Service) highlights(in domain.Intent, terms []string, p *domain.Part) *Highlights {
	var h Highlights

	if in.PartNumber != "" && p.PartNumber != "" {
		if idx := indexFold(p.PartNumber, in.PartNumber); idx >= 0 {
			h.PartNumber = &Match{Start: idx, End: idx + len(in.PartNumber)}
		}
	}
	h.Description = descriptionWindow(p.Description, terms, s.opts.HighlightWindow)

	if h.PartNumber == nil && h.Description == "" {
		return nil
	}
	return &h
}

// descriptionWindow returns the text around the first occurrence of any
// search term, cut on rune boundaries.
func descriptionWindow(desc string, terms []string, window int) string {
	if desc == "" || len(terms) == 0 {
		return ""
	}
	first := -1
	length := 0
	for _, term := range terms {
		idx := indexFold(desc, term)
		if idx >= 0 && (first < 0 || idx < first) {
			first = idx
			length = len(term)
		}
	}
	if first < 0 {
		return ""
	}
	start := max(first-window, 0)
	end := min(first+length+window, len(desc))
	for start > 0 && !utf8.RuneStart(desc[start]) {
		start--
	}
	for end < len(desc) && !utf8.RuneStart(desc[end]) {
		end++
	}
	return desc[start:end]
}

// searchTerms extracts highlight-worthy terms from the raw query.
func searchTerms(rawQuery string) []string {
	var terms []string
	for _, tok := range strings.Fields(domain.NormalizeQuery(rawQuery)) {
		if utf8.RuneCountInString(tok) >= 3 {
			terms = append(terms, tok)
		}
	}
	return terms
}

func indexFold(haystack, needle string) int {
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}

// suggest applies the result-count rules and appends cross-sell categories.
func (s *Service) suggest(ctx context.Context, in domain.Intent, total int) []Suggestion {
	var out []Suggestion

	switch {
	case total == 0:
		out = append(out,
			Suggestion{Type: SuggestTip, Text: "Check the part number for typos"},
			Suggestion{Type: SuggestTip, Text: "Try fewer or more general words"},
			Suggestion{Type: SuggestTip, Text: "Search by vehicle instead, like \"brake pads for 2019 Camry\""},
		)
	case total > wideResultCount:
		if !in.HasVehicle() {
			out = append(out, Suggestion{Type: SuggestAddVehicle, Text: "Add your vehicle make and model to narrow results"})
		}
		if len(in.Brands) == 0 {
			out = append(out, Suggestion{Type: SuggestAddBrand, Text: "Filter by a preferred brand"})
		}
		if len(in.Positions) == 0 {
			out = append(out, Suggestion{Type: SuggestAddPosition, Text: "Specify a position, like front or rear"})
		}
	case total >= narrowBandFloor:
		if in.VehicleMake != "" && in.VehicleYear == 0 {
			out = append(out, Suggestion{Type: SuggestAddYear, Text: "Add your vehicle year for exact fitment"})
		}
	}

	if total > 0 && in.Category != "" {
		for _, cat := range s.related(ctx, in.Category) {
			out = append(out, Suggestion{
				Type:  SuggestRelatedCategory,
				Text:  "Also consider " + cat,
				Value: cat,
			})
		}
	}

	if len(out) > s.opts.MaxSuggestions {
		out = out[:s.opts.MaxSuggestions]
	}
	return out
}

// related asks the graph for cross-sell categories, falling back to the
// built-in adjacency map.
func (s *Service) related(ctx context.Context, category string) []string {
	if s.categories != nil {
		cats, err := s.categories.Related(ctx, category, s.opts.MaxRelated)
		if err == nil {
			return cats
		}
		s.logger.Warn("related categories lookup failed, using static map", "err", err)
	}
	cats := domain.RelatedCategories[category]
	if len(cats) > s.opts.MaxRelated {
		cats = cats[:s.opts.MaxRelated]
	}
	return cats
}
