// Package filter implements candidate filtering, the third stage of the
// search pipeline: hard intent filters, soft and quality scoring, the
// quality gate, and the composite business ordering. The stage mutates
// candidates in place and only ever removes or reorders them; retrieval
// relevance stays untouched on the candidate.
package filter

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
)

// Soft-score bonuses for matching non-required intent fields.
const (
	bonusVehicleMake  = 0.2
	bonusVehicleModel = 0.15
	bonusEngineCode   = 0.15
	bonusPartNumber   = 0.3
)

// qualityWeights scores the completeness checklist for the quality gate.
var qualityWeights = map[string]float64{
	"hasImage":          0.1,
	"hasDescription":    0.1,
	"hasSpecifications": 0.15,
	"hasStock":          0.2,
	"hasPrice":          0.15,
	"hasCrossReference": 0.1,
	"hasVehicleFitment": 0.2,
}

// Composite ordering blend across the three per-candidate scores.
const (
	compositeESWeight      = 0.5
	compositeSoftWeight    = 0.3
	compositeQualityWeight = 0.2
)

// Options configures the filtering stage.
type Options struct {
	// MaxResults truncates the surviving candidate list.
	MaxResults int
	// StockPriority places in-stock candidates first, order otherwise
	// preserved.
	StockPriority bool
	// GateThreshold is the quality score below which candidates are
	// dropped, provided enough remain.
	GateThreshold float64
	// GateMinCandidates is how many candidates must survive the hard
	// filters before the quality gate engages.
	GateMinCandidates int
}

// DefaultOptions returns the shipped filtering parameters.
func DefaultOptions() Options {
	return Options{
		MaxResults:        200,
		StockPriority:     true,
		GateThreshold:     0.1,
		GateMinCandidates: 10,
	}
}

// Service is the filtering stage.
type Service struct {
	opts   Options
	logger *slog.Logger
}

// New creates the filtering stage.
func New(opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.MaxResults <= 0 {
		opts.MaxResults = def.MaxResults
	}
	if opts.GateThreshold <= 0 {
		opts.GateThreshold = def.GateThreshold
	}
	if opts.GateMinCandidates <= 0 {
		opts.GateMinCandidates = def.GateMinCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{opts: opts, logger: logger}
}

// Result is the stage outcome handed to the orchestrator.
type Result struct {
	Success        bool
	Candidates     []*domain.Candidate
	Count          int
	PreFilterCount int
	FiltersApplied []string
	Duration       time.Duration
}

// Filter runs the five passes over the candidates. The stage takes
// ownership of the slice and may reorder or reuse it.
func (s *Service) Filter(ctx context.Context, in domain.Intent, cands []*domain.Candidate) Result {
	start := time.Now()
	pre := len(cands)

	// 1. Hard filters.
	kept, applied := s.hardFilter(in, cands)

	// 2-3. Soft and quality scoring, stored on the candidate.
	for _, c := range kept {
		c.SoftScore, c.SoftFactors = softScore(in, c)
		c.QualityScore = qualityScore(&c.Part)
	}

	// 4. Quality gate, only when enough candidates survive to be choosy.
	if len(kept) > s.opts.GateMinCandidates {
		gated := kept[:0]
		for _, c := range kept {
			if c.QualityScore >= s.opts.GateThreshold {
				gated = append(gated, c)
			}
		}
		if len(gated) < len(kept) {
			applied = append(applied, "qualityGate")
		}
		kept = gated
	}

	// 5. Business ordering: composite sort, then the stock partition.
	for _, c := range kept {
		c.CompositeScore = composite(c)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].CompositeScore > kept[j].CompositeScore
	})
	if s.opts.StockPriority {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Part.Available() && !kept[j].Part.Available()
		})
		applied = append(applied, "stockPriority")
	}

	if len(kept) > s.opts.MaxResults {
		kept = kept[:s.opts.MaxResults]
	}
	if kept == nil {
		kept = []*domain.Candidate{}
	}

	s.logger.Info("filtering done",
		"pre", pre,
		"post", len(kept),
		"applied", applied,
		"duration", time.Since(start))

	return Result{
		Success:        true,
		Candidates:     kept,
		Count:          len(kept),
		PreFilterCount: pre,
		FiltersApplied: applied,
		Duration:       time.Since(start),
	}
}

// hardFilter drops candidates failing any check the intent requires. Checks
// are conjunctive; a candidate must clear every applied filter.
func (s *Service) hardFilter(in domain.Intent, cands []*domain.Candidate) ([]*domain.Candidate, []string) {
	var applied []string
	if len(in.Brands) > 0 {
		applied = append(applied, "brand")
	}
	if in.Category != "" {
		applied = append(applied, "category")
	}
	if in.VehicleYear != 0 {
		applied = append(applied, "vehicleYear")
	}
	if len(in.Positions) > 0 {
		applied = append(applied, "position")
	}
	if len(applied) == 0 {
		return cands, nil
	}

	kept := make([]*domain.Candidate, 0, len(cands))
	for _, c := range cands {
		if passesHardFilters(in, &c.Part) {
			kept = append(kept, c)
		}
	}
	return kept, applied
}

func passesHardFilters(in domain.Intent, p *domain.Part) bool {
	if len(in.Brands) > 0 {
		ok := false
		for _, b := range in.Brands {
			if containsFold(p.Brand, b) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if in.Category != "" && !containsFold(p.Category, in.Category) {
		return false
	}
	// Year containment only binds parts that declare fitments; parts
	// without any are treated as universal.
	if in.VehicleYear != 0 && len(p.VehicleFitments) > 0 {
		ok := false
		for _, f := range p.VehicleFitments {
			if f.ContainsYear(in.VehicleYear) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	// Same for position: a part with no position fits anywhere.
	if len(in.Positions) > 0 && p.Position != "" {
		ok := false
		for _, pos := range in.Positions {
			if containsFold(p.Position, string(pos)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// softScore awards additive bonuses for non-required field matches and
// returns the audit trail of which fields contributed.
func softScore(in domain.Intent, c *domain.Candidate) (float64, []string) {
	var score float64
	var factors []string

	if in.VehicleMake != "" && fitmentMatches(c.Part.VehicleFitments, func(f domain.VehicleFitment) bool {
		return containsFold(f.Make, in.VehicleMake)
	}) {
		score += bonusVehicleMake
		factors = append(factors, "vehicleMake")
	}
	if in.VehicleModel != "" && fitmentMatches(c.Part.VehicleFitments, func(f domain.VehicleFitment) bool {
		return containsFold(f.Model, in.VehicleModel)
	}) {
		score += bonusVehicleModel
		factors = append(factors, "vehicleModel")
	}
	if in.EngineCode != "" && matchesEngineCode(&c.Part, in.EngineCode) {
		score += bonusEngineCode
		factors = append(factors, "engineCode")
	}
	if in.PartNumber != "" && c.Part.NormalizedNumber() == domain.NormalizePartNumber(in.PartNumber) {
		score += bonusPartNumber
		factors = append(factors, "partNumber")
	}
	return score, factors
}

// qualityScore weights the completeness checklist, capped at 1.
func qualityScore(p *domain.Part) float64 {
	checks := p.CompletenessChecks()
	var score float64
	for name, w := range qualityWeights {
		if checks[name] {
			score += w
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// composite blends normalized engine relevance with the two stage scores.
// Engine scores live on an open scale; dividing by 10 and clamping puts a
// typical good match near 1.
func composite(c *domain.Candidate) float64 {
	es := c.Score / 10
	if es > 1 {
		es = 1
	}
	if es < 0 {
		es = 0
	}
	return compositeESWeight*es + compositeSoftWeight*c.SoftScore + compositeQualityWeight*c.QualityScore
}

func fitmentMatches(fitments []domain.VehicleFitment, pred func(domain.VehicleFitment) bool) bool {
	for _, f := range fitments {
		if pred(f) {
			return true
		}
	}
	return false
}

func matchesEngineCode(p *domain.Part, code string) bool {
	for _, ec := range p.EngineCodes {
		if strings.EqualFold(ec, code) {
			return true
		}
	}
	return fitmentMatches(p.VehicleFitments, func(f domain.VehicleFitment) bool {
		return strings.EqualFold(f.EngineCode, code)
	})
}

// containsFold is case-insensitive substring containment in either
// direction. Empty strings never match.
func containsFold(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}
