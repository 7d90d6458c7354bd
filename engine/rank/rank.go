// Package rank implements candidate ranking, the fourth stage of the search
// pipeline. Each candidate gets a feature vector in [0, 1], a weighted
// linear score on top of the filtering stage's soft and quality scores, and
// a 1-based rank. Weight vectors are selectable by experiment profile and
// adjustable online through gradient feedback.
package rank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
)

// Feature names, also the keys of every weight vector.
const (
	FeatureESScore          = "esScore"
	FeaturePartNumberMatch  = "partNumberMatch"
	FeatureCategoryMatch    = "categoryMatch"
	FeatureBrandMatch       = "brandMatch"
	FeatureVehicleFitment   = "vehicleFitment"
	FeatureDataCompleteness = "dataCompleteness"
	FeatureHasImage         = "hasImage"
	FeatureHasStock         = "hasStock"
	FeatureClickRate        = "clickRate"
	FeaturePurchaseRate     = "purchaseRate"
	FeatureFreshness        = "freshness"
)

// Experiment profiles.
const (
	ProfileControl         = "control"
	ProfileRelevanceHeavy  = "relevance_heavy"
	ProfileQualityHeavy    = "quality_heavy"
	ProfileEngagementHeavy = "engagement_heavy"
)

// ErrUnknownFeature is returned by ApplyFeedback for a feature name outside
// the vector.
var ErrUnknownFeature = errors.New("unknown ranking feature")

// ErrBadDirection is returned by ApplyFeedback when the gradient direction
// is zero.
var ErrBadDirection = errors.New("feedback direction must be positive or negative")

// Weights is a feature weight vector. Vectors are kept normalized to sum 1.
type Weights map[string]float64

// DefaultWeights returns the control profile vector.
func DefaultWeights() Weights {
	return Weights{
		FeatureESScore:          0.25,
		FeaturePartNumberMatch:  0.15,
		FeatureCategoryMatch:    0.12,
		FeatureBrandMatch:       0.10,
		FeatureVehicleFitment:   0.12,
		FeatureDataCompleteness: 0.08,
		FeatureHasImage:         0.03,
		FeatureHasStock:         0.05,
		FeatureClickRate:        0.05,
		FeaturePurchaseRate:     0.03,
		FeatureFreshness:        0.02,
	}
}

// ProfileWeights returns the vector for a named experiment profile and
// whether the profile exists.
func ProfileWeights(profile string) (Weights, bool) {
	switch profile {
	case "", ProfileControl:
		return DefaultWeights(), true
	case ProfileRelevanceHeavy:
		return Weights{
			FeatureESScore:          0.35,
			FeaturePartNumberMatch:  0.20,
			FeatureCategoryMatch:    0.15,
			FeatureBrandMatch:       0.10,
			FeatureVehicleFitment:   0.10,
			FeatureDataCompleteness: 0.03,
			FeatureHasImage:         0.01,
			FeatureHasStock:         0.02,
			FeatureClickRate:        0.02,
			FeaturePurchaseRate:     0.01,
			FeatureFreshness:        0.01,
		}, true
	case ProfileQualityHeavy:
		return Weights{
			FeatureESScore:          0.18,
			FeaturePartNumberMatch:  0.08,
			FeatureCategoryMatch:    0.08,
			FeatureBrandMatch:       0.05,
			FeatureVehicleFitment:   0.08,
			FeatureDataCompleteness: 0.20,
			FeatureHasImage:         0.08,
			FeatureHasStock:         0.12,
			FeatureClickRate:        0.03,
			FeaturePurchaseRate:     0.02,
			FeatureFreshness:        0.08,
		}, true
	case ProfileEngagementHeavy:
		return Weights{
			FeatureESScore:          0.20,
			FeaturePartNumberMatch:  0.08,
			FeatureCategoryMatch:    0.08,
			FeatureBrandMatch:       0.05,
			FeatureVehicleFitment:   0.08,
			FeatureDataCompleteness: 0.05,
			FeatureHasImage:         0.02,
			FeatureHasStock:         0.05,
			FeatureClickRate:        0.20,
			FeaturePurchaseRate:     0.15,
			FeatureFreshness:        0.04,
		}, true
	}
	return nil, false
}

// completenessWeights scores the shared checklist for the dataCompleteness
// feature. The filtering stage weights the same checklist differently.
var completenessWeights = map[string]float64{
	"hasImage":          0.15,
	"hasDescription":    0.15,
	"hasSpecifications": 0.15,
	"hasStock":          0.15,
	"hasPrice":          0.15,
	"hasCrossReference": 0.10,
	"hasVehicleFitment": 0.15,
}

// Blend of the filtering stage's scores into the final rank score.
const (
	softBlend    = 0.1
	qualityBlend = 0.05
)

// Freshness floor and decay horizon.
const (
	freshnessFloor   = 0.2
	freshnessHorizon = 180 // days
)

// EngagementSource supplies behavioural rates per part id. Implemented by
// the analytics store; nil means every part ranks with neutral engagement.
type EngagementSource interface {
	Engagement(ctx context.Context, ids []string) (map[string]domain.Engagement, error)
}

// Options configures the ranking stage.
type Options struct {
	// Profile selects the active experiment weight vector.
	Profile string
	// LearningRate scales feedback nudges.
	LearningRate float64
}

// DefaultOptions returns the shipped ranking parameters.
func DefaultOptions() Options {
	return Options{
		Profile:      ProfileControl,
		LearningRate: 0.01,
	}
}

// Service is the ranking stage.
type Service struct {
	engagement EngagementSource
	opts       Options
	logger     *slog.Logger

	mu      sync.RWMutex
	weights Weights

	now func() time.Time
}

// New creates the ranking stage. An unrecognised profile falls back to
// control.
func New(engagement EngagementSource, opts Options, logger *slog.Logger) *Service {
	if opts.Profile == "" {
		opts.Profile = ProfileControl
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultOptions().LearningRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	weights, ok := ProfileWeights(opts.Profile)
	if !ok {
		logger.Warn("unknown ranking profile, using control", "profile", opts.Profile)
		opts.Profile = ProfileControl
		weights = DefaultWeights()
	}
	return &Service{
		engagement: engagement,
		opts:       opts,
		logger:     logger,
		weights:    weights,
		now:        time.Now,
	}
}

// Result is the stage outcome handed to the orchestrator. Weights is the
// vector snapshot the scores were computed with.
type Result struct {
	Success    bool
	Candidates []*domain.Candidate
	Count      int
	Profile    string
	Weights    Weights
	Duration   time.Duration
}

// Rank scores and orders the candidates. Feature vectors and rank scores
// are stored on the candidates; the slice is reordered in place.
func (s *Service) Rank(ctx context.Context, in domain.Intent, cands []*domain.Candidate) Result {
	start := time.Now()
	weights := s.Weights()
	rates := s.lookupEngagement(ctx, cands)
	now := s.now()

	// esScore is relative to the best retrieval score in this batch.
	var maxScore float64
	for _, c := range cands {
		maxScore = max(maxScore, c.Score)
	}

	for _, c := range cands {
		feats := features(in, c, maxScore, rates, now)
		var sum float64
		for name, w := range weights {
			sum += w * feats[name]
		}
		c.Features = feats
		c.RankScore = sum + softBlend*c.SoftScore + qualityBlend*c.QualityScore
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].RankScore > cands[j].RankScore
	})
	for i, c := range cands {
		c.Rank = i + 1
	}
	if cands == nil {
		cands = []*domain.Candidate{}
	}

	s.logger.Info("ranking done",
		"candidates", len(cands),
		"profile", s.opts.Profile,
		"duration", time.Since(start))

	return Result{
		Success:    true,
		Candidates: cands,
		Count:      len(cands),
		Profile:    s.opts.Profile,
		Weights:    weights,
		Duration:   time.Since(start),
	}
}

func features(in domain.Intent, c *domain.Candidate, maxScore float64, rates map[string]domain.Engagement, now time.Time) map[string]float64 {
	p := &c.Part
	eng, ok := rates[c.ID]
	if !ok {
		eng = domain.NeutralEngagement
	}

	var es float64
	if maxScore > 0 {
		es = min(c.Score/maxScore, 1)
	}
	if es < 0 {
		es = 0
	}

	return map[string]float64{
		FeatureESScore:          es,
		FeaturePartNumberMatch:  partNumberFeature(in.PartNumber, p),
		FeatureCategoryMatch:    categoryFeature(in.Category, p.Category),
		FeatureBrandMatch:       brandFeature(in.Brands, p.Brand),
		FeatureVehicleFitment:   fitmentFeature(in, p),
		FeatureDataCompleteness: completenessFeature(p),
		FeatureHasImage:         boolFeature(p.PrimaryImage() != ""),
		FeatureHasStock:         stockFeature(p),
		FeatureClickRate:        eng.ClickRate,
		FeaturePurchaseRate:     eng.PurchaseRate,
		FeatureFreshness:        freshnessFeature(p.UpdatedAt, now),
	}
}

func (s *Service) lookupEngagement(ctx context.Context, cands []*domain.Candidate) map[string]domain.Engagement {
	if s.engagement == nil || len(cands) == 0 {
		return nil
	}
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	rates, err := s.engagement.Engagement(ctx, ids)
	if err != nil {
		s.logger.Warn("engagement lookup failed, using neutral rates", "err", err)
		return nil
	}
	return rates
}

// partNumberFeature compares normalized part numbers: exact 1.0, one-sided
// prefix scores the length overlap, containment elsewhere 0.5. Searches
// without a part number score 0 so the weight stays inert.
func partNumberFeature(requested string, p *domain.Part) float64 {
	want := domain.NormalizePartNumber(requested)
	got := p.NormalizedNumber()
	if want == "" || got == "" {
		return 0
	}
	if want == got {
		return 1
	}
	if strings.HasPrefix(got, want) || strings.HasPrefix(want, got) {
		return float64(min(len(want), len(got))) / float64(max(len(want), len(got)))
	}
	if strings.Contains(got, want) || strings.Contains(want, got) {
		return 0.5
	}
	return 0
}

func categoryFeature(requested, category string) float64 {
	if requested == "" {
		return 0.5
	}
	if strings.EqualFold(requested, category) {
		return 1
	}
	if containsFold(category, requested) {
		return 0.8
	}
	return 0
}

func brandFeature(requested []string, brand string) float64 {
	if len(requested) == 0 {
		return 0.5
	}
	score := 0.0
	for _, b := range requested {
		if strings.EqualFold(b, brand) {
			return 1
		}
		if containsFold(brand, b) {
			score = 0.8
		}
	}
	return score
}

// fitmentFeature scores the best single fitment against the requested
// vehicle. Parts without fitments are universal and score the neutral 0.3,
// as does everything when the intent names no vehicle.
func fitmentFeature(in domain.Intent, p *domain.Part) float64 {
	if !in.HasVehicle() {
		return 0.3
	}
	if len(p.VehicleFitments) == 0 {
		return 0.3
	}
	var best float64
	for _, f := range p.VehicleFitments {
		var score float64
		if in.VehicleMake != "" && containsFold(f.Make, in.VehicleMake) {
			score += 0.4
		}
		if in.VehicleModel != "" && containsFold(f.Model, in.VehicleModel) {
			score += 0.3
		}
		if in.VehicleYear != 0 && f.ContainsYear(in.VehicleYear) {
			score += 0.3
		}
		best = max(best, score)
	}
	return best
}

func completenessFeature(p *domain.Part) float64 {
	checks := p.CompletenessChecks()
	var score float64
	for name, w := range completenessWeights {
		if checks[name] {
			score += w
		}
	}
	return min(score, 1)
}

func stockFeature(p *domain.Part) float64 {
	switch {
	case p.Stock > 10:
		return 1
	case p.Available():
		return 0.7
	}
	return 0
}

func freshnessFeature(updated, now time.Time) float64 {
	if updated.IsZero() {
		return freshnessFloor
	}
	days := now.Sub(updated).Hours() / 24
	score := 1 - days/freshnessHorizon*0.8
	if score < freshnessFloor {
		return freshnessFloor
	}
	return min(score, 1)
}

func boolFeature(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func containsFold(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Feedback is one online gradient signal against the active weight vector.
type Feedback struct {
	Feature   string  `json:"feature"`
	Direction int     `json:"direction"`
	Magnitude float64 `json:"magnitude"`
}

// ApplyFeedback nudges one weight by learningRate·direction·magnitude,
// clamps it to [0, 1] and renormalizes the vector to sum 1.
func (s *Service) ApplyFeedback(fb Feedback) error {
	if fb.Direction == 0 {
		return fmt.Errorf("rank: %w", ErrBadDirection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.weights[fb.Feature]
	if !ok {
		return fmt.Errorf("rank: %w: %q", ErrUnknownFeature, fb.Feature)
	}
	dir := 1.0
	if fb.Direction < 0 {
		dir = -1
	}
	w += s.opts.LearningRate * dir * fb.Magnitude
	w = min(max(w, 0), 1)
	s.weights[fb.Feature] = w

	var sum float64
	for _, v := range s.weights {
		sum += v
	}
	if sum > 0 {
		for name, v := range s.weights {
			s.weights[name] = v / sum
		}
	}
	return nil
}

// Weights returns a snapshot of the active vector.
func (s *Service) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Weights, len(s.weights))
	for name, w := range s.weights {
		out[name] = w
	}
	return out
}

// Contribution is one feature's share of a candidate's rank score.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Weight  float64 `json:"weight"`
	Share   float64 `json:"share"` // percent of the weighted sum
}

// Explain returns the top feature contributions for a ranked candidate,
// largest first, with percentage shares of the weighted sum.
func (s *Service) Explain(c *domain.Candidate, top int) []Contribution {
	if len(c.Features) == 0 || top <= 0 {
		return nil
	}
	weights := s.Weights()

	all := make([]Contribution, 0, len(weights))
	var total float64
	for name, w := range weights {
		v := c.Features[name]
		all = append(all, Contribution{Feature: name, Value: v, Weight: w})
		total += w * v
	}
	if total > 0 {
		for i := range all {
			all[i].Share = all[i].Weight * all[i].Value / total * 100
		}
	}
	sort.Slice(all, func(i, j int) bool {
		ci, cj := all[i].Weight*all[i].Value, all[j].Weight*all[j].Value
		if ci != cj {
			return ci > cj
		}
		return all[i].Feature < all[j].Feature
	})
	if len(all) > top {
		all = all[:top]
	}
	return all
}
