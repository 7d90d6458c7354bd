package retrieve

import (
	"strings"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/query"
	"github.com/partlinq/partsearch/pkg/esindex"
)

// Strategy names one retrieval approach. Exactly one strategy runs per
// request; fuzzyPartNumber only ever runs as the exactPartNumber fallback.
type Strategy string

const (
	StrategyExactPartNumber Strategy = "exactPartNumber"
	StrategyFuzzyPartNumber Strategy = "fuzzyPartNumber"
	StrategyCrossReference  Strategy = "crossReference"
	StrategyFitment         Strategy = "fitment"
	StrategyCatalogBrowse   Strategy = "catalogBrowse"
	StrategyMultiField      Strategy = "multiField"
)

// SelectStrategy picks the strategy for an intent. Priority is fixed: a part
// number beats everything, a cross reference beats vehicle context, vehicle
// plus category beats brand browsing, and multiField is the catch-all.
func SelectStrategy(in domain.Intent) Strategy {
	switch {
	case in.PartNumber != "":
		return StrategyExactPartNumber
	case in.CrossReference != "":
		return StrategyCrossReference
	case in.VehicleMake != "" && in.Category != "":
		return StrategyFitment
	case len(in.Brands) > 0 && in.Category != "":
		return StrategyCatalogBrowse
	default:
		return StrategyMultiField
	}
}

// Boosts are the relevance boost constants applied to query clauses.
type Boosts struct {
	Exact      float64
	PartNumber float64
	Brand      float64
	Category   float64
}

// DefaultBoosts returns the shipped boost constants.
func DefaultBoosts() Boosts {
	return Boosts{Exact: 10, PartNumber: 8, Brand: 3, Category: 2}
}

// buildExactPartNumber matches the normalized identifier against every
// identifier-bearing field. The normalized form carries the exact boost; the
// as-typed form ranks below it so distributor-specific formatting still hits.
func buildExactPartNumber(in domain.Intent, b Boosts) esindex.Query {
	norm := domain.NormalizePartNumber(in.PartNumber)
	return esindex.Bool(esindex.BoolClauses{
		Should: []esindex.Query{
			esindex.TermBoost("partNumberNormalized", norm, b.Exact),
			esindex.TermBoost("partNumber", strings.ToUpper(in.PartNumber), b.PartNumber),
			esindex.Term("oemReferences", norm),
			esindex.Term("crossReferences", norm),
			esindex.Term("supersededBy", norm),
		},
		MinimumShouldMatch: 1,
	})
}

// buildFuzzyPartNumber is the miss fallback: one edit of slack on the
// normalized identifier plus the ngram field for partial matches.
func buildFuzzyPartNumber(in domain.Intent, _ Boosts) esindex.Query {
	norm := domain.NormalizePartNumber(in.PartNumber)
	return esindex.Bool(esindex.BoolClauses{
		Should: []esindex.Query{
			esindex.Fuzzy("partNumberNormalized", norm, 1, 2),
			esindex.Match("partNumber.ngram", norm),
		},
		MinimumShouldMatch: 1,
	})
}

// buildCrossReference finds parts that are equivalents of the given
// reference: the reference appears in their cross or OEM reference lists, or
// they carry it as their own number, or they supersede it.
func buildCrossReference(in domain.Intent, b Boosts) esindex.Query {
	norm := domain.NormalizePartNumber(in.CrossReference)
	return esindex.Bool(esindex.BoolClauses{
		Should: []esindex.Query{
			esindex.TermBoost("crossReferences", norm, b.Exact),
			esindex.TermBoost("oemReferences", norm, b.PartNumber),
			esindex.Term("partNumberNormalized", norm),
			esindex.Term("supersededBy", norm),
		},
		MinimumShouldMatch: 1,
	})
}

// buildFitment requires the make and category; model and year refine the
// score without excluding parts. Year matching is range containment,
// yearFrom <= year <= yearTo, evaluated inside a single fitment object.
func buildFitment(in domain.Intent, b Boosts) esindex.Query {
	must := []esindex.Query{
		esindex.MatchBoost("category", in.Category, b.Category),
		esindex.Nested("vehicleFitments", esindex.Match("vehicleFitments.make", in.VehicleMake)),
	}
	var should []esindex.Query
	if in.VehicleModel != "" {
		should = append(should, esindex.Nested("vehicleFitments", esindex.Bool(esindex.BoolClauses{
			Must: []esindex.Query{
				esindex.Match("vehicleFitments.make", in.VehicleMake),
				esindex.Match("vehicleFitments.model", in.VehicleModel),
			},
		})))
	}
	if in.VehicleYear != 0 {
		should = append(should, esindex.Nested("vehicleFitments", esindex.Bool(esindex.BoolClauses{
			Must: []esindex.Query{
				esindex.Match("vehicleFitments.make", in.VehicleMake),
				esindex.RangeLTE("vehicleFitments.yearFrom", in.VehicleYear),
				esindex.RangeGTE("vehicleFitments.yearTo", in.VehicleYear),
			},
		})))
	}
	for _, brand := range in.Brands {
		should = append(should, esindex.TermBoost("brand", brand, b.Brand))
	}
	for _, p := range in.Positions {
		should = append(should, esindex.Term("position", string(p)))
	}
	if in.EngineCode != "" {
		should = append(should, esindex.Term("engineCodes", in.EngineCode))
	}
	return esindex.Bool(esindex.BoolClauses{Must: must, Should: should})
}

// buildCatalogBrowse requires one of the brands and the category; positions
// refine.
func buildCatalogBrowse(in domain.Intent, b Boosts) esindex.Query {
	brands := make([]esindex.Query, 0, len(in.Brands))
	for _, brand := range in.Brands {
		brands = append(brands, esindex.TermBoost("brand", brand, b.Brand))
	}
	must := []esindex.Query{
		esindex.Bool(esindex.BoolClauses{Should: brands, MinimumShouldMatch: 1}),
		esindex.MatchBoost("category", in.Category, b.Category),
	}
	var should []esindex.Query
	for _, p := range in.Positions {
		should = append(should, esindex.Term("position", string(p)))
	}
	return esindex.Bool(esindex.BoolClauses{Must: must, Should: should})
}

// buildMultiField assembles a best-effort disjunction from whatever the
// intent carries, plus a fuzzy text clause over the original tokens when the
// parser signals survive on the intent. Returns false when the intent offers
// nothing to search on.
func buildMultiField(in domain.Intent, b Boosts) (esindex.Query, bool) {
	var should []esindex.Query
	if text := queryText(in); text != "" {
		should = append(should, esindex.MultiMatch(text,
			"description", "partNumber.ngram", "brand", "category", "specifications"))
	}
	if in.Category != "" {
		should = append(should,
			esindex.MatchBoost("category", in.Category, b.Category),
			esindex.Match("description", in.Category))
	}
	for _, brand := range in.Brands {
		should = append(should, esindex.TermBoost("brand", brand, b.Brand))
	}
	for _, p := range in.Positions {
		should = append(should, esindex.Term("position", string(p)))
	}
	if in.EngineCode != "" {
		should = append(should, esindex.Term("engineCodes", in.EngineCode))
	}
	if in.VehicleMake != "" {
		should = append(should, esindex.Nested("vehicleFitments", esindex.Match("vehicleFitments.make", in.VehicleMake)))
	}
	if in.VehicleModel != "" {
		should = append(should, esindex.Nested("vehicleFitments", esindex.Match("vehicleFitments.model", in.VehicleModel)))
	}
	if in.VehicleYear != 0 {
		should = append(should, esindex.Nested("vehicleFitments", esindex.Bool(esindex.BoolClauses{
			Must: []esindex.Query{
				esindex.RangeLTE("vehicleFitments.yearFrom", in.VehicleYear),
				esindex.RangeGTE("vehicleFitments.yearTo", in.VehicleYear),
			},
		})))
	}
	if len(should) == 0 {
		return nil, false
	}
	return esindex.Bool(esindex.BoolClauses{Should: should, MinimumShouldMatch: 1}), true
}

// queryText recovers the normalized query tokens from the parser signals the
// understanding stage leaves on the intent. Empty when the intent arrived
// without them (structured API callers, cache rehydration).
func queryText(in domain.Intent) string {
	sig, ok := in.Raw.(query.Signals)
	if !ok {
		return ""
	}
	return strings.Join(sig.Tokens, " ")
}
