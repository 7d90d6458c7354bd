package query

import (
	"testing"

	"github.com/partlinq/partsearch/engine/domain"
)

func TestMergeIntentsFillsMissing(t *testing.T) {
	primary := domain.Intent{
		Category:   "brake pad",
		SearchType: domain.SearchGeneral,
		Confidence: 0.5,
	}
	other := domain.Intent{
		Category:    "oil filter", // must not override
		VehicleMake: "Toyota",
		VehicleYear: 2019,
		Brands:      []string{"Bosch"},
		SearchType:  domain.SearchFitment,
		Confidence:  0.8,
	}
	got := MergeIntents(primary, other)
	if got.Category != "brake pad" {
		t.Errorf("category = %q, primary must win", got.Category)
	}
	if got.VehicleMake != "Toyota" || got.VehicleYear != 2019 {
		t.Errorf("vehicle = %q/%d, want filled from other", got.VehicleMake, got.VehicleYear)
	}
	if got.SearchType != domain.SearchGeneral {
		t.Errorf("searchType = %q, primary must win", got.SearchType)
	}
	if got.Confidence != 0.8 {
		t.Errorf("confidence = %v, want max", got.Confidence)
	}
	if len(got.Brands) != 1 || got.Brands[0] != "Bosch" {
		t.Errorf("brands = %v", got.Brands)
	}
}

func TestMergeIntentsUnionDedup(t *testing.T) {
	a := domain.Intent{Brands: []string{"Bosch", "Brembo"}, Positions: []domain.Position{domain.PositionFront}}
	b := domain.Intent{Brands: []string{"Brembo", "NGK"}, Positions: []domain.Position{domain.PositionFront, domain.PositionLeft}}
	got := MergeIntents(a, b)
	if len(got.Brands) != 3 {
		t.Errorf("brands = %v, want union of 3", got.Brands)
	}
	if len(got.Positions) != 2 {
		t.Errorf("positions = %v, want union of 2", got.Positions)
	}
}

func TestMergeIntentsDoesNotMutateInputs(t *testing.T) {
	primary := domain.Intent{Brands: []string{"Bosch"}}
	other := domain.Intent{Brands: []string{"NGK"}}
	_ = MergeIntents(primary, other)
	if len(primary.Brands) != 1 {
		t.Errorf("primary mutated: %v", primary.Brands)
	}
}

func TestMergeTokenLLMPrecedence(t *testing.T) {
	token := domain.Intent{
		PartNumber:  "BP91234",
		Category:    "brake disc",
		VehicleYear: 2019,
		SearchType:  domain.SearchPartNumber,
		Confidence:  0.9,
		Raw:         Signals{Tokens: []string{"bp91234"}},
	}
	llm := domain.Intent{
		PartNumber:   "WRONG-123", // token parser is authoritative for part numbers
		Category:     "brake pad",
		VehicleMake:  "Toyota",
		VehicleModel: "Camry",
		VehicleYear:  2021, // token year wins
		SearchType:   domain.SearchFitment,
		Confidence:   0.8,
	}
	got := MergeTokenLLM(token, llm)
	if got.PartNumber != "BP91234" {
		t.Errorf("partNumber = %q, token must win", got.PartNumber)
	}
	if got.Category != "brake pad" {
		t.Errorf("category = %q, llm must win", got.Category)
	}
	if got.VehicleMake != "Toyota" || got.VehicleModel != "Camry" {
		t.Errorf("vehicle = %q %q, llm must win", got.VehicleMake, got.VehicleModel)
	}
	if got.VehicleYear != 2019 {
		t.Errorf("vehicleYear = %d, token must win", got.VehicleYear)
	}
	if got.SearchType != domain.SearchFitment {
		t.Errorf("searchType = %q, llm must win", got.SearchType)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want max of both", got.Confidence)
	}
	if _, ok := got.Raw.(Signals); !ok {
		t.Errorf("raw signals lost in merge: %T", got.Raw)
	}
}

func TestMergeTokenLLMFillsEmpty(t *testing.T) {
	token := domain.Intent{Category: "oil filter", SearchType: domain.SearchGeneral}
	llm := domain.Intent{VehicleYear: 2020, EngineCode: "K20A", CrossReference: "OE-555"}
	got := MergeTokenLLM(token, llm)
	if got.VehicleYear != 2020 {
		t.Errorf("vehicleYear = %d, want filled from llm", got.VehicleYear)
	}
	if got.EngineCode != "K20A" || got.CrossReference != "OE-555" {
		t.Errorf("engineCode/crossReference = %q/%q, want filled", got.EngineCode, got.CrossReference)
	}
}
