package query

import (
	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/pkg/fn"
)

// MergeIntents fills empty fields of primary from the others in order.
// Arrays union with duplicates removed; confidence takes the maximum.
func MergeIntents(primary domain.Intent, others ...domain.Intent) domain.Intent {
	out := primary.Clone()
	for _, other := range others {
		if out.PartNumber == "" {
			out.PartNumber = other.PartNumber
		}
		if out.CrossReference == "" {
			out.CrossReference = other.CrossReference
		}
		if out.Category == "" {
			out.Category = other.Category
		}
		if out.VehicleMake == "" {
			out.VehicleMake = other.VehicleMake
		}
		if out.VehicleModel == "" {
			out.VehicleModel = other.VehicleModel
		}
		if out.VehicleYear == 0 {
			out.VehicleYear = other.VehicleYear
		}
		if out.EngineCode == "" {
			out.EngineCode = other.EngineCode
		}
		if out.SearchType == "" {
			out.SearchType = other.SearchType
		}
		out.Brands = fn.Unique(append(out.Brands, other.Brands...))
		out.Positions = fn.Unique(append(out.Positions, other.Positions...))
		if other.Confidence > out.Confidence {
			out.Confidence = other.Confidence
		}
	}
	return out
}

// MergeTokenLLM combines the token parser's intent with the LLM's under fixed
// precedence: the LLM wins category, vehicleMake, vehicleModel, and
// searchType; the token parser wins partNumber and vehicleYear; everything
// else fills from whichever side has it. The token intent's raw signals are
// preserved.
func MergeTokenLLM(token, llm domain.Intent) domain.Intent {
	out := token.Clone()

	if llm.Category != "" {
		out.Category = llm.Category
	}
	if llm.VehicleMake != "" {
		out.VehicleMake = llm.VehicleMake
	}
	if llm.VehicleModel != "" {
		out.VehicleModel = llm.VehicleModel
	}
	if llm.SearchType != "" {
		out.SearchType = llm.SearchType
	}
	if out.PartNumber == "" {
		out.PartNumber = llm.PartNumber
	}
	if out.VehicleYear == 0 {
		out.VehicleYear = llm.VehicleYear
	}
	if out.CrossReference == "" {
		out.CrossReference = llm.CrossReference
	}
	if out.EngineCode == "" {
		out.EngineCode = llm.EngineCode
	}
	out.Brands = fn.Unique(append(out.Brands, llm.Brands...))
	out.Positions = fn.Unique(append(out.Positions, llm.Positions...))
	if llm.Confidence > out.Confidence {
		out.Confidence = llm.Confidence
	}
	return out
}
