package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/pkg/fn"
)

// Mode selects how the schema validator treats problems. Strict drops unknown
// fields and rejects anything invalid; Lenient keeps unknown fields with
// warnings and repairs what it can.
type Mode int

const (
	Strict Mode = iota
	Lenient
)

// Validation is the validator's verdict. Valid means no errors were recorded;
// warnings never fail a request.
type Validation struct {
	Valid    bool
	Intent   domain.Intent
	Extra    map[string]any
	Errors   []string
	Warnings []string
}

const (
	maxFieldLen   = 64
	maxEngineLen  = 12
	maxArrayItems = 10
)

var knownFields = map[string]bool{
	"partNumber": true, "crossReference": true, "category": true,
	"brand": true, "vehicleMake": true, "vehicleModel": true,
	"vehicleYear": true, "engineCode": true, "position": true,
	"searchType": true, "confidence": true,
}

var (
	categoryVocab = sortedKeys(domain.Categories)
	positionVocab = func() []string {
		out := make([]string, 0, len(domain.ValidPositions))
		for p := range domain.ValidPositions {
			out = append(out, string(p))
		}
		sort.Strings(out)
		return out
	}()
	brandVocab = func() []string {
		seen := make(map[string]bool)
		var out []string
		for _, canonical := range domain.Brands {
			if !seen[canonical] {
				seen[canonical] = true
				out = append(out, canonical)
			}
		}
		sort.Strings(out)
		return out
	}()
)

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateIntentMap lowers a decoded JSON object into an Intent, reporting
// per-field errors and warnings. The input map is not modified.
func ValidateIntentMap(data map[string]any, mode Mode) Validation {
	v := Validation{}
	in := &v.Intent

	if raw, ok := data["partNumber"]; ok {
		if s, ok := coerceString(raw); ok {
			in.PartNumber = strings.ToUpper(capLen(&v, "partNumber", s, maxFieldLen))
		} else {
			v.scalarTypeProblem(mode, "partNumber", raw)
		}
	}
	if raw, ok := data["crossReference"]; ok {
		if s, ok := coerceString(raw); ok {
			in.CrossReference = strings.ToUpper(capLen(&v, "crossReference", s, maxFieldLen))
		} else {
			v.scalarTypeProblem(mode, "crossReference", raw)
		}
	}
	if raw, ok := data["category"]; ok {
		if s, ok := coerceString(raw); ok {
			in.Category = v.vocabField(mode, "category", strings.ToLower(strings.TrimSpace(s)), categoryVocab)
		} else {
			v.scalarTypeProblem(mode, "category", raw)
		}
	}
	if raw, ok := data["brand"]; ok {
		items := v.stringArray(mode, "brand", raw)
		for _, item := range items {
			if canonical, ok := domain.KnownBrand(strings.ToLower(item)); ok {
				in.Brands = append(in.Brands, canonical)
				continue
			}
			if mode == Lenient {
				if fixed, ok := closestMatch(item, brandVocab); ok {
					v.warnf("brand %q corrected to %q", item, fixed)
					in.Brands = append(in.Brands, fixed)
					continue
				}
			}
			v.warnf("brand %q not in vocabulary, dropped", item)
		}
	}
	if raw, ok := data["vehicleMake"]; ok {
		if s, ok := coerceString(raw); ok {
			in.VehicleMake = canonicalMake(capLen(&v, "vehicleMake", s, maxFieldLen))
		} else {
			v.scalarTypeProblem(mode, "vehicleMake", raw)
		}
	}
	if raw, ok := data["vehicleModel"]; ok {
		if s, ok := coerceString(raw); ok {
			in.VehicleModel = capLen(&v, "vehicleModel", s, maxFieldLen)
		} else {
			v.scalarTypeProblem(mode, "vehicleModel", raw)
		}
	}
	if raw, ok := data["vehicleYear"]; ok {
		if year, ok := coerceInt(raw); ok {
			if year >= domain.IntentYearMin && year <= domain.MaxIntentYear() {
				in.VehicleYear = year
			} else if mode == Lenient {
				v.warnf("vehicleYear %d out of range, dropped", year)
			} else {
				v.errorf("vehicleYear %d out of range", year)
			}
		} else {
			v.scalarTypeProblem(mode, "vehicleYear", raw)
		}
	}
	if raw, ok := data["engineCode"]; ok {
		if s, ok := coerceString(raw); ok {
			in.EngineCode = strings.ToUpper(capLen(&v, "engineCode", s, maxEngineLen))
		} else {
			v.scalarTypeProblem(mode, "engineCode", raw)
		}
	}
	if raw, ok := data["position"]; ok {
		items := v.stringArray(mode, "position", raw)
		for _, item := range items {
			lowered := strings.ToLower(strings.TrimSpace(item))
			if domain.ValidPositions[domain.Position(lowered)] {
				in.Positions = append(in.Positions, domain.Position(lowered))
				continue
			}
			if mode == Lenient {
				if fixed, ok := closestMatch(lowered, positionVocab); ok {
					v.warnf("position %q corrected to %q", item, fixed)
					in.Positions = append(in.Positions, domain.Position(fixed))
					continue
				}
			}
			v.warnf("position %q not in vocabulary, dropped", item)
		}
	}
	if raw, ok := data["searchType"]; ok {
		if s, ok := coerceString(raw); ok {
			st := domain.SearchType(strings.TrimSpace(s))
			switch {
			case st == "":
				// unset, defaulted below
			case domain.ValidSearchTypes[st]:
				in.SearchType = st
			default:
				v.errorf("searchType %q not recognised", s)
			}
		} else {
			v.scalarTypeProblem(mode, "searchType", raw)
		}
	}
	if raw, ok := data["confidence"]; ok {
		if c, ok := coerceFloat(raw); ok {
			switch {
			case c >= 0 && c <= 1:
				in.Confidence = c
			case mode == Lenient:
				clamped := min(max(c, 0), 1)
				v.warnf("confidence %v clamped to %v", c, clamped)
				in.Confidence = clamped
			default:
				v.errorf("confidence %v out of range", c)
			}
		} else {
			v.scalarTypeProblem(mode, "confidence", raw)
		}
	}

	for _, key := range sortedKeys(data) {
		if knownFields[key] {
			continue
		}
		if mode == Lenient {
			if v.Extra == nil {
				v.Extra = make(map[string]any)
			}
			v.Extra[key] = data[key]
			v.warnf("unknown field %q kept", key)
		}
	}

	in.Brands = fn.Unique(in.Brands)
	in.Positions = fn.Unique(in.Positions)

	if in.PartNumber != "" && in.Confidence < 0.7 {
		if mode == Lenient {
			v.warnf("confidence raised to 0.7 for part number intent")
			in.Confidence = 0.7
		} else {
			v.errorf("part number requires confidence >= 0.7")
		}
	}
	if in.SearchType == domain.SearchFitment && in.VehicleMake == "" {
		if mode == Lenient {
			v.warnf("fitment search without vehicle make demoted to general")
			in.SearchType = domain.SearchGeneral
		} else {
			v.errorf("fitment search requires a vehicle make")
		}
	}
	if in.SearchType == "" {
		in.SearchType = domain.SearchGeneral
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// ValidateIntent reruns validation over an assembled Intent, reapplying the
// vocabulary checks and invariant repairs after a merge. The raw parser
// signals survive the round trip.
func ValidateIntent(in domain.Intent, mode Mode) Validation {
	buf, err := json.Marshal(in)
	if err != nil {
		v := Validation{Intent: in}
		v.errorf("encode intent: %v", err)
		return v
	}
	var data map[string]any
	if err := json.Unmarshal(buf, &data); err != nil {
		v := Validation{Intent: in}
		v.errorf("decode intent: %v", err)
		return v
	}
	v := ValidateIntentMap(data, mode)
	v.Intent.Raw = in.Raw
	return v
}

func (v *Validation) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validation) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

func (v *Validation) scalarTypeProblem(mode Mode, field string, raw any) {
	if mode == Lenient {
		v.warnf("%s has unusable type %T, dropped", field, raw)
		return
	}
	v.errorf("%s has unusable type %T", field, raw)
}

// stringArray lowers a JSON value into a string slice: singletons are
// wrapped, oversize arrays truncated, non-string items coerced or dropped.
func (v *Validation) stringArray(mode Mode, field string, raw any) []string {
	var items []any
	switch val := raw.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		items = []any{val} // wrap singleton
	}
	if len(items) > maxArrayItems {
		v.warnf("%s truncated to %d items", field, maxArrayItems)
		items = items[:maxArrayItems]
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := coerceString(item); ok {
			out = append(out, s)
		} else {
			v.warnf("%s item of type %T dropped", field, item)
		}
	}
	return out
}

// vocabField validates a value against a closed vocabulary, repairing it by
// closest match in lenient mode.
func (v *Validation) vocabField(mode Mode, field, value string, vocab []string) string {
	if value == "" {
		return ""
	}
	for _, known := range vocab {
		if value == known {
			return value
		}
	}
	if mode == Lenient {
		if fixed, ok := closestMatch(value, vocab); ok {
			v.warnf("%s %q corrected to %q", field, value, fixed)
			return fixed
		}
	}
	v.errorf("%s %q not in vocabulary", field, value)
	return ""
}

func capLen(v *Validation, field, s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) > limit {
		v.warnf("%s truncated to %d characters", field, limit)
		return s[:limit]
	}
	return s
}

// closestMatch finds the vocabulary entry closest to value by substring
// containment in either direction, preferring the smallest length gap.
// Candidates are assumed sorted, which breaks ties deterministically.
func closestMatch(value string, vocab []string) (string, bool) {
	lowered := strings.ToLower(strings.TrimSpace(value))
	if lowered == "" {
		return "", false
	}
	best := ""
	bestGap := -1
	for _, known := range vocab {
		kl := strings.ToLower(known)
		if !strings.Contains(kl, lowered) && !strings.Contains(lowered, kl) {
			continue
		}
		gap := len(kl) - len(lowered)
		if gap < 0 {
			gap = -gap
		}
		if bestGap == -1 || gap < bestGap {
			best, bestGap = known, gap
		}
	}
	return best, best != ""
}

// canonicalMake normalizes make capitalization when the value is a known
// make or alias; unrecognized makes pass through untouched.
func canonicalMake(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := makeAliases[lowered]; ok {
		return canonical
	}
	for mk := range domain.VehicleMakes {
		if lowered == strings.ToLower(mk) {
			return mk
		}
	}
	return strings.TrimSpace(s)
}

func coerceString(raw any) (string, bool) {
	switch val := raw.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	default:
		return "", false
	}
}

func coerceInt(raw any) (int, bool) {
	switch val := raw.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	default:
		return 0, false
	}
}

func coerceFloat(raw any) (float64, bool) {
	switch val := raw.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
