package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
)

// Part-number shapes, matched against upper-cased tokens. OEM identifiers
// come in two families: letter-prefixed ("BP91234") and digit-led with an
// alphanumeric suffix ("04152-YZZA1").
var (
	oemPartRe    = regexp.MustCompile(`^[A-Z]{1,4}[-./]?\d{3,}[-.\w]*$`)
	oemDigitRe   = regexp.MustCompile(`^\d{3,}[-./][0-9]*[A-Z][A-Z0-9]*$`)
	numericSepRe = regexp.MustCompile(`^\d{2,}[-./]\d+[-.\d]*$`)
	oilGradeRe   = regexp.MustCompile(`^\d{1,2}W-?\d{2,3}$`)
	compactRe    = regexp.MustCompile(`^[A-Z0-9]{6,}$`)
	hasDigitRe   = regexp.MustCompile(`\d`)
	yearTokenRe  = regexp.MustCompile(`^(19|20)\d{2}$`)
)

// Free-text patterns, matched against the normalized (lower-case) query.
var (
	yearRe           = regexp.MustCompile(`\b(19[89]\d|20[0-2]\d)\b`)
	diameterRe       = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(mm|cm|inch|in)\b`)
	threadRe         = regexp.MustCompile(`\bm(\d{1,2})x(\d{1,2}(?:\.\d+)?)\b`)
	displacementLRe  = regexp.MustCompile(`\b(\d\.\d)\s?l\b`)
	displacementCcRe = regexp.MustCompile(`\b(\d{3,4})\s?cc\b`)
	engineCodeRe     = regexp.MustCompile(`^[A-Z]{1,2}\d{1,2}[A-Z]?\d?$`)
)

// makeAliases resolves common shorthand to canonical make names.
var makeAliases = map[string]string{
	"vw":            "Volkswagen",
	"merc":          "Mercedes",
	"benz":          "Mercedes",
	"mercedes-benz": "Mercedes",
	"chevy":         "Chevrolet",
}

// positionIndicators maps multilingual position words to the canonical set.
var positionIndicators = map[string]domain.Position{
	"front":     domain.PositionFront,
	"vorne":     domain.PositionFront,
	"vorn":      domain.PositionFront,
	"delantero": domain.PositionFront,
	"delantera": domain.PositionFront,
	"rear":      domain.PositionRear,
	"hinten":    domain.PositionRear,
	"trasero":   domain.PositionRear,
	"trasera":   domain.PositionRear,
	"left":      domain.PositionLeft,
	"links":     domain.PositionLeft,
	"izquierdo": domain.PositionLeft,
	"izquierda": domain.PositionLeft,
	"right":     domain.PositionRight,
	"rechts":    domain.PositionRight,
	"derecho":   domain.PositionRight,
	"derecha":   domain.PositionRight,
	"upper":     domain.PositionUpper,
	"oben":      domain.PositionUpper,
	"superior":  domain.PositionUpper,
	"lower":     domain.PositionLower,
	"unten":     domain.PositionLower,
	"inferior":  domain.PositionLower,
	"inner":     domain.PositionInner,
	"innen":     domain.PositionInner,
	"outer":     domain.PositionOuter,
	"außen":     domain.PositionOuter,
	"aussen":    domain.PositionOuter,
	"driver":    domain.PositionDriver,
	"fahrer":    domain.PositionDriver,
	"conductor": domain.PositionDriver,
	"passenger": domain.PositionPassenger,
	"beifahrer": domain.PositionPassenger,
}

// aspirationWords maps fuel/induction vocabulary to canonical labels.
var aspirationWords = map[string]string{
	"turbo":        "turbo",
	"turbocharged": "turbo",
	"supercharged": "supercharged",
	"kompressor":   "supercharged",
	"hybrid":       "hybrid",
	"diesel":       "diesel",
	"petrol":       "petrol",
	"gasoline":     "petrol",
	"benzin":       "petrol",
	"gasolina":     "petrol",
}

// categoryNames is the deterministic iteration order for category matching.
var categoryNames = func() []string {
	names := make([]string, 0, len(domain.Categories))
	for name := range domain.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// finding is one detector's contribution. Detectors fill only their own
// fields; combine folds all findings into a Result.
type finding struct {
	partNumber    string
	pnPattern     string
	pnConfidence  float64
	brands        []string
	category      string
	catIndicator  string
	catConfidence float64
	vehicleMake   string
	vehicleModel  string
	vehicleYear   int
	vehicleConf   float64
	positions     []domain.Position
	engineCode    string
	diameter      *Dimension
	thread        string
	displacement  string
	aspiration    string
}

// maxParserYear bounds the year detector to next year's models.
func maxParserYear() int {
	return time.Now().Year() + 1
}

// detectPartNumber checks each token against the part-number shapes and keeps
// the strongest match. When nothing matches and the whole query is one compact
// alphanumeric run, that run is treated as a probable identifier.
func detectPartNumber(normalized string, tokens []string) finding {
	var f finding
	for _, tok := range tokens {
		up := strings.ToUpper(tok)
		switch {
		case len(up) >= 5 && (oemPartRe.MatchString(up) || oemDigitRe.MatchString(up)):
			if f.pnConfidence < 0.9 {
				f.partNumber, f.pnPattern, f.pnConfidence = up, "oem", 0.9
			}
		case numericSepRe.MatchString(up) && !isYearRange(up):
			if f.pnConfidence < 0.7 {
				f.partNumber, f.pnPattern, f.pnConfidence = up, "numeric-separator", 0.7
			}
		case oilGradeRe.MatchString(up):
			if f.pnConfidence < 0.6 {
				f.partNumber, f.pnPattern, f.pnConfidence = up, "oil-grade", 0.6
			}
		}
	}
	if f.partNumber == "" && len(tokens) == 1 {
		up := strings.ToUpper(tokens[0])
		if compactRe.MatchString(up) && hasDigitRe.MatchString(up) && !yearTokenRe.MatchString(up) {
			f.partNumber, f.pnPattern, f.pnConfidence = up, "compact", 0.7
		}
	}
	return f
}

// isYearRange rejects spans like "2019-2020" that the numeric shape would
// otherwise read as identifiers.
func isYearRange(tok string) bool {
	parts := strings.FieldsFunc(tok, func(r rune) bool { return r == '-' || r == '.' || r == '/' })
	if len(parts) != 2 {
		return false
	}
	for _, p := range parts {
		if !yearTokenRe.MatchString(p) {
			return false
		}
	}
	return true
}

func detectBrands(tokens []string) finding {
	var f finding
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if canonical, ok := domain.KnownBrand(tok); ok && !seen[canonical] {
			seen[canonical] = true
			f.brands = append(f.brands, canonical)
		}
	}
	return f
}

// detectCategory matches indicator phrases as substrings of the whole
// normalized query. The longest matched phrase wins, which keeps "brake pads"
// from losing to a shorter overlapping indicator.
func detectCategory(normalized string) finding {
	var f finding
	for _, name := range categoryNames {
		for _, indicator := range domain.Categories[name] {
			if !strings.Contains(normalized, indicator) {
				continue
			}
			if len(indicator) > len(f.catIndicator) {
				f.category = name
				f.catIndicator = indicator
				if len(indicator) > 5 {
					f.catConfidence = 0.9
				} else {
					f.catConfidence = 0.7
				}
			}
			break // first indicator hit per category wins
		}
	}
	return f
}

func detectVehicle(normalized string, tokens []string) finding {
	var f finding

	for _, tok := range tokens {
		if canonical, ok := makeAliases[tok]; ok {
			f.vehicleMake = canonical
			break
		}
		for mk := range domain.VehicleMakes {
			if tok == strings.ToLower(mk) {
				f.vehicleMake = mk
				break
			}
		}
		if f.vehicleMake != "" {
			break
		}
	}

	if f.vehicleMake != "" {
		models := domain.VehicleMakes[f.vehicleMake]
		best := ""
		for _, model := range models {
			ml := strings.ToLower(model)
			if containsWord(normalized, ml) && len(model) > len(best) {
				best = model
			}
		}
		f.vehicleModel = best
	}

	if m := yearRe.FindStringSubmatch(normalized); m != nil {
		year, _ := strconv.Atoi(m[0])
		if year >= domain.ParserYearMin && year <= maxParserYear() {
			f.vehicleYear = year
		}
	}

	if f.vehicleMake != "" {
		f.vehicleConf += 0.3
	}
	if f.vehicleModel != "" {
		f.vehicleConf += 0.3
	}
	if f.vehicleYear != 0 {
		f.vehicleConf += 0.3
	}
	return f
}

// containsWord reports whether phrase occurs in s on word boundaries.
func containsWord(s, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || s[start-1] == ' '
		afterOK := end == len(s) || s[end] == ' '
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(s) {
			return false
		}
	}
}

func detectPositions(tokens []string) finding {
	var f finding
	seen := make(map[domain.Position]bool)
	for _, tok := range tokens {
		if pos, ok := positionIndicators[tok]; ok && !seen[pos] {
			seen[pos] = true
			f.positions = append(f.positions, pos)
		}
	}
	return f
}

// detectSpecs extracts dimensional and engine descriptors. These ride along in
// the parser signals; only the engine code is promoted into the Intent.
func detectSpecs(normalized string, tokens []string) finding {
	var f finding

	if m := diameterRe.FindStringSubmatch(normalized); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		unit := m[2]
		if unit == "in" {
			unit = "inch"
		}
		f.diameter = &Dimension{Value: value, Unit: unit}
	}
	if m := threadRe.FindStringSubmatch(normalized); m != nil {
		f.thread = "M" + m[1] + "x" + m[2]
	}
	if m := displacementLRe.FindStringSubmatch(normalized); m != nil {
		f.displacement = m[1] + "L"
	} else if m := displacementCcRe.FindStringSubmatch(normalized); m != nil {
		f.displacement = m[1] + "cc"
	}

	for _, tok := range tokens {
		if asp, ok := aspirationWords[tok]; ok && f.aspiration == "" {
			f.aspiration = asp
		}
		up := strings.ToUpper(tok)
		if f.engineCode == "" && len(up) >= 2 && engineCodeRe.MatchString(up) && !isVehicleWord(tok) {
			f.engineCode = up
		}
	}
	return f
}

// isVehicleWord filters tokens that the engine-code shape would swallow but
// that are really makes, models, or oil grades.
func isVehicleWord(tok string) bool {
	if _, ok := makeAliases[tok]; ok {
		return true
	}
	if oilGradeRe.MatchString(strings.ToUpper(tok)) {
		return true
	}
	for mk, models := range domain.VehicleMakes {
		if tok == strings.ToLower(mk) {
			return true
		}
		for _, model := range models {
			if tok == strings.ToLower(model) {
				return true
			}
		}
	}
	return false
}
