package domain

// Closed vocabularies for intent fields. The category indicator lists are
// matched as substrings of the normalized query, so every entry is lower-case
// and uses the same separators NormalizeQuery preserves. Indicators carry
// German and Spanish terms alongside English because the catalog serves EU
// marketplaces.

// Categories maps each canonical category to its indicator phrases.
var Categories = map[string][]string{
	"brake pad":           {"brake pad", "brake pads", "bremsbelag", "bremsbeläge", "pastillas de freno", "pastilla de freno"},
	"brake disc":          {"brake disc", "brake discs", "brake rotor", "bremsscheibe", "bremsscheiben", "disco de freno", "discos de freno"},
	"brake caliper":       {"brake caliper", "bremssattel", "pinza de freno"},
	"brake hose":          {"brake hose", "bremsschlauch", "latiguillo de freno"},
	"brake fluid":         {"brake fluid", "bremsflüssigkeit", "liquido de frenos", "líquido de frenos"},
	"oil filter":          {"oil filter", "ölfilter", "oelfilter", "filtro de aceite"},
	"air filter":          {"air filter", "luftfilter", "filtro de aire"},
	"fuel filter":         {"fuel filter", "kraftstofffilter", "filtro de combustible"},
	"cabin filter":        {"cabin filter", "pollen filter", "innenraumfilter", "filtro de habitáculo", "filtro de polen"},
	"spark plug":          {"spark plug", "spark plugs", "zündkerze", "zündkerzen", "bujía", "bujias", "bujías"},
	"glow plug":           {"glow plug", "glühkerze", "calentador"},
	"ignition coil":       {"ignition coil", "zündspule", "bobina de encendido"},
	"wheel bearing":       {"wheel bearing", "radlager", "rodamiento de rueda", "cojinete de rueda"},
	"wheel hub":           {"wheel hub", "radnabe", "cubo de rueda"},
	"shock absorber":      {"shock absorber", "shock absorbers", "damper", "stoßdämpfer", "stossdämpfer", "amortiguador", "amortiguadores"},
	"coil spring":         {"coil spring", "fahrwerksfeder", "muelle de suspensión"},
	"control arm":         {"control arm", "wishbone", "querlenker", "brazo de suspensión"},
	"ball joint":          {"ball joint", "traggelenk", "rótula de suspensión", "rotula"},
	"tie rod end":         {"tie rod end", "tie rod", "spurstangenkopf", "rótula de dirección"},
	"stabilizer link":     {"stabilizer link", "sway bar link", "koppelstange", "bieleta"},
	"timing belt":         {"timing belt", "cam belt", "zahnriemen", "correa de distribución", "correa de distribucion"},
	"timing chain":        {"timing chain", "steuerkette", "cadena de distribución"},
	"serpentine belt":     {"serpentine belt", "drive belt", "v-ribbed belt", "keilrippenriemen", "correa poly v"},
	"water pump":          {"water pump", "wasserpumpe", "bomba de agua"},
	"fuel pump":           {"fuel pump", "kraftstoffpumpe", "bomba de combustible"},
	"radiator":            {"radiator", "kühler", "kuehler", "radiador"},
	"thermostat":          {"thermostat", "termostato"},
	"alternator":          {"alternator", "lichtmaschine", "alternador"},
	"starter motor":       {"starter motor", "starter", "anlasser", "motor de arranque"},
	"battery":             {"battery", "batterie", "batería", "bateria"},
	"clutch kit":          {"clutch kit", "clutch", "kupplung", "kupplungssatz", "kit de embrague", "embrague"},
	"flywheel":            {"flywheel", "schwungrad", "volante motor", "volante de inercia"},
	"cv joint":            {"cv joint", "drive joint", "gelenksatz", "antriebsgelenk", "junta homocinética"},
	"drive shaft":         {"drive shaft", "antriebswelle", "palier"},
	"catalytic converter": {"catalytic converter", "katalysator", "catalizador"},
	"lambda sensor":       {"lambda sensor", "oxygen sensor", "o2 sensor", "lambdasonde", "sonda lambda"},
	"exhaust muffler":     {"muffler", "silencer", "endschalldämpfer", "auspuff", "silenciador"},
	"wiper blade":         {"wiper blade", "wiper blades", "scheibenwischer", "wischblatt", "escobilla", "escobillas"},
	"headlight":           {"headlight", "headlamp", "scheinwerfer", "faro delantero"},
	"engine oil":          {"engine oil", "motor oil", "motoröl", "motoroel", "aceite de motor"},
}

// RelatedCategories is the cross-sell adjacency used by explanation
// suggestions. Keys and values are canonical category names.
var RelatedCategories = map[string][]string{
	"brake pad":           {"brake disc", "brake caliper", "brake fluid"},
	"brake disc":          {"brake pad", "brake caliper"},
	"brake caliper":       {"brake pad", "brake hose"},
	"brake hose":          {"brake caliper", "brake fluid"},
	"brake fluid":         {"brake pad"},
	"oil filter":          {"air filter", "fuel filter", "engine oil"},
	"air filter":          {"oil filter", "cabin filter"},
	"fuel filter":         {"oil filter", "fuel pump"},
	"cabin filter":        {"air filter"},
	"engine oil":          {"oil filter"},
	"spark plug":          {"ignition coil", "air filter"},
	"glow plug":           {"fuel filter"},
	"ignition coil":       {"spark plug"},
	"wheel bearing":       {"wheel hub", "cv joint"},
	"wheel hub":           {"wheel bearing"},
	"shock absorber":      {"coil spring", "stabilizer link"},
	"coil spring":         {"shock absorber"},
	"control arm":         {"ball joint", "stabilizer link"},
	"ball joint":          {"control arm", "tie rod end"},
	"tie rod end":         {"ball joint"},
	"stabilizer link":     {"shock absorber", "control arm"},
	"timing belt":         {"water pump", "serpentine belt"},
	"timing chain":        {"water pump"},
	"serpentine belt":     {"timing belt"},
	"water pump":          {"timing belt", "thermostat"},
	"fuel pump":           {"fuel filter"},
	"radiator":            {"thermostat", "water pump"},
	"thermostat":          {"radiator", "water pump"},
	"alternator":          {"battery", "starter motor"},
	"starter motor":       {"battery", "alternator"},
	"battery":             {"alternator"},
	"clutch kit":          {"flywheel"},
	"flywheel":            {"clutch kit"},
	"cv joint":            {"drive shaft", "wheel bearing"},
	"drive shaft":         {"cv joint"},
	"catalytic converter": {"lambda sensor", "exhaust muffler"},
	"lambda sensor":       {"catalytic converter"},
	"exhaust muffler":     {"catalytic converter"},
	"wiper blade":         {"headlight"},
	"headlight":           {"wiper blade"},
}

// Brands maps a lower-cased detection token to the canonical brand name.
// Multi-token brands also register their hyphenated and single-word forms.
var Brands = map[string]string{
	"bosch":       "Bosch",
	"brembo":      "Brembo",
	"denso":       "Denso",
	"ngk":         "NGK",
	"mann":        "Mann-Filter",
	"mann-filter": "Mann-Filter",
	"mahle":       "Mahle",
	"febi":        "Febi",
	"bilstein":    "Bilstein",
	"sachs":       "Sachs",
	"monroe":      "Monroe",
	"trw":         "TRW",
	"ate":         "ATE",
	"valeo":       "Valeo",
	"continental": "Continental",
	"delphi":      "Delphi",
	"skf":         "SKF",
	"gates":       "Gates",
	"dayco":       "Dayco",
	"hella":       "Hella",
	"osram":       "Osram",
	"philips":     "Philips",
	"kyb":         "KYB",
	"lemförder":   "Lemförder",
	"lemforder":   "Lemförder",
	"meyle":       "Meyle",
	"moog":        "Moog",
	"aisin":       "Aisin",
	"textar":      "Textar",
	"zimmermann":  "Zimmermann",
	"luk":         "LuK",
	"ina":         "INA",
	"fag":         "FAG",
	"pierburg":    "Pierburg",
	"nissens":     "Nissens",
	"acdelco":     "ACDelco",
	"motorcraft":  "Motorcraft",
	"champion":    "Champion",
	"fram":        "Fram",
	"wix":         "WIX",
	"castrol":     "Castrol",
	"liqui":       "Liqui Moly",
	"liqui-moly":  "Liqui Moly",
}

// KnownBrand resolves a detection token to its canonical brand name.
func KnownBrand(token string) (string, bool) {
	canonical, ok := Brands[token]
	return canonical, ok
}

// VehicleMakes maps make names to their known models, used by the vehicle
// context detector and fitment validation.
var VehicleMakes = map[string][]string{
	"Toyota":     {"Camry", "Corolla", "RAV4", "Highlander", "Hilux", "Land Cruiser", "Yaris", "Prius", "Avensis", "Auris", "C-HR"},
	"Honda":      {"Civic", "Accord", "CR-V", "HR-V", "Jazz", "Pilot", "Odyssey"},
	"Ford":       {"Focus", "Fiesta", "Mondeo", "Kuga", "F-150", "Mustang", "Ranger", "Transit", "Puma", "Explorer"},
	"Chevrolet":  {"Silverado", "Equinox", "Malibu", "Tahoe", "Camaro", "Corvette", "Cruze", "Aveo"},
	"BMW":        {"1 Series", "3 Series", "5 Series", "7 Series", "X1", "X3", "X5", "X6", "M3", "M5", "i4"},
	"Mercedes":   {"A-Class", "B-Class", "C-Class", "E-Class", "S-Class", "GLA", "GLC", "GLE", "Sprinter", "Vito"},
	"Audi":       {"A1", "A3", "A4", "A5", "A6", "Q3", "Q5", "Q7", "TT", "e-tron"},
	"Volkswagen": {"Golf", "Polo", "Passat", "Tiguan", "Touran", "Touareg", "Jetta", "Caddy", "Transporter", "ID.4"},
	"Nissan":     {"Qashqai", "Juke", "Micra", "X-Trail", "Altima", "Leaf", "Navara", "Note"},
	"Hyundai":    {"i10", "i20", "i30", "Tucson", "Santa Fe", "Kona", "Elantra", "Ioniq 5"},
	"Kia":        {"Ceed", "Rio", "Sportage", "Sorento", "Picanto", "Stonic", "EV6", "Niro"},
	"Opel":       {"Corsa", "Astra", "Insignia", "Mokka", "Zafira", "Vivaro", "Grandland"},
	"Peugeot":    {"208", "308", "508", "2008", "3008", "5008", "Partner", "Boxer"},
	"Renault":    {"Clio", "Megane", "Captur", "Kadjar", "Scenic", "Twingo", "Kangoo", "Trafic"},
	"Fiat":       {"500", "Panda", "Tipo", "Punto", "Ducato", "Doblo"},
	"Skoda":      {"Octavia", "Fabia", "Superb", "Kodiaq", "Karoq", "Kamiq", "Scala"},
	"Seat":       {"Ibiza", "Leon", "Ateca", "Arona", "Tarraco", "Alhambra"},
	"Volvo":      {"XC40", "XC60", "XC90", "V40", "V60", "V90", "S60", "S90"},
	"Mazda":      {"Mazda2", "Mazda3", "Mazda6", "CX-3", "CX-5", "CX-30", "MX-5"},
	"Subaru":     {"Outback", "Forester", "Impreza", "XV", "Crosstrek", "Legacy", "WRX"},
	"Mini":       {"Cooper", "Countryman", "Clubman"},
	"Porsche":    {"911", "Cayenne", "Macan", "Panamera", "Taycan", "Boxster"},
	"Jeep":       {"Wrangler", "Grand Cherokee", "Cherokee", "Compass", "Renegade"},
	"Dacia":      {"Sandero", "Duster", "Logan", "Jogger"},
	"Citroen":    {"C3", "C4", "C5", "Berlingo", "Jumper", "Picasso"},
	"Lexus":      {"ES", "IS", "RX", "NX", "UX", "LS"},
	"Tesla":      {"Model 3", "Model Y", "Model S", "Model X"},
}

// Vehicle year bounds. The token parser accepts ParserYearMin..current+1; the
// looser intent validation range admits historic vehicles entered directly.
const (
	IntentYearMin = 1900
	ParserYearMin = 1980
)
