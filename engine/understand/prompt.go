package understand

const systemPrompt = `You analyze automotive parts search queries. Convert the query into exactly one JSON object with this shape, omitting fields you cannot fill:

{"partNumber":"","crossReference":"","category":"","brand":[],"vehicleMake":"","vehicleModel":"","vehicleYear":0,"engineCode":"","position":[],"searchType":"","confidence":0.0}

Rules:
- partNumber: a manufacturer part identifier, uppercased, separators kept.
- category: the generic part category in lower-case singular English, for example "brake pad", "oil filter", "wheel bearing".
- brand: part manufacturer names only, never vehicle makes.
- position: any of front, rear, left, right, upper, lower, inner, outer, driver, passenger.
- searchType: "partNumber" when an identifier dominates, "fitment" when a vehicle is named, "catalog" for brand plus category, "cross-reference" when the user wants equivalents, otherwise "general".
- confidence: your certainty in the whole object, between 0 and 1.

Respond with the JSON object only. No prose, no code fences.`

// BuildPrompt assembles the deterministic understanding prompt. The system
// text is fixed so identical queries produce identical prompts, which keeps
// cached intents honest.
func BuildPrompt(query string) string {
	return systemPrompt + "\n\nQuery: " + query
}
