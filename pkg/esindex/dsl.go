// Package esindex is the Elasticsearch-compatible text index adapter: a
// boolean-query DSL and a thin REST client for the _search endpoint. The
// retrieval strategies compose their query trees from these builders.
package esindex

// Query is one node of the search DSL tree. Builders return plain maps so the
// encoded body matches the engine's JSON contract exactly.
type Query map[string]any

// Term matches a field's exact (keyword) value.
func Term(field string, value any) Query {
	return Query{"term": map[string]any{field: value}}
}

// TermBoost is Term with a relevance boost.
func TermBoost(field string, value any, boost float64) Query {
	return Query{"term": map[string]any{field: map[string]any{"value": value, "boost": boost}}}
}

// Terms matches any of the given exact values.
func Terms(field string, values ...any) Query {
	return Query{"terms": map[string]any{field: values}}
}

// Prefix matches values starting with the given string.
func Prefix(field, value string) Query {
	return Query{"prefix": map[string]any{field: value}}
}

// Fuzzy matches within the given edit distance, anchoring the first
// prefixLength characters.
func Fuzzy(field, value string, fuzziness, prefixLength int) Query {
	return Query{"fuzzy": map[string]any{field: map[string]any{
		"value":         value,
		"fuzziness":     fuzziness,
		"prefix_length": prefixLength,
	}}}
}

// Match is a full-text match on one field.
func Match(field string, value any) Query {
	return Query{"match": map[string]any{field: value}}
}

// MatchBoost is Match with a relevance boost.
func MatchBoost(field string, value any, boost float64) Query {
	return Query{"match": map[string]any{field: map[string]any{"query": value, "boost": boost}}}
}

// MultiMatch searches one string across several fields, best_fields scoring
// with automatic fuzziness.
func MultiMatch(query string, fields ...string) Query {
	return Query{"multi_match": map[string]any{
		"query":     query,
		"fields":    fields,
		"type":      "best_fields",
		"fuzziness": "AUTO",
	}}
}

// RangeLTE matches field <= value.
func RangeLTE(field string, value any) Query {
	return Query{"range": map[string]any{field: map[string]any{"lte": value}}}
}

// RangeGTE matches field >= value.
func RangeGTE(field string, value any) Query {
	return Query{"range": map[string]any{field: map[string]any{"gte": value}}}
}

// BoolClauses collects the branches of a boolean query. Zero-valued fields
// are omitted from the encoded tree.
type BoolClauses struct {
	Must               []Query
	Should             []Query
	MustNot            []Query
	Filter             []Query
	MinimumShouldMatch int
}

// Bool builds a boolean query from the given clauses.
func Bool(c BoolClauses) Query {
	inner := map[string]any{}
	if len(c.Must) > 0 {
		inner["must"] = c.Must
	}
	if len(c.Should) > 0 {
		inner["should"] = c.Should
	}
	if len(c.MustNot) > 0 {
		inner["must_not"] = c.MustNot
	}
	if len(c.Filter) > 0 {
		inner["filter"] = c.Filter
	}
	if c.MinimumShouldMatch > 0 {
		inner["minimum_should_match"] = c.MinimumShouldMatch
	}
	return Query{"bool": inner}
}

// Nested wraps a query against fields under a nested mapping path.
func Nested(path string, query Query) Query {
	return Query{"nested": map[string]any{"path": path, "query": query}}
}
