// Package graph maintains the parts category relation graph in Neo4j:
// category nodes joined by weighted edges that back related-category
// suggestions and cross-sell. Callers fall back to the in-process
// adjacency map when the graph is down or not configured.
package graph

// Category is a part category node.
type Category struct {
	Name string `json:"name"`
}

// Relation is a weighted, typed edge between two categories.
type Relation struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Type   string  `json:"type"` // RELATED_TO, PURCHASED_WITH
	Weight float64 `json:"weight"`
}

// Stats holds node and relationship counts grouped by label and type.
type Stats struct {
	Nodes     map[string]int64 `json:"nodes"`
	Relations map[string]int64 `json:"relations"`
}
