package graph

import (
	"context"
	"fmt"
)

// Stats returns node and relationship counts grouped by label and
// type, for the stats endpoint.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	nodes, err := countsBy(ctx, sess, `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`)
	if err != nil {
		return Stats{}, fmt.Errorf("graph: node counts: %w", err)
	}
	rels, err := countsBy(ctx, sess, `MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count`)
	if err != nil {
		return Stats{}, fmt.Errorf("graph: relationship counts: %w", err)
	}
	return Stats{Nodes: nodes, Relations: rels}, nil
}

func countsBy(ctx context.Context, sess CypherSession, cypher string) (map[string]int64, error) {
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	return counts, nil
}
