package graph

import (
	"context"
	"fmt"

	"github.com/partlinq/partsearch/engine/domain"
)

// Seed writes the built-in category adjacency map into the graph in one
// transaction. Edge weights decay by list position so earlier map
// entries rank first. Seeding is idempotent.
func (s *Store) Seed(ctx context.Context) error {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	edges := 0
	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for cat, related := range domain.RelatedCategories {
			if _, err := tx.Run(ctx, `MERGE (c:Category {name: $name})`,
				map[string]any{"name": cat}); err != nil {
				return nil, err
			}
			for i, other := range related {
				cypher := `MERGE (a:Category {name: $from})
					MERGE (b:Category {name: $to})
					MERGE (a)-[r:RELATED_TO]->(b)
					SET r.weight = $weight`
				if _, err := tx.Run(ctx, cypher, map[string]any{
					"from":   cat,
					"to":     other,
					"weight": 1 - float64(i)*0.1,
				}); err != nil {
					return nil, err
				}
				edges++
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: seed: %w", err)
	}
	s.logger.Info("category graph seeded",
		"categories", len(domain.RelatedCategories),
		"relations", edges)
	return nil
}
