package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/partlinq/partsearch/pkg/repo"
)

// newCategoryRepo creates a Neo4j-backed repository for Category nodes,
// keyed by name rather than a synthetic id.
func newCategoryRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[Category, string] {
	return repo.NewNeo4jRepo[Category, string](
		driver,
		"Category",
		categoryToMap,
		categoryFromRecord,
		repo.WithIDKey[Category, string]("name"),
	)
}

func categoryToMap(c Category) map[string]any {
	return map[string]any{"name": c.Name}
}

func categoryFromRecord(rec *neo4j.Record) (Category, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Category{}, fmt.Errorf("graph: category record: %w", err)
	}
	return categoryFromProps(node.Props), nil
}

func categoryFromProps(props map[string]any) Category {
	return Category{Name: strProp(props, "name")}
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Category fetches a single category node by name.
func (s *Store) Category(ctx context.Context, name string) (Category, error) {
	if s.categories != nil {
		c, err := s.categories.Get(ctx, name)
		if err != nil {
			return Category{}, fmt.Errorf("graph: category %q: %w", name, err)
		}
		return c, nil
	}

	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n:Category {name: $name}) RETURN n`,
		map[string]any{"name": name})
	if err != nil {
		return Category{}, fmt.Errorf("graph: category %q: %w", name, err)
	}
	if !result.Next(ctx) {
		return Category{}, fmt.Errorf("graph: category %q: %w", name, repo.ErrNotFound)
	}
	return categoryFromRecord(result.Record())
}

// Categories lists category nodes, name-ordered.
func (s *Store) Categories(ctx context.Context, limit int) ([]Category, error) {
	if limit <= 0 {
		limit = 100
	}
	if s.categories != nil {
		cats, err := s.categories.List(ctx, repo.ListOpts{Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("graph: categories: %w", err)
		}
		return cats, nil
	}

	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n:Category) RETURN n ORDER BY n.name LIMIT $limit`,
		map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("graph: categories: %w", err)
	}
	var cats []Category
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			continue
		}
		cats = append(cats, categoryFromProps(node.Props))
	}
	return cats, nil
}

// CategoryCount returns the number of category nodes.
func (s *Store) CategoryCount(ctx context.Context) (int64, error) {
	if s.categories != nil {
		n, err := s.categories.Count(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("graph: category count: %w", err)
		}
		return n, nil
	}

	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n:Category) RETURN count(n) AS count`, nil)
	if err != nil {
		return 0, fmt.Errorf("graph: category count: %w", err)
	}
	if !result.Next(ctx) {
		return 0, nil
	}
	if v, ok := result.Record().Get("count"); ok {
		if n, ok := v.(int64); ok {
			return n, nil
		}
	}
	return 0, nil
}
