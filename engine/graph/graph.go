package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/partlinq/partsearch/pkg/repo"
	"github.com/partlinq/partsearch/pkg/resilience"
)

// DefaultRelatedLimit caps related-category suggestions per lookup.
const DefaultRelatedLimit = 3

// CypherResult is the minimal read interface over a query result.
type CypherResult interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// CypherRunner runs a single Cypher statement.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// CypherSession is a session capable of reads and transactional writes.
type CypherSession interface {
	CypherRunner
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener opens Cypher sessions. The driver-backed opener is the
// production path; tests substitute their own.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o *driverOpener) OpenSession(ctx context.Context) CypherSession {
	return &neo4jSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type neo4jSession struct {
	sess neo4j.SessionWithContext
}

func (s *neo4jSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *neo4jSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&managedTxRunner{tx: tx})
	})
}

func (s *neo4jSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

type managedTxRunner struct {
	tx neo4j.ManagedTransaction
}

func (r *managedTxRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return r.tx.Run(ctx, cypher, params)
}

// Store provides category graph operations. Request-path reads and
// writes go through the db circuit breaker when one is configured.
type Store struct {
	opener     SessionOpener
	breaker    *resilience.Breaker
	logger     *slog.Logger
	categories *repo.Neo4jRepo[Category, string]
}

// New creates a Store backed by a Neo4j driver.
func New(driver neo4j.DriverWithContext, breaker *resilience.Breaker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		opener:     &driverOpener{driver: driver},
		breaker:    breaker,
		logger:     logger,
		categories: newCategoryRepo(driver),
	}
}

// NewWithOpener creates a Store over a custom session opener. Category
// lookups skip the repository in this mode and run Cypher directly.
func NewWithOpener(opener SessionOpener, breaker *resilience.Breaker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{opener: opener, breaker: breaker, logger: logger}
}

// guard routes f through the circuit breaker when one is configured.
func (s *Store) guard(ctx context.Context, f func(context.Context) error) error {
	if s.breaker == nil {
		return f(ctx)
	}
	return s.breaker.Call(ctx, f)
}

// Related returns up to limit category names related to category,
// strongest edges first. Callers are expected to fall back to the
// static adjacency map on error.
func (s *Store) Related(ctx context.Context, category string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	var names []string
	err := s.guard(ctx, func(ctx context.Context) error {
		sess := s.opener.OpenSession(ctx)
		defer sess.Close(ctx)

		cypher := `MATCH (c:Category {name: $name})-[r:RELATED_TO]->(o:Category)
			RETURN o.name AS name
			ORDER BY r.weight DESC, name ASC
			LIMIT $limit`
		result, err := sess.Run(ctx, cypher, map[string]any{
			"name":  category,
			"limit": int64(limit),
		})
		if err != nil {
			return err
		}
		for result.Next(ctx) {
			if v, ok := result.Record().Get("name"); ok {
				if n, ok := v.(string); ok {
					names = append(names, n)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: related %q: %w", category, err)
	}
	return names, nil
}

// SaveRelation upserts a weighted edge between two categories, creating
// the category nodes as needed.
func (s *Store) SaveRelation(ctx context.Context, rel Relation) error {
	cypher := fmt.Sprintf(
		`MERGE (a:Category {name: $from})
		 MERGE (b:Category {name: $to})
		 MERGE (a)-[r:%s]->(b)
		 SET r.weight = $weight`,
		sanitizeRelType(rel.Type),
	)
	err := s.guard(ctx, func(ctx context.Context) error {
		sess := s.opener.OpenSession(ctx)
		defer sess.Close(ctx)

		_, err := sess.Run(ctx, cypher, map[string]any{
			"from":   rel.From,
			"to":     rel.To,
			"weight": rel.Weight,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("graph: save relation %s->%s: %w", rel.From, rel.To, err)
	}
	return nil
}

// Ping verifies graph connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	if _, err := sess.Run(ctx, "RETURN 1", nil); err != nil {
		return fmt.Errorf("graph: ping: %w", err)
	}
	return nil
}

// sanitizeRelType ensures the relationship type is a valid Cypher identifier.
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	for i := range safe {
		if safe[i] >= 'a' && safe[i] <= 'z' {
			safe[i] -= 32
		}
	}
	return string(safe)
}
