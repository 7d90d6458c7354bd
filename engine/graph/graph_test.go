package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/pkg/repo"
	"github.com/partlinq/partsearch/pkg/resilience"
)

type mockResult struct {
	records []*neo4j.Record
	idx     int
}

func newMockResult(records ...*neo4j.Record) *mockResult {
	return &mockResult{records: records}
}

func (m *mockResult) Next(ctx context.Context) bool {
	if m.idx >= len(m.records) {
		return false
	}
	m.idx++
	return true
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }

type mockSession struct {
	cyphers   []string
	params    []map[string]any
	runResult *mockResult
	results   []*mockResult // per-call queue, takes precedence over runResult
	runErr    error
	writeErr  error
	closed    bool
}

func (s *mockSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.cyphers = append(s.cyphers, cypher)
	s.params = append(s.params, params)
	if s.runErr != nil {
		return nil, s.runErr
	}
	if len(s.results) > 0 {
		r := s.results[0]
		s.results = s.results[1:]
		return r, nil
	}
	if s.runResult != nil {
		return s.runResult, nil
	}
	return newMockResult(), nil
}

func (s *mockSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	return work(s)
}

func (s *mockSession) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

type mockOpener struct {
	session CypherSession
	opens   int
}

func (o *mockOpener) OpenSession(ctx context.Context) CypherSession {
	o.opens++
	return o.session
}

func nameRecord(name string) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"name"}, Values: []any{name}}
}

func categoryRecord(name string) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Props: map[string]any{"name": name}}},
	}
}

func typeCountRecord(typ string, n int64) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"type", "count"}, Values: []any{typ, n}}
}

func TestRelated(t *testing.T) {
	sess := &mockSession{runResult: newMockResult(
		nameRecord("air filter"),
		nameRecord("fuel filter"),
	)}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	got, err := store.Related(context.Background(), "oil filter", 2)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(got) != 2 || got[0] != "air filter" || got[1] != "fuel filter" {
		t.Errorf("got %v", got)
	}
	cypher := sess.cyphers[0]
	if !strings.Contains(cypher, "RELATED_TO") || !strings.Contains(cypher, "ORDER BY r.weight DESC") {
		t.Errorf("cypher = %q", cypher)
	}
	p := sess.params[0]
	if p["name"] != "oil filter" || p["limit"] != int64(2) {
		t.Errorf("params = %v", p)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestRelatedDefaultLimit(t *testing.T) {
	sess := &mockSession{}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	if _, err := store.Related(context.Background(), "oil filter", 0); err != nil {
		t.Fatalf("Related: %v", err)
	}
	if sess.params[0]["limit"] != int64(DefaultRelatedLimit) {
		t.Errorf("limit = %v, want %d", sess.params[0]["limit"], DefaultRelatedLimit)
	}
}

func TestRelatedRunError(t *testing.T) {
	sess := &mockSession{runErr: errors.New("routing table stale")}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	_, err := store.Related(context.Background(), "oil filter", 3)
	if err == nil || !strings.Contains(err.Error(), `related "oil filter"`) {
		t.Errorf("err = %v", err)
	}
}

func TestRelatedBreakerOpen(t *testing.T) {
	sess := &mockSession{runErr: errors.New("connection reset")}
	opener := &mockOpener{session: sess}
	br := resilience.NewBreaker(resilience.BreakerOpts{
		Name: "db", FailThreshold: 1, Timeout: time.Minute, SuccessThreshold: 1,
	})
	store := NewWithOpener(opener, br, nil)

	if _, err := store.Related(context.Background(), "oil filter", 3); err == nil {
		t.Fatal("expected error from failing session")
	}
	if opener.opens != 1 {
		t.Fatalf("opens = %d before open state", opener.opens)
	}

	_, err := store.Related(context.Background(), "oil filter", 3)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if opener.opens != 1 {
		t.Errorf("opens = %d, breaker should reject before opening a session", opener.opens)
	}
}

func TestSaveRelation(t *testing.T) {
	sess := &mockSession{}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	err := store.SaveRelation(context.Background(), Relation{
		From: "brake pad", To: "brake disc", Type: "", Weight: 0.9,
	})
	if err != nil {
		t.Fatalf("SaveRelation: %v", err)
	}
	cypher := sess.cyphers[0]
	if !strings.Contains(cypher, "MERGE (a)-[r:RELATED_TO]->(b)") {
		t.Errorf("cypher = %q", cypher)
	}
	p := sess.params[0]
	if p["from"] != "brake pad" || p["to"] != "brake disc" || p["weight"] != 0.9 {
		t.Errorf("params = %v", p)
	}
}

func TestSaveRelationError(t *testing.T) {
	sess := &mockSession{runErr: errors.New("leader switch")}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	err := store.SaveRelation(context.Background(), Relation{From: "a", To: "b", Type: "PURCHASED_WITH"})
	if err == nil || !strings.Contains(err.Error(), "save relation a->b") {
		t.Errorf("err = %v", err)
	}
}

func TestSeed(t *testing.T) {
	sess := &mockSession{}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	if err := store.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	wantEdges := 0
	for _, related := range domain.RelatedCategories {
		wantEdges += len(related)
	}
	wantStatements := len(domain.RelatedCategories) + wantEdges
	if len(sess.cyphers) != wantStatements {
		t.Errorf("statements = %d, want %d", len(sess.cyphers), wantStatements)
	}

	// First edge of a category carries full weight, later ones decay.
	found := false
	for _, p := range sess.params {
		if p["from"] == "oil filter" && p["to"] == "air filter" {
			found = true
			if p["weight"] != 1-float64(0)*0.1 {
				t.Errorf("first weight = %v", p["weight"])
			}
		}
		if p["from"] == "oil filter" && p["to"] == "fuel filter" {
			if p["weight"] != 1-float64(1)*0.1 {
				t.Errorf("second weight = %v", p["weight"])
			}
		}
	}
	if !found {
		t.Error("oil filter -> air filter edge not written")
	}
}

func TestSeedWriteError(t *testing.T) {
	sess := &mockSession{writeErr: errors.New("tx rollback")}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	err := store.Seed(context.Background())
	if err == nil || !strings.Contains(err.Error(), "graph: seed") {
		t.Errorf("err = %v", err)
	}
}

func TestCategoryFallback(t *testing.T) {
	sess := &mockSession{runResult: newMockResult(categoryRecord("oil filter"))}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	c, err := store.Category(context.Background(), "oil filter")
	if err != nil {
		t.Fatalf("Category: %v", err)
	}
	if c.Name != "oil filter" {
		t.Errorf("got %+v", c)
	}
	if !strings.Contains(sess.cyphers[0], "MATCH (n:Category {name: $name}) RETURN n") {
		t.Errorf("cypher = %q", sess.cyphers[0])
	}
}

func TestCategoryFallbackNotFound(t *testing.T) {
	sess := &mockSession{}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	_, err := store.Category(context.Background(), "ghost category")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCategoriesFallback(t *testing.T) {
	sess := &mockSession{runResult: newMockResult(
		categoryRecord("air filter"),
		categoryRecord("brake pad"),
	)}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	cats, err := store.Categories(context.Background(), 10)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 2 || cats[0].Name != "air filter" || cats[1].Name != "brake pad" {
		t.Errorf("got %+v", cats)
	}
	if !strings.Contains(sess.cyphers[0], "ORDER BY n.name") {
		t.Errorf("cypher = %q", sess.cyphers[0])
	}
}

func TestCategoryCountFallback(t *testing.T) {
	sess := &mockSession{runResult: newMockResult(
		&neo4j.Record{Keys: []string{"count"}, Values: []any{int64(12)}},
	)}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	n, err := store.CategoryCount(context.Background())
	if err != nil {
		t.Fatalf("CategoryCount: %v", err)
	}
	if n != 12 {
		t.Errorf("count = %d, want 12", n)
	}
}

func TestStats(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(typeCountRecord("Category", 24)),
		newMockResult(typeCountRecord("RELATED_TO", 57)),
	}}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Nodes["Category"] != 24 {
		t.Errorf("nodes = %v", stats.Nodes)
	}
	if stats.Relations["RELATED_TO"] != 57 {
		t.Errorf("relations = %v", stats.Relations)
	}
}

func TestPingError(t *testing.T) {
	sess := &mockSession{runErr: errors.New("refused")}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	if err := store.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}

func TestPing(t *testing.T) {
	sess := &mockSession{}
	store := NewWithOpener(&mockOpener{session: sess}, nil, nil)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if sess.cyphers[0] != "RETURN 1" {
		t.Errorf("cypher = %q", sess.cyphers[0])
	}
}

func TestNew(t *testing.T) {
	store := New(nil, nil, nil)
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	if store.categories == nil {
		t.Fatal("expected category repo")
	}
	if store.opener == nil {
		t.Fatal("expected opener")
	}
}

func TestSanitizeRelType(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"related_to", "RELATED_TO"},
		{"purchased_with", "PURCHASED_WITH"},
		{"PURCHASED_WITH", "PURCHASED_WITH"},
		{"cross-sell", "CROSSSELL"},
		{"", "RELATED_TO"},
		{"drop;table", "DROPTABLE"},
	}
	for _, tt := range tests {
		got := sanitizeRelType(tt.input)
		if got != tt.want {
			t.Errorf("sanitizeRelType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
