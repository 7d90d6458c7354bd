package esindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Searcher is the retrieval-facing surface of the index. The HTTP client
// implements it; tests substitute canned fixtures.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	Ping(ctx context.Context) error
}

// SearchRequest describes one _search call.
type SearchRequest struct {
	Index    string
	Query    Query
	Size     int
	MinScore float64
	Source   []string
	Timeout  time.Duration
}

// Hit is one matched document with its index-assigned relevance score.
type Hit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// SearchResult is the decoded hit list.
type SearchResult struct {
	Hits     []Hit
	Total    int64
	MaxScore float64
	Took     time.Duration
}

// Client talks to an Elasticsearch-compatible HTTP endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a Client for the given base URL. The HTTP timeout is an
// outer bound; callers shorten individual searches through the context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type searchBody struct {
	Query    Query    `json:"query"`
	Size     int      `json:"size,omitempty"`
	MinScore float64  `json:"min_score,omitempty"`
	Source   []string `json:"_source,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
}

// totalHits decodes both the bare-integer and the {"value": n} wire forms.
type totalHits struct {
	Value int64 `json:"value"`
}

func (t *totalHits) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '{' {
		type alias totalHits
		var a alias
		if err := json.Unmarshal(b, &a); err != nil {
			return err
		}
		t.Value = a.Value
		return nil
	}
	return json.Unmarshal(b, &t.Value)
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total    totalHits `json:"total"`
		MaxScore *float64  `json:"max_score"`
		Hits     []Hit     `json:"hits"`
	} `json:"hits"`
}

// Search runs one query against an index and returns the decoded hits.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Index == "" {
		return nil, fmt.Errorf("esindex: search: empty index")
	}
	if req.Query == nil {
		return nil, fmt.Errorf("esindex: search: empty query")
	}
	body := searchBody{
		Query:    req.Query,
		Size:     req.Size,
		MinScore: req.MinScore,
		Source:   req.Source,
	}
	if req.Timeout > 0 {
		body.Timeout = fmt.Sprintf("%dms", req.Timeout.Milliseconds())
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("esindex: search: encode: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search", c.baseURL, req.Index)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("esindex: search: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("esindex: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("esindex: search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("esindex: search: decode: %w", err)
	}

	out := &SearchResult{
		Hits:  decoded.Hits.Hits,
		Total: decoded.Hits.Total.Value,
		Took:  time.Duration(decoded.Took) * time.Millisecond,
	}
	if decoded.Hits.MaxScore != nil {
		out.MaxScore = *decoded.Hits.MaxScore
	}
	return out, nil
}

// Ping checks that the index endpoint answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("esindex: ping: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("esindex: ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("esindex: ping: status %d", resp.StatusCode)
	}
	return nil
}
