// Package kgraph is the client for the accelerator knowledge-graph
// facade: semantic article search and relationship traversal.
package kgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/psi-gfa/opsassist/config"
	"github.com/psi-gfa/opsassist/internal/httpclient"
)

const (
	defaultLimit    = 5
	maxLimit        = 20
	defaultMaxDepth = 2
	// MaxDepth bounds relationship traversal.
	MaxDepth = 5
)

// Accelerators are the facilities the graph knows about.
var Accelerators = []string{"hipa", "proscan", "sls", "swissfel"}

// Retrievers are the canonical retrieval modes.
var Retrievers = []string{"dense", "sparse", "hybrid"}

// Figure is an inline image attached to a content chunk.
type Figure struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// Result is one search hit from the graph.
type Result struct {
	ArticleID    string   `json:"article_id"`
	Title        string   `json:"title"`
	SectionTitle string   `json:"section_title,omitempty"`
	Content      string   `json:"content"`
	URL          string   `json:"url"`
	Accelerator  string   `json:"accelerator,omitempty"`
	ContextPath  string   `json:"context_path,omitempty"`
	Score        float64  `json:"score"`
	Figures      []Figure `json:"figures,omitempty"`
}

// SearchResponse echoes the effective query parameters next to the hits.
type SearchResponse struct {
	Query       string   `json:"query"`
	Accelerator string   `json:"accelerator,omitempty"`
	Retriever   string   `json:"retriever"`
	Results     []Result `json:"results"`
}

// RelatedItem is one node reached by relationship traversal.
type RelatedItem struct {
	ArticleID    string  `json:"article_id"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Relationship string  `json:"relationship"`
	Depth        int     `json:"depth"`
	Score        float64 `json:"score,omitempty"`
}

// RelatedResponse is the traversal result for one article.
type RelatedResponse struct {
	ArticleID string        `json:"article_id"`
	MaxDepth  int           `json:"max_depth"`
	Related   []RelatedItem `json:"related"`
}

// Client talks to the graph facade over HTTP. Server-side 5xx responses
// are retried once.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
}

func NewClient(cfg config.GraphConfig) *Client {
	cfg.SetDefaults()
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
		),
	}
}

// NormalizeRetriever maps the two historic spellings onto the canonical
// set. "both" and the empty string mean hybrid.
func NormalizeRetriever(retriever string) (string, error) {
	switch retriever {
	case "", "both", "hybrid":
		return "hybrid", nil
	case "dense", "sparse":
		return retriever, nil
	default:
		return "", fmt.Errorf("invalid retriever %q, must be one of: %s", retriever, strings.Join(Retrievers, ", "))
	}
}

// NormalizeAccelerator maps the "no filter" spellings to the empty
// string and validates the rest.
func NormalizeAccelerator(accelerator string) (string, error) {
	switch accelerator {
	case "", "all", "null", "None":
		return "", nil
	}
	for _, known := range Accelerators {
		if accelerator == known {
			return accelerator, nil
		}
	}
	return "", fmt.Errorf("invalid accelerator %q, must be one of: %s, all", accelerator, strings.Join(Accelerators, ", "))
}

// Search runs a semantic query against the graph.
func (c *Client) Search(ctx context.Context, query, accelerator, retriever string, limit int) (SearchResponse, error) {
	if query == "" {
		return SearchResponse{}, fmt.Errorf("query is required")
	}

	accelerator, err := NormalizeAccelerator(accelerator)
	if err != nil {
		return SearchResponse{}, err
	}
	retriever, err = NormalizeRetriever(retriever)
	if err != nil {
		return SearchResponse{}, err
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > maxLimit {
		return SearchResponse{}, fmt.Errorf("limit must be between 1 and %d, got %d", maxLimit, limit)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("retriever", retriever)
	params.Set("limit", strconv.Itoa(limit))
	if accelerator != "" {
		params.Set("accelerator", accelerator)
	}

	var response SearchResponse
	if err := c.getJSON(ctx, c.baseURL+"/search?"+params.Encode(), &response); err != nil {
		return SearchResponse{}, fmt.Errorf("graph search failed: %w", err)
	}

	response.Query = query
	response.Accelerator = accelerator
	response.Retriever = retriever
	return response, nil
}

// Related traverses relationships out of one article.
func (c *Client) Related(ctx context.Context, articleID string, maxDepth int) (RelatedResponse, error) {
	if articleID == "" {
		return RelatedResponse{}, fmt.Errorf("article_id is required")
	}
	if maxDepth == 0 {
		maxDepth = defaultMaxDepth
	}
	if maxDepth < 1 || maxDepth > MaxDepth {
		return RelatedResponse{}, fmt.Errorf("max_depth must be between 1 and %d, got %d", MaxDepth, maxDepth)
	}

	params := url.Values{}
	params.Set("max_depth", strconv.Itoa(maxDepth))

	var response RelatedResponse
	endpoint := c.baseURL + "/related/" + url.PathEscape(articleID) + "?" + params.Encode()
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return RelatedResponse{}, fmt.Errorf("graph traversal failed: %w", err)
	}

	response.ArticleID = articleID
	response.MaxDepth = maxDepth
	return response, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
