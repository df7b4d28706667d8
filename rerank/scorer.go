package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/psi-gfa/opsassist/config"
	"github.com/psi-gfa/opsassist/internal/httpclient"
)

// httpScorer calls a text-embeddings-inference style /rerank endpoint.
type httpScorer struct {
	baseURL    string
	model      string
	httpClient *httpclient.Client
}

type scoreRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type scoreItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func newHTTPScorer(cfg config.RerankConfig) *httpScorer {
	return &httpScorer{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		model:   cfg.Model,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithRetryStrategy(httpclient.NoRetryStrategy),
		),
	}
}

// Probe checks the endpoint health before first use.
func (s *httpScorer) Probe(ctx context.Context) error {
	if s.baseURL == "" {
		return fmt.Errorf("rerank url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank endpoint unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (s *httpScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	payload, err := json.Marshal(scoreRequest{Model: s.model, Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rerank response: %w", err)
	}

	var items []scoreItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	scores := make([]float64, len(texts))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(scores) {
			return nil, fmt.Errorf("rerank response index %d out of range", item.Index)
		}
		scores[item.Index] = item.Score
	}
	return scores, nil
}
