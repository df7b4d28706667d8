package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/psi-gfa/opsassist/config"
)

type fakeScorer struct {
	scores []float64
	err    error
	calls  int
}

func (f *fakeScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

type failingProbeScorer struct {
	fake *fakeScorer
}

func (f failingProbeScorer) Probe(ctx context.Context) error {
	return fmt.Errorf("rerank url not configured")
}

func (f failingProbeScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	return f.fake.Score(ctx, query, texts)
}

func newTestReranker(scorer Scorer, now time.Time) *Reranker {
	r := New(config.RerankConfig{URL: "http://localhost:1", MaxPerCategory: 5, HalfLifeHours: 48})
	r.scorer = scorer
	r.now = func() time.Time { return now }
	return r
}

func TestRank_OrdersByBoostedScore(t *testing.T) {
	now := time.Date(2025, 9, 17, 12, 0, 0, 0, time.UTC)
	docs := []Document{
		{Title: "old but relevant", Category: "Problem", Timestamp: now.Add(-30 * 24 * time.Hour)},
		{Title: "fresh and relevant", Category: "Problem", Timestamp: now.Add(-1 * time.Hour)},
	}
	// Equal semantic scores; the fresh entry must win on recency boost.
	r := newTestReranker(&fakeScorer{scores: []float64{0.8, 0.8}}, now)

	ranked := r.Rank(context.Background(), "rf trip", docs, 2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if ranked[0].Index != 1 {
		t.Errorf("expected fresh entry first, got index %d", ranked[0].Index)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("boosted score %f should exceed %f", ranked[0].Score, ranked[1].Score)
	}
}

func TestRecencyBoost(t *testing.T) {
	now := time.Date(2025, 9, 17, 12, 0, 0, 0, time.UTC)
	r := newTestReranker(&fakeScorer{}, now)

	tests := []struct {
		name string
		ts   time.Time
		want float64
	}{
		{"now", now, 2.0},
		{"one half-life", now.Add(-48 * time.Hour), 1.3678},
		{"very old", now.Add(-10000 * time.Hour), 1.0},
		{"unparsable", time.Time{}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.recencyBoost(tt.ts)
			if diff := got - tt.want; diff > 0.001 || diff < -0.001 {
				t.Errorf("recencyBoost() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRank_DiversityCap(t *testing.T) {
	now := time.Now()
	var docs []Document
	var scores []float64
	// Seven strong "Problem" entries followed by one weak "Info" entry.
	for i := 0; i < 7; i++ {
		docs = append(docs, Document{Title: fmt.Sprintf("problem %d", i), Category: "Problem", Timestamp: now})
		scores = append(scores, 0.9-float64(i)*0.01)
	}
	docs = append(docs, Document{Title: "info", Category: "Info", Timestamp: now})
	scores = append(scores, 0.1)

	r := newTestReranker(&fakeScorer{scores: scores}, now)
	ranked := r.Rank(context.Background(), "q", docs, 6)

	if len(ranked) != 6 {
		t.Fatalf("expected 6 results, got %d", len(ranked))
	}
	perCategory := map[string]int{}
	for _, pick := range ranked {
		perCategory[docs[pick.Index].Category]++
	}
	if perCategory["Problem"] != 5 {
		t.Errorf("Problem picks = %d, want capped at 5", perCategory["Problem"])
	}
	if perCategory["Info"] != 1 {
		t.Errorf("Info picks = %d, want 1", perCategory["Info"])
	}
}

func TestRank_DiversityCapRelaxes(t *testing.T) {
	now := time.Now()
	var docs []Document
	var scores []float64
	// Only one category available; the cap must not starve the result set.
	for i := 0; i < 7; i++ {
		docs = append(docs, Document{Title: fmt.Sprintf("problem %d", i), Category: "Problem", Timestamp: now})
		scores = append(scores, 0.9-float64(i)*0.01)
	}

	r := newTestReranker(&fakeScorer{scores: scores}, now)
	ranked := r.Rank(context.Background(), "q", docs, 7)

	if len(ranked) != 7 {
		t.Errorf("expected cap to relax to 7 results, got %d", len(ranked))
	}
}

func TestRank_FallbackOnScoringFailure(t *testing.T) {
	now := time.Now()
	docs := []Document{
		{Title: "older", Timestamp: now.Add(-2 * time.Hour)},
		{Title: "newest", Timestamp: now},
		{Title: "oldest", Timestamp: now.Add(-4 * time.Hour)},
	}

	r := newTestReranker(&fakeScorer{err: fmt.Errorf("model not loaded")}, now)
	ranked := r.Rank(context.Background(), "q", docs, 2)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if ranked[0].Index != 1 || ranked[1].Index != 0 {
		t.Errorf("fallback order = %v, want timestamp descending", ranked)
	}
}

func TestRank_UnavailableEndpointSticks(t *testing.T) {
	now := time.Now()
	docs := []Document{{Title: "a", Timestamp: now}}

	scorer := &fakeScorer{scores: []float64{0.5}}
	r := New(config.RerankConfig{MaxPerCategory: 5, HalfLifeHours: 48})
	r.now = func() time.Time { return now }
	// The probe fails (no url configured); the scorer must never be hit.
	r.scorer = failingProbeScorer{fake: scorer}

	for i := 0; i < 3; i++ {
		if got := r.Rank(context.Background(), "q", docs, 1); len(got) != 1 {
			t.Fatalf("expected fallback result, got %v", got)
		}
	}
	if scorer.calls != 0 {
		t.Errorf("scorer called %d times after failed probe, want 0", scorer.calls)
	}
}

func TestRank_Deterministic(t *testing.T) {
	now := time.Now()
	docs := []Document{
		{Title: "a", Category: "Info", Timestamp: now},
		{Title: "b", Category: "Info", Timestamp: now},
		{Title: "c", Category: "Info", Timestamp: now},
	}
	scores := []float64{0.5, 0.5, 0.5}

	first := newTestReranker(&fakeScorer{scores: scores}, now).Rank(context.Background(), "q", docs, 3)
	second := newTestReranker(&fakeScorer{scores: scores}, now).Rank(context.Background(), "q", docs, 3)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("rankings differ between identical calls: %v vs %v", first, second)
		}
	}
	for i, pick := range first {
		if pick.Index != i {
			t.Errorf("tie at position %d broken to index %d, want input order", i, pick.Index)
		}
	}
}

func TestHTTPScorer_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("path = %q, want /rerank", r.URL.Path)
		}
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Texts) != 2 {
			t.Errorf("texts = %d, want 2", len(req.Texts))
		}
		// Out-of-order response items must land on the right documents.
		json.NewEncoder(w).Encode([]scoreItem{{Index: 1, Score: 0.9}, {Index: 0, Score: 0.2}})
	}))
	defer server.Close()

	scorer := newHTTPScorer(config.RerankConfig{URL: server.URL, Model: "BAAI/bge-reranker-v2-m3"})
	scores, err := scorer.Score(context.Background(), "q", []string{"one", "two"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[0] != 0.2 || scores[1] != 0.9 {
		t.Errorf("scores = %v, want [0.2 0.9]", scores)
	}
}

func TestHTTPScorer_Probe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	scorer := newHTTPScorer(config.RerankConfig{URL: server.URL})
	if err := scorer.Probe(context.Background()); err != nil {
		t.Errorf("Probe() error = %v", err)
	}

	if err := newHTTPScorer(config.RerankConfig{}).Probe(context.Background()); err == nil {
		t.Error("expected probe failure without a configured url")
	}
}
