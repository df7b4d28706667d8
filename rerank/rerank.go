// Package rerank orders retrieval candidates by cross-encoder relevance
// with a recency boost and a per-category diversity cap.
package rerank

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/psi-gfa/opsassist/config"
)

// maxDocChars bounds the text sent per candidate, roughly 512 tokens.
const maxDocChars = 2048

// Document is one rerank candidate.
type Document struct {
	Title     string
	Body      string
	Category  string
	Timestamp time.Time
}

// Ranked points back into the candidate slice with its final score.
type Ranked struct {
	Index int
	Score float64
}

// Scorer produces one relevance score per text for a query.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker scores candidates through a cross-encoder endpoint. The endpoint
// is probed once on first use; if the probe or a scoring call fails the
// reranker degrades to timestamp ordering.
type Reranker struct {
	config config.RerankConfig
	scorer Scorer
	now    func() time.Time

	initOnce sync.Once
	initErr  error
}

func New(cfg config.RerankConfig) *Reranker {
	cfg.SetDefaults()
	return &Reranker{
		config: cfg,
		scorer: newHTTPScorer(cfg),
		now:    time.Now,
	}
}

// Rank returns up to k candidates in final-score order. It never fails:
// when the scoring backend is unavailable the candidates are ordered by
// timestamp descending instead.
func (r *Reranker) Rank(ctx context.Context, query string, docs []Document, k int) []Ranked {
	if len(docs) == 0 || k <= 0 {
		return nil
	}
	if k > len(docs) {
		k = len(docs)
	}

	if err := r.ensureReady(ctx); err != nil {
		return r.fallback(docs, k)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = truncate(doc.Title+" "+doc.Body, maxDocChars)
	}

	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil || len(scores) != len(docs) {
		slog.Warn("rerank scoring failed, falling back to timestamp order", "error", err)
		return r.fallback(docs, k)
	}

	ranked := make([]Ranked, len(docs))
	for i := range docs {
		ranked[i] = Ranked{Index: i, Score: scores[i] * r.recencyBoost(docs[i].Timestamp)}
	}
	sortRanked(ranked)

	return r.pickDiverse(ranked, docs, k)
}

// ensureReady probes the scoring endpoint once. A failed probe sticks until
// process restart.
func (r *Reranker) ensureReady(ctx context.Context) error {
	r.initOnce.Do(func() {
		probe, ok := r.scorer.(interface {
			Probe(ctx context.Context) error
		})
		if !ok {
			return
		}
		if err := probe.Probe(ctx); err != nil {
			r.initErr = err
			slog.Warn("reranker unavailable, degrading to timestamp order", "url", r.config.URL, "error", err)
		}
	})
	return r.initErr
}

// recencyBoost decays from 2 toward 1 with entry age. Unparsable timestamps
// get no boost.
func (r *Reranker) recencyBoost(ts time.Time) float64 {
	if ts.IsZero() {
		return 1
	}
	ageHours := r.now().Sub(ts).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return 1 + math.Exp(-ageHours/r.config.HalfLifeHours)
}

// pickDiverse selects greedily by score, skipping candidates whose category
// already holds MaxPerCategory picks. The cap relaxes when honoring it
// would leave fewer than k results.
func (r *Reranker) pickDiverse(ranked []Ranked, docs []Document, k int) []Ranked {
	picked := make([]Ranked, 0, k)
	skipped := make([]Ranked, 0)
	perCategory := make(map[string]int)

	for _, candidate := range ranked {
		if len(picked) == k {
			break
		}
		category := docs[candidate.Index].Category
		if perCategory[category] >= r.config.MaxPerCategory {
			skipped = append(skipped, candidate)
			continue
		}
		perCategory[category]++
		picked = append(picked, candidate)
	}

	for _, candidate := range skipped {
		if len(picked) == k {
			break
		}
		picked = append(picked, candidate)
	}
	sortRanked(picked)

	return picked
}

func (r *Reranker) fallback(docs []Document, k int) []Ranked {
	ranked := make([]Ranked, len(docs))
	for i := range docs {
		ranked[i] = Ranked{Index: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return docs[ranked[i].Index].Timestamp.After(docs[ranked[j].Index].Timestamp)
	})
	return ranked[:k]
}

// sortRanked orders by score descending with the original index as
// tiebreak, so identical inputs always produce identical output.
func sortRanked(ranked []Ranked) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
