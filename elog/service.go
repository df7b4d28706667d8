package elog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/psi-gfa/opsassist/rerank"
)

const (
	// ParallelReaders bounds the bulk-read worker pool.
	ParallelReaders = 10

	// maxBodyWords caps the cleaned body carried on a hit.
	maxBodyWords = 500

	defaultMaxResults = 10
	maxMaxResults     = 100
	fetchBudgetCap    = 200
)

// Ranker orders candidate documents for a query. Satisfied by
// rerank.Reranker.
type Ranker interface {
	Rank(ctx context.Context, query string, docs []rerank.Document, k int) []rerank.Ranked
}

// SearchRequest carries the search criteria. At least one of Query,
// Category, System, Domain or Since must be set.
type SearchRequest struct {
	Query      string
	Since      string
	Until      string
	Category   string
	System     string
	Domain     string
	MaxResults int
}

// Hit is one search result: the entry plus its cleaned body and score.
type Hit struct {
	Entry
	BodyClean        string
	Score            float64
	FormattedContext string
}

// SearchResult is the response of Service.Search. TotalFound counts the
// ids the server returned before reading and filtering.
type SearchResult struct {
	TotalFound int
	Hits       []Hit
	ByCategory map[string]int
	BySystem   map[string]int
	ByDomain   map[string]int
}

// Service implements retrieval over one logbook: filtered search,
// parallel bulk read, date post-filtering and reranking.
type Service struct {
	logbook *Logbook
	ranker  Ranker
}

func NewService(logbook *Logbook, ranker Ranker) *Service {
	return &Service{logbook: logbook, ranker: ranker}
}

// Search runs the full retrieval pipeline and returns the top
// MaxResults hits.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if req.MaxResults == 0 {
		req.MaxResults = defaultMaxResults
	}
	if err := validateRequest(req); err != nil {
		return SearchResult{}, err
	}

	filters := map[string]string{
		"Category": req.Category,
		"System":   req.System,
		"Domain":   req.Domain,
	}
	if req.Query != "" {
		// Regex detection is client-side; the server applies subtext
		// patterns as regular expressions either way.
		filters["subtext"] = req.Query
	}

	budget := fetchBudget(req.MaxResults)
	slog.Info("searching logbook",
		"query", req.Query,
		"regex", strings.Contains(req.Query, ".*"),
		"category", req.Category, "system", req.System, "domain", req.Domain,
		"budget", budget)

	ids, err := s.logbook.Search(ctx, filters, budget)
	if err != nil {
		return SearchResult{}, err
	}

	hits := s.bulkRead(ctx, ids)

	if req.Since != "" || req.Until != "" {
		hits, err = filterByDate(hits, req.Since, req.Until)
		if err != nil {
			return SearchResult{}, err
		}
	}

	result := SearchResult{
		TotalFound: len(ids),
		ByCategory: make(map[string]int),
		BySystem:   make(map[string]int),
		ByDomain:   make(map[string]int),
	}
	for _, hit := range hits {
		result.ByCategory[orUnknown(hit.Category)]++
		result.BySystem[orUnknown(hit.System)]++
		result.ByDomain[orUnknown(hit.Domain)]++
	}

	result.Hits = s.selectTop(ctx, req.Query, hits, req.MaxResults)
	for i := range result.Hits {
		result.Hits[i].FormattedContext = FormatEntry(result.Hits[i])
	}

	return result, nil
}

// bulkRead fans the reads out over a bounded pool. Failed reads are
// logged and dropped; they never abort the batch. Result order follows
// the id order.
func (s *Service) bulkRead(ctx context.Context, ids []int) []Hit {
	slots := make([]*Hit, len(ids))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ParallelReaders)
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			entry, err := s.logbook.Read(groupCtx, id)
			if err != nil {
				slog.Warn("failed to read entry", "id", id, "error", err)
				return nil
			}
			slots[i] = &Hit{
				Entry:     entry,
				BodyClean: truncateWords(StripHTML(entry.Body), maxBodyWords),
			}
			return nil
		})
	}
	group.Wait()

	hits := make([]Hit, 0, len(ids))
	for _, slot := range slots {
		if slot != nil {
			hits = append(hits, *slot)
		}
	}
	return hits
}

// selectTop reranks when a query is present, otherwise orders by
// timestamp descending.
func (s *Service) selectTop(ctx context.Context, query string, hits []Hit, k int) []Hit {
	if len(hits) == 0 {
		return nil
	}
	if k > len(hits) {
		k = len(hits)
	}

	if query == "" || s.ranker == nil {
		sorted := make([]Hit, len(hits))
		copy(sorted, hits)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		})
		return sorted[:k]
	}

	docs := make([]rerank.Document, len(hits))
	for i, hit := range hits {
		docs[i] = rerank.Document{
			Title:     hit.Subject,
			Body:      hit.BodyClean,
			Category:  hit.Category,
			Timestamp: hit.Timestamp,
		}
	}

	ranked := s.ranker.Rank(ctx, query, docs, k)
	top := make([]Hit, 0, len(ranked))
	for _, pick := range ranked {
		hit := hits[pick.Index]
		hit.Score = pick.Score
		top = append(top, hit)
	}
	return top
}

func validateRequest(req SearchRequest) error {
	if req.Category != "" && !ValidCategory(req.Category) {
		return fmt.Errorf("invalid category %q, must be one of: %s", req.Category, strings.Join(Categories, ", "))
	}
	if req.System != "" && !ValidSystem(req.System) {
		return fmt.Errorf("invalid system %q, must be one of: %s", req.System, strings.Join(Systems, ", "))
	}
	if req.Domain != "" && !ValidDomain(req.Domain) {
		return fmt.Errorf("invalid domain %q, must be one of: %s", req.Domain, strings.Join(Domains, ", "))
	}
	if req.MaxResults < 1 || req.MaxResults > maxMaxResults {
		return fmt.Errorf("max_results must be between 1 and %d, got %d", maxMaxResults, req.MaxResults)
	}
	if req.Query == "" && req.Category == "" && req.System == "" && req.Domain == "" && req.Since == "" {
		return fmt.Errorf("at least one of query, category, system, domain or since is required")
	}
	return nil
}

func fetchBudget(maxResults int) int {
	budget := 3 * maxResults
	if budget < 20 {
		budget = 20
	}
	if budget > fetchBudgetCap {
		budget = fetchBudgetCap
	}
	return budget
}

// filterByDate keeps hits inside the since/until window, comparing
// against the parsed entry timestamp. The server-side date filter is not
// reliable, so this client-side pass is authoritative. The survivors are
// ordered newest first.
func filterByDate(hits []Hit, since, until string) ([]Hit, error) {
	var sinceTS, untilTS time.Time
	var err error

	if since != "" {
		if sinceTS, err = ParseDateBound(since, false); err != nil {
			return nil, fmt.Errorf("invalid since: %w", err)
		}
	}
	if until != "" {
		if untilTS, err = ParseDateBound(until, true); err != nil {
			return nil, fmt.Errorf("invalid until: %w", err)
		}
	}

	filtered := make([]Hit, 0, len(hits))
	for _, hit := range hits {
		ts := hit.Timestamp
		if !sinceTS.IsZero() && ts.Before(sinceTS) {
			continue
		}
		if !untilTS.IsZero() && ts.After(untilTS) {
			continue
		}
		filtered = append(filtered, hit)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})
	return filtered, nil
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}
