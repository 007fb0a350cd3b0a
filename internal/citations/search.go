// Package citations discovers supporting safety citations from an allow-list
// of sources, used only when the primary score lookup comes up empty.
package citations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/internal/resilience"
	"github.com/purelabel/safecheck/pkg/websearch"
)

// Source is an allow-listed citation domain. Priority follows slice order:
// safety database first, then regulator, then literature index.
type Source struct {
	Name   string
	Domain string
}

// DefaultSources is the production allow-list in priority order.
func DefaultSources() []Source {
	return []Source{
		{Name: "ewg", Domain: "ewg.org"},
		{Name: "fda", Domain: "fda.gov"},
		{Name: "pubmed", Domain: "pubmed.ncbi.nlm.nih.gov"},
	}
}

// Searcher runs allow-listed citation searches behind a quota circuit
// breaker. The breaker is owned here and persists across requests for the
// process lifetime; a single successful call resets it.
type Searcher struct {
	client    websearch.Client
	sources   []Source
	perSource int
	breaker   *resilience.Breaker

	mu              sync.Mutex
	serverErrLogged bool
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithSources overrides the default source allow-list.
func WithSources(sources []Source) SearcherOption {
	return func(s *Searcher) {
		s.sources = sources
	}
}

// WithPerSourceResults caps results requested from each source.
func WithPerSourceResults(n int) SearcherOption {
	return func(s *Searcher) {
		s.perSource = n
	}
}

// WithBreaker overrides the default quota breaker (3 consecutive errors).
func WithBreaker(b *resilience.Breaker) SearcherOption {
	return func(s *Searcher) {
		s.breaker = b
	}
}

// NewSearcher creates a citation searcher over the given search client.
func NewSearcher(client websearch.Client, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		client:    client,
		sources:   DefaultSources(),
		perSource: 3,
		breaker:   resilience.NewBreaker(3, 5*time.Minute),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search finds citations for an ingredient across all allow-listed sources.
// It never returns an error: quota exhaustion, per-call 4xx, and server
// errors all degrade to fewer (or zero) results.
func (s *Searcher) Search(ctx context.Context, name string) []model.ResearchSource {
	if !s.breaker.Allow() {
		zap.L().Debug("citations: breaker open, skipping search",
			zap.String("ingredient", name),
		)
		return nil
	}

	query := fmt.Sprintf("%s ingredient safety", strings.TrimSpace(name))
	var results []model.ResearchSource

	for _, src := range s.sources {
		resp, err := s.client.Search(ctx, query,
			websearch.WithSite(src.Domain),
			websearch.WithNum(s.perSource),
		)
		if err != nil {
			if s.recordFailure(name, src, err) {
				// Breaker tripped mid-batch; stop burning quota.
				break
			}
			continue
		}

		s.breaker.RecordSuccess()
		s.mu.Lock()
		s.serverErrLogged = false
		s.mu.Unlock()

		for _, item := range resp.Items {
			results = append(results, model.ResearchSource{
				Source:    src.Name,
				URL:       item.Link,
				Title:     item.Title,
				Snippet:   item.Snippet,
				Relevance: Relevance(name, item.Title, item.Snippet),
			})
		}
	}

	// Relevance ranks but never filters; the stable sort preserves source
	// priority among equally relevant results.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	return results
}

// recordFailure classifies a search error against the breaker and reports
// whether the breaker is now open. Quota errors (429) always count. Other
// 4xx are swallowed per-call without counting. Server-side errors count but
// log only once until the next success.
func (s *Searcher) recordFailure(name string, src Source, err error) bool {
	var apiErr *websearch.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			s.breaker.RecordFailure()
			zap.L().Warn("citations: quota error",
				zap.String("ingredient", name),
				zap.String("source", src.Name),
				zap.Int("consecutive", s.breaker.ConsecutiveFailures()),
			)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			zap.L().Debug("citations: client error, skipping source",
				zap.String("source", src.Name),
				zap.Int("status", apiErr.StatusCode),
			)
		default:
			s.breaker.RecordFailure()
			s.logServerErrOnce(src, err)
		}
		return s.breaker.Open()
	}

	// Network-level failure: treat as server-side.
	s.breaker.RecordFailure()
	s.logServerErrOnce(src, err)
	return s.breaker.Open()
}

func (s *Searcher) logServerErrOnce(src Source, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serverErrLogged {
		return
	}
	s.serverErrLogged = true
	zap.L().Warn("citations: search backend failing",
		zap.String("source", src.Name),
		zap.Error(err),
	)
}

// FindBestCitation resolves the single best supporting link for an
// ingredient by source priority, falling back to a generic search URL when
// nothing was found.
func (s *Searcher) FindBestCitation(ctx context.Context, name string) string {
	return BestURL(name, s.Search(ctx, name), s.sources)
}

// BestURL picks the best citation from already-fetched results: first result
// from the highest-priority source, then any result, then the generic
// fallback search URL.
func BestURL(name string, results []model.ResearchSource, sources []Source) string {
	for _, src := range sources {
		for _, r := range results {
			if r.Source == src.Name && r.URL != "" {
				return r.URL
			}
		}
	}
	for _, r := range results {
		if r.URL != "" {
			return r.URL
		}
	}
	return FallbackSearchURL(name)
}

// FallbackSearchURL is the generic last-resort citation link.
func FallbackSearchURL(name string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(strings.TrimSpace(name)+" ingredient safety")
}

// Relevance scores how well a result matches the ingredient name: a literal
// substring match of the full name scores 1.0; otherwise the score is
// proportional to word overlap. Used only to rank, never to filter.
func Relevance(name, title, snippet string) float64 {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return 0.1
	}
	hay := strings.ToLower(title + " " + snippet)

	if strings.Contains(hay, needle) {
		return 1.0
	}

	words := strings.Fields(needle)
	var matched int
	for _, w := range words {
		if strings.Contains(hay, w) {
			matched++
		}
	}
	if matched == 0 {
		return 0.1
	}
	return 0.7 * float64(matched) / float64(len(words))
}
