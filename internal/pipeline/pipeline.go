// Package pipeline orchestrates ingredient vetting: cache check, safety-score
// lookup, citation search, classification, merge, persist.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/citations"
	"github.com/purelabel/safecheck/internal/classifier"
	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/internal/store"
	"github.com/purelabel/safecheck/pkg/ewg"
)

const (
	// DefaultRefreshWindow is how long a cached analysis stays fresh.
	DefaultRefreshWindow = 30 * 24 * time.Hour
	// DefaultItemDelay is the pause between ingredients in a batch, keeping
	// sequential processing under the classifier's rate limits.
	DefaultItemDelay = 2 * time.Second
)

// CitationSearcher finds supporting citations for an ingredient. Satisfied by
// *citations.Searcher.
type CitationSearcher interface {
	Search(ctx context.Context, name string) []model.ResearchSource
}

// Pipeline vets ingredient lists. Batches run strictly sequentially with an
// inter-item delay: parallelizing would multiply rate-limit failures at the
// classifier, a deliberate latency-for-reliability trade.
type Pipeline struct {
	store      store.Store
	lookup     ewg.Client
	citations  CitationSearcher
	classifier classifier.Classifier

	refreshWindow time.Duration
	itemDelay     time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRefreshWindow overrides the cache staleness window.
func WithRefreshWindow(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.refreshWindow = d
		}
	}
}

// WithItemDelay overrides the inter-ingredient delay. Zero disables it.
func WithItemDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		p.itemDelay = d
	}
}

// WithClock overrides time injection for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration)) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New creates a Pipeline. The citation searcher and classifier may be nil;
// each missing stage degrades per the merge rules instead of failing.
func New(st store.Store, lookup ewg.Client, cit CitationSearcher, cls classifier.Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:         st,
		lookup:        lookup,
		citations:     cit,
		classifier:    cls,
		refreshWindow: DefaultRefreshWindow,
		itemDelay:     DefaultItemDelay,
		now:           func() time.Time { return time.Now().UTC() },
		sleep: func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// VetBatch vets a list of ingredient names sequentially and aggregates the
// batch verdict by severity precedence. The result is always well-formed: no
// ingredient is ever missing, whatever failed along the way.
func (p *Pipeline) VetBatch(ctx context.Context, names []string) *model.BatchResult {
	log := zap.L().With(zap.Int("ingredients", len(names)))
	log.Info("pipeline: starting batch")
	start := time.Now()

	var (
		ingredients []model.Ingredient
		statuses    []model.Status
	)
	needDelay := false

	for _, name := range names {
		if needDelay && p.itemDelay > 0 {
			p.sleep(ctx, p.itemDelay)
		}

		analysis, fromCache := p.vetOne(ctx, name)
		// A pure cache hit makes no external calls, so it does not need the
		// rate-limit spacing before the next item.
		needDelay = !fromCache

		ingredients = append(ingredients, model.IngredientFromAnalysis(analysis))
		statuses = append(statuses, analysis.Status)
	}

	overall := model.OverallStatus(statuses)
	result := &model.BatchResult{
		OverallStatus: overall,
		Summary:       model.Summarize(overall, statuses),
		Ingredients:   ingredients,
	}

	log.Info("pipeline: batch complete",
		zap.String("overall_status", string(overall)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

// Vet runs the full decision sequence for one ingredient.
func (p *Pipeline) Vet(ctx context.Context, name string) *model.IngredientAnalysis {
	a, _ := p.vetOne(ctx, name)
	return a
}

// vetOne returns the analysis for one ingredient and whether it came straight
// from the cache.
func (p *Pipeline) vetOne(ctx context.Context, name string) (*model.IngredientAnalysis, bool) {
	log := zap.L().With(zap.String("ingredient", name))

	// 1. Cache.
	cached, err := p.store.GetAnalysis(ctx, name)
	if err != nil {
		log.Warn("pipeline: cache read failed, treating as miss", zap.Error(err))
	} else if cached != nil && !cached.IsStale(p.now(), p.refreshWindow) {
		log.Debug("pipeline: cache hit", zap.Int("version", cached.Version))
		return cached, true
	} else if cached != nil {
		log.Info("pipeline: cached analysis is stale, refreshing",
			zap.Time("last_analyzed_at", cached.LastAnalyzedAt),
		)
	}

	// 2. Safety-score lookup. Only context cancellation surfaces as an error;
	// everything else already degraded to a not-found result.
	lookup, err := p.lookup.Lookup(ctx, name)
	if err != nil {
		log.Warn("pipeline: score lookup aborted", zap.Error(err))
		lookup = &ewg.LookupResult{}
	}

	// 3. Citation gate: search only when the lookup produced no usable score.
	var sources []model.ResearchSource
	if !hasScore(lookup) && p.citations != nil {
		sources = p.citations.Search(ctx, name)
	}

	// 4. Classify. Failures mean "no opinion", never an aborted ingredient.
	var opinion *classifier.Opinion
	if p.classifier != nil {
		opinion, err = p.classifier.Analyze(ctx, name, lookup, sources)
		if err != nil {
			log.Warn("pipeline: classifier failed, continuing without opinion",
				zap.String("backend", p.classifier.Name()),
				zap.Error(err),
			)
			opinion = nil
		}
	}

	// 5. Merge.
	analysis := p.merge(name, lookup, sources, opinion)

	// 6. Persist. Failures are logged and swallowed; the user-facing result
	// must not depend on the cache being writable.
	if err := p.store.UpsertAnalysis(ctx, analysis); err != nil {
		log.Warn("pipeline: persist failed", zap.Error(err))
	}

	log.Info("pipeline: ingredient vetted",
		zap.String("status", string(analysis.Status)),
		zap.Float64("confidence", analysis.Confidence),
		zap.Bool("needs_review", analysis.NeedsReview),
	)
	return analysis, false
}

// merge combines lookup, citation, and classifier evidence into the final
// record. The score lookup is authoritative: its mapped status overrides the
// classifier's.
func (p *Pipeline) merge(name string, lookup *ewg.LookupResult, sources []model.ResearchSource, opinion *classifier.Opinion) *model.IngredientAnalysis {
	a := &model.IngredientAnalysis{
		Name:            name,
		Status:          model.StatusCaution,
		ResearchSources: sources,
		LastAnalyzedAt:  p.now(),
	}

	if opinion != nil {
		a.Status = opinion.Status
		a.Rationale = opinion.Rationale
		a.Description = opinion.Description
		a.EdgeCases = opinion.EdgeCases
		a.Confidence = opinion.Confidence
	}

	switch {
	case hasScore(lookup):
		score := *lookup.Score
		status, _ := model.StatusForScore(score)
		a.Status = status
		a.EWGScore = &score
		a.DataAvailability = lookup.DataAvailability
		a.SourceURL = lookup.URL
		a.Confidence = 0.9
		if a.Rationale == "" {
			a.Rationale = fmt.Sprintf("Hazard score %d/10 maps to %s.", score, status)
		}

	case opinion != nil:
		a.SourceURL = citations.BestURL(name, sources, citations.DefaultSources())

	case len(sources) > 0:
		// Citations exist but nobody interpreted them; keep caution with
		// mid-ladder confidence.
		a.Confidence = 0.5
		a.Rationale = "No authoritative score or classifier opinion; citations attached for manual reading."
		a.SourceURL = citations.BestURL(name, sources, citations.DefaultSources())

	default:
		// Total failure. Still a valid record, flagged for a human.
		a.Confidence = 0.0
		a.NeedsReview = true
		a.Rationale = "Analysis pipeline failed; requires manual review."
		a.SourceURL = citations.FallbackSearchURL(name)
	}

	if lookup != nil && !lookup.Found {
		a.SuggestedMatches = lookup.SuggestedMatches
	}
	return a
}

func hasScore(lookup *ewg.LookupResult) bool {
	return lookup != nil && lookup.Found && lookup.Score != nil
}
