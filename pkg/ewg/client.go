// Package ewg provides a client for the EWG Skin Deep ingredient safety
// database. Scores are scraped from public pages, so extraction is
// best-effort: every network or parse failure degrades to a not-found result
// rather than an error.
package ewg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://www.ewg.org"

// LookupResult holds the outcome of a safety-score lookup.
type LookupResult struct {
	// Score is the 1-10 hazard score, nil when no valid score was extracted.
	Score *int
	// DataAvailability is EWG's stated research depth (none/limited/fair/good/robust).
	DataAvailability string
	// URL is the page the score came from, empty when not found.
	URL string
	// Concerns lists the health concerns stated on the ingredient page.
	Concerns []string
	// Found reports whether an ingredient page was located at all.
	Found bool
	// SuggestedMatches holds near-name ingredient suggestions when the lookup
	// found nothing, for misspelling recovery. Best-effort, may be empty.
	SuggestedMatches []string
}

// Client performs ingredient safety-score lookups.
type Client interface {
	Lookup(ctx context.Context, name string) (*LookupResult, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default site base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate against the site.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an EWG Skin Deep client. The site has no API key; a
// conservative rate limiter keeps scraping polite.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(2, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var slugStripRe = regexp.MustCompile(`[^\w\s-]`)

// Slugify derives the deterministic ingredient page path segment from a name:
// lowercased, non-word characters stripped, whitespace to hyphens, hyphen
// runs collapsed and trimmed.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStripRe.ReplaceAllString(s, "")
	s = regexp.MustCompile(`[\s_]+`).ReplaceAllString(s, "-")
	s = regexp.MustCompile(`-{2,}`).ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Extraction patterns. The markup is third-party and shifts over time; all of
// these are best-effort and a miss degrades to score nil.
var (
	scoreRe = regexp.MustCompile(`(?i)(?:data-score|hazard[_-]score|score)[="':\s]{1,4}(10|[1-9])\b`)
	availRe = regexp.MustCompile(`(?i)data(?:\s+availability)?\s*[:=]\s*["']?(none|limited|fair|good|robust)`)
	// List entries under the concerns block, e.g. <li class="concern">Cancer</li>.
	concernRe = regexp.MustCompile(`(?i)<li[^>]*concern[^>]*>\s*([^<]+?)\s*</li>`)
	// Ingredient links on a search results page, used for suggestions.
	ingredientLinkRe = regexp.MustCompile(`/skindeep/ingredients/(?:\d+-)?([A-Za-z0-9_-]+)/?`)
)

func (c *httpClient) Lookup(ctx context.Context, name string) (*LookupResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return &LookupResult{Found: false}, nil
	}

	// 1. Direct page fetch at the deterministic slug URL.
	directURL := fmt.Sprintf("%s/skindeep/ingredients/%s/", c.baseURL, Slugify(name))
	if body, err := c.fetch(ctx, directURL); err == nil {
		if res, ok := parseIngredientPage(body, directURL); ok {
			return res, nil
		}
		zap.L().Debug("ewg: direct page had no parseable score", zap.String("ingredient", name))
	} else if ctx.Err() != nil {
		return nil, eris.Wrap(err, "ewg: lookup canceled")
	} else {
		zap.L().Debug("ewg: direct page unavailable", zap.String("ingredient", name), zap.Error(err))
	}

	// 2. Site-scoped search with the raw name.
	searchURL := fmt.Sprintf("%s/skindeep/search/?search=%s", c.baseURL, url.QueryEscape(name))
	body, err := c.fetch(ctx, searchURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "ewg: lookup canceled")
		}
		zap.L().Debug("ewg: search unavailable", zap.String("ingredient", name), zap.Error(err))
		return &LookupResult{Found: false}, nil
	}

	if res, ok := parseIngredientPage(body, searchURL); ok {
		return res, nil
	}

	// 3. Not found: best-effort similar-name suggestions from the result links.
	return &LookupResult{
		Found:            false,
		SuggestedMatches: suggestionsFromSearch(body, name),
	}, nil
}

// fetch GETs the URL and returns the body for any 2xx response.
func (c *httpClient) fetch(ctx context.Context, u string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "ewg: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", eris.Wrap(err, "ewg: create request")
	}
	req.Header.Set("User-Agent", "safecheck/1.0")
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ewg: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", eris.Wrap(err, "ewg: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", eris.Errorf("ewg: unexpected status %d from %s", resp.StatusCode, u)
	}
	return string(body), nil
}

// parseIngredientPage extracts a scored result from page HTML. ok is false
// when no valid 1-10 score is present.
func parseIngredientPage(body, pageURL string) (*LookupResult, bool) {
	m := scoreRe.FindStringSubmatch(body)
	if m == nil {
		return nil, false
	}
	score, err := strconv.Atoi(m[1])
	if err != nil || score < 1 || score > 10 {
		return nil, false
	}

	res := &LookupResult{
		Score: &score,
		URL:   pageURL,
		Found: true,
	}
	if am := availRe.FindStringSubmatch(body); am != nil {
		res.DataAvailability = strings.ToLower(am[1])
	}
	for _, cm := range concernRe.FindAllStringSubmatch(body, 10) {
		res.Concerns = append(res.Concerns, strings.TrimSpace(cm[1]))
	}
	return res, true
}

// suggestionsFromSearch pulls up to 5 distinct ingredient names from result
// page links, excluding the queried name itself.
func suggestionsFromSearch(body, name string) []string {
	queried := strings.ToLower(strings.TrimSpace(name))
	seen := make(map[string]bool)
	var out []string
	for _, m := range ingredientLinkRe.FindAllStringSubmatch(body, 25) {
		candidate := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(m[1]))
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || candidate == queried || seen[candidate] {
			continue
		}
		seen[candidate] = true
		out = append(out, candidate)
		if len(out) == 5 {
			break
		}
	}
	return out
}
