package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/citations"
	"github.com/purelabel/safecheck/internal/classifier"
	"github.com/purelabel/safecheck/internal/pipeline"
	"github.com/purelabel/safecheck/internal/resilience"
	"github.com/purelabel/safecheck/internal/store"
	anthropicpkg "github.com/purelabel/safecheck/pkg/anthropic"
	"github.com/purelabel/safecheck/pkg/ewg"
	"github.com/purelabel/safecheck/pkg/websearch"
)

// pipelineEnv holds the initialized store and pipeline needed by the
// vet/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, the lookup/search/classifier clients, and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	lookup := ewg.NewClient(
		ewg.WithBaseURL(cfg.EWG.BaseURL),
		ewg.WithRateLimit(cfg.EWG.RatePerSec),
	)

	// Citation search is optional: without an API key the pipeline simply
	// never attaches citations.
	var cit pipeline.CitationSearcher
	if cfg.Search.Key != "" {
		searchClient := websearch.NewClient(cfg.Search.Key, cfg.Search.EngineID)
		cit = citations.NewSearcher(searchClient,
			citations.WithPerSourceResults(cfg.Search.PerSource),
			citations.WithBreaker(resilience.NewBreaker(cfg.Search.BreakerThreshold, 5*time.Minute)),
		)
	} else {
		zap.L().Info("no search key configured, citation search disabled")
	}

	cls := initClassifier()

	p := pipeline.New(st, lookup, cit, cls,
		pipeline.WithRefreshWindow(time.Duration(cfg.Cache.RefreshDays)*24*time.Hour),
		pipeline.WithItemDelay(time.Duration(cfg.Pipeline.ItemDelaySecs)*time.Second),
	)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// initClassifier builds the configured classifier backend. Validate has
// already checked the backend name and its API key.
func initClassifier() classifier.Classifier {
	switch cfg.Classifier.Backend {
	case "anthropic":
		var opts []classifier.AnthropicOption
		if len(cfg.Classifier.AnthropicModels) > 0 {
			opts = append(opts, classifier.WithAnthropicModels(cfg.Classifier.AnthropicModels))
		}
		return classifier.NewAnthropic(anthropicpkg.NewClient(cfg.Classifier.AnthropicKey), opts...)

	case "openai":
		var opts []classifier.ChatOption
		if len(cfg.Classifier.OpenAIModels) > 0 {
			opts = append(opts, classifier.WithChatModels(cfg.Classifier.OpenAIModels))
		}
		return classifier.NewOpenAI(cfg.Classifier.OpenAIKey, opts...)

	case "groq":
		var opts []classifier.ChatOption
		if len(cfg.Classifier.GroqModels) > 0 {
			opts = append(opts, classifier.WithChatModels(cfg.Classifier.GroqModels))
		}
		return classifier.NewGroq(cfg.Classifier.GroqKey, opts...)

	default:
		return classifier.NewKeyword()
	}
}
