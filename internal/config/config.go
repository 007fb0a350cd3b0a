// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	EWG        EWGConfig        `yaml:"ewg" mapstructure:"ewg"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// EWGConfig configures the safety-score lookup client.
type EWGConfig struct {
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// SearchConfig configures the citation search (Google Custom Search).
type SearchConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	EngineID         string `yaml:"engine_id" mapstructure:"engine_id"`
	PerSource        int    `yaml:"per_source" mapstructure:"per_source"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// ClassifierConfig selects and configures the classifier backend.
type ClassifierConfig struct {
	// Backend is one of: anthropic, openai, groq, keyword.
	Backend string `yaml:"backend" mapstructure:"backend"`

	AnthropicKey    string   `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModels []string `yaml:"anthropic_models" mapstructure:"anthropic_models"`

	OpenAIKey    string   `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIModels []string `yaml:"openai_models" mapstructure:"openai_models"`

	GroqKey    string   `yaml:"groq_key" mapstructure:"groq_key"`
	GroqModels []string `yaml:"groq_models" mapstructure:"groq_models"`
}

// CacheConfig configures analysis cache staleness.
type CacheConfig struct {
	RefreshDays int `yaml:"refresh_days" mapstructure:"refresh_days"`
}

// PipelineConfig configures batch orchestration.
type PipelineConfig struct {
	ItemDelaySecs int `yaml:"item_delay_secs" mapstructure:"item_delay_secs"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SAFECHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "safecheck.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ewg.base_url", "https://www.ewg.org")
	v.SetDefault("ewg.rate_per_sec", 2.0)
	v.SetDefault("search.per_source", 3)
	v.SetDefault("search.breaker_threshold", 3)
	v.SetDefault("classifier.backend", "keyword")
	v.SetDefault("cache.refresh_days", 30)
	v.SetDefault("pipeline.item_delay_secs", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that every setting the configured backends need is present.
func (c *Config) Validate() error {
	var missing []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			missing = append(missing, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required for the postgres driver")
		}
	default:
		missing = append(missing, "store.driver must be sqlite or postgres")
	}

	switch c.Classifier.Backend {
	case "anthropic":
		if c.Classifier.AnthropicKey == "" {
			missing = append(missing, "classifier.anthropic_key is required for the anthropic backend")
		}
	case "openai":
		if c.Classifier.OpenAIKey == "" {
			missing = append(missing, "classifier.openai_key is required for the openai backend")
		}
	case "groq":
		if c.Classifier.GroqKey == "" {
			missing = append(missing, "classifier.groq_key is required for the groq backend")
		}
	case "keyword":
	default:
		missing = append(missing, "classifier.backend must be one of anthropic, openai, groq, keyword")
	}

	// Citation search is optional, but a key without an engine ID is a
	// misconfiguration rather than a disabled feature.
	if c.Search.Key != "" && c.Search.EngineID == "" {
		missing = append(missing, "search.engine_id is required when search.key is set")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
