package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "safecheck.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://www.ewg.org", cfg.EWG.BaseURL)
	assert.InDelta(t, 2.0, cfg.EWG.RatePerSec, 0.001)
	assert.Equal(t, 3, cfg.Search.PerSource)
	assert.Equal(t, 3, cfg.Search.BreakerThreshold)
	assert.Equal(t, "keyword", cfg.Classifier.Backend)
	assert.Equal(t, 30, cfg.Cache.RefreshDays)
	assert.Equal(t, 2, cfg.Pipeline.ItemDelaySecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/safecheck
log:
  level: debug
  format: console
server:
  port: 9090
classifier:
  backend: anthropic
  anthropic_models:
    - claude-haiku-4-5-20251001
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/safecheck", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.Classifier.Backend)
	assert.Equal(t, []string{"claude-haiku-4-5-20251001"}, cfg.Classifier.AnthropicModels)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Cache.RefreshDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SAFECHECK_STORE_DRIVER", "postgres")
	t.Setenv("SAFECHECK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SAFECHECK_SERVER_PORT", "3000")
	t.Setenv("SAFECHECK_CLASSIFIER_BACKEND", "groq")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "groq", cfg.Classifier.Backend)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", Path: "safecheck.db"},
		Classifier: ClassifierConfig{Backend: "keyword"},
	}
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_PostgresRequiresURL(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/safecheck"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidate_BackendKeys(t *testing.T) {
	for backend, field := range map[string]string{
		"anthropic": "classifier.anthropic_key",
		"openai":    "classifier.openai_key",
		"groq":      "classifier.groq_key",
	} {
		cfg := validConfig()
		cfg.Classifier.Backend = backend

		err := cfg.Validate()
		require.Error(t, err, backend)
		assert.Contains(t, err.Error(), field+" is required")
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Classifier.Backend = "bard"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.backend must be one of")
}

func TestValidate_SearchKeyWithoutEngineID(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Key = "google-api-key"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.engine_id is required")

	cfg.Search.EngineID = "cx-id"
	assert.NoError(t, cfg.Validate())
}
