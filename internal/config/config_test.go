package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, int64(1000*1024*1024), cfg.CacheBudgetBytes())
	assert.Equal(t, runtime.NumCPU(), cfg.Workers())
	assert.False(t, cfg.AzureConfigured())
	assert.True(t, cfg.EmbeddingEnabled)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FETCH_TIMEOUT", "2s")
	t.Setenv("LOAD_WORKERS", "3")
	t.Setenv("CACHE_SIZE_MB", "5")
	t.Setenv("CACHE_DIR", "/tmp/roi-cache")
	t.Setenv("EMBEDDING_ENABLED", "false")
	t.Setenv("AZURE_STORAGE_ACCOUNT", "acct")
	t.Setenv("AZURE_STORAGE_KEY", "a2V5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 3, cfg.Workers())
	assert.Equal(t, int64(5*1024*1024), cfg.CacheBudgetBytes())
	assert.Equal(t, "/tmp/roi-cache", cfg.CacheDir)
	assert.False(t, cfg.EmbeddingEnabled)
	assert.True(t, cfg.AzureConfigured())
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PORT", "70000"},
		{"port not numeric", "PORT", "http"},
		{"crop service without host", "CROP_SERVICE_URL", "not a url"},
		{"crop service bad scheme", "CROP_SERVICE_URL", "ftp://skimmer"},
		{"negative cache size", "CACHE_SIZE_MB", "-1"},
		{"negative workers", "LOAD_WORKERS", "-2"},
		{"zero burst", "CROP_BURST", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestParseDurationOrDefault_IgnoresNonPositive(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "-5s")
	assert.Equal(t, time.Second, parseDurationOrDefault("FETCH_TIMEOUT", time.Second))
}
