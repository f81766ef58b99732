package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Crop service
	CropServiceURL string
	FetchTimeout   time.Duration
	CropRPS        float64
	CropBurst      int

	// Cache store; an empty CacheDir keeps the cache in memory
	CacheDir    string
	CacheSizeMB int64

	// Load scheduler
	LoadWorkers int

	// Source images for the local crop fallback
	AzureStorageAccount string
	AzureStorageKey     string
	LocalCropFallback   bool

	// Embedding sort strategy
	EmbeddingEnabled bool
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// CacheBudgetBytes returns the configured cache budget in bytes
func (c *Config) CacheBudgetBytes() int64 {
	return c.CacheSizeMB * 1024 * 1024
}

// Workers returns the load concurrency, defaulting to the number of CPUs
func (c *Config) Workers() int {
	if c.LoadWorkers <= 0 {
		return runtime.NumCPU()
	}
	return c.LoadWorkers
}

// AzureConfigured reports whether blob credentials were provided
func (c *Config) AzureConfigured() bool {
	return c.AzureStorageAccount != "" && c.AzureStorageKey != ""
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:                getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                getEnvOrDefault("PORT", "8080"),
		RequestTimeout:      parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBodySize:  parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		CropServiceURL:      getEnvOrDefault("CROP_SERVICE_URL", "http://localhost:8082"),
		FetchTimeout:        parseDurationOrDefault("FETCH_TIMEOUT", 15*time.Second),
		CropRPS:             parseFloatOrDefault("CROP_RPS", 50),
		CropBurst:           int(parseIntOrDefault("CROP_BURST", 10)),
		CacheDir:            getEnvOrDefault("CACHE_DIR", ""),
		CacheSizeMB:         parseIntOrDefault("CACHE_SIZE_MB", 1000),
		LoadWorkers:         int(parseIntOrDefault("LOAD_WORKERS", 0)),
		AzureStorageAccount: getEnvOrDefault("AZURE_STORAGE_ACCOUNT", ""),
		AzureStorageKey:     getEnvOrDefault("AZURE_STORAGE_KEY", ""),
		LocalCropFallback:   parseBoolOrDefault("LOCAL_CROP_FALLBACK", true),
		EmbeddingEnabled:    parseBoolOrDefault("EMBEDDING_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges after loading
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.FetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)",
			c.RequestTimeout, c.FetchTimeout)
	}
	u, err := url.Parse(strings.TrimSpace(c.CropServiceURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid CROP_SERVICE_URL: %q", c.CropServiceURL)
	}
	if c.CropRPS <= 0 || c.CropBurst <= 0 {
		return fmt.Errorf("CROP_RPS and CROP_BURST must be > 0 (got rps=%v, burst=%d)", c.CropRPS, c.CropBurst)
	}
	if c.CacheSizeMB <= 0 {
		return fmt.Errorf("CACHE_SIZE_MB must be > 0 (got %d)", c.CacheSizeMB)
	}
	if c.LoadWorkers < 0 {
		return fmt.Errorf("LOAD_WORKERS must be >= 0 (got %d)", c.LoadWorkers)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
