// Package config loads runtime configuration from environment variables
// through Load() and getEnv().
package config

import (
	"os"
	"strconv"

	"github.com/flowfile/dataflow-core/internal/domain"
)

// Config is the process-wide configuration for the core and its Worker
// client.
type Config struct {
	LogLevel string

	CacheRoot           string
	WorkerURL           string
	ExecutionModeDefault domain.ExecutionMode
	ArtifactFormat      string

	DatabaseDSN  string
	WorkerSignHex string

	WebSocketAddr string
}

// Load reads Config from the environment, defaulting every field that is
// not set.
func Load() *Config {
	mode := domain.ExecutionMode(getEnv("FLOWFILE_EXECUTION_MODE_DEFAULT", string(domain.ModePerformance)))
	if !mode.IsValid() {
		mode = domain.ModePerformance
	}
	return &Config{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CacheRoot:            getEnv("FLOWFILE_CACHE_ROOT", "./.flowfile-cache"),
		WorkerURL:            getEnv("FLOWFILE_WORKER_URL", "embedded"),
		ExecutionModeDefault: mode,
		ArtifactFormat:       getEnv("FLOWFILE_ARTIFACT_FORMAT", "ffa"),
		DatabaseDSN:          getEnv("DATABASE_DSN", ""),
		WorkerSignHex:        getEnv("FLOWFILE_WORKER_SIGNING_KEY", ""),
		WebSocketAddr:        getEnv("FLOWFILE_PROGRESS_ADDR", ":8090"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// IsEmbeddedWorker reports whether WorkerURL selects in-process
// materialization rather than a remote Worker endpoint.
func (c *Config) IsEmbeddedWorker() bool { return c.WorkerURL == "" || c.WorkerURL == "embedded" }

// CacheByteCap returns FLOWFILE_CACHE_BYTE_CAP parsed as bytes, 0 (unbounded)
// if unset or invalid.
func CacheByteCap() int64 {
	v, err := strconv.ParseInt(getEnv("FLOWFILE_CACHE_BYTE_CAP", "0"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
