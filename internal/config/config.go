// Package config loads the orchestrator's environment-driven configuration,
// matching the teacher's envOr/DefaultConfig idiom.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"apex-sandbox/internal/logging"
)

// Config is the orchestrator's top-level configuration.
type Config struct {
	Environment      string // "development" or "production"; drives logging.Init
	DockerHost       string
	WorkspaceRoot    string
	PackageCacheRoot string

	PoolMaxSize     int
	PoolMinSize     int
	PoolIdleTimeout time.Duration

	DefaultMemoryBytes int64
	DefaultCPUCores    float64
	DefaultPidsLimit   int64

	EnableAuditLog bool
	EnableMetrics  bool
	MetricsAddr    string
}

// Load reads a .env file if present (missing is non-fatal, logged once at
// debug level) and then environment variables, producing a Config.
func Load() Config {
	dotenvErr := godotenv.Load()

	environment := envOr("ENVIRONMENT", "development")
	logging.Init(environment == "production")

	if dotenvErr != nil {
		logging.S().Debugw("no .env file loaded", "err", dotenvErr)
	}

	workspaceRoot := envOr("SANDBOX_WORKSPACE_ROOT", filepath.Join(os.TempDir(), "it-workspaces"))
	cacheRoot := envOr("SANDBOX_PACKAGE_CACHE_ROOT", filepath.Join(os.TempDir(), "it-pkg-cache"))

	return Config{
		Environment:      environment,
		DockerHost:       os.Getenv("DOCKER_HOST"),
		WorkspaceRoot:    workspaceRoot,
		PackageCacheRoot: cacheRoot,

		PoolMaxSize:     envInt("SANDBOX_POOL_MAX_SIZE", 5),
		PoolMinSize:     envInt("SANDBOX_POOL_MIN_SIZE", 2),
		PoolIdleTimeout: envDuration("SANDBOX_POOL_IDLE_TIMEOUT", 5*time.Minute),

		DefaultMemoryBytes: envInt64("SANDBOX_DEFAULT_MEMORY_BYTES", 512*1024*1024),
		DefaultCPUCores:    envFloat("SANDBOX_DEFAULT_CPU_CORES", 0.5),
		DefaultPidsLimit:   envInt64("SANDBOX_DEFAULT_PIDS_LIMIT", 256),

		EnableAuditLog: envBool("SANDBOX_ENABLE_AUDIT_LOG", false),
		EnableMetrics:  envBool("SANDBOX_ENABLE_METRICS", true),
		MetricsAddr:    envOr("SANDBOX_METRICS_ADDR", ":9090"),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
