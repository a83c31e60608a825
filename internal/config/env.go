// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	StateDir string

	// Network
	ListenAddress string
	Port          int

	// API
	APIMaxBodyBytes int
	AdminToken      string

	// Rule cache
	RuleCacheTTL time.Duration
	StoreTimeout time.Duration

	// Wildcard fallback
	WildcardTimeout time.Duration

	// Hit telemetry
	HitFlushInterval time.Duration

	// Error log writer
	ErrorLogQueueSize      int
	ErrorLogFlushBatchSize int
	ErrorLogFlushInterval  time.Duration
	ErrorLogRetentionDays  int
	RetentionSchedule      string

	// Suggestions
	SuggestSectionsFile string
	SuggestCacheSize    int

	// GeoIP enrichment (optional; empty disables)
	GeoIPDBPath string

	// Recovery responses
	RetryAfter   time.Duration
	LegalContact string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.StateDir = envStr("REROUTE_STATE_DIR", "/var/lib/reroute")
	cfg.ListenAddress = strings.TrimSpace(envStr("REROUTE_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("REROUTE_PORT", 2360, &errs)

	cfg.APIMaxBodyBytes = envInt("REROUTE_API_MAX_BODY_BYTES", 1<<20, &errs)
	cfg.AdminToken = envStr("REROUTE_ADMIN_TOKEN", "")

	cfg.RuleCacheTTL = envDuration("REROUTE_RULE_CACHE_TTL", 5*time.Minute, &errs)
	cfg.StoreTimeout = envDuration("REROUTE_STORE_TIMEOUT", 5*time.Second, &errs)
	cfg.WildcardTimeout = envDuration("REROUTE_WILDCARD_TIMEOUT", 2*time.Second, &errs)

	cfg.HitFlushInterval = envDuration("REROUTE_HIT_FLUSH_INTERVAL", 10*time.Second, &errs)

	cfg.ErrorLogQueueSize = envInt("REROUTE_ERROR_LOG_QUEUE_SIZE", 8192, &errs)
	cfg.ErrorLogFlushBatchSize = envInt("REROUTE_ERROR_LOG_FLUSH_BATCH_SIZE", 256, &errs)
	cfg.ErrorLogFlushInterval = envDuration("REROUTE_ERROR_LOG_FLUSH_INTERVAL", 5*time.Second, &errs)
	cfg.ErrorLogRetentionDays = envInt("REROUTE_ERROR_LOG_RETENTION_DAYS", 90, &errs)
	cfg.RetentionSchedule = envStr("REROUTE_RETENTION_SCHEDULE", "0 4 * * *")

	cfg.SuggestSectionsFile = envStr("REROUTE_SUGGEST_SECTIONS_FILE", "")
	cfg.SuggestCacheSize = envInt("REROUTE_SUGGEST_CACHE_SIZE", 4096, &errs)

	cfg.GeoIPDBPath = envStr("REROUTE_GEOIP_DB", "")

	cfg.RetryAfter = envDuration("REROUTE_RETRY_AFTER", 5*time.Second, &errs)
	cfg.LegalContact = envStr("REROUTE_LEGAL_CONTACT", "legal@example.com")

	if cfg.ListenAddress == "" {
		errs = append(errs, "REROUTE_LISTEN_ADDRESS must not be empty")
	}
	validatePort("REROUTE_PORT", cfg.Port, &errs)
	validatePositive("REROUTE_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	if cfg.RuleCacheTTL <= 0 {
		errs = append(errs, "REROUTE_RULE_CACHE_TTL must be positive")
	}
	if cfg.StoreTimeout <= 0 {
		errs = append(errs, "REROUTE_STORE_TIMEOUT must be positive")
	}
	if cfg.WildcardTimeout <= 0 {
		errs = append(errs, "REROUTE_WILDCARD_TIMEOUT must be positive")
	}
	if cfg.HitFlushInterval <= 0 {
		errs = append(errs, "REROUTE_HIT_FLUSH_INTERVAL must be positive")
	}
	validatePositive("REROUTE_ERROR_LOG_QUEUE_SIZE", cfg.ErrorLogQueueSize, &errs)
	validatePositive("REROUTE_ERROR_LOG_FLUSH_BATCH_SIZE", cfg.ErrorLogFlushBatchSize, &errs)
	if cfg.ErrorLogFlushInterval <= 0 {
		errs = append(errs, "REROUTE_ERROR_LOG_FLUSH_INTERVAL must be positive")
	}
	validatePositive("REROUTE_ERROR_LOG_RETENTION_DAYS", cfg.ErrorLogRetentionDays, &errs)
	if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("REROUTE_RETENTION_SCHEDULE: invalid cron expression %q: %v", cfg.RetentionSchedule, err))
	}
	validatePositive("REROUTE_SUGGEST_CACHE_SIZE", cfg.SuggestCacheSize, &errs)
	if cfg.RetryAfter <= 0 {
		errs = append(errs, "REROUTE_RETRY_AFTER must be positive")
	}

	// Queue size must be >= 2x batch size so a flush never starves the queue.
	if cfg.ErrorLogQueueSize < 2*cfg.ErrorLogFlushBatchSize {
		errs = append(errs, "REROUTE_ERROR_LOG_QUEUE_SIZE must be at least 2x REROUTE_ERROR_LOG_FLUSH_BATCH_SIZE")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
