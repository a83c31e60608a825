package httpapi

import (
	"net/http"

	"github.com/rerouteio/reroute/internal/buildinfo"
	"github.com/rerouteio/reroute/internal/config"
)

// envConfigView is the loggable form of the effective environment config.
// Durations render as Go duration strings; the admin token is never exposed.
type envConfigView struct {
	StateDir      string `json:"state_dir"`
	ListenAddress string `json:"listen_address"`
	Port          int    `json:"port"`

	APIMaxBodyBytes int  `json:"api_max_body_bytes"`
	AdminTokenSet   bool `json:"admin_token_set"`

	RuleCacheTTL    config.Duration `json:"rule_cache_ttl"`
	StoreTimeout    config.Duration `json:"store_timeout"`
	WildcardTimeout config.Duration `json:"wildcard_timeout"`

	HitFlushInterval config.Duration `json:"hit_flush_interval"`

	ErrorLogQueueSize      int             `json:"error_log_queue_size"`
	ErrorLogFlushBatchSize int             `json:"error_log_flush_batch_size"`
	ErrorLogFlushInterval  config.Duration `json:"error_log_flush_interval"`
	ErrorLogRetentionDays  int             `json:"error_log_retention_days"`
	RetentionSchedule      string          `json:"retention_schedule"`

	SuggestSectionsFile string `json:"suggest_sections_file,omitempty"`
	SuggestCacheSize    int    `json:"suggest_cache_size"`

	GeoIPDBPath string `json:"geoip_db_path,omitempty"`

	RetryAfter   config.Duration `json:"retry_after"`
	LegalContact string          `json:"legal_contact"`

	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// HandleEnvConfig returns a handler for GET /api/v1/config.
func HandleEnvConfig(cfg *config.EnvConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, envConfigView{
			StateDir:      cfg.StateDir,
			ListenAddress: cfg.ListenAddress,
			Port:          cfg.Port,

			APIMaxBodyBytes: cfg.APIMaxBodyBytes,
			AdminTokenSet:   cfg.AdminToken != "",

			RuleCacheTTL:    config.Duration(cfg.RuleCacheTTL),
			StoreTimeout:    config.Duration(cfg.StoreTimeout),
			WildcardTimeout: config.Duration(cfg.WildcardTimeout),

			HitFlushInterval: config.Duration(cfg.HitFlushInterval),

			ErrorLogQueueSize:      cfg.ErrorLogQueueSize,
			ErrorLogFlushBatchSize: cfg.ErrorLogFlushBatchSize,
			ErrorLogFlushInterval:  config.Duration(cfg.ErrorLogFlushInterval),
			ErrorLogRetentionDays:  cfg.ErrorLogRetentionDays,
			RetentionSchedule:      cfg.RetentionSchedule,

			SuggestSectionsFile: cfg.SuggestSectionsFile,
			SuggestCacheSize:    cfg.SuggestCacheSize,

			GeoIPDBPath: cfg.GeoIPDBPath,

			RetryAfter:   config.Duration(cfg.RetryAfter),
			LegalContact: cfg.LegalContact,

			Version:   buildinfo.Version,
			GitCommit: buildinfo.GitCommit,
			BuildTime: buildinfo.BuildTime,
		})
	}
}
