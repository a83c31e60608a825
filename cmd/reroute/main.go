package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rerouteio/reroute/internal/buildinfo"
	"github.com/rerouteio/reroute/internal/config"
	"github.com/rerouteio/reroute/internal/errorlog"
	"github.com/rerouteio/reroute/internal/geoip"
	"github.com/rerouteio/reroute/internal/httpapi"
	"github.com/rerouteio/reroute/internal/recovery"
	"github.com/rerouteio/reroute/internal/resolve"
	"github.com/rerouteio/reroute/internal/rulecache"
	"github.com/rerouteio/reroute/internal/store"
	"github.com/rerouteio/reroute/internal/suggest"
)

func main() {
	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if envCfg.AdminToken == "" {
		log.Printf("[main] warning: REROUTE_ADMIN_TOKEN is empty, admin API is unprotected")
	} else if config.IsWeakToken(envCfg.AdminToken) {
		log.Printf("[main] warning: REROUTE_ADMIN_TOKEN is weak, consider a longer random value")
	}

	log.Printf("[main] reroute %s (%s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	// 2. Open the rule store
	if err := os.MkdirAll(envCfg.StateDir, 0o755); err != nil {
		log.Fatalf("[main] create state dir %s: %v", envCfg.StateDir, err)
	}
	db, err := store.OpenDB(filepath.Join(envCfg.StateDir, "reroute.db"))
	if err != nil {
		log.Fatalf("[main] open store: %v", err)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		log.Fatalf("[main] migrate store: %v", err)
	}
	ruleRepo := store.NewRuleRepo(db)
	errLogRepo := store.NewErrorLogRepo(db)

	// 3. Resolution pipeline
	cache := rulecache.New(ruleRepo, envCfg.RuleCacheTTL, envCfg.StoreTimeout)
	hits := resolve.NewHitTracker(ruleRepo, envCfg.HitFlushInterval)
	hits.Start()
	resolver := resolve.New(cache, ruleRepo, hits, envCfg.WildcardTimeout)

	// 4. Suggestions
	sections := suggest.DefaultSections()
	if envCfg.SuggestSectionsFile != "" {
		sections, err = suggest.LoadSections(envCfg.SuggestSectionsFile)
		if err != nil {
			log.Fatalf("[main] load sections: %v", err)
		}
	}
	suggester := suggest.New(sections, envCfg.SuggestCacheSize)

	// 5. Error log writer and retention
	errLog := errorlog.NewService(errorlog.ServiceConfig{
		Repo:          errLogRepo,
		QueueSize:     envCfg.ErrorLogQueueSize,
		FlushBatch:    envCfg.ErrorLogFlushBatchSize,
		FlushInterval: envCfg.ErrorLogFlushInterval,
	})
	errLog.Start()
	retention, err := errorlog.NewRetention(errLogRepo, envCfg.RetentionSchedule, envCfg.ErrorLogRetentionDays)
	if err != nil {
		log.Fatalf("[main] retention: %v", err)
	}
	retention.Start()

	// 6. Optional GeoIP enrichment
	var country errorlog.CountryLookup
	if envCfg.GeoIPDBPath != "" {
		geo, err := geoip.Open(envCfg.GeoIPDBPath)
		if err != nil {
			log.Printf("[main] warning: geoip disabled: %v", err)
		} else {
			defer geo.Close()
			country = geo.Country
		}
	}

	// 7. Recovery engine and dispatcher
	engine := recovery.New(resolver, suggester, errLog, recovery.Config{
		RetryAfter:   envCfg.RetryAfter,
		LegalContact: envCfg.LegalContact,
	})
	dispatcher := httpapi.NewDispatcher(engine, country)

	// 8. Create and start the server
	srv := httpapi.NewServer(
		envCfg,
		ruleRepo,
		errLogRepo,
		resolver,
		suggester,
		cache,
		hits,
		dispatcher,
	)
	go func() {
		log.Printf("[main] listening on %s:%d", envCfg.ListenAddress, envCfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	// 9. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("[main] received signal %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] server shutdown error: %v", err)
	}

	retention.Stop()
	hits.Stop()
	errLog.Stop()
	log.Printf("[main] stopped")
}
