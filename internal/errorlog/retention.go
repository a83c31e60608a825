package errorlog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rerouteio/reroute/internal/store"
)

// Retention deletes error log records older than a fixed age on a cron
// schedule.
type Retention struct {
	repo   *store.ErrorLogRepo
	maxAge time.Duration
	cron   *cron.Cron
}

// NewRetention creates a retention job. schedule is a standard cron
// expression; retentionDays bounds record age.
func NewRetention(repo *store.ErrorLogRepo, schedule string, retentionDays int) (*Retention, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	r := &Retention{
		repo:   repo,
		maxAge: time.Duration(retentionDays) * 24 * time.Hour,
		cron:   cron.New(),
	}
	if _, err := r.cron.AddFunc(schedule, r.runOnce); err != nil {
		return nil, fmt.Errorf("errorlog retention: invalid schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins scheduled cleanup.
func (r *Retention) Start() {
	r.cron.Start()
}

// Stop halts the scheduler, waiting for a running cleanup to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Retention) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-r.maxAge)
	n, err := r.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("[errorlog] retention cleanup failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[errorlog] retention removed %d records older than %s", n, cutoff.Format(time.RFC3339))
	}
}
