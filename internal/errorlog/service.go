// Package errorlog implements the structured error log subsystem. Records
// are sanitized at intake and written asynchronously; a write failure never
// reaches the response path.
package errorlog

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rerouteio/reroute/internal/model"
	"github.com/rerouteio/reroute/internal/store"
)

// Service provides the error log writer.
// Log performs a non-blocking channel send (drops on overflow).
// A background goroutine flushes batches to the repo.
type Service struct {
	repo      *store.ErrorLogRepo
	queue     chan model.ErrorLogRecord
	batchSize int
	interval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ServiceConfig configures the error log service.
type ServiceConfig struct {
	Repo          *store.ErrorLogRepo
	QueueSize     int
	FlushBatch    int
	FlushInterval time.Duration
}

// NewService creates a new error log service.
func NewService(cfg ServiceConfig) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 8192
	}
	batchSize := cfg.FlushBatch
	if batchSize <= 0 {
		batchSize = 256
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{
		repo:      cfg.Repo,
		queue:     make(chan model.ErrorLogRecord, queueSize),
		batchSize: batchSize,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the flush loop to stop, drains remaining records, and returns.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Log enqueues a record fire-and-forget. Non-blocking; drops on overflow.
func (s *Service) Log(rec model.ErrorLogRecord) {
	prepare(&rec)
	select {
	case s.queue <- rec:
	default:
		// Queue full — drop record to avoid blocking the response path.
	}
}

// LogSync writes a record immediately and returns its id, for callers that
// need the identifier for follow-up operations. On failure it warns locally
// and returns an empty id; the error never propagates.
func (s *Service) LogSync(ctx context.Context, rec model.ErrorLogRecord) string {
	prepare(&rec)
	id, err := s.repo.Insert(ctx, &rec)
	if err != nil {
		log.Printf("[errorlog] warning: sync insert failed code=%q: %v", rec.Code, err)
		return ""
	}
	return id
}

// Repo returns the underlying repository for query access.
func (s *Service) Repo() *store.ErrorLogRepo {
	return s.repo
}

// prepare assigns missing identity fields and re-sanitizes the loggable maps.
// Contexts built through BuildRequestContext arrive clean already; records
// assembled by hand get the same redaction here.
func prepare(rec *model.ErrorLogRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAtNs == 0 {
		rec.OccurredAtNs = time.Now().UnixNano()
	}
	if rec.Severity == "" {
		rec.Severity = model.SeverityLow
	}
	for name := range rec.RequestContext.Headers {
		if isSensitiveHeader(name) {
			rec.RequestContext.Headers[name] = RedactedMarker
		}
	}
	if rec.RequestContext.Metadata != nil {
		rec.RequestContext.Metadata = SanitizeValue(rec.RequestContext.Metadata).(map[string]any)
	}
}

// flushLoop runs until stopCh is closed, flushing on batch-size or timer.
func (s *Service) flushLoop() {
	defer s.wg.Done()

	batch := make([]model.ErrorLogRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			// Drain remaining.
			s.drainAndFlush(batch)
			return
		}
	}
}

func (s *Service) drainAndFlush(batch []model.ErrorLogRecord) {
	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *Service) flush(records []model.ErrorLogRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, err := s.repo.InsertBatch(ctx, records); err != nil {
		log.Printf("[errorlog] flush %d records failed: %v", len(records), err)
	} else if n > 0 {
		log.Printf("[errorlog] flushed %d records", n)
	}
}
