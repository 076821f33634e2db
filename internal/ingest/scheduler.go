package ingest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/metrics"
	"github.com/ObiAU/citypulse/internal/store"
)

// Dispatcher hands one city unit to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, city string) error
}

// drainer is implemented by dispatchers that can wait for in-flight units.
type drainer interface {
	Wait()
}

type inline struct {
	run func(ctx context.Context, city string) error
}

func (d inline) Dispatch(ctx context.Context, city string) error {
	return d.run(ctx, city)
}

type Scheduler struct {
	orch       *Orchestrator
	store      store.ContentStore
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	log        logger.Logger

	cron   *cron.Cron
	cancel context.CancelFunc

	// runMu serializes drain, delete and dispatch of IngestAll and IngestOne.
	runMu sync.Mutex

	mu      sync.RWMutex
	reports map[string]Report
	lastRun time.Time
	running bool
}

// NewScheduler runs city units inline until UseDispatcher is called.
func NewScheduler(orch *Orchestrator, st store.ContentStore, m *metrics.Metrics, log logger.Logger) *Scheduler {
	if m == nil {
		m = orch.metrics
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{
		orch:    orch,
		store:   st,
		metrics: m,
		log:     log,
		reports: make(map[string]Report),
	}
	s.dispatcher = inline{run: s.RunCity}
	return s
}

func (s *Scheduler) UseDispatcher(d Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
}

// RunCity is the handler every dispatcher ends up calling.
func (s *Scheduler) RunCity(ctx context.Context, city string) error {
	report, err := s.orch.IngestCity(ctx, city)
	if report.City != "" {
		s.mu.Lock()
		s.reports[report.City] = report
		s.mu.Unlock()
	}
	return err
}

// IngestAll wipes all content and dispatches one unit per supported city.
func (s *Scheduler) IngestAll(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	d := s.currentDispatcher()
	drain(d)

	n, err := s.store.DeleteAll(ctx, "")
	if err != nil {
		return fmt.Errorf("clear content: %w", err)
	}
	s.log.Info("Cleared content for full ingestion", logger.Int("deleted", n))

	var errs []error
	for _, city := range s.orch.Cities() {
		if err := d.Dispatch(ctx, city); err != nil {
			s.log.Error("Failed to dispatch city", logger.String("city", city), logger.Error(err))
			errs = append(errs, fmt.Errorf("dispatch %s: %w", city, err))
		}
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
	s.metrics.LastIngestUnixTime.SetToCurrentTime()

	return errors.Join(errs...)
}

// IngestOne replaces the content of a single city. In-flight local units
// finish before the delete so their inserts cannot land after it.
func (s *Scheduler) IngestOne(ctx context.Context, city string) error {
	canonical, err := s.orch.Cities().Resolve(city)
	if err != nil {
		return err
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	d := s.currentDispatcher()
	drain(d)

	n, err := s.store.DeleteAll(ctx, canonical)
	if err != nil {
		return fmt.Errorf("clear %s: %w", canonical, err)
	}
	s.log.Info("Cleared city content", logger.String("city", canonical), logger.Int("deleted", n))

	return d.Dispatch(ctx, canonical)
}

func drain(d Dispatcher) {
	if w, ok := d.(drainer); ok {
		w.Wait()
	}
}

// Start schedules IngestAll on a standard 5-field cron spec. An empty spec
// leaves the periodic trigger off.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	if spec == "" {
		s.log.Info("Periodic ingestion disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{s.log})))

	runCtx, cancel := context.WithCancel(ctx)
	_, err := c.AddFunc(spec, func() {
		if err := s.IngestAll(runCtx); err != nil {
			s.log.Error("Scheduled ingestion failed", logger.Error(err))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("invalid ingest schedule %q: %w", spec, err)
	}

	s.cron, s.cancel = c, cancel
	s.running = true
	c.Start()
	s.log.Info("Periodic ingestion scheduled", logger.String("schedule", spec))
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	s.log.Info("Periodic ingestion stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Reports returns the latest report per city.
func (s *Scheduler) Reports() map[string]Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.reports)
}

func (s *Scheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

func (s *Scheduler) currentDispatcher() Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, logger.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, logger.Error(err), logger.Any("details", keysAndValues))
}
