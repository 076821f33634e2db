// Package queue dispatches per-city ingestion units, either in process or
// through a Redis Stream.
package queue

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/metrics"
)

const DefaultConcurrency = 4

var ErrQueueClosed = errors.New("queue closed")

// Handler runs one city unit.
type Handler func(ctx context.Context, city string) error

// Local runs units as goroutines, at most limit at a time. Units run on the
// context given to NewLocal so they outlive the caller's request.
type Local struct {
	ctx     context.Context
	handler Handler
	group   errgroup.Group
	pending sync.WaitGroup
	metrics *metrics.Metrics
	log     logger.Logger

	mu     sync.Mutex
	closed bool
}

func NewLocal(ctx context.Context, handler Handler, limit int, m *metrics.Metrics, log logger.Logger) *Local {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = logger.NewNop()
	}
	l := &Local{ctx: ctx, handler: handler, metrics: m, log: log}
	l.group.SetLimit(limit)
	return l
}

// Dispatch never blocks on the concurrency limit. Handler errors are logged.
func (l *Local) Dispatch(_ context.Context, city string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrQueueClosed
	}

	l.pending.Add(1)
	l.metrics.UnitsDispatched.WithLabelValues("local").Inc()
	go func() {
		defer l.pending.Done()
		l.group.Go(func() error {
			if err := l.handler(l.ctx, city); err != nil {
				l.metrics.UnitsFailed.WithLabelValues("local").Inc()
				l.log.Error("City ingestion failed", logger.String("city", city), logger.Error(err))
			}
			return nil
		})
	}()
	return nil
}

// Wait blocks until every dispatched unit has finished.
func (l *Local) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drain()
}

// Close rejects further units and drains the running ones.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.drain()
	return nil
}

func (l *Local) drain() {
	l.pending.Wait()
	_ = l.group.Wait()
}
