package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/metrics"
)

const (
	CityField       = "city"
	EnqueuedAtField = "enqueued_at"

	DefaultStreamPrefix  = "citypulse"
	DefaultConsumerGroup = "ingest-workers"

	defaultMaxStreamLen      = 1000
	defaultBlockTimeout      = 5 * time.Second
	defaultBatchSize         = 4
	defaultConnectionTimeout = 2 * time.Second
)

func StreamName(prefix string) string {
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return prefix + ":ingest"
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Redis enqueues city units on a stream for Worker to consume.
type Redis struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	metrics *metrics.Metrics
}

func NewRedis(client *redis.Client, prefix string, m *metrics.Metrics) *Redis {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Redis{
		client:  client,
		stream:  StreamName(prefix),
		maxLen:  defaultMaxStreamLen,
		metrics: m,
	}
}

func (r *Redis) Dispatch(ctx context.Context, city string) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			CityField:       city,
			EnqueuedAtField: time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue %s to stream %s: %w", city, r.stream, err)
	}
	r.metrics.UnitsDispatched.WithLabelValues("redis").Inc()
	return nil
}

type WorkerOptions struct {
	Prefix       string
	Group        string
	Consumer     string
	BlockTimeout time.Duration
	BatchSize    int64
}

// Worker consumes city units from the stream through a consumer group.
type Worker struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	batch    int64
	handler  Handler
	metrics  *metrics.Metrics
	log      logger.Logger
}

func NewWorker(client *redis.Client, opts WorkerOptions, handler Handler, m *metrics.Metrics, log logger.Logger) (*Worker, error) {
	if opts.Consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	if opts.Group == "" {
		opts.Group = DefaultConsumerGroup
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = defaultBlockTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Worker{
		client:   client,
		stream:   StreamName(opts.Prefix),
		group:    opts.Group,
		consumer: opts.Consumer,
		block:    opts.BlockTimeout,
		batch:    opts.BatchSize,
		handler:  handler,
		metrics:  m,
		log:      log.With(logger.String("consumer", opts.Consumer)),
	}, nil
}

// Run consumes until ctx is cancelled. Every message is acknowledged once
// its handler returns; failed cities are repopulated by the next cycle.
func (w *Worker) Run(ctx context.Context) error {
	err := w.client.XGroupCreateMkStream(ctx, w.stream, w.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	w.log.Info("Worker started", logger.String("stream", w.stream), logger.String("group", w.group))

	for {
		if ctx.Err() != nil {
			w.log.Info("Worker stopped")
			return nil
		}

		streams, err := w.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.group,
			Consumer: w.consumer,
			Streams:  []string{w.stream, ">"},
			Count:    w.batch,
			Block:    w.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error("Failed to read from stream", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				w.process(ctx, msg)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, msg redis.XMessage) {
	city, _ := msg.Values[CityField].(string)
	if city == "" {
		w.log.Warn("Dropping message without city", logger.String("message_id", msg.ID))
	} else if err := w.handler(ctx, city); err != nil {
		w.metrics.UnitsFailed.WithLabelValues("redis").Inc()
		w.log.Error("City ingestion failed",
			logger.String("city", city),
			logger.String("message_id", msg.ID),
			logger.Error(err),
		)
	}

	// Acked even when ctx is already done.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultConnectionTimeout)
	defer cancel()
	if err := w.client.XAck(ackCtx, w.stream, w.group, msg.ID).Err(); err != nil {
		w.log.Error("Failed to ack message", logger.String("message_id", msg.ID), logger.Error(err))
	}
}
