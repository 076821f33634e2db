package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/citypulse/internal/metrics"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_DispatchAppendsToStream(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	q := NewRedis(client, "test", nil)

	require.NoError(t, q.Dispatch(ctx, "Chennai"))
	require.NoError(t, q.Dispatch(ctx, "Delhi"))

	msgs, err := client.XRange(ctx, "test:ingest", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Chennai", msgs[0].Values[CityField])
	assert.NotEmpty(t, msgs[0].Values[EnqueuedAtField])
	assert.Equal(t, "Delhi", msgs[1].Values[CityField])
}

func TestWorker_ConsumesAndAcks(t *testing.T) {
	client := newRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.NewRegistry())
	var (
		mu     sync.Mutex
		cities []string
	)
	handler := func(ctx context.Context, city string) error {
		mu.Lock()
		cities = append(cities, city)
		mu.Unlock()
		if city == "Mumbai" {
			return errors.New("boom")
		}
		return nil
	}

	w, err := NewWorker(client, WorkerOptions{
		Prefix:       "test",
		Consumer:     "worker-1",
		BlockTimeout: 50 * time.Millisecond,
	}, handler, m, nil)
	require.NoError(t, err)

	q := NewRedis(client, "test", m)
	for _, c := range []string{"Chennai", "Mumbai", "Delhi"} {
		require.NoError(t, q.Dispatch(ctx, c))
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cities) == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := client.XPending(context.Background(), "test:ingest", DefaultConsumerGroup).Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, []string{"Chennai", "Mumbai", "Delhi"}, cities)
	assert.InDelta(t, 1, testutil.ToFloat64(m.UnitsFailed.WithLabelValues("redis")), 0)
}

func TestNewWorker_RequiresConsumer(t *testing.T) {
	_, err := NewWorker(newRedisClient(t), WorkerOptions{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "citypulse:ingest", StreamName(""))
	assert.Equal(t, "x:ingest", StreamName("x"))
}
