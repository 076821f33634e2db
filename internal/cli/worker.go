package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ObiAU/citypulse/internal/config"
	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/queue"
)

func newWorkerCommand(cc *commandContext) *cobra.Command {
	var consumer, group string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume city units from the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := cc.ensure()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if cfg.Redis.Address == "" {
				return errors.New("worker requires redis.address (REDIS_ADDRESS)")
			}
			if cfg.Ingest.Dispatcher != config.DispatcherRedis {
				log.Warn("Dispatcher is not redis, nothing will enqueue units for this worker",
					logger.String("dispatcher", cfg.Ingest.Dispatcher))
			}
			if consumer == "" {
				host, _ := os.Hostname()
				consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			client, err := a.redisClient(ctx)
			if err != nil {
				return err
			}

			w, err := queue.NewWorker(client, queue.WorkerOptions{
				Prefix:   cfg.Redis.StreamPrefix,
				Group:    group,
				Consumer: consumer,
			}, a.sched.RunCity, a.metrics, log)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&consumer, "consumer", "", "Consumer name (defaults to host-pid)")
	cmd.Flags().StringVar(&group, "group", queue.DefaultConsumerGroup, "Consumer group")
	return cmd
}
