package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/server"
	"github.com/ObiAU/citypulse/internal/telegram"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	var ingestOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, Telegram bot and periodic ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := cc.ensure()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("Failed to close resources", logger.Error(err))
				}
			}()

			closeDispatcher, err := a.useDispatcher(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeDispatcher() }()

			deps := server.Deps{
				Feed:        a.feed,
				Content:     a.store,
				Collections: a.store,
				Preferences: a.store,
				Ingester:    a.sched,
				Metrics:     a.metrics,
				Cities:      a.cities,
			}

			if cfg.Telegram.Token != "" {
				bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.WebhookURL, telegram.Deps{
					Feed:        a.feed,
					Content:     a.store,
					Collections: a.store,
					Preferences: a.store,
					Cities:      a.cities,
				}, log)
				if err != nil {
					return err
				}
				if err := bot.Start(ctx); err != nil {
					return fmt.Errorf("failed to start telegram bot: %w", err)
				}
				deps.Bot = bot
			} else {
				log.Warn("TELEGRAM_BOT_TOKEN not set, bot disabled")
			}

			if err := a.sched.Start(ctx, cfg.Ingest.Schedule); err != nil {
				return err
			}
			defer a.sched.Stop()

			if ingestOnStart {
				go func() {
					if err := a.sched.IngestAll(context.WithoutCancel(ctx)); err != nil {
						log.Error("Startup ingestion failed", logger.Error(err))
					}
				}()
			}

			log.Info("CityPulse started",
				logger.Strings("cities", cfg.Ingest.Cities),
				logger.String("store", cfg.Store.Driver),
				logger.String("dispatcher", cfg.Ingest.Dispatcher),
			)
			return server.New(deps, log).Run(ctx, cfg.Server.Port)
		},
	}
	cmd.Flags().BoolVar(&ingestOnStart, "ingest-on-start", false, "Run a full ingestion as soon as the server starts")
	return cmd
}
