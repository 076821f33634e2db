package cli

import (
	"github.com/spf13/cobra"

	"github.com/ObiAU/citypulse/internal/logger"
)

func newIngestCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [city]",
		Short: "Replace content for one city, or all cities, and print the report",
		Args:  cobra.MaximumNArgs(1),
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

			// Units run inline so the report is complete when we print it.
			if len(args) == 1 {
				err = a.sched.IngestOne(ctx, args[0])
			} else {
				err = a.sched.IngestAll(ctx)
			}
			if err != nil {
				return err
			}

			cities := []string(a.cities)
			if len(args) == 1 {
				cities = reportCities(a.sched.Reports())
			}
			renderReports(cmd.OutOrStdout(), cities, a.sched.Reports())
			return nil
		},
	}
}
