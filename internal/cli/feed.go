package cli

import (
	"github.com/spf13/cobra"
)

func newFeedCommand(cc *commandContext) *cobra.Command {
	var (
		city    string
		pulses  []string
		limit   int
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the newest items for a city",
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
			defer func() { _ = a.Close() }()

			if refresh {
				if err := a.sched.IngestOne(ctx, city); err != nil {
					return err
				}
			}

			items, err := a.feed.Query(ctx, city, pulses, limit)
			if err != nil {
				return err
			}
			renderFeed(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "City to read")
	cmd.Flags().StringSliceVar(&pulses, "pulses", nil, "Pulse ids, all when empty")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of items")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ingest the city before reading")
	_ = cmd.MarkFlagRequired("city")
	return cmd
}
