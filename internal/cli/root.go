// Package cli wires the citypulse components behind the cobra commands.
package cli

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ObiAU/citypulse/internal/config"
	"github.com/ObiAU/citypulse/internal/logger"
)

const defaultConfigPath = "config.yaml"

type commandContext struct {
	configFlag string

	once   sync.Once
	config *config.Config
	log    logger.Logger
	err    error
}

func (c *commandContext) ensure() (*config.Config, logger.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		log, err := logger.New(cfg.Log)
		if err != nil {
			c.err = err
			return
		}
		c.config, c.log = cfg, log
	})
	return c.config, c.log, c.err
}

func NewRootCommand() *cobra.Command {
	cc := &commandContext{}

	root := &cobra.Command{
		Use:           "citypulse",
		Short:         "City content ingestion, feed API and Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			_, _, err := cc.ensure()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&cc.configFlag, "config", "c", defaultConfigPath, "Configuration file path")

	root.AddCommand(newServeCommand(cc))
	root.AddCommand(newIngestCommand(cc))
	root.AddCommand(newFeedCommand(cc))
	root.AddCommand(newWorkerCommand(cc))
	return root
}

// Execute runs the root command until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
