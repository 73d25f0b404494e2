// Command paperctl is the operator CLI: migrations, credits, submissions,
// job inspection and the dead-letter list.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/config"
	"github.com/bryanwahyu/paperscore/internal/logging"
)

type globals struct {
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "paperctl",
		Short:         "Operate the paperscore pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := g.cfgPath
			if path == "" {
				path = config.Path()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
			if err != nil {
				return err
			}
			g.cfg, g.logger = cfg, logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file (default $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		newMigrateCommand(g),
		newCreditsCommand(g),
		newSubmitCommand(g),
		newStatusCommand(g),
		newInspectCommand(g),
		newDeadLettersCommand(g),
	)
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
