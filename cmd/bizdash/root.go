package main

import (
	"fmt"
	"log/slog"

	"cattlecloud.net/go/bizdash/internal/config"
	"cattlecloud.net/go/bizdash/internal/logging"
	"github.com/spf13/cobra"
)

// options is the state shared by every command, populated before any of
// them run.
type options struct {
	envFiles []string
	cfg      *config.Config
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := new(options)

	root := &cobra.Command{
		Use:   "bizdash",
		Short: "Business dashboard server",
		Long: `bizdash serves the finance and payroll dashboard and manages the
directory of users allowed to sign in to it.

Example usage:
  bizdash serve                                   # Start the web server
  bizdash users add ada@example.com "Ada" --role admin
  bizdash users list                              # List users and roles`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	root.AddCommand(
		newServeCmd(opts),
		newUsersCmd(opts),
	)

	return root
}

func (o *options) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(o.envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	o.cfg = cfg
	o.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	slog.SetDefault(o.logger)

	o.logger.Debug("configuration loaded", "config", cfg.String())
	return nil
}
