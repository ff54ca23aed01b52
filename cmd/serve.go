package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/glance/internal/config"
	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/server"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve [file]",
		Aliases: []string{"s"},
		Short:   "Start the live preview server",
		Long: `Start the live preview server.

The page for the given file is served at /, any other document below --root
is available at /<path>. Every open page receives a new rendering whenever
its file changes.

Examples:
  glance serve README.md                    # Preview README.md
  glance serve README.md -a 0.0.0.0:8080    # Listen on every interface
  glance serve --root docs                  # Serve any file below docs/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServe,
	}

	addServeFlags(serveCmd)

	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := bindServeFlags(cmd); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(args) > 0 {
		if _, err := os.Stat(args[0]); err != nil {
			return errors.ErrFileNotFound(args[0], err)
		}
		cfg.TargetFile = args[0]
	}

	debug, _ := cmd.Flags().GetCount("debug")
	logger, err := newLogger(cfg, debug, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TargetFile != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Previewing %s at http://%s/\n", cfg.TargetFile, cfg.Server.Address())
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s at http://%s/\n", cfg.Server.Root, cfg.Server.Address())
	}

	return srv.Start(ctx)
}

// loadConfig is config.Load with command context for the error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
