package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/glance/internal/config"
	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/logging"
)

// NewRootCommand builds the glance command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "glance [file]",
		Short: "Live preview of markdown documents in the browser",
		Long: `glance watches a markdown document and pushes a freshly rendered copy to
every open browser tab whenever the file changes.

Quick Start:
  glance README.md                 Preview README.md at http://localhost:3000
  glance render README.md          Print the rendered HTML once
  glance config show               Show the resolved configuration`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cmd.ErrOrStderr(), cfgFile); err != nil {
				return err
			}
			return bindPersistentFlags(cmd)
		},
		RunE: runServe,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .glance.yml, can also use GLANCE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	addServeFlags(rootCmd)

	rootCmd.AddCommand(
		newServeCmd(),
		newRenderCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// initConfig initializes the configuration system.
//
// The config file is taken from, in order: the --config flag, the
// GLANCE_CONFIG_FILE environment variable, then .glance.yml in the working
// directory. A missing default file is not an error.
func initConfig(stderr io.Writer, cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.WrapConfig(err, "failed to load .env")
	}

	if cfgFile == "" {
		cfgFile = os.Getenv("GLANCE_CONFIG_FILE")
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".glance")
	}

	config.BindEnvironment()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.WrapConfig(err, "failed to read config file")
	}

	fmt.Fprintln(stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

// bindPersistentFlags binds the flags shared by every command.
func bindPersistentFlags(cmd *cobra.Command) error {
	return bindFlags(cmd.Flags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
	})
}

// newLogger builds the process logger. Every --debug occurrence beyond the
// first also adds source locations.
func newLogger(cfg *config.Config, debug int, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	if debug > 0 {
		level = logging.LevelDebug
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    out,
		AddSource: debug > 1,
	}), nil
}
