package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/glance/internal/config"
	"github.com/conneroisu/glance/internal/errors"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect glance configuration",
		Long: `Inspect the configuration glance resolves from .glance.yml, GLANCE_
environment variables and flags.

Examples:
  glance config show                       # Show the resolved configuration
  glance config validate                   # Validate the configuration
  glance config validate --config my.yml   # Validate a specific file`,
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	configValidateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigValidate,
	}
	configValidateCmd.Flags().Bool("strict", false, "Treat warnings as errors")

	configCmd.AddCommand(configShowCmd, configValidateCmd)

	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "failed to encode configuration", err)
	}

	w := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# %s\n", used)
	}
	_, err = w.Write(out)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")

	cfg, err := config.Resolve()
	if err != nil {
		return err
	}

	result := config.ValidateConfigWithDetails(cfg)
	w := cmd.OutOrStdout()

	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(w, "Configuration is valid")
		return nil
	}

	fmt.Fprint(w, result.String())

	if result.HasErrors() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("configuration has %d error(s)", len(result.Errors)))
	}
	if strict {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("configuration has %d warning(s)", len(result.Warnings)))
	}

	return nil
}
