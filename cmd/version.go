package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/version"
)

func newVersionCmd() *cobra.Command {
	var (
		versionFormat string
		versionShort  bool
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for glance including the version number,
git commit, build time, Go version and target platform.

Examples:
  glance version                # Show version information
  glance version --short        # Show the version only
  glance version --format json  # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			w := cmd.OutOrStdout()

			switch versionFormat {
			case "json":
				encoder := json.NewEncoder(w)
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			case "text":
				if versionShort {
					_, err := fmt.Fprintln(w, info.Short())
					return err
				}
				_, err := fmt.Fprintf(w, "glance %s\n%s\n", info.Short(), info)
				return err
			default:
				return errors.NewValidationError(errors.ErrCodeValidationFailed,
					fmt.Sprintf("unsupported format: %s (supported: text, json)", versionFormat))
			}
		},
	}

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")

	return versionCmd
}
