package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/jsflow/internal/config"
	"github.com/l3aro/jsflow/internal/healthcheck"
)

func newDoctorCmd(global *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run health checks on the configuration and environment",
		Long: `Checks the configuration, verifies that the JavaScript and TypeScript
grammars load and that the results cache directory is usable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}

			result, err := healthcheck.Check(cmd.Context(), cfg, global.effectiveConfigPath())
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				displayDoctorResult(cmd.OutOrStdout(), result)
			}

			if result.HasErrors() {
				return errors.New("health check failed: one or more checks reported an error")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

// effectiveConfigPath returns the config file with the highest precedence,
// or "" when only defaults apply.
func (o *globalOptions) effectiveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.Result) {
	if result.EffectivePath == "" {
		fmt.Fprintln(w, "Using config: built-in defaults")
	} else {
		fmt.Fprintf(w, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
	}
	fmt.Fprintln(w)

	for _, item := range result.Items {
		fmt.Fprintf(w, "%s %-20s %s\n", formatStatusIcon(item.Status), item.Name, item.Detail)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusOK:
		return "✓"
	case healthcheck.StatusWarning:
		return "!"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}
