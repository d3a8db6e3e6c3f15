// Package commands provides the CLI commands for jsflow.
package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/jsflow/internal/config"
	"github.com/l3aro/jsflow/internal/log"
)

// ErrIssuesFound is returned by analyze with --fail-on-issues when at least
// one issue was reported.
var ErrIssuesFound = errors.New("issues found")

// BuildInfo describes the binary.
type BuildInfo struct {
	Version   string
	BuildTime string
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
	logJSON    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "jsflow",
		Short: "jsflow - path-sensitive analysis of JavaScript and TypeScript",
		Long: `jsflow explores every function of a JavaScript or TypeScript project
symbolically and reports bugs that only show on some execution paths.

Commands:
  analyze     Analyze files and report issues
  cfg         Show the control flow graph of a function
  rules       List the available rules
  init        Create a project configuration
  doctor      Check the configuration and environment

Use "jsflow [command] --help" for more information about a command.`,
		Version:       info.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(versionTemplate(info))

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file path (default: global and project config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "V", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")

	root.AddCommand(newAnalyzeCmd(opts))
	root.AddCommand(newCFGCmd(opts))
	root.AddCommand(newRulesCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newDoctorCmd(opts))
	return root
}

func versionTemplate(info BuildInfo) string {
	if info.BuildTime == "" {
		return "jsflow version {{.Version}}\n"
	}
	return fmt.Sprintf("jsflow version {{.Version}} (built %s)\n", info.BuildTime)
}

// loadConfig reads the config file named by --config, or the global and
// project files when it is empty.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		cfg, err := config.LoadFromFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// logger builds the process logger writing to w.
func (o *globalOptions) logger(cfg *config.Config, w io.Writer) log.Logger {
	level := cfg.Level()
	if o.verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.LogJSON || o.logJSON,
		Stderr:     w,
		Name:       "jsflow",
	})
}
