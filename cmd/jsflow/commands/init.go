package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/jsflow/internal/config"
	"github.com/l3aro/jsflow/pkg/checks"
)

// initAnswers holds the wizard's answers as typed by the user.
type initAnswers struct {
	scope     string // "project" or "global"
	rules     []string
	maxVisits string
	maxNodes  string
	workers   string
	exclude   string
}

func defaultAnswers() *initAnswers {
	cfg := config.DefaultConfig()
	return &initAnswers{
		scope:     "project",
		rules:     checks.Default().Keys(),
		maxVisits: strconv.Itoa(cfg.MaxVisitsPerPoint),
		maxNodes:  strconv.Itoa(cfg.MaxExploredNodes),
		workers:   strconv.Itoa(cfg.Workers),
	}
}

func newInitCmd() *cobra.Command {
	var yes, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a jsflow configuration interactively",
		Long: `Guides you through setting up jsflow step by step and writes the
answers to .jsflow/config.yaml (or ~/.jsflow/config.yaml for the global scope).
With --yes the defaults are written without prompting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			answers := defaultAnswers()
			if !yes {
				if err := askInit(answers); err != nil {
					return fmt.Errorf("interactive prompt failed: %w", err)
				}
			}

			configPath := answers.configPath()
			if _, err := os.Stat(configPath); err == nil && !force {
				if yes {
					return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
				}
				overwrite, err := confirmOverwrite(configPath)
				if err != nil {
					return fmt.Errorf("interactive prompt failed: %w", err)
				}
				if !overwrite {
					fmt.Fprintln(cmd.OutOrStdout(), "Configuration unchanged.")
					return nil
				}
			}
			return writeInitConfig(cmd.OutOrStdout(), answers, configPath)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Write the default configuration without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func askInit(a *initAnswers) error {
	var ruleOptions []huh.Option[string]
	for _, d := range checks.Default().Definitions() {
		ruleOptions = append(ruleOptions, huh.NewOption(d.Key+"  "+d.Description, d.Key).Selected(true))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the configuration be saved?").
				Options(
					huh.NewOption("This project (.jsflow/config.yaml)", "project"),
					huh.NewOption("Every project (~/.jsflow/config.yaml)", "global"),
				).
				Value(&a.scope),
			huh.NewMultiSelect[string]().
				Title("Rules").
				Description("Select the rules to enable").
				Options(ruleOptions...).
				Value(&a.rules),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Visits per program point").
				Description("How many times one path may enter the same block").
				Value(&a.maxVisits).
				Validate(positiveInt),
			huh.NewInput().
				Title("Explored nodes per function").
				Description("Exploration of a function stops silently past this limit").
				Value(&a.maxNodes).
				Validate(positiveInt),
			huh.NewInput().
				Title("Parallel workers").
				Description("0 uses one worker per CPU").
				Value(&a.workers).
				Validate(nonNegativeInt),
			huh.NewInput().
				Title("Extra ignore patterns (optional, comma separated)").
				Placeholder("vendor/, *.min.js").
				Value(&a.exclude),
		),
	)
	return form.Run()
}

func confirmOverwrite(path string) (bool, error) {
	var overwrite bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("%s already exists. Overwrite it?", path)).
		Affirmative("Overwrite").
		Negative("Keep").
		Value(&overwrite).
		Run()
	return overwrite, err
}

func (a *initAnswers) configPath() string {
	if a.scope == "global" {
		return config.GlobalConfigFilePath()
	}
	return config.ProjectConfigFilePath()
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("enter a positive number")
	}
	return nil
}

func nonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return errors.New("enter zero or a positive number")
	}
	return nil
}

// buildInitConfig converts the answers into a validated config.
func buildInitConfig(a *initAnswers) (*config.Config, error) {
	cfg := config.DefaultConfig()
	var err error
	if cfg.MaxVisitsPerPoint, err = strconv.Atoi(a.maxVisits); err != nil {
		return nil, fmt.Errorf("visits per program point: %w", err)
	}
	if cfg.MaxExploredNodes, err = strconv.Atoi(a.maxNodes); err != nil {
		return nil, fmt.Errorf("explored nodes: %w", err)
	}
	if cfg.Workers, err = strconv.Atoi(a.workers); err != nil {
		return nil, fmt.Errorf("workers: %w", err)
	}
	if len(a.rules) == 0 {
		return nil, errors.New("select at least one rule")
	}
	// Every rule selected is stored as "all" so that new rules are enabled too.
	if len(a.rules) < len(checks.Default().Keys()) {
		cfg.Rules = a.rules
	}
	for _, p := range strings.Split(a.exclude, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Exclude = append(cfg.Exclude, p)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func writeInitConfig(w io.Writer, a *initAnswers, configPath string) error {
	cfg, err := buildInitConfig(a)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "=== Configuration Preview ===")
	fmt.Fprintf(w, "Config path: %s\n", configPath)
	if len(cfg.Rules) == 0 {
		fmt.Fprintln(w, "Rules: all")
	} else {
		fmt.Fprintf(w, "Rules: %v\n", cfg.Rules)
	}
	fmt.Fprintf(w, "Visits per program point: %d\n", cfg.MaxVisitsPerPoint)
	fmt.Fprintf(w, "Explored nodes per function: %d\n", cfg.MaxExploredNodes)
	fmt.Fprintf(w, "Workers: %d\n", cfg.Workers)
	if len(cfg.Exclude) > 0 {
		fmt.Fprintf(w, "Exclude: %v\n", cfg.Exclude)
	}
	fmt.Fprintln(w, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(w, "Configuration saved to: %s\n", configPath)
	return nil
}
