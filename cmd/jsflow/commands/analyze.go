package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/jsflow/internal/config"
	"github.com/l3aro/jsflow/internal/log"
	"github.com/l3aro/jsflow/internal/scanner"
	"github.com/l3aro/jsflow/pkg/analyzer"
	"github.com/l3aro/jsflow/pkg/cache"
)

// cacheFileName is the results cache inside the configured cache directory.
const cacheFileName = "results.cache"

// maxCacheEntries bounds the results cache.
const maxCacheEntries = 20000

type analyzeOptions struct {
	*globalOptions
	jsonOutput   bool
	failOnIssues bool
	workers      int
	rules        []string
	maxVisits    int
	maxNodes     int
	noCache      bool
}

func newAnalyzeCmd(global *globalOptions) *cobra.Command {
	opts := &analyzeOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Analyze files and report issues",
		Long: `Scans the given files and directories (default: the current directory)
for JavaScript and TypeScript sources, explores every function and prints
the issues found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			return runAnalyze(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.failOnIssues, "fail-on-issues", false, "Exit with status 1 when issues are found")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Files analyzed in parallel (default: one per CPU)")
	cmd.Flags().StringSliceVar(&opts.rules, "rules", nil, "Rule keys to enable (default: all)")
	cmd.Flags().IntVar(&opts.maxVisits, "max-visits", 0, "Times one path may enter a program point")
	cmd.Flags().IntVar(&opts.maxNodes, "max-nodes", 0, "Explored nodes per function before giving up")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Do not read or write the results cache")
	return cmd
}

// applyFlags overrides config values with the flags set on the command line.
func (o *analyzeOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("rules") {
		cfg.Rules = o.rules
	}
	if flags.Changed("max-visits") {
		cfg.MaxVisitsPerPoint = o.maxVisits
	}
	if flags.Changed("max-nodes") {
		cfg.MaxExploredNodes = o.maxNodes
	}
	if flags.Changed("no-cache") {
		cfg.NoCache = o.noCache
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions, paths []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.applyFlags(cmd, cfg); err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	files, err := collectFiles(paths, cfg.Exclude)
	if err != nil {
		return err
	}
	logger.Debug("collected files", "files", len(files))

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		return err
	}

	var results *cache.LRUCache
	cachePath := filepath.Join(cfg.CacheDir, cacheFileName)
	if !cfg.NoCache {
		results = cache.New(cache.Options{MaxSize: maxCacheEntries})
		if err := cache.LoadFromFile(results, cachePath); err != nil {
			logger.Warn("ignoring unreadable results cache", "path", cachePath, "error", err)
			results.Clear()
		}
	}

	a, err := analyzer.New(analyzer.Options{
		Rules:       cfg.Rules,
		Engine:      cfg.EngineOptions(),
		Fingerprint: fingerprint,
		Cache:       results,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	runner := analyzer.NewRunner(a, cfg.Workers)
	spinner := log.NewProgressSpinnerTo(cmd.ErrOrStderr(), fmt.Sprintf("Analyzing %d files", len(files)))
	runner.OnFile = func(done, total int) {
		spinner.Message(fmt.Sprintf("Analyzing files (%d/%d)", done, total))
	}
	spinner.Start()
	report, err := runner.Run(cmd.Context(), files)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("analysis interrupted: %w", err)
	}

	if results != nil {
		stats := results.Stats()
		logger.Debug("results cache", "hits", stats.Hits, "misses", stats.Misses, "entries", results.Len())
		if err := cache.PersistToFile(results, cachePath); err != nil {
			logger.Warn("failed to save results cache", "path", cachePath, "error", err)
		}
	}

	out := newAnalyzeOutput(report)
	if opts.jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printAnalyzeOutput(cmd.OutOrStdout(), out)
	}

	if opts.failOnIssues && len(out.Issues) > 0 {
		return ErrIssuesFound
	}
	return nil
}

// collectFiles scans every path and reports files relative to the working
// directory. A file reached from two paths is analyzed once.
func collectFiles(paths []string, exclude []string) ([]scanner.FileInfo, error) {
	scanOpts := scanner.DefaultOptions()
	scanOpts.Exclude = exclude
	s := scanner.New(scanOpts)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	seen := make(map[string]bool)
	var files []scanner.FileInfo
	for _, p := range paths {
		found, err := s.Scan(p)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if seen[f.FullPath] {
				continue
			}
			seen[f.FullPath] = true
			if rel, err := filepath.Rel(cwd, f.FullPath); err == nil {
				f.Path = filepath.ToSlash(rel)
			}
			files = append(files, f)
		}
	}
	return files, nil
}
