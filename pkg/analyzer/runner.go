package analyzer

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/jsflow/internal/log"
	"github.com/l3aro/jsflow/internal/scanner"
	"github.com/l3aro/jsflow/pkg/types"
)

// Failure is a file that could not be analyzed.
type Failure struct {
	Path string
	Err  error
}

// Report is the outcome of a Runner pass, in input order.
type Report struct {
	Files    []*types.FileResult
	Failures []Failure
}

// Issues returns every issue of the report, sorted.
func (r *Report) Issues() []types.Issue {
	var all []types.Issue
	for _, f := range r.Files {
		all = append(all, f.Issues...)
	}
	types.SortIssues(all)
	return all
}

// Runner analyzes many files in parallel.
type Runner struct {
	analyzer *Analyzer
	workers  int
	logger   log.Logger

	// OnFile, when set, is called after each file with the number of files
	// finished so far. It may be called concurrently.
	OnFile func(done, total int)
}

// NewRunner creates a Runner. workers <= 0 uses one worker per CPU.
func NewRunner(a *Analyzer, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{analyzer: a, workers: workers, logger: a.logger}
}

// Run analyzes files. A file that fails is recorded in the report and does
// not stop the others. Run returns early with the context's error when ctx
// is cancelled; results of abandoned files are discarded.
func (r *Runner) Run(ctx context.Context, files []scanner.FileInfo) (*Report, error) {
	results := make([]*types.FileResult, len(files))
	errs := make([]error, len(files))
	var done atomic.Int64

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	r.logger.Info("analyzing files", "files", len(files), "workers", r.workers)

	for i, f := range files {
		if groupCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			res, err := r.analyzer.AnalyzeFile(groupCtx, f.Path, f.FullPath)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				r.logger.Warn("file skipped", "file", f.Path, "error", err)
				errs[i] = err
			} else {
				results[i] = res
			}
			if r.OnFile != nil {
				r.OnFile(int(done.Add(1)), len(files))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{}
	for i, f := range files {
		switch {
		case errs[i] != nil:
			report.Failures = append(report.Failures, Failure{Path: f.Path, Err: errs[i]})
		case results[i] != nil:
			report.Files = append(report.Files, results[i])
		}
	}
	return report, nil
}
