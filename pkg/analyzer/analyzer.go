// Package analyzer runs the rules over JavaScript and TypeScript files: it
// parses a file, resolves its scopes, builds a control flow graph per
// function and explores every graph with a fresh set of rules.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/l3aro/jsflow/internal/log"
	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cache"
	"github.com/l3aro/jsflow/pkg/cfg"
	"github.com/l3aro/jsflow/pkg/checks"
	"github.com/l3aro/jsflow/pkg/parser"
	"github.com/l3aro/jsflow/pkg/scope"
	"github.com/l3aro/jsflow/pkg/se"
	"github.com/l3aro/jsflow/pkg/types"
)

// Options configures an Analyzer.
type Options struct {
	// Rules lists the enabled rule keys. Empty enables every rule.
	Rules []string
	// Engine bounds each function's exploration.
	Engine se.Options
	// Fingerprint identifies the settings that affect results. It is part of
	// every cache key.
	Fingerprint uint64
	// Cache stores results by content. Nil disables caching.
	Cache *cache.LRUCache
	// Registry defaults to checks.Default().
	Registry checks.Registry
	Logger   log.Logger
}

// Analyzer analyzes single files. It is safe for concurrent use.
type Analyzer struct {
	parser   *parser.Parser
	registry checks.Registry
	rules    []string
	engine   se.Options
	fp       uint64
	cache    *cache.LRUCache
	logger   log.Logger
}

// New creates an Analyzer. Unknown rule keys are rejected.
func New(opts Options) (*Analyzer, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Registry == nil {
		opts.Registry = checks.Default()
	}
	if err := opts.Registry.Validate(opts.Rules); err != nil {
		return nil, err
	}
	return &Analyzer{
		parser:   parser.New(opts.Logger),
		registry: opts.Registry,
		rules:    opts.Rules,
		engine:   opts.Engine,
		fp:       opts.Fingerprint,
		cache:    opts.Cache,
		logger:   opts.Logger.Named("analyzer"),
	}, nil
}

// AnalyzeFile reads and analyzes the file at fullPath. Issues are reported
// against path.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path, fullPath string) (*types.FileResult, error) {
	src, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return a.AnalyzeSource(ctx, path, src)
}

// AnalyzeSource analyzes src. The dialect follows the extension of path.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, src []byte) (*types.FileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var key string
	if a.cache != nil {
		key = cache.Key(src, a.fp)
		if cached, ok := a.cache.Get(key); ok {
			a.logger.Debug("cache hit", "file", path)
			return relocate(cached, path), nil
		}
	}

	file, err := a.parser.Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}
	scope.Resolve(file)

	result := &types.FileResult{Path: path, Issues: []types.Issue{}}
	for _, fn := range file.Functions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Functions++
		issues, skipped, completed := a.analyzeFunction(path, fn)
		if skipped != nil {
			result.Skipped = append(result.Skipped, *skipped)
			continue
		}
		if !completed {
			result.Truncated++
		}
		result.Issues = append(result.Issues, issues...)
	}
	types.SortIssues(result.Issues)

	a.logger.Debug("analyzed file",
		"file", path,
		"functions", result.Functions,
		"issues", len(result.Issues),
		"skipped", len(result.Skipped),
		"truncated", result.Truncated,
	)

	if a.cache != nil {
		a.cache.Set(key, result)
	}
	return result, nil
}

// analyzeFunction explores one function. A function whose graph cannot be
// built, or whose analysis panics, is returned as skipped.
func (a *Analyzer) analyzeFunction(path string, fn *ast.Function) (issues []types.Issue, skipped *types.SkippedFunction, completed bool) {
	name := fn.DisplayName()
	skip := func(reason string) *types.SkippedFunction {
		return &types.SkippedFunction{Name: name, Line: fn.Range.Start.Line, Reason: reason}
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("internal error, function skipped", "file", path, "function", name, "panic", r)
			issues, skipped, completed = nil, skip(fmt.Sprintf("internal error: %v", r)), false
		}
	}()

	g, err := cfg.Build(fn.Body)
	if err != nil {
		var unsupported *cfg.UnsupportedError
		if errors.As(err, &unsupported) {
			a.logger.Warn("unsupported construct, function skipped",
				"file", path, "function", name, "kind", unsupported.Kind, "position", unsupported.Pos.String())
		} else {
			a.logger.Warn("failed to build control flow graph, function skipped",
				"file", path, "function", name, "error", err)
		}
		return nil, skip(err.Error()), false
	}

	rules, err := a.registry.New(a.rules, checks.Context{Graph: g, Function: fn})
	if err != nil {
		return nil, skip(err.Error()), false
	}

	res := se.NewEngine(g, fn, checks.AsChecks(rules), a.engine).Run()
	if !res.Completed {
		a.logger.Debug("exploration truncated", "file", path, "function", name, "steps", res.Steps, "nodes", res.Nodes)
	}

	for _, rule := range rules {
		for _, issue := range rule.Issues() {
			issue.File = path
			issues = append(issues, issue)
		}
	}
	return issues, nil, res.Completed
}

// relocate returns a copy of a cached result reported against path. Files
// with identical content share a cache entry.
func relocate(r *types.FileResult, path string) *types.FileResult {
	out := *r
	out.Path = path
	out.Issues = make([]types.Issue, len(r.Issues))
	for i, issue := range r.Issues {
		issue.File = path
		out.Issues[i] = issue
	}
	types.SortIssues(out.Issues)
	out.Skipped = append([]types.SkippedFunction(nil), r.Skipped...)
	return &out
}
