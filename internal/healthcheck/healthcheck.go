// Package healthcheck verifies that jsflow can run with a configuration: the
// config is valid, the grammars load and the cache directory is usable.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/jsflow/internal/config"
	"github.com/l3aro/jsflow/pkg/cache"
	"github.com/l3aro/jsflow/pkg/checks"
	"github.com/l3aro/jsflow/pkg/parser"
)

// Status values of an Item.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Item is the outcome of one check.
type Item struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result contains the full health check output for display.
type Result struct {
	EffectivePath  string `json:"effective_path,omitempty"`
	EffectiveScope string `json:"effective_scope"` // "global", "project" or "defaults"
	Items          []Item `json:"items"`
}

// HasErrors reports whether any item failed.
func (r *Result) HasErrors() bool {
	for _, item := range r.Items {
		if item.Status == StatusError {
			return true
		}
	}
	return false
}

// Check performs a health check against the given config. effectivePath is
// the config file in use, empty when only defaults apply.
func Check(ctx context.Context, cfg *config.Config, effectivePath string) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &Result{
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}
	result.Items = append(result.Items,
		checkConfig(cfg),
		checkRules(cfg),
	)
	for _, d := range []parser.Dialect{parser.JavaScript, parser.TypeScript, parser.TSX} {
		result.Items = append(result.Items, checkGrammar(ctx, d))
	}
	result.Items = append(result.Items, checkCache(cfg))
	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
func scopeFromPath(path string) string {
	if path == "" {
		return "defaults"
	}
	if abs, err := filepath.Abs(path); err == nil && abs == filepath.Clean(config.GlobalConfigFilePath()) {
		return "global"
	}
	return "project"
}

func checkConfig(cfg *config.Config) Item {
	item := Item{Name: "config", Status: StatusOK}
	if err := cfg.Validate(); err != nil {
		item.Status = StatusError
		item.Detail = err.Error()
		return item
	}
	item.Detail = fmt.Sprintf("max_visits_per_point=%d max_explored_nodes=%d", cfg.MaxVisitsPerPoint, cfg.MaxExploredNodes)
	return item
}

func checkRules(cfg *config.Config) Item {
	item := Item{Name: "rules", Status: StatusOK}
	keys := cfg.Rules
	if len(keys) == 0 {
		keys = checks.Default().Keys()
	}
	if err := checks.Default().Validate(keys); err != nil {
		item.Status = StatusError
		item.Detail = err.Error()
		return item
	}
	item.Detail = strings.Join(keys, ", ")
	return item
}

// grammarSample is a snippet every dialect accepts.
const grammarSample = "function sample(a) { if (a) { return a.b; } return null; }\n"

func checkGrammar(ctx context.Context, d parser.Dialect) Item {
	item := Item{Name: "grammar " + string(d), Status: StatusOK}
	file, err := parser.New(nil).ParseDialect(ctx, "sample", []byte(grammarSample), d)
	switch {
	case err != nil:
		item.Status = StatusError
		item.Detail = err.Error()
	case file.HasErrors || len(file.Functions) != 2:
		item.Status = StatusError
		item.Detail = "grammar produced an unexpected tree"
	}
	return item
}

func checkCache(cfg *config.Config) Item {
	item := Item{Name: "cache", Status: StatusOK}
	if cfg.NoCache {
		item.Detail = "disabled"
		return item
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		item.Status = StatusError
		item.Detail = fmt.Sprintf("cannot create %s: %v", cfg.CacheDir, err)
		return item
	}
	tmp, err := os.CreateTemp(cfg.CacheDir, ".write-test-*")
	if err != nil {
		item.Status = StatusError
		item.Detail = fmt.Sprintf("%s is not writable: %v", cfg.CacheDir, err)
		return item
	}
	tmp.Close()
	os.Remove(tmp.Name())

	path := filepath.Join(cfg.CacheDir, "results.cache")
	c := cache.New(cache.Options{})
	if err := cache.LoadFromFile(c, path); err != nil {
		item.Status = StatusWarning
		if errors.Is(err, cache.ErrVersionMismatch) {
			item.Detail = fmt.Sprintf("%s was written by another version and will be replaced", path)
		} else {
			item.Detail = fmt.Sprintf("%s is unreadable and will be replaced: %v", path, err)
		}
		return item
	}
	item.Detail = fmt.Sprintf("%s (%d entries)", cfg.CacheDir, c.Len())
	return item
}
