package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/l3aro/jsflow/internal/log"
	"github.com/l3aro/jsflow/internal/scanner"
	"github.com/l3aro/jsflow/pkg/cache"
	"github.com/l3aro/jsflow/pkg/checks"
	"github.com/l3aro/jsflow/pkg/se"
	"github.com/l3aro/jsflow/pkg/types"
)

const (
	nullCheckSrc = `function f(x) { if (x === null) { return 1; } else { return x.length; } }`
	nullInitSrc  = `function g() { var x = null; if (x) { return 1; } return 2; }`
)

func newAnalyzer(t *testing.T, opts Options) *Analyzer {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.FromZap(zaptest.NewLogger(t))
	}
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

func TestNew_RejectsUnknownRules(t *testing.T) {
	_, err := New(Options{Rules: []string{"S0000"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, checks.ErrUnknownRule)
}

func TestAnalyzeSource_Scenarios(t *testing.T) {
	a := newAnalyzer(t, Options{})
	ctx := context.Background()

	res, err := a.AnalyzeSource(ctx, "f.js", []byte(nullCheckSrc))
	require.NoError(t, err)
	assert.Empty(t, res.Issues, "nothing is proven null on the else branch")
	assert.Equal(t, 2, res.Functions, "script and f")
	assert.Empty(t, res.Skipped)
	assert.Zero(t, res.Truncated)

	res, err = a.AnalyzeSource(ctx, "g.js", []byte(nullInitSrc))
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	issue := res.Issues[0]
	assert.Equal(t, "g.js", issue.File)
	assert.Equal(t, checks.AlwaysTrueOrFalseKey, issue.Rule)
	assert.Equal(t, "Condition is always false.", issue.Message)
	assert.Equal(t, 1, issue.Location.Line)
}

func TestAnalyzeSource_IssuesSortedAcrossFunctions(t *testing.T) {
	src := `function b() {
  return 1;
  b();
}
function a() {
  var x = null;
  if (x) { a(); }
  x.y();
}
`
	a := newAnalyzer(t, Options{})
	res, err := a.AnalyzeSource(context.Background(), "mixed.js", []byte(src))
	require.NoError(t, err)

	var got []string
	for _, issue := range res.Issues {
		got = append(got, issue.Rule)
	}
	assert.Equal(t, []string{checks.DeadCodeKey, checks.AlwaysTrueOrFalseKey, checks.NullDereferenceKey}, got)
	assert.Equal(t, []int{3, 7, 8}, []int{res.Issues[0].Location.Line, res.Issues[1].Location.Line, res.Issues[2].Location.Line})
}

func TestAnalyzeSource_RuleSelection(t *testing.T) {
	a := newAnalyzer(t, Options{Rules: []string{checks.NullDereferenceKey}})
	res, err := a.AnalyzeSource(context.Background(), "g.js", []byte(nullInitSrc))
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
}

func TestAnalyzeSource_SkipsUnsupportedFunction(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := newAnalyzer(t, Options{Logger: log.FromZap(zap.New(core))})

	src := `function ok() { var x = null; if (x) { return 1; } }
function legacy(o) {
  with (o) { run(); }
}
`
	res, err := a.AnalyzeSource(context.Background(), "legacy.js", []byte(src))
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "legacy", res.Skipped[0].Name)
	assert.Equal(t, 2, res.Skipped[0].Line)
	require.Len(t, res.Issues, 1, "other functions are still analyzed")
	assert.Equal(t, checks.AlwaysTrueOrFalseKey, res.Issues[0].Rule)

	warnings := logs.FilterMessage("unsupported construct, function skipped").All()
	require.Len(t, warnings, 1, "logged once")
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "legacy", warnings[0].ContextMap()["function"])
	assert.Equal(t, "with_statement", warnings[0].ContextMap()["kind"])
}

func TestAnalyzeSource_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	registry := checks.Default()
	registry["X0001"] = checks.Definition{
		Key:  "X0001",
		Name: "Exploding",
		New:  func(checks.Context) checks.Rule { panic("boom") },
	}
	a := newAnalyzer(t, Options{Registry: registry, Logger: log.FromZap(zap.New(core))})

	res, err := a.AnalyzeSource(context.Background(), "f.js", []byte(nullInitSrc))
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "internal error: boom", res.Skipped[1].Reason)

	errs := logs.FilterMessage("internal error, function skipped").All()
	require.Len(t, errs, 2)
	assert.Equal(t, "g", errs[1].ContextMap()["function"])
	assert.Equal(t, "boom", errs[1].ContextMap()["panic"])
}

func TestAnalyzeSource_Truncated(t *testing.T) {
	a := newAnalyzer(t, Options{Engine: se.Options{MaxExploredNodes: 1}})
	res, err := a.AnalyzeSource(context.Background(), "g.js", []byte(nullInitSrc))
	require.NoError(t, err)
	assert.Empty(t, res.Issues, "truncated runs report nothing")
	assert.Positive(t, res.Truncated)
}

func TestAnalyzeSource_Deterministic(t *testing.T) {
	src := nullInitSrc + "\n" + `function h(a, b) {
  let v;
  while (a) {
    if (b) { v = null; } else { v = {}; }
    a = next();
  }
  return v.z;
}`
	first, err := newAnalyzer(t, Options{}).AnalyzeSource(context.Background(), "d.js", []byte(src))
	require.NoError(t, err)
	second, err := newAnalyzer(t, Options{}).AnalyzeSource(context.Background(), "d.js", []byte(src))
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ between runs (-first +second):\n%s", diff)
	}
}

func TestAnalyzeSource_Cache(t *testing.T) {
	c := cache.New(cache.Options{MaxSize: 10})
	a := newAnalyzer(t, Options{Cache: c, Fingerprint: 42})
	ctx := context.Background()

	first, err := a.AnalyzeSource(ctx, "one.js", []byte(nullInitSrc))
	require.NoError(t, err)
	second, err := a.AnalyzeSource(ctx, "two.js", []byte(nullInitSrc))
	require.NoError(t, err)

	assert.Equal(t, int64(1), c.Stats().Hits)
	assert.Equal(t, "two.js", second.Path)
	require.Len(t, second.Issues, 1)
	assert.Equal(t, "two.js", second.Issues[0].File)
	assert.Equal(t, "one.js", first.Issues[0].File, "cached entry is not modified")

	other := newAnalyzer(t, Options{Cache: c, Fingerprint: 43})
	_, err = other.AnalyzeSource(ctx, "one.js", []byte(nullInitSrc))
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Stats().Hits, "another fingerprint misses")
}

func TestAnalyzeSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newAnalyzer(t, Options{}).AnalyzeSource(ctx, "g.js", []byte(nullInitSrc))
	assert.ErrorIs(t, err, context.Canceled)
}

func writeFiles(t *testing.T, files map[string]string) []scanner.FileInfo {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
	}
	found, err := scanner.Scan(dir)
	require.NoError(t, err)
	return found
}

func TestRunner(t *testing.T) {
	defer goleak.VerifyNone(t)

	files := writeFiles(t, map[string]string{
		"a.js": nullCheckSrc,
		"b.js": nullInitSrc,
		"c.ts": `function c(s: string): number { return s.length; }`,
	})
	files = append(files, scanner.FileInfo{Path: "gone.js", FullPath: filepath.Join(t.TempDir(), "gone.js")})

	runner := NewRunner(newAnalyzer(t, Options{}), 2)
	var (
		mu      sync.Mutex
		maxDone int
		totals  []int
	)
	runner.OnFile = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		maxDone = max(maxDone, done)
		totals = append(totals, total)
	}

	report, err := runner.Run(context.Background(), files)
	require.NoError(t, err)

	require.Len(t, report.Files, 3)
	assert.Equal(t, []string{"a.js", "b.js", "c.ts"}, []string{report.Files[0].Path, report.Files[1].Path, report.Files[2].Path})
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "gone.js", report.Failures[0].Path)
	assert.Equal(t, 4, maxDone)
	assert.Equal(t, []int{4, 4, 4, 4}, totals)

	issues := report.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, "b.js", issues[0].File)
}

func TestRunner_ParallelMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	srcs := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		srcs[name+".js"] = nullInitSrc
	}
	files := writeFiles(t, srcs)

	sequential, err := NewRunner(newAnalyzer(t, Options{}), 1).Run(context.Background(), files)
	require.NoError(t, err)
	parallel, err := NewRunner(newAnalyzer(t, Options{}), 4).Run(context.Background(), files)
	require.NoError(t, err)

	if diff := cmp.Diff(sequential, parallel); diff != "" {
		t.Errorf("parallel report differs (-sequential +parallel):\n%s", diff)
	}
	assert.Len(t, parallel.Issues(), 8)
}

func TestRunner_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	files := writeFiles(t, map[string]string{"a.js": nullInitSrc, "b.js": nullInitSrc})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(newAnalyzer(t, Options{}), 2).Run(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestReport_IssuesEmpty(t *testing.T) {
	r := &Report{Files: []*types.FileResult{{Path: "a.js"}}}
	assert.Empty(t, r.Issues())
}
