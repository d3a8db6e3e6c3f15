package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/jsflow/internal/config"
	"github.com/l3aro/jsflow/internal/healthcheck"
	"github.com/l3aro/jsflow/pkg/cfg"
	"github.com/l3aro/jsflow/pkg/checks"
)

const (
	nullInitSrc  = "function g() { var x = null; if (x) { return 1; } return 2; }\n"
	nullCheckSrc = "function f(x) { if (x === null) { return 1; } else { return x.length; } }\n"
)

// setupProject creates an isolated home, cache and working directory.
func setupProject(t *testing.T, files map[string]string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("JSFLOW_CACHE_DIR", filepath.Join(t.TempDir(), "cache"))
	dir := t.TempDir()
	t.Chdir(dir)
	for name, src := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0755))
		require.NoError(t, os.WriteFile(name, []byte(src), 0644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd(BuildInfo{Version: "1.2.3"})
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAnalyze_JSON(t *testing.T) {
	setupProject(t, map[string]string{
		"src/f.js": nullCheckSrc,
		"src/g.js": nullInitSrc,
	})

	stdout, _, err := execute(t, "analyze", "--json")
	require.NoError(t, err)

	var out AnalyzeOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 2, out.Files)
	assert.Equal(t, 4, out.Functions)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, "src/g.js", out.Issues[0].File)
	assert.Equal(t, checks.AlwaysTrueOrFalseKey, out.Issues[0].Rule)
	assert.Equal(t, "Condition is always false.", out.Issues[0].Message)
}

func TestAnalyze_TextAndFailOnIssues(t *testing.T) {
	setupProject(t, map[string]string{"g.js": nullInitSrc})

	stdout, _, err := execute(t, "analyze", "--fail-on-issues", ".")
	assert.ErrorIs(t, err, ErrIssuesFound)
	assert.Contains(t, stdout, "g.js:1:")
	assert.Contains(t, stdout, "Condition is always false. [S2583]")
	assert.Contains(t, stdout, "1 issue in 1 file (2 functions)")
}

func TestAnalyze_NoIssues(t *testing.T) {
	setupProject(t, map[string]string{"f.js": nullCheckSrc})

	stdout, _, err := execute(t, "analyze", "--fail-on-issues")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 issues in 1 file")
}

func TestAnalyze_RuleFlag(t *testing.T) {
	setupProject(t, map[string]string{"g.js": nullInitSrc})

	stdout, _, err := execute(t, "analyze", "--json", "--rules", checks.DeadCodeKey)
	require.NoError(t, err)
	var out AnalyzeOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Empty(t, out.Issues)

	_, _, err = execute(t, "analyze", "--rules", "S0000")
	require.Error(t, err)
	assert.ErrorIs(t, err, checks.ErrUnknownRule)

	_, _, err = execute(t, "analyze", "--max-nodes", "-1")
	require.Error(t, err)
}

func TestAnalyze_WritesCache(t *testing.T) {
	setupProject(t, map[string]string{"g.js": nullInitSrc})
	cacheFile := filepath.Join(os.Getenv("JSFLOW_CACHE_DIR"), cacheFileName)

	_, _, err := execute(t, "analyze", "--no-cache")
	require.NoError(t, err)
	assert.NoFileExists(t, cacheFile)

	first, _, err := execute(t, "analyze")
	require.NoError(t, err)
	assert.FileExists(t, cacheFile)

	second, _, err := execute(t, "analyze", "--verbose")
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached results print the same")
}

func TestAnalyze_ConfigFlag(t *testing.T) {
	dir := setupProject(t, map[string]string{"g.js": nullInitSrc})

	cfgPath := filepath.Join(dir, "custom.yaml")
	custom := config.DefaultConfig()
	custom.Rules = []string{checks.NullDereferenceKey}
	require.NoError(t, custom.Save(cfgPath))

	stdout, _, err := execute(t, "analyze", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var out AnalyzeOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Empty(t, out.Issues)

	_, _, err = execute(t, "analyze", "--config", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestCFG(t *testing.T) {
	setupProject(t, map[string]string{
		"g.js":     nullInitSrc,
		"dup.js":   "function h() {}\nfunction h() { return 1; }\n",
		"notes.md": "# notes",
	})

	stdout, _, err := execute(t, "cfg", "g.js", "g")
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== CFG for function: g ===")
	assert.Contains(t, stdout, "Cyclomatic Complexity: 2")
	assert.Contains(t, stdout, "--true [x]-->")

	stdout, _, err = execute(t, "cfg", "g.js", "g", "--json")
	require.NoError(t, err)
	var info cfg.CFGInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "g", info.FunctionName)
	assert.Equal(t, 2, info.CyclomaticComplexity)

	stdout, _, err = execute(t, "cfg", "g.js", scriptName)
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== CFG for function: <script> ===")

	_, _, err = execute(t, "cfg", "g.js", "gg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean: g?")

	_, _, err = execute(t, "cfg", "dup.js", "h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	stdout, _, err = execute(t, "cfg", "dup.js", "h", "--line", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "return 1;")

	_, _, err = execute(t, "cfg", "notes.md", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	_, _, err = execute(t, "cfg", ".", "x")
	require.Error(t, err)
}

func TestRules(t *testing.T) {
	stdout, _, err := execute(t, "rules")
	require.NoError(t, err)
	for _, key := range checks.Default().Keys() {
		assert.Contains(t, stdout, key)
	}

	stdout, _, err = execute(t, "rules", "--json")
	require.NoError(t, err)
	var rules []RuleOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &rules))
	assert.Len(t, rules, len(checks.Default().Keys()))
}

func TestInit_Yes(t *testing.T) {
	setupProject(t, nil)

	stdout, _, err := execute(t, "init", "--yes")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Rules: all")
	assert.FileExists(t, config.ProjectConfigFilePath())

	loaded, err := config.LoadFromFile(config.ProjectConfigFilePath())
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().MaxExploredNodes, loaded.MaxExploredNodes)

	_, _, err = execute(t, "init", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = execute(t, "init", "--yes", "--force")
	assert.NoError(t, err)
}

func TestBuildInitConfig(t *testing.T) {
	a := defaultAnswers()
	a.rules = []string{checks.DeadCodeKey}
	a.maxNodes = "500"
	a.exclude = " vendor/ , *.min.js,"

	c, err := buildInitConfig(a)
	require.NoError(t, err)
	assert.Equal(t, []string{checks.DeadCodeKey}, c.Rules)
	assert.Equal(t, 500, c.MaxExploredNodes)
	assert.Equal(t, []string{"vendor/", "*.min.js"}, c.Exclude)

	a.rules = nil
	_, err = buildInitConfig(a)
	assert.Error(t, err)

	a = defaultAnswers()
	a.maxVisits = "0"
	_, err = buildInitConfig(a)
	assert.Error(t, err)

	assert.Error(t, positiveInt("0"))
	assert.NoError(t, nonNegativeInt("0"))
}

func TestDoctor(t *testing.T) {
	setupProject(t, nil)

	stdout, _, err := execute(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Using config: built-in defaults")
	assert.Contains(t, stdout, "grammar typescript")

	_, _, err = execute(t, "init", "--yes")
	require.NoError(t, err)
	stdout, _, err = execute(t, "doctor", "--json")
	require.NoError(t, err)
	var result healthcheck.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "project", result.EffectiveScope)
	assert.False(t, result.HasErrors())
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "jsflow version 1.2.3\n", stdout)
}
