package checks_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
	"github.com/l3aro/jsflow/pkg/checks"
	"github.com/l3aro/jsflow/pkg/parser"
	"github.com/l3aro/jsflow/pkg/scope"
	"github.com/l3aro/jsflow/pkg/se"
	"github.com/l3aro/jsflow/pkg/types"
)

// run explores the named function with the given rules and returns their
// issues in rule order.
func run(t *testing.T, src, name string, keys []string, opts se.Options) []types.Issue {
	t.Helper()
	file, err := parser.ParseString(src, parser.JavaScript)
	require.NoError(t, err)
	scope.Resolve(file)

	var fn *ast.Function
	for _, f := range file.Functions {
		if f.Name == name {
			fn = f
		}
	}
	require.NotNil(t, fn, "function %q", name)

	g, err := cfg.Build(fn.Body)
	require.NoError(t, err)
	rules, err := checks.New(keys, checks.Context{Graph: g, Function: fn})
	require.NoError(t, err)
	se.NewEngine(g, fn, checks.AsChecks(rules), opts).Run()

	var issues []types.Issue
	for _, r := range rules {
		issues = append(issues, r.Issues()...)
	}
	return issues
}

func TestRegistry(t *testing.T) {
	r := checks.Default()
	assert.Equal(t, []string{"S1763", "S2259", "S2583"}, r.Keys())
	for _, d := range r.Definitions() {
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Description)
	}

	rules, err := r.New(nil, checks.Context{})
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	rules, err = r.New([]string{"S2583", "S2583"}, checks.Context{})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "S2583", rules[0].Key())

	again, err := r.New([]string{"S2583"}, checks.Context{})
	require.NoError(t, err)
	assert.NotSame(t, rules[0], again[0], "every run gets fresh instances")

	_, err = r.New([]string{"S0000"}, checks.Context{})
	assert.True(t, errors.Is(err, checks.ErrUnknownRule))
}

func TestAlwaysTrueOrFalse(t *testing.T) {
	keys := []string{checks.AlwaysTrueOrFalseKey}
	tests := []struct {
		name     string
		src      string
		fn       string
		messages []string
		line     int
	}{
		{
			name:     "null initializer",
			src:      `function g() { var x = null; if (x) { return 1; } return 2; }`,
			fn:       "g",
			messages: []string{"Condition is always false."},
			line:     1,
		},
		{
			name: "null check narrows both ways",
			src:  `function f(x) { if (x === null) { return 1; } else { return x.length; } }`,
			fn:   "f",
		},
		{
			name: "nested repeat of a condition",
			src: `function f(x) {
  if (x) {
    if (x) { a(); }
  }
}`,
			fn:       "f",
			messages: []string{"Condition is always true."},
			line:     3,
		},
		{
			name: "literal loop condition is exempt",
			src:  `function f() { while (true) { if (a()) { break; } } }`,
			fn:   "f",
		},
		{
			name: "state that changes on a later loop iteration",
			src: `function f() {
  var a = 0, b = 0, c = 0;
  while (cond()) {
    if (c) { hit(); }
    if (b) { c = 1; }
    if (a) { b = 1; }
    a = 1;
  }
}`,
			fn: "f",
		},
		{
			name: "call widens the tested argument",
			src:  `function f(a) { a = null; g(a); if (a) { h(); } }`,
			fn:   "f",
		},
		{
			name: "typeof contradiction",
			src: `function f(x) {
  if (typeof x === "string") {
    if (typeof x === "number") { dead(); }
  }
}`,
			fn:       "f",
			messages: []string{"Condition is always false."},
			line:     3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := run(t, tt.src, tt.fn, keys, se.DefaultOptions())
			var messages []string
			for _, is := range issues {
				messages = append(messages, is.Message)
				assert.Equal(t, checks.AlwaysTrueOrFalseKey, is.Rule)
				assert.Equal(t, tt.line, is.Location.Line)
			}
			assert.Equal(t, tt.messages, messages)
		})
	}
}

func TestAlwaysTrueOrFalse_SilentWhenTruncated(t *testing.T) {
	src := `function g() { var x = null; if (x) { return 1; } return 2; }`
	issues := run(t, src, "g", []string{checks.AlwaysTrueOrFalseKey}, se.Options{MaxExploredNodes: 1})
	assert.Empty(t, issues)
}

func TestNullDereference(t *testing.T) {
	keys := []string{checks.NullDereferenceKey}
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{
			name:    "null literal",
			src:     `function f() { var x = null; x.foo(); }`,
			message: `TypeError can be thrown as "x" might be null or undefined here.`,
		},
		{
			name:    "uninitialized let",
			src:     `function f() { let y; return y[0]; }`,
			message: `TypeError can be thrown as "y" might be null or undefined here.`,
		},
		{
			name:    "inside a null check",
			src:     `function f(x) { if (x == null) { x.foo = 1; } }`,
			message: `TypeError can be thrown as "x" might be null or undefined here.`,
		},
		{
			name: "not null in the else branch",
			src:  `function f(x) { if (x === null) { return 1; } else { return x.length; } }`,
		},
		{
			name: "optional chaining",
			src:  `function f() { const x = null; return x?.foo; }`,
		},
		{
			name: "optional link short-circuits the rest of the chain",
			src:  `function f() { var a = null; return a?.b.c; }`,
		},
		{
			name: "optional index short-circuits the rest of the chain",
			src:  `function f() { var a = null; return a?.[0].c; }`,
		},
		{
			name: "optional call short-circuits the rest of the chain",
			src:  `function f() { var a = null; return a?.b().c; }`,
		},
		{
			name:    "links before the optional one still dereference",
			src:     `function f() { var a = null; return a.b?.c; }`,
			message: `TypeError can be thrown as "a" might be null or undefined here.`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := run(t, tt.src, "f", keys, se.DefaultOptions())
			if tt.message == "" {
				assert.Empty(t, issues)
				return
			}
			require.Len(t, issues, 1)
			assert.Equal(t, tt.message, issues[0].Message)
			assert.Equal(t, checks.NullDereferenceKey, issues[0].Rule)
		})
	}
}

func TestDeadCode(t *testing.T) {
	keys := []string{checks.DeadCodeKey}
	tests := []struct {
		name  string
		src   string
		lines []int
	}{
		{
			name: "after return",
			src: `function f() {
  return 1;
  foo();
  bar();
}`,
			lines: []int{3},
		},
		{
			name: "after break in a loop",
			src: `function f(a) {
  while (a) {
    break;
    a.c();
  }
  throw new Error();
  done();
}`,
			lines: []int{4, 7},
		},
		{
			name: "finally copy on a dead exit",
			src: `function f() {
  try {
    return 1;
  } finally {
    cleanup();
  }
  after();
}`,
			lines: []int{7},
		},
		{
			name: "hoisted function after return",
			src: `function f() {
  return g();
  function g() { return 1; }
}`,
		},
		{
			name: "no dead code",
			src:  `function f(a) { if (a) { return 1; } return 2; }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := run(t, tt.src, "f", keys, se.DefaultOptions())
			var lines []int
			for _, is := range issues {
				lines = append(lines, is.Location.Line)
				assert.Equal(t, "Remove this unreachable code.", is.Message)
			}
			assert.Equal(t, tt.lines, lines)
		})
	}
}
