package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/parser"
)

func resolve(t *testing.T, src string) *ast.File {
	t.Helper()
	file, err := parser.ParseString(src, parser.JavaScript)
	require.NoError(t, err)
	Resolve(file)
	return file
}

// idents collects every identifier named name under fn, not descending into
// nested functions.
func idents(fn *ast.Function, name string) []*ast.Ident {
	var out []*ast.Ident
	var visit func(n ast.Node)
	visit = func(n ast.Node) {
		switch n := n.(type) {
		case nil:
			return
		case *ast.Ident:
			if n != nil && n.Name == name {
				out = append(out, n)
			}
			return
		case *ast.Function, *ast.FuncLit:
			return
		}
		for _, c := range ast.Children(n) {
			visit(c)
		}
	}
	for _, s := range fn.Body {
		visit(s)
	}
	return out
}

func symbolNames(fn *ast.Function) []string {
	var names []string
	for _, s := range fn.Symbols {
		names = append(names, s.Name)
	}
	return names
}

func TestResolve_VarHoisting(t *testing.T) {
	file := resolve(t, `function f(a) {
  x = a;
  if (a) { var x = 1; }
  return x;
}`)
	fn := file.Functions[1]
	assert.Equal(t, []string{"f"}, symbolNames(file.Script))
	assert.Equal(t, []string{"a", "x"}, symbolNames(fn))

	xs := idents(fn, "x")
	require.Len(t, xs, 3)
	for _, id := range xs {
		require.NotNil(t, id.Sym)
		assert.Same(t, xs[0].Sym, id.Sym)
	}
	assert.Equal(t, ast.SymbolVar, xs[0].Sym.Kind)
	assert.Same(t, fn, xs[0].Sym.Owner)
	assert.True(t, xs[0].Sym.Trackable())
}

func TestResolve_BlockScoping(t *testing.T) {
	file := resolve(t, `function f() {
  let x = 1;
  {
    let x = 2;
    x;
  }
  return x;
}`)
	fn := file.Functions[1]
	xs := idents(fn, "x")
	require.Len(t, xs, 4)

	outer, inner := xs[0].Sym, xs[1].Sym
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	assert.NotSame(t, outer, inner)
	assert.Same(t, inner, xs[2].Sym, "block reference binds to the inner let")
	assert.Same(t, outer, xs[3].Sym, "return binds to the outer let")
	assert.Equal(t, ast.SymbolLet, outer.Kind)
	assert.NotEqual(t, outer.ID, inner.ID)
}

func TestResolve_Globals(t *testing.T) {
	file := resolve(t, `function f() { return undeclared; }`)
	ids := idents(file.Functions[1], "undeclared")
	require.Len(t, ids, 1)
	assert.Nil(t, ids[0].Sym)
	assert.False(t, ids[0].Sym.Trackable())
}

func TestResolve_NestedFunctionAccess(t *testing.T) {
	file := resolve(t, `function f() {
  var written = null;
  var read = null;
  var local = null;
  function g() { written = 1; return read; }
  return local;
}`)
	fn := file.Functions[1]
	byName := map[string]*ast.Symbol{}
	for _, s := range fn.Symbols {
		byName[s.Name] = s
	}

	require.Contains(t, byName, "written")
	assert.True(t, byName["written"].WrittenInNested)
	assert.False(t, byName["written"].Trackable())

	assert.True(t, byName["read"].ReadInNested)
	assert.False(t, byName["read"].WrittenInNested)
	assert.True(t, byName["read"].Trackable())

	assert.False(t, byName["local"].ReadInNested)
	assert.True(t, byName["local"].Trackable())

	assert.Equal(t, ast.SymbolFunction, byName["g"].Kind)
}

func TestResolve_Parameters(t *testing.T) {
	file := resolve(t, `function f(a, { b, c }) { return a + b + c; }`)
	fn := file.Functions[1]
	assert.Equal(t, []string{"a", "b", "c"}, symbolNames(fn))
	for _, s := range fn.Symbols {
		assert.Equal(t, ast.SymbolParam, s.Kind)
	}
	for _, name := range []string{"a", "b", "c"} {
		for _, id := range idents(fn, name) {
			assert.NotNil(t, id.Sym, name)
		}
	}
}

func TestResolve_CatchParameter(t *testing.T) {
	file := resolve(t, `function f() {
  try { g(); } catch (e) { return e; }
  return e;
}`)
	es := idents(file.Functions[1], "e")
	require.Len(t, es, 3)
	require.NotNil(t, es[0].Sym)
	assert.Equal(t, ast.SymbolCatch, es[0].Sym.Kind)
	assert.Same(t, es[0].Sym, es[1].Sym)
	assert.Nil(t, es[2].Sym, "catch binding is not visible after the clause")
}

func TestResolve_Arguments(t *testing.T) {
	file := resolve(t, `function f() {
  const g = () => arguments;
  return arguments;
}
arguments;`)
	fn := file.Functions[1]
	require.NotNil(t, fn.Arguments)
	assert.Equal(t, ast.SymbolArguments, fn.Arguments.Kind)
	assert.Same(t, fn.Arguments, idents(fn, "arguments")[0].Sym)
	assert.True(t, fn.Arguments.ReadInNested, "arrow functions share the enclosing arguments")

	assert.Nil(t, file.Script.Arguments)
	assert.Nil(t, idents(file.Script, "arguments")[0].Sym)
}

func TestResolve_UniqueIDs(t *testing.T) {
	file := resolve(t, `var a; function f(b) { let c; function g(d) {} }`)
	seen := map[int]string{}
	for _, fn := range file.Functions {
		for _, s := range fn.Symbols {
			prev, dup := seen[s.ID]
			assert.False(t, dup, "%s and %s share id %d", prev, s.Name, s.ID)
			seen[s.ID] = s.Name
		}
	}
	assert.Len(t, seen, 6)
}
