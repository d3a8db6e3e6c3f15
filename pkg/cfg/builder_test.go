package cfg_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
	"github.com/l3aro/jsflow/pkg/parser"
	"github.com/l3aro/jsflow/pkg/scope"
)

// function parses src and returns the function with the given name, or the
// script when name is empty.
func function(t *testing.T, src, name string) *ast.Function {
	t.Helper()
	file, err := parser.ParseString(src, parser.JavaScript)
	require.NoError(t, err)
	scope.Resolve(file)
	if name == "" {
		return file.Script
	}
	for _, fn := range file.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %q not found", name)
	return nil
}

func build(t *testing.T, src, name string) *cfg.Graph {
	t.Helper()
	g, err := cfg.Build(function(t, src, name).Body)
	require.NoError(t, err)
	return g
}

func elementTypes(blk *cfg.Block) []string {
	out := make([]string, 0, len(blk.Elements))
	for _, el := range blk.Elements {
		switch el.(type) {
		case *ast.Ident:
			out = append(out, "ident")
		case *ast.Call:
			out = append(out, "call")
		case *ast.ExprStmt:
			out = append(out, "stmt")
		case *ast.Literal:
			out = append(out, "literal")
		case *ast.Return:
			out = append(out, "return")
		default:
			out = append(out, "other")
		}
	}
	return out
}

func findBlock(g *cfg.Graph, pred func(*cfg.Block) bool) *cfg.Block {
	for _, blk := range g.Blocks {
		if pred(blk) {
			return blk
		}
	}
	return nil
}

func startsWith(name string) func(*cfg.Block) bool {
	return func(b *cfg.Block) bool {
		if len(b.Elements) == 0 {
			return false
		}
		id, ok := b.Elements[0].(*ast.Ident)
		return ok && id.Name == name
	}
}

func lastIs[T ast.Node](blk *cfg.Block) bool {
	if len(blk.Elements) == 0 {
		return false
	}
	_, ok := blk.Elements[len(blk.Elements)-1].(T)
	return ok
}

func TestBuild_SequentialStatements(t *testing.T) {
	g := build(t, "a(); b;", "")

	require.Len(t, g.Blocks, 3)
	entry := g.Block(g.Entry)
	assert.Equal(t, []string{"ident", "call", "stmt", "ident", "stmt"}, elementTypes(entry))
	assert.Equal(t, []cfg.BlockID{g.End}, entry.Successors)
	assert.False(t, entry.IsBranching())
	assert.Equal(t, cfg.NoBlock, entry.Exception)
}

func TestBuild_EmptyBody(t *testing.T) {
	g := build(t, "", "")
	assert.Equal(t, g.End, g.Entry)
	assert.Empty(t, g.DeadBlocks())
}

func TestBuild_IfElse(t *testing.T) {
	g := build(t, "if (x) { a(); } else { b(); } c();", "")

	entry := g.Block(g.Entry)
	require.True(t, entry.IsBranching())
	assert.IsType(t, &ast.If{}, entry.Branch)
	assert.IsType(t, &ast.Ident{}, entry.Condition())

	thenBlk := g.Block(entry.TrueSuccessor())
	elseBlk := g.Block(entry.FalseSuccessor())
	require.Len(t, thenBlk.Successors, 1)
	require.Len(t, elseBlk.Successors, 1)
	assert.Equal(t, thenBlk.Successors[0], elseBlk.Successors[0], "branches merge after the if")

	join := g.Block(thenBlk.Successors[0])
	assert.ElementsMatch(t, []cfg.BlockID{thenBlk.ID, elseBlk.ID}, join.Predecessors)
}

func TestBuild_IfWithoutElse(t *testing.T) {
	g := build(t, "if (x) { a(); } c();", "")

	entry := g.Block(g.Entry)
	require.True(t, entry.IsBranching())
	thenBlk := g.Block(entry.TrueSuccessor())
	assert.Equal(t, thenBlk.Successors[0], entry.FalseSuccessor())
}

func TestBuild_ShortCircuitCondition(t *testing.T) {
	g := build(t, "if (a && b) { c(); }", "")

	first := g.Block(g.Entry)
	require.True(t, first.IsBranching())
	assert.IsType(t, &ast.Logical{}, first.Branch)
	assert.False(t, first.KeepsValue)

	second := g.Block(first.TrueSuccessor())
	require.True(t, second.IsBranching())
	assert.IsType(t, &ast.If{}, second.Branch)
	assert.Equal(t, "b", second.Condition().(*ast.Ident).Name)
	assert.Equal(t, first.FalseSuccessor(), second.FalseSuccessor(), "a falsy skips the body")
}

func TestBuild_ShortCircuitValue(t *testing.T) {
	g := build(t, "x = a || b;", "")

	branch := findBlock(g, func(b *cfg.Block) bool { return b.IsBranching() })
	require.NotNil(t, branch)
	assert.True(t, branch.KeepsValue)

	merge := g.Block(branch.TrueSuccessor())
	require.NotEmpty(t, merge.Elements)
	assert.IsType(t, &ast.Logical{}, merge.Elements[0], "a truthy short-circuits to the merge block")
}

func TestBuild_WhileLoop(t *testing.T) {
	g := build(t, "while (x) { a(); } b();", "")

	head := g.Block(g.Entry)
	assert.True(t, head.LoopHead)
	require.True(t, head.IsBranching())

	body := g.Block(head.TrueSuccessor())
	assert.Equal(t, []cfg.BlockID{head.ID}, body.Successors, "body loops back to the head")
	assert.Contains(t, head.Predecessors, body.ID)
}

func TestBuild_ForLoopWithoutCondition(t *testing.T) {
	g := build(t, "for (;;) {}", "")

	head := findBlock(g, func(b *cfg.Block) bool { return b.LoopHead })
	require.NotNil(t, head)
	assert.Equal(t, []cfg.BlockID{head.ID}, head.Successors)
}

func TestBuild_ForLoopContinueTargetsUpdate(t *testing.T) {
	g := build(t, "for (let i = 0; i < n; i++) { if (skip) continue; work(); }", "")

	cont := findBlock(g, lastIs[*ast.Continue])
	require.NotNil(t, cont)
	update := g.Block(cont.Successors[0])
	require.NotEmpty(t, update.Elements)
	assert.IsType(t, &ast.Update{}, update.Elements[len(update.Elements)-1])
	assert.True(t, g.Block(update.Successors[0]).LoopHead)
}

func TestBuild_DoWhile(t *testing.T) {
	g := build(t, "do { a(); } while (x); b();", "")

	head := g.Block(g.Entry)
	assert.True(t, head.LoopHead)
	cond := g.Block(head.Successors[0])
	require.True(t, cond.IsBranching())
	assert.Equal(t, head.ID, cond.TrueSuccessor())
}

func TestBuild_ForOf(t *testing.T) {
	g := build(t, "for (const item of items) { use(item); }", "")

	head := findBlock(g, func(b *cfg.Block) bool { return b.LoopHead })
	require.NotNil(t, head)
	require.True(t, head.IsBranching())
	forIn, ok := head.Condition().(*ast.ForIn)
	require.True(t, ok)
	assert.True(t, forIn.Of)
}

func TestBuild_ReturnMakesDeadCode(t *testing.T) {
	g := build(t, "function f() { return 1; foo(); }", "f")

	dead := g.DeadBlocks()
	require.Len(t, dead, 1)
	assert.Equal(t, "foo", dead[0].Elements[0].(*ast.Ident).Name)
	assert.Empty(t, dead[0].Predecessors)
	for _, blk := range g.LiveBlocks() {
		for _, s := range blk.Successors {
			assert.NotEqual(t, dead[0].ID, s, "no live block flows into dead code")
		}
	}
}

func TestBuild_BreakAndLabels(t *testing.T) {
	src := `
outer: for (const a of xs) {
  for (const b of ys) {
    if (b) continue outer;
    if (a) break outer;
  }
}
done();`
	g := build(t, src, "")

	brk := findBlock(g, lastIs[*ast.Break])
	require.NotNil(t, brk)
	target := g.Block(brk.Successors[0])
	assert.Equal(t, "done", target.Elements[0].(*ast.Ident).Name)

	cont := findBlock(g, lastIs[*ast.Continue])
	require.NotNil(t, cont)
	outerHead := g.Block(cont.Successors[0])
	assert.True(t, outerHead.LoopHead)
	assert.Equal(t, "xs", outerHead.Elements[0].(*ast.Ident).Name)
}

func TestBuild_JumpErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"break outside loop", "function f() { break; }"},
		{"continue outside loop", "function f() { continue; }"},
		{"unknown label", "function f() { while (x) { break nowhere; } }"},
		{"continue to non-loop label", "function f() { l: { while (x) { continue l; } } }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cfg.Build(function(t, tt.src, "f").Body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, cfg.ErrUnsupported))
		})
	}
}

func TestBuild_UnsupportedConstruct(t *testing.T) {
	_, err := cfg.Build(function(t, "function f(o) { with (o) { a(); } }", "f").Body)
	require.Error(t, err)

	var unsupported *cfg.UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "with_statement", unsupported.Kind)
	assert.Equal(t, 1, unsupported.Pos.Line)
}

func TestBuild_Switch(t *testing.T) {
	src := `switch (x) {
  case 1: a();
  case 2: b(); break;
  default: c();
}
d();`
	g := build(t, src, "")

	var tests []*cfg.Block
	for _, blk := range g.Blocks {
		if blk.IsBranching() {
			tests = append(tests, blk)
		}
	}
	require.Len(t, tests, 2)

	aBlock := findBlock(g, startsWith("a"))
	require.NotNil(t, aBlock)
	next := g.Block(aBlock.Successors[0])
	assert.Equal(t, "b", next.Elements[0].(*ast.Ident).Name, "case 1 falls through into case 2")

	last := tests[len(tests)-1]
	defaultBlock := g.Block(last.FalseSuccessor())
	assert.Equal(t, "c", defaultBlock.Elements[0].(*ast.Ident).Name)
}

func TestBuild_TryCatch(t *testing.T) {
	g := build(t, "function f() { try { a(); } catch (e) { b(e); } c(); }", "f")

	aBlock := findBlock(g, startsWith("a"))
	require.NotNil(t, aBlock)
	require.NotEqual(t, cfg.NoBlock, aBlock.Exception)

	handler := g.Block(aBlock.Exception)
	assert.IsType(t, &ast.CatchParam{}, handler.Elements[0])
	assert.False(t, handler.Dead)
	assert.Equal(t, cfg.NoBlock, handler.Exception)
}

func TestBuild_FinallyOnReturnAndThrow(t *testing.T) {
	g := build(t, "function f() { try { a(); return 1; } finally { cleanup(); } }", "f")

	ret := findBlock(g, lastIs[*ast.Return])
	require.NotNil(t, ret)
	fin := g.Block(ret.Successors[0])
	assert.Equal(t, "cleanup", fin.Elements[0].(*ast.Ident).Name)
	assert.Equal(t, []cfg.BlockID{g.End}, fin.Successors)

	require.NotEqual(t, cfg.NoBlock, ret.Exception)
	excCopy := g.Block(ret.Exception)
	assert.Equal(t, "cleanup", excCopy.Elements[0].(*ast.Ident).Name)
	assert.Equal(t, []cfg.BlockID{g.ThrowEnd}, excCopy.Successors)
}

func TestBuild_ThrowTargetsHandler(t *testing.T) {
	g := build(t, "function f() { try { throw new Error(); } catch (e) { log(e); } }", "f")

	thr := findBlock(g, lastIs[*ast.Throw])
	require.NotNil(t, thr)
	handler := g.Block(thr.Successors[0])
	assert.IsType(t, &ast.CatchParam{}, handler.Elements[0])
}

func TestBuild_ConditionalExpression(t *testing.T) {
	g := build(t, "y = x ? 1 : 2;", "")

	branch := findBlock(g, func(b *cfg.Block) bool { return b.IsBranching() })
	require.NotNil(t, branch)
	assert.IsType(t, &ast.Cond{}, branch.Branch)
	assert.False(t, branch.KeepsValue)
	assert.Equal(t, []string{"literal"}, elementTypes(g.Block(branch.TrueSuccessor())))
}

func TestBuild_Deterministic(t *testing.T) {
	src := `function f(a, b) {
  for (let i = 0; i < a.length; i++) {
    if (a[i] && b) { continue; }
    try { g(a[i]); } catch (e) { return null; } finally { done(); }
  }
  switch (b) { case 1: return 1; default: break; }
  return a || b;
}`
	first := build(t, src, "f").Info("f", []byte(src))
	second := build(t, src, "f").Info("f", []byte(src))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Info mismatch (-first +second):\n%s", diff)
	}
}
