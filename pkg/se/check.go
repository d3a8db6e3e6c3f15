package se

import (
	"fmt"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
)

// ProgramPoint addresses an element of a block.
type ProgramPoint struct {
	Block  cfg.BlockID
	Offset int
}

func (p ProgramPoint) String() string {
	return fmt.Sprintf("block_%d:%d", p.Block, p.Offset)
}

// Check observes one exploration. States passed to a check are shared with
// the engine and must only be read.
type Check interface {
	// OnProgramPoint is called before element executes in state, once per
	// distinct state reaching the point.
	OnProgramPoint(pp ProgramPoint, state *ProgramState, element ast.Node)

	// OnBranch is called when a path splits on condition. A nil state marks
	// an edge that cannot be taken.
	OnBranch(condition ast.Node, whenTrue, whenFalse *ProgramState)

	// OnFunctionExplorationEnd is called once per run. completed is false
	// when a cap aborted the exploration.
	OnFunctionExplorationEnd(completed bool)
}

// BaseCheck implements Check with no-op methods. Embed it to implement only
// the callbacks a check needs.
type BaseCheck struct{}

func (BaseCheck) OnProgramPoint(ProgramPoint, *ProgramState, ast.Node) {}
func (BaseCheck) OnBranch(ast.Node, *ProgramState, *ProgramState)    {}
func (BaseCheck) OnFunctionExplorationEnd(bool)                      {}

// DereferencedObject returns the object that element accesses a property
// of, and its value on the stack of state. It returns nil when element does
// not dereference, uses optional chaining, or is short-circuited by an
// optional link earlier in its chain.
func DereferencedObject(element ast.Node, state *ProgramState) (ast.Expr, *Value) {
	switch n := element.(type) {
	case *ast.Member:
		if v := state.PeekStack(); !n.Optional && !(n.InChain && IsNully(state, v)) {
			return n.X, v
		}
	case *ast.Index:
		if v := state.PeekStackN(2)[1]; !n.Optional && !(n.InChain && IsNully(state, v)) {
			return n.X, v
		}
	case *ast.Assign:
		switch t := n.Target.(type) {
		case *ast.Member:
			return t.X, state.PeekStackN(2)[1]
		case *ast.Index:
			return t.X, state.PeekStackN(3)[2]
		}
	}
	return nil, nil
}

// NegatedValue returns the value that v is the logical negation of, or nil
// when v is not a negation. It never creates values.
func NegatedValue(v *Value) *Value {
	if v == nil || v.Kind != KindNot {
		return nil
	}
	return v.Negated
}

// IsNully reports whether v is known to be null or undefined in state.
func IsNully(state *ProgramState, v *Value) bool {
	if v == nil {
		return false
	}
	c := state.Constraint(v)
	return !c.IsContradiction() && c.IsStricterOrEqualTo(NullOrUndefined)
}
