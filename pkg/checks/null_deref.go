package checks

import (
	"fmt"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/se"
	"github.com/l3aro/jsflow/pkg/types"
)

// NullDereferenceKey is the key of the NullDereference rule.
const NullDereferenceKey = "S2259"

// NullDereference reports property accesses on values proven to be null or
// undefined.
type NullDereference struct {
	se.BaseCheck
	seen   map[ast.Node]bool
	found  []types.Issue
	issues []types.Issue
}

// NewNullDereference creates the rule.
func NewNullDereference() *NullDereference {
	return &NullDereference{seen: make(map[ast.Node]bool)}
}

func (c *NullDereference) Key() string { return NullDereferenceKey }

func (c *NullDereference) OnProgramPoint(_ se.ProgramPoint, state *se.ProgramState, element ast.Node) {
	if c.seen[element] {
		return
	}
	obj, v := se.DereferencedObject(element, state)
	if obj == nil || !se.IsNully(state, v) {
		return
	}
	c.seen[element] = true
	c.found = append(c.found, types.Issue{
		Location: locationOf(obj),
		Message:  fmt.Sprintf("TypeError can be thrown as %q might be null or undefined here.", exprName(obj)),
		Rule:     NullDereferenceKey,
	})
}

func (c *NullDereference) OnFunctionExplorationEnd(completed bool) {
	if completed {
		c.issues = c.found
	}
}

func (c *NullDereference) Issues() []types.Issue { return c.issues }
