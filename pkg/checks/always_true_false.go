package checks

import (
	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/se"
	"github.com/l3aro/jsflow/pkg/types"
)

// AlwaysTrueOrFalseKey is the key of the AlwaysTrueOrFalse rule.
const AlwaysTrueOrFalseKey = "S2583"

type outcome struct {
	cond     ast.Node
	sawTrue  bool
	sawFalse bool
}

// AlwaysTrueOrFalse reports conditions that took the same branch on every
// path that reached them. Literal true and false are exempt.
type AlwaysTrueOrFalse struct {
	se.BaseCheck
	outcomes map[ast.Node]*outcome
	order    []*outcome
	issues   []types.Issue
}

// NewAlwaysTrueOrFalse creates the rule.
func NewAlwaysTrueOrFalse() *AlwaysTrueOrFalse {
	return &AlwaysTrueOrFalse{outcomes: make(map[ast.Node]*outcome)}
}

func (c *AlwaysTrueOrFalse) Key() string { return AlwaysTrueOrFalseKey }

func (c *AlwaysTrueOrFalse) OnBranch(cond ast.Node, whenTrue, whenFalse *se.ProgramState) {
	if cond == nil {
		return
	}
	if e, ok := cond.(ast.Expr); ok && ast.IsBooleanLiteral(e) {
		return
	}
	o, ok := c.outcomes[cond]
	if !ok {
		o = &outcome{cond: cond}
		c.outcomes[cond] = o
		c.order = append(c.order, o)
	}
	o.sawTrue = o.sawTrue || whenTrue != nil
	o.sawFalse = o.sawFalse || whenFalse != nil
}

func (c *AlwaysTrueOrFalse) OnFunctionExplorationEnd(completed bool) {
	if !completed {
		return
	}
	for _, o := range c.order {
		var msg string
		switch {
		case o.sawTrue && !o.sawFalse:
			msg = "Condition is always true."
		case o.sawFalse && !o.sawTrue:
			msg = "Condition is always false."
		default:
			continue
		}
		c.issues = append(c.issues, types.Issue{
			Location: locationOf(o.cond),
			Message:  msg,
			Rule:     AlwaysTrueOrFalseKey,
		})
	}
}

func (c *AlwaysTrueOrFalse) Issues() []types.Issue { return c.issues }
