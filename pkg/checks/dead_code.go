package checks

import (
	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
	"github.com/l3aro/jsflow/pkg/se"
	"github.com/l3aro/jsflow/pkg/types"
)

// DeadCodeKey is the key of the DeadCode rule.
const DeadCodeKey = "S1763"

// DeadCode reports the first statement of every unreachable region of the
// graph. It does not need the exploration.
type DeadCode struct {
	se.BaseCheck
	issues []types.Issue
}

// NewDeadCode finds the unreachable regions of g.
func NewDeadCode(g *cfg.Graph) *DeadCode {
	c := &DeadCode{}
	if g == nil {
		return c
	}

	// finally bodies are copied onto each exit; a copy on a dead exit holds
	// the same nodes as a live one.
	live := make(map[ast.Node]bool)
	for _, blk := range g.LiveBlocks() {
		for _, el := range blk.Elements {
			live[el] = true
		}
	}

	covered := make(map[cfg.BlockID]bool)
	var cover func(id cfg.BlockID)
	cover = func(id cfg.BlockID) {
		blk := g.Block(id)
		if blk == nil || !blk.Dead || covered[id] {
			return
		}
		covered[id] = true
		for _, s := range blk.Successors {
			cover(s)
		}
		cover(blk.Exception)
	}

	// Dead blocks are ordered by position, so a region's first block comes
	// before the blocks it flows into.
	for _, blk := range g.DeadBlocks() {
		if covered[blk.ID] || isCopy(blk, live) {
			continue
		}
		el := firstStatement(blk)
		if el == nil {
			continue
		}
		cover(blk.ID)
		c.issues = append(c.issues, types.Issue{
			Location: locationOf(el),
			Message:  "Remove this unreachable code.",
			Rule:     DeadCodeKey,
		})
	}
	return c
}

func (c *DeadCode) Key() string { return DeadCodeKey }

func (c *DeadCode) Issues() []types.Issue { return c.issues }

func isCopy(blk *cfg.Block, live map[ast.Node]bool) bool {
	for _, el := range blk.Elements {
		if live[el] {
			return true
		}
	}
	return false
}

// firstStatement returns the outermost element that starts first in blk.
// Function declarations are hoisted and never unreachable.
func firstStatement(blk *cfg.Block) ast.Node {
	var first ast.Node
	for _, el := range blk.Elements {
		if _, ok := el.(*ast.FuncDecl); ok {
			continue
		}
		if first == nil {
			first = el
			continue
		}
		s, f := el.Span(), first.Span()
		if s.StartByte < f.StartByte || (s.StartByte == f.StartByte && s.EndByte > f.EndByte) {
			first = el
		}
	}
	return first
}
