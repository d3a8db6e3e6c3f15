package se

import (
	"container/list"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
)

// Liveness holds the variables live at the entry of every block of a graph,
// computed with a backward worklist over normal and exception edges.
type Liveness struct {
	in       map[cfg.BlockID]map[int]bool
	assigned map[cfg.BlockID][]*ast.Symbol
}

// ComputeLiveness computes live variables for the symbols fn owns. Symbols
// read by nested functions are live everywhere.
func ComputeLiveness(g *cfg.Graph, fn *ast.Function) *Liveness {
	l := &Liveness{
		in:       make(map[cfg.BlockID]map[int]bool),
		assigned: make(map[cfg.BlockID][]*ast.Symbol),
	}
	always := make(map[int]bool)
	for _, sym := range fn.Symbols {
		if sym.ReadInNested {
			always[sym.ID] = true
		}
	}
	owned := func(sym *ast.Symbol) bool { return sym != nil && sym.Owner == fn }

	preds := make(map[cfg.BlockID][]cfg.BlockID)
	for _, blk := range g.Blocks {
		l.in[blk.ID] = copySet(always)
		for _, sym := range assignedIn(blk) {
			if owned(sym) {
				l.assigned[blk.ID] = append(l.assigned[blk.ID], sym)
			}
		}
		for _, s := range blk.Successors {
			preds[s] = append(preds[s], blk.ID)
		}
		if blk.Exception != cfg.NoBlock {
			preds[blk.Exception] = append(preds[blk.Exception], blk.ID)
		}
	}

	worklist := list.New()
	queued := make(map[cfg.BlockID]bool)
	for i := len(g.Blocks) - 1; i >= 0; i-- {
		worklist.PushBack(g.Blocks[i].ID)
		queued[g.Blocks[i].ID] = true
	}
	for worklist.Len() > 0 {
		id := worklist.Remove(worklist.Front()).(cfg.BlockID)
		queued[id] = false
		blk := g.Block(id)

		live := copySet(always)
		for _, s := range blk.Successors {
			union(live, l.in[s])
		}
		if blk.Exception != cfg.NoBlock {
			union(live, l.in[blk.Exception])
		}
		for i := len(blk.Elements) - 1; i >= 0; i-- {
			el := blk.Elements[i]
			for _, sym := range defs(el) {
				if owned(sym) && !always[sym.ID] {
					delete(live, sym.ID)
				}
			}
			for _, sym := range uses(el) {
				if owned(sym) {
					live[sym.ID] = true
				}
			}
		}

		if len(live) == len(l.in[id]) {
			continue
		}
		l.in[id] = live
		for _, p := range preds[id] {
			if !queued[p] {
				queued[p] = true
				worklist.PushBack(p)
			}
		}
	}
	return l
}

// In returns the symbol IDs live at the entry of block.
func (l *Liveness) In(block cfg.BlockID) map[int]bool {
	return l.in[block]
}

// Assigned returns the owned symbols that elements of block may assign.
func (l *Liveness) Assigned(block cfg.BlockID) []*ast.Symbol {
	return l.assigned[block]
}

func copySet(s map[int]bool) map[int]bool {
	out := make(map[int]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func union(dst, src map[int]bool) {
	for k := range src {
		dst[k] = true
	}
}

// uses returns the symbols element reads.
func uses(el ast.Node) []*ast.Symbol {
	switch n := el.(type) {
	case *ast.Ident:
		return []*ast.Symbol{n.Sym}
	case *ast.Opaque:
		var out []*ast.Symbol
		for _, p := range n.Parts {
			ast.Inspect(p, func(c ast.Node) bool {
				if id, ok := c.(*ast.Ident); ok {
					out = append(out, id.Sym)
				}
				return true
			})
		}
		return out
	}
	return nil
}

// defs returns the symbols element certainly assigns. Loop targets are left
// out because the exit edge keeps their previous value.
func defs(el ast.Node) []*ast.Symbol {
	switch n := el.(type) {
	case *ast.Assign:
		if n.Op == "=" {
			return targetSymbols(n.Target)
		}
		if id, ok := n.Target.(*ast.Ident); ok {
			return []*ast.Symbol{id.Sym}
		}
	case *ast.Update:
		if id, ok := n.X.(*ast.Ident); ok {
			return []*ast.Symbol{id.Sym}
		}
	case *ast.Declarator:
		if n.Init != nil || n.Kind != ast.SymbolVar {
			return targetSymbols(n.Target)
		}
	case *ast.CatchParam:
		return targetSymbols(n.Target)
	}
	return nil
}

// assignedIn returns every symbol the elements of blk may assign, including
// loop targets.
func assignedIn(blk *cfg.Block) []*ast.Symbol {
	var out []*ast.Symbol
	for _, el := range blk.Elements {
		out = append(out, defs(el)...)
	}
	if forIn, ok := blk.Branch.(*ast.ForIn); ok {
		out = append(out, targetSymbols(forIn.Left)...)
	}
	return out
}

func targetSymbols(target ast.Expr) []*ast.Symbol {
	switch t := target.(type) {
	case *ast.Ident:
		return []*ast.Symbol{t.Sym}
	case *ast.Pattern:
		out := make([]*ast.Symbol, 0, len(t.Names))
		for _, id := range t.Names {
			out = append(out, id.Sym)
		}
		return out
	}
	return nil
}
