package cfg

import (
	"fmt"
	"strings"

	"github.com/l3aro/jsflow/pkg/ast"
)

func blockName(id BlockID) string {
	return fmt.Sprintf("block_%d", id)
}

// Info returns a serializable summary of the graph. src is the file content
// the body was parsed from; it is used to render statements and conditions.
func (g *Graph) Info(functionName string, src []byte) *CFGInfo {
	info := &CFGInfo{
		FunctionName: functionName,
		Blocks:       make(map[string]CFGBlock, len(g.Blocks)),
		Edges:        make([]CFGEdge, 0),
		EntryBlockID: blockName(g.Entry),
		ExitBlockIDs: []string{blockName(g.End), blockName(g.ThrowEnd)},
	}

	for _, blk := range g.Blocks {
		cb := CFGBlock{
			ID:           blockName(blk.ID),
			Type:         g.blockType(blk),
			Statements:   make([]string, 0),
			Predecessors: make([]string, 0, len(blk.Predecessors)),
		}
		for _, p := range blk.Predecessors {
			cb.Predecessors = append(cb.Predecessors, blockName(p))
		}
		for _, el := range outermost(blk.Elements) {
			span := el.Span()
			if cb.StartLine == 0 || span.Start.Line < cb.StartLine {
				cb.StartLine = span.Start.Line
			}
			if span.End.Line > cb.EndLine {
				cb.EndLine = span.End.Line
			}
			cb.Statements = append(cb.Statements, sourceText(src, span))
		}
		info.Blocks[cb.ID] = cb

		for i, succ := range blk.Successors {
			edge := CFGEdge{SourceID: cb.ID, TargetID: blockName(succ), EdgeType: EdgeTypeUnconditional}
			if blk.IsBranching() {
				edge.EdgeType = EdgeTypeTrue
				if i == 1 {
					edge.EdgeType = EdgeTypeFalse
				}
				if cond := blk.Condition(); cond != nil {
					edge.Condition = sourceText(src, cond.Span())
				}
			} else if target := g.Block(succ); target != nil && target.LoopHead && succ <= blk.ID {
				edge.EdgeType = EdgeTypeBackEdge
			}
			info.Edges = append(info.Edges, edge)
		}
		if blk.Exception != NoBlock {
			info.Edges = append(info.Edges, CFGEdge{SourceID: cb.ID, TargetID: blockName(blk.Exception), EdgeType: EdgeTypeException})
		}
	}

	info.CyclomaticComplexity = g.CyclomaticComplexity()
	return info
}

// CyclomaticComplexity returns the number of live decision points plus one.
func (g *Graph) CyclomaticComplexity() int {
	complexity := 1
	for _, blk := range g.Blocks {
		if !blk.Dead && blk.IsBranching() {
			complexity++
		}
	}
	return complexity
}

func (g *Graph) blockType(blk *Block) BlockType {
	switch {
	case blk.ID == g.End || blk.ID == g.ThrowEnd:
		return BlockTypeExit
	case blk.Dead:
		return BlockTypeDead
	case blk.ID == g.Entry:
		return BlockTypeEntry
	case blk.LoopHead:
		return BlockTypeLoopHead
	case blk.IsBranching():
		return BlockTypeBranch
	}
	if n := len(blk.Elements); n > 0 {
		if _, ok := blk.Elements[n-1].(*ast.Return); ok {
			return BlockTypeReturn
		}
	}
	return BlockTypePlain
}

// outermost drops elements nested inside a later element of the same block.
func outermost(elements []ast.Node) []ast.Node {
	var out []ast.Node
	for i, el := range elements {
		span := el.Span()
		covered := false
		for _, later := range elements[i+1:] {
			ls := later.Span()
			if ls.StartByte <= span.StartByte && span.EndByte <= ls.EndByte {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, el)
		}
	}
	return out
}

func sourceText(src []byte, r ast.Range) string {
	if r.StartByte < 0 || r.EndByte > len(src) || r.StartByte >= r.EndByte {
		return ""
	}
	text := strings.Join(strings.Fields(string(src[r.StartByte:r.EndByte])), " ")
	const maxLen = 80
	if len(text) > maxLen {
		text = text[:maxLen-3] + "..."
	}
	return text
}
