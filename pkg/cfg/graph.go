package cfg

import (
	"errors"
	"fmt"

	"github.com/l3aro/jsflow/pkg/ast"
)

// ErrUnsupported is returned (wrapped in an *UnsupportedError) when a body
// contains a construct the builder cannot model.
var ErrUnsupported = errors.New("unsupported construct")

// UnsupportedError describes why a body could not be converted.
type UnsupportedError struct {
	Kind   string  // Node kind that failed
	Pos    ast.Pos // Position of the node
	Reason string  // Optional detail
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Pos, ErrUnsupported)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// BlockID addresses a block in its Graph.
type BlockID int

// NoBlock is the absent block handle.
const NoBlock BlockID = -1

// Block is a basic block.
type Block struct {
	ID           BlockID
	Elements     []ast.Node // Evaluation order
	Successors   []BlockID  // True successor first for branching blocks
	Predecessors []BlockID  // Live predecessors over normal edges
	Exception    BlockID    // Handler entry for blocks inside a try region, else NoBlock
	Branch       ast.Node   // Statement or expression that branches here, nil for simple blocks
	LoopHead     bool       // Target of a loop back edge
	Dead         bool       // Unreachable from the entry

	// KeepsValue marks the branch of a short-circuit expression whose value
	// is used: the short-circuit edge leaves the tested operand on the stack
	// as the result.
	KeepsValue bool
}

// IsBranching reports whether the block ends in a two-way branch.
func (b *Block) IsBranching() bool {
	return b.Branch != nil && len(b.Successors) == 2
}

// TrueSuccessor returns the successor taken when the branch condition holds.
func (b *Block) TrueSuccessor() BlockID {
	if len(b.Successors) == 0 {
		return NoBlock
	}
	return b.Successors[0]
}

// FalseSuccessor returns the successor taken when the branch condition fails.
func (b *Block) FalseSuccessor() BlockID {
	if len(b.Successors) < 2 {
		return NoBlock
	}
	return b.Successors[1]
}

// Condition returns the element whose value decides the branch.
func (b *Block) Condition() ast.Node {
	if !b.IsBranching() || len(b.Elements) == 0 {
		return nil
	}
	return b.Elements[len(b.Elements)-1]
}

// Graph is the control flow graph of one body. It is immutable once built.
type Graph struct {
	Blocks   []*Block
	Entry    BlockID
	End      BlockID // Normal exit
	ThrowEnd BlockID // Uncaught exception exit
}

// Block returns the block with the given handle.
func (g *Graph) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(g.Blocks) {
		return nil
	}
	return g.Blocks[id]
}

// LiveBlocks returns the blocks reachable from the entry.
func (g *Graph) LiveBlocks() []*Block {
	out := make([]*Block, 0, len(g.Blocks))
	for _, b := range g.Blocks {
		if !b.Dead {
			out = append(out, b)
		}
	}
	return out
}

// DeadBlocks returns the blocks that hold unreachable code.
func (g *Graph) DeadBlocks() []*Block {
	var out []*Block
	for _, b := range g.Blocks {
		if b.Dead {
			out = append(out, b)
		}
	}
	return out
}
