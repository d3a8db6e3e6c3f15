// Package cfg builds control flow graphs for JavaScript and TypeScript
// function bodies.
//
// A Graph is an arena of basic blocks addressed by BlockID. Blocks list their
// elements in evaluation order: operands first, then the node that consumes
// them. Blocks ending in a branch have two successors, true first. The types
// in this file are the serializable summary returned by Graph.Info.
package cfg

// BlockType represents the type of a CFG block in the summary.
type BlockType string

const (
	BlockTypeEntry    BlockType = "entry"     // Function entry point
	BlockTypeBranch   BlockType = "branch"    // Ends in a two-way branch
	BlockTypeLoopHead BlockType = "loop_head" // Target of a loop back edge
	BlockTypeReturn   BlockType = "return"    // Ends in a return statement
	BlockTypeExit     BlockType = "exit"      // Normal or exceptional function exit
	BlockTypeDead     BlockType = "dead"      // Unreachable from the entry
	BlockTypePlain    BlockType = "plain"     // Regular statements
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional" // Unconditional jump
	EdgeTypeTrue          EdgeType = "true"          // True branch of conditional
	EdgeTypeFalse         EdgeType = "false"         // False branch of conditional
	EdgeTypeBackEdge      EdgeType = "back_edge"     // Back edge (loop continuation)
	EdgeTypeException     EdgeType = "exception"     // Exceptional flow into a handler
)

// CFGBlock represents a basic block in the summary.
type CFGBlock struct {
	ID           string    `json:"id"`           // Unique identifier for the block
	Type         BlockType `json:"type"`         // Type of block
	StartLine    int       `json:"start_line"`   // Starting line number in source
	EndLine      int       `json:"end_line"`     // Ending line number in source
	Statements   []string  `json:"statements"`   // Source text of the block's outermost elements
	Predecessors []string  `json:"predecessors"` // IDs of blocks that can precede this block
}

// CFGEdge represents a directed edge between two CFG blocks.
type CFGEdge struct {
	SourceID  string   `json:"source_id"`           // ID of the source block
	TargetID  string   `json:"target_id"`           // ID of the target block
	EdgeType  EdgeType `json:"edge_type"`           // Type of edge
	Condition string   `json:"condition,omitempty"` // Condition expression for conditional edges
}

// CFGInfo represents the complete Control Flow Graph summary for a function.
type CFGInfo struct {
	FunctionName         string              `json:"function_name"`         // Name of the function
	Blocks               map[string]CFGBlock `json:"blocks"`                // Map of block ID to block
	Edges                []CFGEdge           `json:"edges"`                 // List of edges in the graph
	EntryBlockID         string              `json:"entry_block_id"`        // ID of the entry block
	ExitBlockIDs         []string            `json:"exit_block_ids"`        // IDs of exit blocks
	CyclomaticComplexity int                 `json:"cyclomatic_complexity"` // Cyclomatic complexity of the function
}
