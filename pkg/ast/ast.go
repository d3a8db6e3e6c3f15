// Package ast defines the syntax tree consumed by the CFG builder and the
// symbolic execution engine.
//
// The tree is a closed sum type: every node implements Node, and statements
// and expressions additionally implement Stmt or Expr. The set of concrete
// types is fixed by this package, so consumers can rely on exhaustive type
// switches. Trees are produced by the parser package and are not modified
// after scope resolution.
package ast

import "fmt"

// Pos is a 1-based line and column position in a source file.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Range is the source extent of a node.
type Range struct {
	Start     Pos `json:"start"`
	End       Pos `json:"end"`
	StartByte int `json:"start_byte"`
	EndByte   int `json:"end_byte"`
}

// Node is implemented by every syntax tree node.
type Node interface {
	Span() Range
	node()
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmt()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	expr()
}

// Loc carries the source range of a node. It is embedded by every concrete
// node type.
type Loc struct {
	Range Range
}

// Span returns the source range of the node.
func (l Loc) Span() Range { return l.Range }

func (Loc) node() {}

// SymbolKind classifies a declared name.
type SymbolKind string

const (
	SymbolVar       SymbolKind = "var"
	SymbolLet       SymbolKind = "let"
	SymbolConst     SymbolKind = "const"
	SymbolParam     SymbolKind = "param"
	SymbolFunction  SymbolKind = "function"
	SymbolClass     SymbolKind = "class"
	SymbolImport    SymbolKind = "import"
	SymbolCatch     SymbolKind = "catch"
	SymbolArguments SymbolKind = "arguments"
)

// Symbol is a declared name. Identifiers that resolve to the same declaration
// share one Symbol.
type Symbol struct {
	ID    int        // Unique within a file, assigned in declaration order
	Name  string     // Declared name
	Kind  SymbolKind // Declaration kind
	Decl  Range      // Range of the declaring identifier
	Owner *Function  // Function (or script) whose scope declares the symbol

	// WrittenInNested is set when a function nested in Owner assigns the symbol.
	// Such symbols can change at any call and are never tracked.
	WrittenInNested bool
	// ReadInNested is set when a function nested in Owner reads the symbol.
	ReadInNested bool
}

// Trackable reports whether the engine may bind the symbol to symbolic values.
func (s *Symbol) Trackable() bool {
	return s != nil && !s.WrittenInNested
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s#%d", s.Name, s.ID)
}

// FunctionKind distinguishes function forms.
type FunctionKind string

const (
	FuncScript      FunctionKind = "script"
	FuncDeclaration FunctionKind = "declaration"
	FuncExpression  FunctionKind = "expression"
	FuncArrow       FunctionKind = "arrow"
	FuncMethod      FunctionKind = "method"
)

// Function is an analysis unit: a function body or the top level of a file.
type Function struct {
	Loc
	Name      string
	Kind      FunctionKind
	Params    []Expr // *Ident or *Pattern
	Body      []Stmt
	Async     bool
	Generator bool

	// Filled by scope resolution.
	Symbols   []*Symbol // Symbols declared in this function's scope, in declaration order
	Arguments *Symbol   // Implicit arguments object, nil when never referenced
	Parent    *Function // Enclosing function, nil for the script
}

// DisplayName returns a printable name for the function.
func (f *Function) DisplayName() string {
	switch {
	case f.Kind == FuncScript:
		return "<script>"
	case f.Name != "":
		return f.Name
	default:
		return fmt.Sprintf("<anonymous@%s>", f.Range.Start)
	}
}

// File is a parsed source file.
type File struct {
	Path      string
	Script    *Function   // Top-level code
	Functions []*Function // Every function in the file, script first, in source order
	HasErrors bool        // Parser reported syntax errors
}
