package ast

// ExprStmt is an expression evaluated for its effects.
type ExprStmt struct {
	Loc
	X Expr
}

// VarDecl is a var, let or const declaration.
type VarDecl struct {
	Loc
	Kind  SymbolKind // SymbolVar, SymbolLet or SymbolConst
	Decls []*Declarator
}

// Declarator binds one target in a declaration. Init is nil when absent.
type Declarator struct {
	Loc
	Kind   SymbolKind
	Target Expr // *Ident or *Pattern
	Init   Expr
}

// FuncDecl is a function declaration statement.
type FuncDecl struct {
	Loc
	Name *Ident
	Func *Function
}

// ClassDecl is a class declaration statement.
type ClassDecl struct {
	Loc
	Name  *Ident
	Class *Class
}

// Return is a return statement. Arg is nil for a bare return.
type Return struct {
	Loc
	Arg Expr
}

// Throw is a throw statement.
type Throw struct {
	Loc
	Arg Expr
}

// If is an if statement. Else is nil when absent.
type If struct {
	Loc
	Cond Expr
	Then Stmt
	Else Stmt
}

// For is a C-style for loop. Init is a *VarDecl, an expression statement or nil.
type For struct {
	Loc
	Init   Stmt
	Cond   Expr
	Update Expr
	Body   Stmt
}

// ForIn is a for-in or for-of loop.
type ForIn struct {
	Loc
	Of    bool
	Await bool
	Decl  SymbolKind // Declaration kind of Left, empty when Left is an existing target
	Left  Expr       // *Ident, *Pattern, *Member or *Index
	Right Expr
	Body  Stmt
}

// While is a while loop.
type While struct {
	Loc
	Cond Expr
	Body Stmt
}

// DoWhile is a do-while loop.
type DoWhile struct {
	Loc
	Body Stmt
	Cond Expr
}

// Block is a braced statement list.
type Block struct {
	Loc
	Body []Stmt
}

// Labeled is a labeled statement.
type Labeled struct {
	Loc
	Label string
	Body  Stmt
}

// Break is a break statement with an optional label.
type Break struct {
	Loc
	Label string
}

// Continue is a continue statement with an optional label.
type Continue struct {
	Loc
	Label string
}

// Try is a try statement. Handler and Finalizer may be nil, but not both.
type Try struct {
	Loc
	Body      *Block
	Param     *CatchParam
	Handler   *Block
	Finalizer *Block
}

// CatchParam binds the exception in a catch clause. Target is nil for an
// optional catch binding.
type CatchParam struct {
	Loc
	Target Expr // *Ident or *Pattern
}

// Switch is a switch statement.
type Switch struct {
	Loc
	Disc  Expr
	Cases []*Case
}

// Case is one clause of a switch. Test is nil for default.
type Case struct {
	Loc
	Test Expr
	Body []Stmt
}

// Empty is an empty statement.
type Empty struct {
	Loc
}

// Debugger is a debugger statement.
type Debugger struct {
	Loc
}

// ModuleDecl is an import or an export without a declaration.
type ModuleDecl struct {
	Loc
	Bindings []*Ident // Names bound by an import
}

// TypeDecl is a TypeScript declaration with no run-time effect.
type TypeDecl struct {
	Loc
	Kind string
}

func (*ExprStmt) stmt()   {}
func (*VarDecl) stmt()    {}
func (*Declarator) stmt() {}
func (*FuncDecl) stmt()   {}
func (*ClassDecl) stmt()  {}
func (*Return) stmt()     {}
func (*Throw) stmt()      {}
func (*If) stmt()         {}
func (*For) stmt()        {}
func (*ForIn) stmt()      {}
func (*While) stmt()      {}
func (*DoWhile) stmt()    {}
func (*Block) stmt()      {}
func (*Labeled) stmt()    {}
func (*Break) stmt()      {}
func (*Continue) stmt()   {}
func (*Try) stmt()        {}
func (*CatchParam) stmt() {}
func (*Switch) stmt()     {}
func (*Case) stmt()       {}
func (*Empty) stmt()      {}
func (*Debugger) stmt()   {}
func (*ModuleDecl) stmt() {}
func (*TypeDecl) stmt()   {}
