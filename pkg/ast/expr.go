package ast

// Ident is an identifier reference or binding. Sym is nil for globals and
// names that resolve to no declaration.
type Ident struct {
	Loc
	Name string
	Sym  *Symbol
}

// LiteralKind classifies literals.
type LiteralKind string

const (
	LitNull      LiteralKind = "null"
	LitUndefined LiteralKind = "undefined"
	LitBool      LiteralKind = "boolean"
	LitNumber    LiteralKind = "number"
	LitString    LiteralKind = "string"
	LitRegex     LiteralKind = "regex"
	LitBigInt    LiteralKind = "bigint"
)

// Literal is a literal value.
type Literal struct {
	Loc
	Kind     LiteralKind
	Raw      string  // Source text
	Bool     bool    // Value of a LitBool
	Str      string  // Unquoted value of a LitString
	Num      float64 // Value of a LitNumber or LitBigInt when NumKnown
	NumKnown bool
}

// Template is a template string. Exprs are the substitutions in order.
type Template struct {
	Loc
	Exprs []Expr
	Empty bool // No characters and no substitutions
}

// TaggedTemplate is a tagged template call.
type TaggedTemplate struct {
	Loc
	Tag   Expr
	Quasi *Template
}

// This is the this keyword.
type This struct {
	Loc
}

// Super is the super keyword.
type Super struct {
	Loc
}

// FuncLit is a function or arrow function expression.
type FuncLit struct {
	Loc
	Func *Function
}

// Class is a class body shared by declarations and expressions.
type Class struct {
	Loc
	Name     string
	Heritage Expr // Superclass expression, nil when absent
	Methods  []*Function
}

// ClassLit is a class expression.
type ClassLit struct {
	Loc
	Class *Class
}

// Array is an array literal. Holes are omitted.
type Array struct {
	Loc
	Elems []Expr
}

// Property is an object literal entry. Key is set only for computed keys.
// Value is nil for methods and accessors, which are separate functions.
type Property struct {
	Loc
	Key   Expr
	Value Expr
}

// Object is an object literal.
type Object struct {
	Loc
	Props []*Property
}

// Unary is a prefix operator: ! - + ~ typeof void delete.
type Unary struct {
	Loc
	Op string
	X  Expr
}

// Update is ++ or --.
type Update struct {
	Loc
	Op     string
	Prefix bool
	X      Expr
}

// Binary is an arithmetic, bitwise, comparison, in or instanceof operator.
type Binary struct {
	Loc
	Op string
	X  Expr
	Y  Expr
}

// Logical is a short-circuit operator: && || ??.
type Logical struct {
	Loc
	Op string
	X  Expr
	Y  Expr
}

// Assign is an assignment. Op is "=" or a compound operator such as "+=".
type Assign struct {
	Loc
	Op     string
	Target Expr // *Ident, *Member, *Index or *Pattern
	Value  Expr
}

// Cond is the conditional operator test ? then : else.
type Cond struct {
	Loc
	Test Expr
	Then Expr
	Else Expr
}

// Call is a function call.
type Call struct {
	Loc
	Callee   Expr
	Args     []Expr
	Optional bool
}

// New is a constructor call.
type New struct {
	Loc
	Callee Expr
	Args   []Expr
}

// Member is a dotted property access. InChain is set when an earlier link
// of the same chain is optional, so a nullish object short-circuits it too.
type Member struct {
	Loc
	X        Expr
	Prop     string
	Optional bool
	InChain  bool
}

// Index is a computed property access.
type Index struct {
	Loc
	X        Expr
	Index    Expr
	Optional bool
	InChain  bool
}

// Seq is the comma operator.
type Seq struct {
	Loc
	List []Expr
}

// Spread is a spread element in an array, call or object.
type Spread struct {
	Loc
	X Expr
}

// Await is an await expression.
type Await struct {
	Loc
	X Expr
}

// Yield is a yield expression. X is nil for a bare yield.
type Yield struct {
	Loc
	X        Expr
	Delegate bool
}

// Pattern is a destructuring target. Only the bound identifiers are kept.
type Pattern struct {
	Loc
	Names []*Ident
}

// Opaque is an expression whose value is unknown and whose parts are not
// evaluated, such as JSX or import.meta. Parts holds embedded expressions so
// that scope resolution and function discovery still see them.
type Opaque struct {
	Loc
	Kind  string
	Parts []Expr
}

// Unsupported is a construct the analysis cannot model. It can stand for a
// statement or an expression.
type Unsupported struct {
	Loc
	Kind string
}

func (*Ident) expr()          {}
func (*Literal) expr()        {}
func (*Template) expr()       {}
func (*TaggedTemplate) expr() {}
func (*This) expr()           {}
func (*Super) expr()          {}
func (*FuncLit) expr()        {}
func (*ClassLit) expr()       {}
func (*Array) expr()          {}
func (*Object) expr()         {}
func (*Unary) expr()          {}
func (*Update) expr()         {}
func (*Binary) expr()         {}
func (*Logical) expr()        {}
func (*Assign) expr()         {}
func (*Cond) expr()           {}
func (*Call) expr()           {}
func (*New) expr()            {}
func (*Member) expr()         {}
func (*Index) expr()          {}
func (*Seq) expr()            {}
func (*Spread) expr()         {}
func (*Await) expr()          {}
func (*Yield) expr()          {}
func (*Pattern) expr()        {}
func (*Opaque) expr()         {}
func (*Unsupported) expr()    {}
func (*Unsupported) stmt()    {}

// Property and Class are parts of literals, not expressions on their own.
var (
	_ Node = (*Property)(nil)
	_ Node = (*Class)(nil)
	_ Node = (*Function)(nil)
)

// IsNullish reports whether e is the null or undefined literal.
func IsNullish(e Expr) bool {
	lit, ok := e.(*Literal)
	return ok && (lit.Kind == LitNull || lit.Kind == LitUndefined)
}

// IsBooleanLiteral reports whether e is true or false.
func IsBooleanLiteral(e Expr) bool {
	lit, ok := e.(*Literal)
	return ok && lit.Kind == LitBool
}
