package se

import (
	"fmt"
	"math"

	"github.com/l3aro/jsflow/pkg/ast"
)

// ValueKind tags the variants of Value.
type ValueKind uint8

const (
	KindLiteral    ValueKind = iota // Concrete literal with a known constraint
	KindUnknown                     // Fresh value with an identity
	KindNot                         // Logical negation of Negated
	KindRef                         // Alias of Target
	KindCallResult                  // Result of an unknown call
	KindEqualTo                     // Boolean: Target is in Test
	KindTypeOf                      // typeof Target, or typeof Target === TypeName
)

func (k ValueKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindUnknown:
		return "unknown"
	case KindNot:
		return "not"
	case KindRef:
		return "ref"
	case KindCallResult:
		return "call"
	case KindEqualTo:
		return "equal"
	case KindTypeOf:
		return "typeof"
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// Value is a symbolic value. Values are immutable and compared by identity;
// ProgramState maps their IDs to constraints.
type Value struct {
	Kind ValueKind
	ID   int

	Known    Constraint // Literal: the literal's category
	Negated  *Value     // Not: the negated value
	Target   *Value     // Ref: aliased value. EqualTo, TypeOf: the operand
	Test     Constraint // EqualTo: categories the operand is compared against
	TypeName string     // TypeOf: compared type name, empty for the raw typeof result
}

func (v *Value) String() string {
	switch v.Kind {
	case KindLiteral:
		return fmt.Sprintf("literal(%s)", v.Known)
	case KindNot:
		return fmt.Sprintf("!%s", v.Negated)
	case KindRef:
		return fmt.Sprintf("ref(%s)", v.Target)
	case KindEqualTo:
		return fmt.Sprintf("(%s in %s)", v.Target, v.Test)
	case KindTypeOf:
		if v.TypeName == "" {
			return fmt.Sprintf("typeof %s", v.Target)
		}
		return fmt.Sprintf("(typeof %s === %q)", v.Target, v.TypeName)
	case KindCallResult:
		return "call"
	}
	if v == UnknownValue {
		return "unknown"
	}
	return fmt.Sprintf("v%d", v.ID)
}

// constrainable reports whether constraints added to v are recorded.
func (v *Value) constrainable() bool {
	return v.Kind == KindUnknown && v != UnknownValue
}

// Shared values. Their IDs are below firstFreshID.
var (
	// UnknownValue stands for results the engine does not model. It never
	// records constraints, so two reads of it are never correlated.
	UnknownValue = &Value{Kind: KindUnknown, ID: 1}
	// CallResultValue is the result of every call.
	CallResultValue = &Value{Kind: KindCallResult, ID: 2}

	literals = map[Constraint]*Value{}
)

const firstFreshID = 64

func init() {
	id := 3
	for i := range numCategories {
		c := Constraint(1) << i
		literals[c] = &Value{Kind: KindLiteral, ID: id, Known: c}
		id++
	}
}

// LiteralValue returns the shared literal value of a single category.
func LiteralValue(c Constraint) *Value {
	if v, ok := literals[c]; ok {
		return v
	}
	panic(fmt.Sprintf("se: no literal value for %s", c))
}

// LiteralOf returns the value of a literal node, or nil when the literal has
// no single category, such as a number that failed to parse.
func LiteralOf(lit *ast.Literal) *Value {
	if c, ok := literalConstraint(lit); ok && c.IsSingleCategory() {
		return LiteralValue(c)
	}
	return nil
}

// literalConstraint returns the category of a literal and whether it is known.
func literalConstraint(lit *ast.Literal) (Constraint, bool) {
	switch lit.Kind {
	case ast.LitNull:
		return Null, true
	case ast.LitUndefined:
		return Undefined, true
	case ast.LitBool:
		if lit.Bool {
			return True, true
		}
		return False, true
	case ast.LitString:
		if lit.Str == "" {
			return EmptyString, true
		}
		return NonEmptyString, true
	case ast.LitNumber:
		if !lit.NumKnown {
			return Number, false
		}
		switch {
		case math.IsNaN(lit.Num):
			return NaN, true
		case lit.Num == 0:
			return Zero, true
		case lit.Num > 0:
			return PosNumber, true
		default:
			return NegNumber, true
		}
	case ast.LitRegex:
		return Object, true
	case ast.LitBigInt:
		if lit.NumKnown && lit.Num == 0 {
			// 0n is falsy and has no category of its own.
			return Falsy, false
		}
		return OtherTruthy, true
	}
	return Any, false
}

// factory allocates fresh value identities for one engine run. All states of
// a run share it.
type factory struct {
	next int
}

func newFactory() *factory {
	return &factory{next: firstFreshID}
}

func (f *factory) id() int {
	id := f.next
	f.next++
	return id
}

func (f *factory) fresh() *Value {
	return &Value{Kind: KindUnknown, ID: f.id()}
}

func (f *factory) not(v *Value) *Value {
	if v.Kind == KindNot {
		return v.Negated
	}
	return &Value{Kind: KindNot, ID: f.id(), Negated: v}
}

func (f *factory) ref(v *Value) *Value {
	if v.Kind == KindRef {
		return v
	}
	return &Value{Kind: KindRef, ID: f.id(), Target: v}
}

func (f *factory) equalTo(operand *Value, test Constraint) *Value {
	return &Value{Kind: KindEqualTo, ID: f.id(), Target: operand, Test: test}
}

func (f *factory) typeOf(operand *Value, name string) *Value {
	return &Value{Kind: KindTypeOf, ID: f.id(), Target: operand, TypeName: name}
}
