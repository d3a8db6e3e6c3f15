// Package se implements path-sensitive symbolic execution over the control
// flow graphs built by package cfg.
//
// An Engine walks a Graph from its entry and carries an immutable
// ProgramState along every path. States bind tracked variables to symbolic
// values and record what is known about each value as a Constraint. Checks
// observe the exploration through the Check interface.
package se

import (
	"math/bits"
	"strings"
)

// Constraint is a set of run-time value categories. The zero value is the
// empty set, NoPossibleValue.
type Constraint uint16

// Disjoint categories. Every JavaScript value belongs to exactly one.
const (
	Null Constraint = 1 << iota
	Undefined
	True
	False
	Zero
	NaN
	PosNumber
	NegNumber
	EmptyString
	NonEmptyString
	Function
	Array
	Object
	OtherTruthy // Symbols, bigints and other truthy primitives

	numCategories = iota
)

// Named elements of the lattice.
const (
	NoPossibleValue Constraint = 0
	Any             Constraint = 1<<numCategories - 1

	Falsy  = Null | Undefined | False | Zero | NaN | EmptyString
	Truthy = Any &^ Falsy

	NullOrUndefined = Null | Undefined
	NotNull         = Any &^ Null
	NotUndefined    = Any &^ Undefined
	NotNully        = Any &^ NullOrUndefined

	Boolean = True | False
	Number  = Zero | NaN | PosNumber | NegNumber
	String  = EmptyString | NonEmptyString
	NonZero = Any &^ Zero

	TruthyNumber = PosNumber | NegNumber
	FalsyNumber  = Zero | NaN
	NotBoolean   = Any &^ Boolean
	NotNumber    = Any &^ Number
	NotString    = Any &^ String
	NotFunction  = Any &^ Function

	// ObjectLike is the result set of typeof "object".
	ObjectLike = Object | Array | Null
)

var categoryNames = [numCategories]string{
	"NULL", "UNDEFINED", "TRUE", "FALSE", "ZERO", "NAN", "POS_NUMBER", "NEG_NUMBER",
	"EMPTY_STRING", "NON_EMPTY_STRING", "FUNCTION", "ARRAY", "OBJECT", "OTHER_TRUTHY",
}

// namedConstraints lists the constraints that print by name, most specific
// names last so they win in String.
var namedConstraints = []struct {
	c    Constraint
	name string
}{
	{Any, "ANY"},
	{NoPossibleValue, "NO_POSSIBLE_VALUE"},
	{Truthy, "TRUTHY"},
	{Falsy, "FALSY"},
	{NotNull, "NOT_NULL"},
	{NotUndefined, "NOT_UNDEFINED"},
	{NullOrUndefined, "NULL_OR_UNDEFINED"},
	{NotNully, "NOT_NULLY"},
	{NonZero, "NON_ZERO"},
	{Boolean, "BOOLEAN"},
	{Number, "NUMBER"},
	{String, "STRING"},
}

// NamedConstraints returns every named lattice element.
func NamedConstraints() []Constraint {
	out := make([]Constraint, 0, len(namedConstraints)+numCategories)
	for _, n := range namedConstraints {
		out = append(out, n.c)
	}
	for i := range numCategories {
		out = append(out, Constraint(1)<<i)
	}
	return append(out, TruthyNumber, FalsyNumber, NotBoolean, NotNumber, NotString, NotFunction, ObjectLike)
}

// And returns the intersection of c and o.
func (c Constraint) And(o Constraint) Constraint { return c & o }

// Or returns the union of c and o.
func (c Constraint) Or(o Constraint) Constraint { return c | o }

// Not returns the complement of c.
func (c Constraint) Not() Constraint { return Any &^ c }

// IsContradiction reports whether no value satisfies c.
func (c Constraint) IsContradiction() bool { return c&Any == 0 }

// IsStricterOrEqualTo reports whether every value satisfying c satisfies o.
func (c Constraint) IsStricterOrEqualTo(o Constraint) bool { return c&^o == 0 }

// Truthiness tells whether a value is known to convert to true or false.
type Truthiness int

const (
	TruthinessUnknown Truthiness = iota
	TruthinessTruthy
	TruthinessFalsy
)

func (t Truthiness) String() string {
	switch t {
	case TruthinessTruthy:
		return "TRUTHY"
	case TruthinessFalsy:
		return "FALSY"
	default:
		return "UNKNOWN"
	}
}

// Truthiness classifies c. The empty set has unknown truthiness.
func (c Constraint) Truthiness() Truthiness {
	switch {
	case c.IsContradiction():
		return TruthinessUnknown
	case c.IsStricterOrEqualTo(Truthy):
		return TruthinessTruthy
	case c.IsStricterOrEqualTo(Falsy):
		return TruthinessFalsy
	}
	return TruthinessUnknown
}

// IsSingleCategory reports whether c holds exactly one category.
func (c Constraint) IsSingleCategory() bool {
	return bits.OnesCount16(uint16(c&Any)) == 1
}

func (c Constraint) String() string {
	for i := len(namedConstraints) - 1; i >= 0; i-- {
		if namedConstraints[i].c == c {
			return namedConstraints[i].name
		}
	}
	var parts []string
	for i := range numCategories {
		if c&(1<<i) != 0 {
			parts = append(parts, categoryNames[i])
		}
	}
	return strings.Join(parts, "|")
}

// TypeofConstraint returns the categories whose typeof result is name. It
// reports false for names it does not model, such as "bigint" or "symbol".
func TypeofConstraint(name string) (Constraint, bool) {
	switch name {
	case "undefined":
		return Undefined, true
	case "boolean":
		return Boolean, true
	case "number":
		return Number, true
	case "string":
		return String, true
	case "function":
		return Function, true
	case "object":
		return ObjectLike, true
	}
	return NoPossibleValue, false
}
