package se

import (
	"fmt"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
)

// transfer applies the effect of one element. Expressions push their value;
// statements consume the stack. It returns nil when the path cannot go on.
func (e *Engine) transfer(el ast.Node, s *ProgramState) *ProgramState {
	switch n := el.(type) {
	// Values.
	case *ast.Ident:
		return e.readIdent(n, s)
	case *ast.Literal:
		if v := LiteralOf(n); v != nil {
			return s.PushToStack(v)
		}
		c, _ := literalConstraint(n)
		return pushNew(s, c)
	case *ast.Template:
		s = s.PopStack(countNonNil(n.Exprs))
		switch {
		case n.Empty:
			return s.PushToStack(LiteralValue(EmptyString))
		case len(n.Exprs) == 0:
			return s.PushToStack(LiteralValue(NonEmptyString))
		}
		return pushNew(s, String)
	case *ast.TaggedTemplate:
		args := 0
		if n.Quasi != nil {
			args = countNonNil(n.Quasi.Exprs)
		}
		return s.PopStack(args + 1).PushToStack(CallResultValue)
	case *ast.This, *ast.Super, *ast.Opaque, *ast.Pattern:
		return s.PushToStack(UnknownValue)
	case *ast.FuncLit, *ast.ClassLit:
		return pushNew(s, Function)
	case *ast.Array:
		return pushNew(s.PopStack(countNonNil(n.Elems)), Array)
	case *ast.Object:
		operands := 0
		for _, p := range n.Props {
			if p.Key != nil {
				operands++
			}
			if p.Value != nil {
				operands++
			}
		}
		return pushNew(s.PopStack(operands), Object)

	// Operators.
	case *ast.Unary:
		return e.unary(n, s)
	case *ast.Update:
		s = s.PopStack(1)
		if id, ok := n.X.(*ast.Ident); ok && e.tracked(id.Sym) {
			s = s.NewSymbolicValue(id.Sym, Number)
		}
		return pushNew(s, Number)
	case *ast.Binary:
		return e.binary(n, s)
	case *ast.Logical, *ast.Cond:
		// The branches left the result on the stack.
		return s
	case *ast.Assign:
		return e.assign(n, s)
	case *ast.Seq:
		top := s.PeekStack()
		return s.PopStack(countNonNil(n.List)).PushToStack(top)

	// Calls and property access.
	case *ast.Call:
		s = s.PopStack(countNonNil(n.Args) + 1).PushToStack(CallResultValue)
		return e.widenArguments(n.Args, s)
	case *ast.New:
		s = s.PopStack(countNonNil(n.Args) + 1)
		return pushNew(e.widenArguments(n.Args, s), Object)
	case *ast.Member:
		return e.access(s, 1, n.Optional, n.InChain)
	case *ast.Index:
		return e.access(s, 2, n.Optional, n.InChain)
	case *ast.Spread, *ast.Await:
		return s.PopStack(1).PushToStack(UnknownValue)
	case *ast.Yield:
		if n.X != nil {
			s = s.PopStack(1)
		}
		return s.PushToStack(UnknownValue)

	// Statements.
	case *ast.ExprStmt, *ast.VarDecl, *ast.Return, *ast.Throw, *ast.Break, *ast.Continue:
		return s.ClearStack()
	case *ast.Declarator:
		return e.declare(n, s)
	case *ast.CatchParam:
		return e.bindTarget(s.ClearStack(), n.Target)
	case *ast.FuncDecl, *ast.ClassDecl, *ast.Debugger, *ast.For, *ast.ForIn:
		return s
	}
	panic(fmt.Sprintf("se: unexpected element %T at %s", el, el.Span().Start))
}

func pushNew(s *ProgramState, c Constraint) *ProgramState {
	v, s := s.NewValue(c)
	return s.PushToStack(v)
}

func countNonNil(list []ast.Expr) int {
	n := 0
	for _, e := range list {
		if e != nil {
			n++
		}
	}
	return n
}

func (e *Engine) readIdent(id *ast.Ident, s *ProgramState) *ProgramState {
	if !e.tracked(id.Sym) {
		return s.PushToStack(UnknownValue)
	}
	v := s.ValueOf(id.Sym)
	if v == nil {
		s = s.NewSymbolicValue(id.Sym, Any)
		v = s.ValueOf(id.Sym)
	}
	return s.PushToStack(v)
}

func (e *Engine) unary(n *ast.Unary, s *ProgramState) *ProgramState {
	v := s.PeekStack()
	s = s.PopStack(1)
	switch n.Op {
	case "!":
		return s.PushToStack(s.negate(v))
	case "typeof":
		return s.PushToStack(s.TypeOf(v, ""))
	case "void":
		return s.PushToStack(LiteralValue(Undefined))
	case "-":
		if r := resolve(v); r != nil && r.Kind == KindLiteral {
			switch r.Known {
			case PosNumber:
				return s.PushToStack(LiteralValue(NegNumber))
			case NegNumber:
				return s.PushToStack(LiteralValue(PosNumber))
			case Zero, NaN:
				return s.PushToStack(r)
			}
		}
		return pushNew(s, Number)
	case "+", "~":
		return pushNew(s, Number)
	case "delete":
		return pushNew(s, Boolean)
	}
	return pushNew(s, Any)
}

func (e *Engine) binary(n *ast.Binary, s *ProgramState) *ProgramState {
	operands := s.PeekStackN(2)
	y, x := operands[0], operands[1]
	s = s.PopStack(2)
	switch n.Op {
	case "===", "!==", "==", "!=":
		return e.equality(n.Op, x, y, n, s)
	case "<", ">", "<=", ">=", "in", "instanceof":
		return pushNew(s, Boolean)
	case "+":
		cx, cy := s.Constraint(x), s.Constraint(y)
		switch {
		case cx.IsStricterOrEqualTo(Number) && cy.IsStricterOrEqualTo(Number):
			return pushNew(s, Number)
		case cx.IsStricterOrEqualTo(NonEmptyString) || cy.IsStricterOrEqualTo(NonEmptyString):
			return pushNew(s, NonEmptyString)
		}
		return pushNew(s, Number|String)
	case "-", "*", "/", "%", "**", "<<", ">>", ">>>", "&", "|", "^":
		return pushNew(s, Number)
	}
	return pushNew(s, Any)
}

// equality models comparisons against values whose category holds a single
// value, and typeof tests against a string literal.
func (e *Engine) equality(op string, x, y *Value, n *ast.Binary, s *ProgramState) *ProgramState {
	strict := op == "===" || op == "!=="
	negate := op == "!==" || op == "!="

	var v *Value
	switch {
	case isRawTypeof(x) && isStringLiteral(n.Y):
		v = s.TypeOf(resolve(x).Target, n.Y.(*ast.Literal).Str)
	case isRawTypeof(y) && isStringLiteral(n.X):
		v = s.TypeOf(resolve(y).Target, n.X.(*ast.Literal).Str)
	default:
		if test, ok := comparedCategory(y, strict); ok {
			v = s.EqualTo(x, test)
		} else if test, ok := comparedCategory(x, strict); ok {
			v = s.EqualTo(y, test)
		}
	}
	if v == nil {
		return pushNew(s, Boolean)
	}
	if negate {
		v = s.negate(v)
	}
	return s.PushToStack(v)
}

func isRawTypeof(v *Value) bool {
	v = resolve(v)
	return v != nil && v.Kind == KindTypeOf && v.TypeName == ""
}

func isStringLiteral(e ast.Expr) bool {
	lit, ok := e.(*ast.Literal)
	return ok && lit.Kind == ast.LitString
}

// comparedCategory returns the categories equal to literal v under the
// comparison.
func comparedCategory(v *Value, strict bool) (Constraint, bool) {
	v = resolve(v)
	if v == nil || v.Kind != KindLiteral {
		return NoPossibleValue, false
	}
	if !strict {
		if v.Known == Null || v.Known == Undefined {
			return NullOrUndefined, true
		}
		return NoPossibleValue, false
	}
	switch v.Known {
	case Null, Undefined, True, False, Zero, EmptyString:
		return v.Known, true
	}
	return NoPossibleValue, false
}

func (e *Engine) assign(n *ast.Assign, s *ProgramState) *ProgramState {
	operands := cfg.AssignOperands(n)
	if obj, v := DereferencedObject(n, s); obj != nil {
		var ok bool
		if s, ok = e.dereference(s, v); !ok {
			return nil
		}
	}

	value := s.PeekStack()
	result := value
	if n.Op != "=" {
		var old *Value
		if operands > 0 && isIdent(n.Target) {
			old = s.PeekStackN(2)[1]
		}
		var c Constraint
		switch n.Op {
		case "&&=":
			c = s.Constraint(old).And(Falsy).Or(s.Constraint(value))
		case "||=":
			c = s.Constraint(old).And(Truthy).Or(s.Constraint(value))
		case "??=":
			c = s.Constraint(old).And(NotNully).Or(s.Constraint(value))
		case "+=":
			c = Number | String
		default:
			c = Number
		}
		result, s = s.NewValue(c)
	}
	s = s.PopStack(operands + 1)

	switch t := n.Target.(type) {
	case *ast.Ident:
		if e.tracked(t.Sym) {
			bound := result
			if _, alias := n.Value.(*ast.Ident); alias && n.Op == "=" {
				bound = s.Ref(result)
			}
			s = s.Bind(t.Sym, bound)
			result = s.ValueOf(t.Sym)
		}
	case *ast.Pattern:
		s = e.bindTarget(s, t)
	}
	return s.PushToStack(result)
}

func isIdent(e ast.Expr) bool {
	_, ok := e.(*ast.Ident)
	return ok
}

func (e *Engine) declare(n *ast.Declarator, s *ProgramState) *ProgramState {
	if n.Init == nil {
		if id, ok := n.Target.(*ast.Ident); ok && e.tracked(id.Sym) && n.Kind != ast.SymbolVar {
			return s.Bind(id.Sym, LiteralValue(Undefined))
		}
		return s
	}
	value := s.PeekStack()
	s = s.PopStack(1)
	switch t := n.Target.(type) {
	case *ast.Ident:
		if e.tracked(t.Sym) {
			if _, alias := n.Init.(*ast.Ident); alias {
				value = s.Ref(value)
			}
			s = s.Bind(t.Sym, value)
		}
	case *ast.Pattern:
		s = e.bindTarget(s, t)
	}
	return s
}

// access models a property read on the object below the top operands-1
// values.
// access evaluates a property read. An optional link, or any later link of
// its chain, yields undefined when the object is nullish.
func (e *Engine) access(s *ProgramState, operands int, optional, inChain bool) *ProgramState {
	obj := s.PeekStackN(operands)[operands-1]
	if optional || (inChain && IsNully(s, obj)) {
		result := UnknownValue
		if IsNully(s, obj) {
			result = LiteralValue(Undefined)
		}
		return s.PopStack(operands).PushToStack(result)
	}
	s, ok := e.dereference(s, obj)
	if !ok {
		return nil
	}
	return s.PopStack(operands).PushToStack(UnknownValue)
}

// dereference stops the path when obj is known to be null or undefined and
// otherwise records that it is not.
func (e *Engine) dereference(s *ProgramState, obj *Value) (*ProgramState, bool) {
	if IsNully(s, obj) {
		return nil, false
	}
	return s.AddConstraint(obj, NotNully)
}

// widenArguments forgets what is known about variables passed to a call.
func (e *Engine) widenArguments(args []ast.Expr, s *ProgramState) *ProgramState {
	for _, arg := range args {
		if id, ok := arg.(*ast.Ident); ok && e.tracked(id.Sym) {
			s = s.NewSymbolicValue(id.Sym, Any)
		}
	}
	return s
}
