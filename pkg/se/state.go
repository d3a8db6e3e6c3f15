package se

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
)

type intComparer struct{}

func (intComparer) Compare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// stackNode is a cell of the persistent evaluation stack.
type stackNode struct {
	value *Value
	next  *stackNode
	size  int
}

// ProgramState is an immutable snapshot of the evaluation stack, the
// variable bindings, the known constraints and the visit counters of one
// path. Every operation returns a new state sharing structure with its
// receiver.
type ProgramState struct {
	stack       *stackNode
	bindings    *immutable.SortedMap[int, *Value]     // Symbol ID to value
	constraints *immutable.SortedMap[int, Constraint] // Value ID to constraint
	visits      *immutable.SortedMap[int, int]        // Block ID to visit count
	f           *factory
}

// NewProgramState returns an empty state with its own value factory.
func NewProgramState() *ProgramState {
	return &ProgramState{
		bindings:    immutable.NewSortedMap[int, *Value](intComparer{}),
		constraints: immutable.NewSortedMap[int, Constraint](intComparer{}),
		visits:      immutable.NewSortedMap[int, int](intComparer{}),
		f:           newFactory(),
	}
}

func (s *ProgramState) with(fn func(*ProgramState)) *ProgramState {
	out := *s
	fn(&out)
	return &out
}

// NewSymbolicValue binds a fresh value to sym, constrained by c.
func (s *ProgramState) NewSymbolicValue(sym *ast.Symbol, c Constraint) *ProgramState {
	v := s.f.fresh()
	return s.with(func(out *ProgramState) {
		out.bindings = s.bindings.Set(sym.ID, v)
		if c != Any {
			out.constraints = s.constraints.Set(v.ID, c)
		}
	})
}

// Bind binds v to sym. Values that cannot record constraints are replaced
// by a fresh value with the same constraint.
func (s *ProgramState) Bind(sym *ast.Symbol, v *Value) *ProgramState {
	if v.Kind == KindCallResult || v == UnknownValue {
		return s.NewSymbolicValue(sym, Any)
	}
	return s.with(func(out *ProgramState) {
		out.bindings = s.bindings.Set(sym.ID, v)
	})
}

// Unbind drops the binding of sym.
func (s *ProgramState) Unbind(sym *ast.Symbol) *ProgramState {
	if _, ok := s.bindings.Get(sym.ID); !ok {
		return s
	}
	return s.with(func(out *ProgramState) {
		out.bindings = s.bindings.Delete(sym.ID)
	})
}

// ValueOf returns the value bound to sym, or nil.
func (s *ProgramState) ValueOf(sym *ast.Symbol) *Value {
	if sym == nil {
		return nil
	}
	v, _ := s.bindings.Get(sym.ID)
	return v
}

// NewValue returns a fresh value constrained by c, and the state recording
// the constraint.
func (s *ProgramState) NewValue(c Constraint) (*Value, *ProgramState) {
	v := s.f.fresh()
	if c == Any {
		return v, s
	}
	return v, s.with(func(out *ProgramState) {
		out.constraints = s.constraints.Set(v.ID, c)
	})
}

// negate returns the logical negation of v, creating it when v is not
// itself a negation.
func (s *ProgramState) negate(v *Value) *Value { return s.f.not(v) }

// Ref returns an alias of v.
func (s *ProgramState) Ref(v *Value) *Value { return s.f.ref(v) }

// EqualTo returns the boolean value of "operand is in test".
func (s *ProgramState) EqualTo(operand *Value, test Constraint) *Value {
	return s.f.equalTo(operand, test)
}

// TypeOf returns the value of typeof operand, or of typeof operand === name
// when name is not empty.
func (s *ProgramState) TypeOf(operand *Value, name string) *Value {
	return s.f.typeOf(operand, name)
}

// PushToStack pushes v.
func (s *ProgramState) PushToStack(v *Value) *ProgramState {
	size := 1
	if s.stack != nil {
		size = s.stack.size + 1
	}
	return s.with(func(out *ProgramState) {
		out.stack = &stackNode{value: v, next: s.stack, size: size}
	})
}

// PeekStack returns the top of the stack, or nil when it is empty.
func (s *ProgramState) PeekStack() *Value {
	if s.stack == nil {
		return nil
	}
	return s.stack.value
}

// PeekStackN returns the top n values, top first. Missing slots are nil.
func (s *ProgramState) PeekStackN(n int) []*Value {
	out := make([]*Value, n)
	node := s.stack
	for i := 0; i < n && node != nil; i++ {
		out[i] = node.value
		node = node.next
	}
	return out
}

// PopStack removes the top n values. Popping past the bottom empties the
// stack.
func (s *ProgramState) PopStack(n int) *ProgramState {
	node := s.stack
	for i := 0; i < n && node != nil; i++ {
		node = node.next
	}
	if node == s.stack {
		return s
	}
	return s.with(func(out *ProgramState) { out.stack = node })
}

// ClearStack empties the stack.
func (s *ProgramState) ClearStack() *ProgramState {
	if s.stack == nil {
		return s
	}
	return s.with(func(out *ProgramState) { out.stack = nil })
}

// StackSize returns the number of values on the stack.
func (s *ProgramState) StackSize() int {
	if s.stack == nil {
		return 0
	}
	return s.stack.size
}

func resolve(v *Value) *Value {
	for v != nil && v.Kind == KindRef {
		v = v.Target
	}
	return v
}

// Constraint returns what is known about v in s.
func (s *ProgramState) Constraint(v *Value) Constraint {
	v = resolve(v)
	if v == nil {
		return Any
	}
	switch v.Kind {
	case KindLiteral:
		return v.Known
	case KindNot:
		switch s.Constraint(v.Negated).Truthiness() {
		case TruthinessTruthy:
			return False
		case TruthinessFalsy:
			return True
		}
		return Boolean
	case KindEqualTo:
		return s.membership(s.Constraint(v.Target), v.Test)
	case KindTypeOf:
		if v.TypeName == "" {
			return NonEmptyString
		}
		test, ok := TypeofConstraint(v.TypeName)
		if !ok {
			return Boolean
		}
		return s.membership(s.Constraint(v.Target), test)
	case KindUnknown:
		if c, ok := s.constraints.Get(v.ID); ok {
			return c
		}
	}
	return Any
}

func (s *ProgramState) membership(operand, test Constraint) Constraint {
	switch {
	case operand.IsContradiction():
		return Boolean
	case operand.IsStricterOrEqualTo(test):
		return True
	case operand.And(test).IsContradiction():
		return False
	}
	return Boolean
}

// AddConstraint intersects the constraint of v with c. It returns false when
// the intersection is empty.
func (s *ProgramState) AddConstraint(v *Value, c Constraint) (*ProgramState, bool) {
	v = resolve(v)
	if v == nil {
		return s, !c.IsContradiction()
	}
	current := s.Constraint(v)
	next := current.And(c)
	if next.IsContradiction() {
		return nil, false
	}
	if next == current {
		return s, true
	}

	switch v.Kind {
	case KindNot:
		switch next {
		case True:
			return s.AddConstraint(v.Negated, Falsy)
		case False:
			return s.AddConstraint(v.Negated, Truthy)
		}
		return s, true
	case KindEqualTo:
		return s.constrainOperand(v.Target, v.Test, next)
	case KindTypeOf:
		if test, ok := TypeofConstraint(v.TypeName); ok && v.TypeName != "" {
			return s.constrainOperand(v.Target, test, next)
		}
		return s, true
	case KindUnknown:
		if !v.constrainable() {
			return s, true
		}
		return s.with(func(out *ProgramState) {
			out.constraints = s.constraints.Set(v.ID, next)
		}), true
	}
	return s, true
}

func (s *ProgramState) constrainOperand(operand *Value, test, outcome Constraint) (*ProgramState, bool) {
	switch outcome.And(Boolean) {
	case True:
		return s.AddConstraint(operand, test)
	case False:
		return s.AddConstraint(operand, test.Not())
	}
	return s, true
}

// Visits returns how many times the path entered block.
func (s *ProgramState) Visits(block cfg.BlockID) int {
	n, _ := s.visits.Get(int(block))
	return n
}

// Visit records one more entry into block.
func (s *ProgramState) Visit(block cfg.BlockID) *ProgramState {
	return s.with(func(out *ProgramState) {
		out.visits = s.visits.Set(int(block), s.Visits(block)+1)
	})
}

// RemoveDeadVariables drops the bindings of symbols not in live.
func (s *ProgramState) RemoveDeadVariables(live map[int]bool) *ProgramState {
	bindings := s.bindings
	itr := s.bindings.Iterator()
	for !itr.Done() {
		id, _, _ := itr.Next()
		if !live[id] {
			bindings = bindings.Delete(id)
		}
	}
	if bindings.Len() == s.bindings.Len() {
		return s
	}
	return s.with(func(out *ProgramState) {
		out.bindings = bindings
		out.constraints = out.reachableConstraints()
	})
}

// reachableConstraints drops the constraints of values that are neither
// bound nor on the stack.
func (s *ProgramState) reachableConstraints() *immutable.SortedMap[int, Constraint] {
	out := immutable.NewSortedMap[int, Constraint](intComparer{})
	s.eachValue(func(v *Value) {
		if c, ok := s.constraints.Get(v.ID); ok {
			out = out.Set(v.ID, c)
		}
	})
	return out
}

// eachValue calls fn for the stack values top first, then the bound values in
// symbol order, then every value they depend on.
func (s *ProgramState) eachValue(fn func(*Value)) {
	seen := make(map[int]bool)
	var visit func(v *Value)
	visit = func(v *Value) {
		if v == nil || seen[v.ID] {
			return
		}
		seen[v.ID] = true
		fn(v)
		visit(v.Negated)
		visit(v.Target)
	}
	for node := s.stack; node != nil; node = node.next {
		visit(node.value)
	}
	itr := s.bindings.Iterator()
	for !itr.Done() {
		_, v, _ := itr.Next()
		visit(v)
	}
}

// MergeAtJoin returns a state covering both a and b, or nil when their
// stacks differ in size. Variables bound to the same value keep it with the
// union of both constraints. Variables bound to different values are
// rebound to a fresh value carrying the union. Variables bound in only one
// state are dropped. Visit counters are taken from a.
func MergeAtJoin(a, b *ProgramState) *ProgramState {
	if a.StackSize() != b.StackSize() {
		return nil
	}
	out := &ProgramState{
		bindings:    immutable.NewSortedMap[int, *Value](intComparer{}),
		constraints: immutable.NewSortedMap[int, Constraint](intComparer{}),
		visits:      a.visits,
		f:           a.f,
	}
	merged := make(map[*Value]bool)
	union := func(va, vb *Value) *Value {
		ra, rb := resolve(va), resolve(vb)
		c := a.Constraint(ra).Or(b.Constraint(rb))
		v := ra
		if ra != rb {
			v = out.f.fresh()
		}
		if v.constrainable() && c != Any {
			out.constraints = out.constraints.Set(v.ID, c)
		}
		if v == ra && !merged[v] {
			merged[v] = true
			out.keepDependencies(v, a, b)
		}
		return v
	}

	values := make([]*Value, 0, a.StackSize())
	for na, nb := a.stack, b.stack; na != nil; na, nb = na.next, nb.next {
		values = append(values, union(na.value, nb.value))
	}
	for i := len(values) - 1; i >= 0; i-- {
		out.stack = &stackNode{value: values[i], next: out.stack, size: len(values) - i}
	}

	itr := a.bindings.Iterator()
	for !itr.Done() {
		id, va, _ := itr.Next()
		vb, ok := b.bindings.Get(id)
		if !ok {
			continue
		}
		out.bindings = out.bindings.Set(id, union(va, vb))
	}
	return out
}

// keepDependencies copies the union of the constraints of the values v is
// derived from.
func (s *ProgramState) keepDependencies(v *Value, a, b *ProgramState) {
	for _, dep := range []*Value{v.Negated, v.Target} {
		dep = resolve(dep)
		if dep == nil {
			continue
		}
		if dep.constrainable() {
			if c := a.Constraint(dep).Or(b.Constraint(dep)); c != Any {
				s.constraints = s.constraints.Set(dep.ID, c)
			}
		}
		s.keepDependencies(dep, a, b)
	}
}

// Key returns a fingerprint of s that is equal for states that differ only
// in value identities and visit counters.
func (s *ProgramState) Key() string {
	var sb strings.Builder
	names := make(map[int]int)
	var write func(v *Value)
	write = func(v *Value) {
		v = resolve(v)
		switch v.Kind {
		case KindLiteral:
			sb.WriteString("L")
			sb.WriteString(strconv.Itoa(int(v.Known)))
		case KindCallResult:
			sb.WriteString("C")
		case KindNot:
			sb.WriteString("!(")
			write(v.Negated)
			sb.WriteString(")")
		case KindEqualTo:
			fmt.Fprintf(&sb, "eq%d(", v.Test)
			write(v.Target)
			sb.WriteString(")")
		case KindTypeOf:
			fmt.Fprintf(&sb, "typeof%q(", v.TypeName)
			write(v.Target)
			sb.WriteString(")")
		default:
			if v == UnknownValue {
				sb.WriteString("U")
				return
			}
			n, ok := names[v.ID]
			if !ok {
				n = len(names)
				names[v.ID] = n
			}
			fmt.Fprintf(&sb, "v%d:%d", n, s.Constraint(v))
		}
	}

	sb.WriteString("[")
	for node := s.stack; node != nil; node = node.next {
		write(node.value)
		sb.WriteString(" ")
	}
	sb.WriteString("]")
	itr := s.bindings.Iterator()
	for !itr.Done() {
		id, v, _ := itr.Next()
		fmt.Fprintf(&sb, " %d=", id)
		write(v)
	}
	return sb.String()
}

func (s *ProgramState) String() string {
	var sb strings.Builder
	sb.WriteString("stack[")
	for node := s.stack; node != nil; node = node.next {
		fmt.Fprintf(&sb, " %s:%s", node.value, s.Constraint(node.value))
	}
	sb.WriteString(" ] vars{")
	itr := s.bindings.Iterator()
	for !itr.Done() {
		id, v, _ := itr.Next()
		fmt.Fprintf(&sb, " #%d=%s:%s", id, v, s.Constraint(v))
	}
	sb.WriteString(" }")
	return sb.String()
}
