package se

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
)

func TestProgramState_Stack(t *testing.T) {
	s := NewProgramState()
	a := LiteralValue(Null)
	b := LiteralValue(True)

	s1 := s.PushToStack(a).PushToStack(b)
	assert.Equal(t, 2, s1.StackSize())
	assert.Same(t, b, s1.PeekStack())
	assert.Equal(t, []*Value{b, a, nil}, s1.PeekStackN(3))

	s2 := s1.PopStack(1)
	assert.Same(t, a, s2.PeekStack())
	assert.Equal(t, 2, s1.StackSize(), "pop leaves the receiver unchanged")
	assert.Equal(t, 0, s1.ClearStack().StackSize())
	assert.Equal(t, 0, s1.PopStack(5).StackSize())
	assert.Nil(t, s.PeekStack())
}

func TestProgramState_AddConstraint(t *testing.T) {
	s := NewProgramState()
	v, s := s.NewValue(Any)

	narrowed, ok := s.AddConstraint(v, NotNull)
	require.True(t, ok)
	assert.Equal(t, NotNull, narrowed.Constraint(v))
	assert.Equal(t, Any, s.Constraint(v), "the parent state is unchanged")

	narrowed, ok = narrowed.AddConstraint(v, Truthy)
	require.True(t, ok)
	assert.Equal(t, Truthy, narrowed.Constraint(v))

	_, ok = narrowed.AddConstraint(v, Falsy)
	assert.False(t, ok)

	_, ok = s.AddConstraint(LiteralValue(Null), Truthy)
	assert.False(t, ok, "null is never truthy")

	same, ok := s.AddConstraint(CallResultValue, Truthy)
	require.True(t, ok)
	assert.Equal(t, Any, same.Constraint(CallResultValue), "call results are not tracked")
}

func TestNegatedValue(t *testing.T) {
	base := NewProgramState()
	v, base := base.NewValue(Any)
	not := base.negate(v)

	before, base := base.NewValue(Any)
	assert.Same(t, v, NegatedValue(not))
	assert.Nil(t, NegatedValue(v))
	assert.Nil(t, NegatedValue(nil))
	after, _ := base.NewValue(Any)
	assert.Equal(t, before.ID+1, after.ID, "queries do not allocate values")
}

func TestProgramState_NegationDuality(t *testing.T) {
	base := NewProgramState()
	v, base := base.NewValue(Any)
	not := base.negate(v)
	assert.Same(t, v, base.negate(not))

	for _, c := range NamedConstraints() {
		t.Run(c.String(), func(t *testing.T) {
			s, ok := base.AddConstraint(v, c)
			if c.IsContradiction() {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			switch c.Truthiness() {
			case TruthinessTruthy:
				assert.Equal(t, False, s.Constraint(not))
			case TruthinessFalsy:
				assert.Equal(t, True, s.Constraint(not))
			default:
				assert.Equal(t, Boolean, s.Constraint(not))
			}
		})
	}

	s, ok := base.AddConstraint(not, Truthy)
	require.True(t, ok)
	assert.Equal(t, Falsy, s.Constraint(v))
	s, ok = base.AddConstraint(not, Falsy)
	require.True(t, ok)
	assert.Equal(t, Truthy, s.Constraint(v))
}

func TestProgramState_EqualToAndTypeOf(t *testing.T) {
	base := NewProgramState()
	x, base := base.NewValue(Any)

	isNull := base.EqualTo(x, Null)
	s, ok := base.AddConstraint(isNull, Truthy)
	require.True(t, ok)
	assert.Equal(t, Null, s.Constraint(x))
	s, ok = base.AddConstraint(isNull, Falsy)
	require.True(t, ok)
	assert.Equal(t, NotNull, s.Constraint(x))

	isString := base.TypeOf(x, "string")
	s, ok = base.AddConstraint(isString, Truthy)
	require.True(t, ok)
	assert.Equal(t, String, s.Constraint(x))
	assert.Equal(t, False, s.Constraint(base.TypeOf(x, "number")))

	raw := base.TypeOf(x, "")
	assert.Equal(t, NonEmptyString, base.Constraint(raw))
}

func TestProgramState_RefResolvesToTarget(t *testing.T) {
	base := NewProgramState()
	x, base := base.NewValue(Any)
	alias := base.Ref(x)

	s, ok := base.AddConstraint(alias, NotNully)
	require.True(t, ok)
	assert.Equal(t, NotNully, s.Constraint(x))
	assert.Equal(t, base.PushToStack(x).Key(), base.PushToStack(alias).Key())
}

func TestMergeAtJoin(t *testing.T) {
	sym := &ast.Symbol{ID: 1, Name: "x"}
	other := &ast.Symbol{ID: 2, Name: "y"}
	base := NewProgramState().NewSymbolicValue(other, NotNull)

	a := base.NewSymbolicValue(sym, Truthy)
	b := base.NewSymbolicValue(sym, Falsy)
	merged := MergeAtJoin(a, b)
	require.NotNil(t, merged)
	assert.Equal(t, Any, merged.Constraint(merged.ValueOf(sym)))
	assert.Same(t, base.ValueOf(other), merged.ValueOf(other), "shared values are kept")
	assert.Equal(t, NotNull, merged.Constraint(merged.ValueOf(other)))

	narrowed, ok := a.AddConstraint(a.ValueOf(other), Object)
	require.True(t, ok)
	merged = MergeAtJoin(narrowed, b)
	assert.Equal(t, NotNull, merged.Constraint(merged.ValueOf(other)), "constraints on a shared value are joined")

	assert.Nil(t, MergeAtJoin(a.PushToStack(LiteralValue(True)), b), "stacks of different size do not merge")
}

func TestProgramState_Key(t *testing.T) {
	sym := &ast.Symbol{ID: 1, Name: "x"}
	base := NewProgramState()
	a := base.NewSymbolicValue(sym, Truthy)
	b := base.NewSymbolicValue(sym, Truthy)

	require.NotSame(t, a.ValueOf(sym), b.ValueOf(sym))
	assert.Equal(t, a.Key(), b.Key(), "keys ignore value identities")
	assert.Equal(t, a.Key(), a.Visit(cfg.BlockID(3)).Key(), "keys ignore visit counters")
	assert.NotEqual(t, a.Key(), base.NewSymbolicValue(sym, Falsy).Key())
	assert.Equal(t, 1, a.Visit(cfg.BlockID(3)).Visits(cfg.BlockID(3)))
}

func TestProgramState_RemoveDeadVariables(t *testing.T) {
	x := &ast.Symbol{ID: 1, Name: "x"}
	y := &ast.Symbol{ID: 2, Name: "y"}
	s := NewProgramState().NewSymbolicValue(x, Truthy).NewSymbolicValue(y, Null)

	pruned := s.RemoveDeadVariables(map[int]bool{1: true})
	assert.NotNil(t, pruned.ValueOf(x))
	assert.Nil(t, pruned.ValueOf(y))
	assert.NotNil(t, s.ValueOf(y))
	assert.Same(t, s, s.RemoveDeadVariables(map[int]bool{1: true, 2: true}))
}
