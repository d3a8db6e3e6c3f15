// Package checks holds the rules that turn an exploration into issues.
//
// A rule is an se.Check that also knows its key and the issues it found.
// Rules are built fresh for every function run through a Registry; nothing
// is shared between runs.
package checks

import (
	"errors"
	"fmt"
	"sort"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
	"github.com/l3aro/jsflow/pkg/se"
	"github.com/l3aro/jsflow/pkg/types"
)

// ErrUnknownRule is returned when a rule key is not registered.
var ErrUnknownRule = errors.New("unknown rule")

// Rule observes one exploration and reports issues once it ends.
type Rule interface {
	se.Check
	Key() string
	// Issues returns the issues found in the function. File is left empty.
	Issues() []types.Issue
}

// Context is what a rule knows about the function it runs on.
type Context struct {
	Graph    *cfg.Graph
	Function *ast.Function
}

// Definition describes a rule.
type Definition struct {
	Key         string
	Name        string
	Description string
	New         func(Context) Rule
}

// Registry maps rule keys to their definitions.
type Registry map[string]Definition

// Default returns a registry of every rule jsflow ships.
func Default() Registry {
	r := make(Registry)
	for _, d := range []Definition{
		{
			Key:         AlwaysTrueOrFalseKey,
			Name:        "AlwaysTrueOrFalseCondition",
			Description: "Conditions should not always evaluate to the same value",
			New:         func(Context) Rule { return NewAlwaysTrueOrFalse() },
		},
		{
			Key:         NullDereferenceKey,
			Name:        "NullDereference",
			Description: "Properties of null or undefined values should not be accessed",
			New:         func(Context) Rule { return NewNullDereference() },
		},
		{
			Key:         DeadCodeKey,
			Name:        "DeadCode",
			Description: "Code should be reachable",
			New:         func(ctx Context) Rule { return NewDeadCode(ctx.Graph) },
		},
	} {
		r[d.Key] = d
	}
	return r
}

// Keys returns the registered keys in order.
func (r Registry) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Definitions returns the registered rules ordered by key.
func (r Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r))
	for _, k := range r.Keys() {
		defs = append(defs, r[k])
	}
	return defs
}

// Validate reports the first key that is not registered.
func (r Registry) Validate(keys []string) error {
	for _, k := range keys {
		if _, ok := r[k]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRule, k)
		}
	}
	return nil
}

// New builds fresh instances of the rules named by keys. An empty key list
// selects every rule.
func (r Registry) New(keys []string, ctx Context) ([]Rule, error) {
	if len(keys) == 0 {
		keys = r.Keys()
	}
	if err := r.Validate(keys); err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		rules = append(rules, r[k].New(ctx))
	}
	return rules, nil
}

// New builds rules from the default registry.
func New(keys []string, ctx Context) ([]Rule, error) {
	return Default().New(keys, ctx)
}

// AsChecks returns rules as the check list an engine takes.
func AsChecks(rules []Rule) []se.Check {
	out := make([]se.Check, len(rules))
	for i, r := range rules {
		out[i] = r
	}
	return out
}

func locationOf(n ast.Node) types.Location {
	r := n.Span()
	return types.Location{
		Line:      r.Start.Line,
		Column:    r.Start.Column,
		EndLine:   r.End.Line,
		EndColumn: r.End.Column,
	}
}

// exprName renders e for a message: names, dotted member chains and
// literals. Anything else is "expression".
func exprName(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.Ident:
		return n.Name
	case *ast.This:
		return "this"
	case *ast.Literal:
		return n.Raw
	case *ast.Member:
		if base := exprName(n.X); base != "expression" {
			return base + "." + n.Prop
		}
	}
	return "expression"
}
