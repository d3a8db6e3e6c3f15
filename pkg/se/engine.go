package se

import (
	"container/list"
	"sort"

	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
)

// Default exploration bounds.
const (
	DefaultMaxVisitsPerPoint = 3
	DefaultMaxExploredNodes  = 10000
	stepsPerNode             = 4
)

// Options bound one exploration.
type Options struct {
	// MaxVisitsPerPoint is how many times one path may enter a block. On the
	// last allowed entry into a loop head every variable the loop assigns is
	// rebound to an unknown value.
	MaxVisitsPerPoint int
	// MaxExploredNodes caps the distinct (block, state) pairs processed.
	MaxExploredNodes int
	// MaxSteps caps the worklist iterations. Zero means 4 × MaxExploredNodes.
	MaxSteps int
}

// DefaultOptions returns the default bounds.
func DefaultOptions() Options {
	return Options{
		MaxVisitsPerPoint: DefaultMaxVisitsPerPoint,
		MaxExploredNodes:  DefaultMaxExploredNodes,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxVisitsPerPoint <= 0 {
		o.MaxVisitsPerPoint = DefaultMaxVisitsPerPoint
	}
	if o.MaxExploredNodes <= 0 {
		o.MaxExploredNodes = DefaultMaxExploredNodes
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = stepsPerNode * o.MaxExploredNodes
	}
	return o
}

// Result summarizes a run.
type Result struct {
	Completed bool // False when a cap aborted the exploration
	Steps     int  // Worklist iterations
	Nodes     int  // Distinct (block, state) pairs processed
	Bounded   bool // Some path was cut by the visit bound
}

// node is a worklist entry.
type node struct {
	block cfg.BlockID
	state *ProgramState
}

type nodeKey struct {
	block cfg.BlockID
	key   string
}

// Engine explores one function body. An Engine runs once; build a new one
// with fresh checks for every run.
type Engine struct {
	graph  *cfg.Graph
	fn     *ast.Function
	checks []Check
	opts   Options
	live   *Liveness

	worklist  *list.List
	pending   map[cfg.BlockID]*list.Element // Queued entry of a join block
	processed map[nodeKey]bool
	loopVars  map[cfg.BlockID][]*ast.Symbol // Tracked symbols assigned inside each loop
	joins     map[cfg.BlockID]bool
	result    Result
}

// NewEngine returns an engine for the graph of fn. The checks are notified
// in order.
func NewEngine(g *cfg.Graph, fn *ast.Function, checks []Check, opts Options) *Engine {
	e := &Engine{
		graph:     g,
		fn:        fn,
		checks:    checks,
		opts:      opts.withDefaults(),
		live:      ComputeLiveness(g, fn),
		worklist:  list.New(),
		pending:   make(map[cfg.BlockID]*list.Element),
		processed: make(map[nodeKey]bool),
		loopVars:  make(map[cfg.BlockID][]*ast.Symbol),
		joins:     make(map[cfg.BlockID]bool),
	}
	incoming := make(map[cfg.BlockID]int)
	for _, blk := range g.LiveBlocks() {
		incoming[blk.ID] += len(blk.Predecessors)
		if blk.Exception != cfg.NoBlock {
			incoming[blk.Exception]++
		}
	}
	for id, n := range incoming {
		if n > 1 && !g.Block(id).LoopHead {
			e.joins[id] = true
		}
	}
	return e
}

// Run explores the graph and notifies the checks.
func (e *Engine) Run() Result {
	e.enqueue(e.graph.Entry, e.initialState())
	completed := e.explore()
	e.result.Completed = completed
	for _, c := range e.checks {
		c.OnFunctionExplorationEnd(completed)
	}
	return e.result
}

func (e *Engine) explore() bool {
	for e.worklist.Len() > 0 {
		e.result.Steps++
		if e.result.Steps > e.opts.MaxSteps {
			return false
		}
		elem := e.worklist.Front()
		e.worklist.Remove(elem)
		n := elem.Value.(*node)
		if e.pending[n.block] == elem {
			delete(e.pending, n.block)
		}

		k := nodeKey{block: n.block, key: n.state.Key()}
		if e.processed[k] {
			continue
		}
		e.processed[k] = true
		e.result.Nodes++
		if e.result.Nodes > e.opts.MaxExploredNodes {
			return false
		}
		e.execute(e.graph.Block(n.block), n.state)
	}
	return true
}

// initialState binds the symbols the function owns.
func (e *Engine) initialState() *ProgramState {
	s := NewProgramState()
	for _, sym := range e.fn.Symbols {
		if !e.tracked(sym) {
			continue
		}
		switch sym.Kind {
		case ast.SymbolParam, ast.SymbolImport:
			s = s.NewSymbolicValue(sym, Any)
		case ast.SymbolVar, ast.SymbolLet, ast.SymbolConst:
			s = s.Bind(sym, LiteralValue(Undefined))
		case ast.SymbolFunction, ast.SymbolClass:
			s = s.NewSymbolicValue(sym, Function)
		case ast.SymbolArguments:
			s = s.NewSymbolicValue(sym, Truthy)
		}
	}
	return s
}

func (e *Engine) tracked(sym *ast.Symbol) bool {
	return sym != nil && sym.Owner == e.fn && sym.Trackable()
}

// enqueue queues state at the entry of block, applying the visit bound,
// loop-head widening and join merging.
func (e *Engine) enqueue(block cfg.BlockID, state *ProgramState) {
	if block == e.graph.End || block == e.graph.ThrowEnd || block == cfg.NoBlock {
		return
	}
	blk := e.graph.Block(block)
	state = state.RemoveDeadVariables(e.live.In(block))

	visits := state.Visits(block)
	if visits >= e.opts.MaxVisitsPerPoint {
		e.result.Bounded = true
		return
	}
	state = state.Visit(block)
	if blk.LoopHead && visits+1 == e.opts.MaxVisitsPerPoint {
		state = e.widenLoop(block, state)
	}

	if e.joins[block] {
		if elem, ok := e.pending[block]; ok {
			queued := elem.Value.(*node)
			if merged := MergeAtJoin(queued.state, state); merged != nil {
				queued.state = merged
				return
			}
		}
	}
	elem := e.worklist.PushBack(&node{block: block, state: state})
	if e.joins[block] {
		e.pending[block] = elem
	}
}

// widenLoop rebinds every variable the loop at head assigns to a fresh
// unknown value, so the last allowed iteration covers all later ones.
func (e *Engine) widenLoop(head cfg.BlockID, state *ProgramState) *ProgramState {
	vars, ok := e.loopVars[head]
	if !ok {
		vars = e.assignedInLoop(head)
		e.loopVars[head] = vars
	}
	for _, sym := range vars {
		if state.ValueOf(sym) != nil {
			state = state.NewSymbolicValue(sym, Any)
		}
	}
	return state
}

// assignedInLoop returns the tracked symbols assigned in the blocks that lie
// on a cycle through head, ordered by ID.
func (e *Engine) assignedInLoop(head cfg.BlockID) []*ast.Symbol {
	preds := make(map[cfg.BlockID][]cfg.BlockID)
	for _, blk := range e.graph.LiveBlocks() {
		for _, succ := range blk.Successors {
			preds[succ] = append(preds[succ], blk.ID)
		}
		if blk.Exception != cfg.NoBlock {
			preds[blk.Exception] = append(preds[blk.Exception], blk.ID)
		}
	}

	forward := map[cfg.BlockID]bool{head: true}
	stack := []cfg.BlockID{head}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		blk := e.graph.Block(id)
		if blk == nil {
			continue
		}
		next := blk.Successors
		if blk.Exception != cfg.NoBlock {
			next = append(next[:len(next):len(next)], blk.Exception)
		}
		for _, succ := range next {
			if !forward[succ] {
				forward[succ] = true
				stack = append(stack, succ)
			}
		}
	}

	inLoop := map[cfg.BlockID]bool{head: true}
	stack = []cfg.BlockID{head}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range preds[id] {
			if forward[p] && !inLoop[p] {
				inLoop[p] = true
				stack = append(stack, p)
			}
		}
	}

	seen := make(map[*ast.Symbol]bool)
	var vars []*ast.Symbol
	for id := range inLoop {
		for _, sym := range e.live.Assigned(id) {
			if e.tracked(sym) && !seen[sym] {
				seen[sym] = true
				vars = append(vars, sym)
			}
		}
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].ID < vars[j].ID })
	return vars
}

// execute runs the elements of blk and queues its successors.
func (e *Engine) execute(blk *cfg.Block, state *ProgramState) {
	entry := state
	if blk.Exception != cfg.NoBlock {
		defer func() {
			e.enqueue(blk.Exception, e.exceptionState(blk, entry))
		}()
	}

	for i, el := range blk.Elements {
		pp := ProgramPoint{Block: blk.ID, Offset: i}
		for _, c := range e.checks {
			c.OnProgramPoint(pp, state, el)
		}
		if state = e.transfer(el, state); state == nil {
			return
		}
	}

	if blk.IsBranching() {
		e.branch(blk, state)
		return
	}
	for _, succ := range blk.Successors {
		e.enqueue(succ, state)
	}
}

// exceptionState is the state a handler sees when blk throws: the stack is
// gone and anything the block assigns may or may not have happened.
func (e *Engine) exceptionState(blk *cfg.Block, entry *ProgramState) *ProgramState {
	s := entry.ClearStack()
	for _, sym := range e.live.Assigned(blk.ID) {
		if e.tracked(sym) {
			s = s.NewSymbolicValue(sym, Any)
		}
	}
	return s
}

// branch splits state over the successors of a branching block.
func (e *Engine) branch(blk *cfg.Block, state *ProgramState) {
	whenTrue, whenFalse := blk.TrueSuccessor(), blk.FalseSuccessor()
	cond := state.PeekStack()

	switch br := blk.Branch.(type) {
	case *ast.ForIn:
		rest := state.ClearStack()
		e.enqueue(whenFalse, rest)
		if IsNully(state, cond) {
			return
		}
		next := rest
		if br.Of {
			var ok bool
			if next, ok = rest.AddConstraint(cond, NotNully); !ok {
				return
			}
		}
		e.enqueue(whenTrue, e.bindTarget(next, br.Left))
		return

	case *ast.Case:
		e.enqueue(whenTrue, state.ClearStack())
		if next := e.graph.Block(whenFalse); next != nil && isCase(next) {
			e.enqueue(whenFalse, state.PopStack(1))
		} else {
			e.enqueue(whenFalse, state.ClearStack())
		}
		return

	case *ast.Logical:
		if blk.KeepsValue {
			e.shortCircuit(br, blk, state, cond)
			return
		}
	}

	rest := state.PopStack(1)
	t, okT := rest.AddConstraint(cond, Truthy)
	f, okF := rest.AddConstraint(cond, Falsy)
	if !okT {
		t = nil
	}
	if !okF {
		f = nil
	}
	for _, c := range e.checks {
		c.OnBranch(blk.Condition(), t, f)
	}
	if t != nil {
		e.enqueue(whenTrue, t)
	}
	if f != nil {
		e.enqueue(whenFalse, f)
	}
}

// shortCircuit splits a value-context logical expression. The edge that
// evaluates the right operand drops the left value; the other edge keeps it
// as the result.
func (e *Engine) shortCircuit(l *ast.Logical, blk *cfg.Block, state *ProgramState, left *Value) {
	whenTrue, whenFalse := blk.TrueSuccessor(), blk.FalseSuccessor()
	if l.Op == "??" {
		if right, ok := state.AddConstraint(left, NullOrUndefined); ok {
			e.enqueue(whenTrue, right.PopStack(1))
		}
		if kept, ok := state.AddConstraint(left, NotNully); ok {
			e.enqueue(whenFalse, kept)
		}
		return
	}

	t, okT := state.AddConstraint(left, Truthy)
	f, okF := state.AddConstraint(left, Falsy)
	if !okT {
		t = nil
	}
	if !okF {
		f = nil
	}
	for _, c := range e.checks {
		c.OnBranch(blk.Condition(), t, f)
	}
	if l.Op == "&&" {
		t = popIfPresent(t)
	} else {
		f = popIfPresent(f)
	}
	if t != nil {
		e.enqueue(whenTrue, t)
	}
	if f != nil {
		e.enqueue(whenFalse, f)
	}
}

func popIfPresent(s *ProgramState) *ProgramState {
	if s == nil {
		return nil
	}
	return s.PopStack(1)
}

func isCase(blk *cfg.Block) bool {
	_, ok := blk.Branch.(*ast.Case)
	return ok && blk.IsBranching()
}

// bindTarget rebinds the variables of a loop or catch target to fresh values.
func (e *Engine) bindTarget(s *ProgramState, target ast.Expr) *ProgramState {
	switch t := target.(type) {
	case *ast.Ident:
		if e.tracked(t.Sym) {
			return s.NewSymbolicValue(t.Sym, Any)
		}
	case *ast.Pattern:
		for _, id := range t.Names {
			if e.tracked(id.Sym) {
				s = s.NewSymbolicValue(id.Sym, Any)
			}
		}
	}
	return s
}
