package cfg

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/l3aro/jsflow/pkg/ast"
)

// breakable is an enclosing statement that break or continue can target.
type breakable struct {
	breakTarget    BlockID
	continueTarget BlockID // NoBlock for switch and labeled statements
	labels         []string
	labelOnly      bool // Only a labeled break can target it
	finallyDepth   int  // Number of enclosing finally clauses when pushed
}

// jumpContext is the part of the builder state that a nested construct saves
// and restores.
type jumpContext struct {
	breakables []breakable
	throws     []BlockID
	excs       []BlockID
	finallies  []*finallyClause
}

// finallyClause is a finally body that jumps leaving its try must run.
type finallyClause struct {
	body   []ast.Stmt
	outer  jumpContext         // Context outside the try statement
	copies map[BlockID]BlockID // Jump target to entry of the copy leading there
}

type builder struct {
	blocks   []*Block
	end      BlockID
	throwEnd BlockID
	cur      BlockID
	jumpContext
	labels []string // Labels waiting for the next loop or switch
}

type bailout struct{ err error }

// Build converts a function or script body into a Graph.
func Build(body []ast.Stmt) (g *Graph, err error) {
	b := &builder{}
	defer func() {
		if r := recover(); r != nil {
			bo, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			g, err = nil, bo.err
		}
	}()

	b.end = b.newBlock(nil)
	b.throwEnd = b.newBlock(nil)
	b.throws = []BlockID{b.throwEnd}
	b.cur = b.simple(b.end)
	b.stmts(body)
	return b.finish(b.cur), nil
}

func (b *builder) fail(n ast.Node, reason string) {
	kind := strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
	if u, ok := n.(*ast.Unsupported); ok {
		kind = u.Kind
	}
	var pos ast.Pos
	if n != nil {
		pos = n.Span().Start
	}
	panic(bailout{&UnsupportedError{Kind: kind, Pos: pos, Reason: reason}})
}

func (b *builder) newBlock(succs []BlockID) BlockID {
	id := BlockID(len(b.blocks))
	exc := NoBlock
	if len(b.excs) > 0 {
		exc = b.excs[len(b.excs)-1]
	}
	b.blocks = append(b.blocks, &Block{ID: id, Successors: succs, Exception: exc})
	return id
}

func (b *builder) simple(succ BlockID) BlockID {
	return b.newBlock([]BlockID{succ})
}

func (b *builder) branching(tree ast.Node, whenTrue, whenFalse BlockID) BlockID {
	id := b.newBlock([]BlockID{whenTrue, whenFalse})
	b.blocks[id].Branch = tree
	return id
}

// forwarding creates a placeholder whose successor is set once known.
func (b *builder) forwarding() BlockID {
	return b.simple(NoBlock)
}

func (b *builder) setForward(id, target BlockID) {
	b.blocks[id].Successors[0] = target
}

// add prepends n to the current block. Elements are stored reversed until
// finish.
func (b *builder) add(n ast.Node) {
	blk := b.blocks[b.cur]
	blk.Elements = append(blk.Elements, n)
}

func (b *builder) throwTarget() BlockID {
	return b.throws[len(b.throws)-1]
}

func (b *builder) takeLabels() []string {
	labels := b.labels
	b.labels = nil
	return labels
}

func (b *builder) pushBreakable(br breakable) {
	br.finallyDepth = len(b.finallies)
	b.breakables = append(b.breakables, br)
}

func (b *builder) popBreakable() {
	b.breakables = b.breakables[:len(b.breakables)-1]
}

func (c jumpContext) clone() jumpContext {
	return jumpContext{
		breakables: slices.Clone(c.breakables),
		throws:     slices.Clone(c.throws),
		excs:       slices.Clone(c.excs),
		finallies:  slices.Clone(c.finallies),
	}
}

// route threads a jump to target through every finally clause entered since
// depth.
func (b *builder) route(target BlockID, depth int) BlockID {
	for i := len(b.finallies) - 1; i >= depth; i-- {
		target = b.finallyCopy(b.finallies[i], target)
	}
	return target
}

func (b *builder) finallyCopy(f *finallyClause, target BlockID) BlockID {
	if id, ok := f.copies[target]; ok {
		return id
	}
	savedCtx, savedCur, savedLabels := b.jumpContext.clone(), b.cur, b.labels
	b.jumpContext = f.outer.clone()
	b.labels = nil

	b.cur = b.simple(target)
	b.stmts(f.body)
	entry := b.cur

	b.jumpContext, b.cur, b.labels = savedCtx, savedCur, savedLabels
	f.copies[target] = entry
	return entry
}

func (b *builder) stmts(list []ast.Stmt) {
	for i := len(list) - 1; i >= 0; i-- {
		b.stmt(list[i])
	}
}

func (b *builder) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case nil:
	case *ast.ExprStmt:
		b.add(s)
		b.expr(s.X)
	case *ast.VarDecl:
		b.add(s)
		for i := len(s.Decls) - 1; i >= 0; i-- {
			b.stmt(s.Decls[i])
		}
	case *ast.Declarator:
		b.add(s)
		if s.Init != nil {
			b.expr(s.Init)
		}
	case *ast.FuncDecl, *ast.ClassDecl, *ast.Debugger:
		b.add(s)
	case *ast.Empty, *ast.ModuleDecl, *ast.TypeDecl:
	case *ast.Block:
		b.stmts(s.Body)

	case *ast.Return:
		b.cur = b.simple(b.route(b.end, 0))
		b.add(s)
		if s.Arg != nil {
			b.expr(s.Arg)
		}
	case *ast.Throw:
		b.cur = b.simple(b.throwTarget())
		b.add(s)
		if s.Arg != nil {
			b.expr(s.Arg)
		}
	case *ast.Break:
		br := b.findBreak(s, s.Label)
		b.cur = b.simple(b.route(br.breakTarget, br.finallyDepth))
		b.add(s)
	case *ast.Continue:
		br := b.findContinue(s, s.Label)
		b.cur = b.simple(b.route(br.continueTarget, br.finallyDepth))
		b.add(s)

	case *ast.If:
		b.ifStmt(s)
	case *ast.While:
		b.whileStmt(s)
	case *ast.DoWhile:
		b.doWhileStmt(s)
	case *ast.For:
		b.forStmt(s)
	case *ast.ForIn:
		b.forInStmt(s)
	case *ast.Labeled:
		b.labeledStmt(s)
	case *ast.Switch:
		b.switchStmt(s)
	case *ast.Try:
		b.tryStmt(s)

	default:
		b.fail(s, "")
	}
}

func (b *builder) findBreak(n ast.Node, label string) breakable {
	for i := len(b.breakables) - 1; i >= 0; i-- {
		br := b.breakables[i]
		if label == "" && !br.labelOnly {
			return br
		}
		if label != "" && slices.Contains(br.labels, label) {
			return br
		}
	}
	if label != "" {
		b.fail(n, fmt.Sprintf("undefined label %q", label))
	}
	b.fail(n, "break outside of loop or switch")
	return breakable{}
}

func (b *builder) findContinue(n ast.Node, label string) breakable {
	for i := len(b.breakables) - 1; i >= 0; i-- {
		br := b.breakables[i]
		if br.continueTarget == NoBlock {
			if label != "" && slices.Contains(br.labels, label) {
				b.fail(n, fmt.Sprintf("label %q is not a loop", label))
			}
			continue
		}
		if label == "" || slices.Contains(br.labels, label) {
			return br
		}
	}
	if label != "" {
		b.fail(n, fmt.Sprintf("undefined label %q", label))
	}
	b.fail(n, "continue outside of loop")
	return breakable{}
}

func (b *builder) ifStmt(s *ast.If) {
	succ := b.cur
	elseEntry := succ
	if s.Else != nil {
		b.cur = b.simple(succ)
		b.stmt(s.Else)
		elseEntry = b.cur
	}
	b.cur = b.simple(succ)
	b.stmt(s.Then)
	thenEntry := b.cur

	b.cur = b.branching(s, thenEntry, elseEntry)
	b.condition(s.Cond, thenEntry, elseEntry)
}

func (b *builder) whileStmt(s *ast.While) {
	succ := b.cur
	head := b.forwarding()
	b.pushBreakable(breakable{breakTarget: succ, continueTarget: head, labels: b.takeLabels()})
	b.cur = b.simple(head)
	b.stmt(s.Body)
	body := b.cur
	b.popBreakable()

	b.cur = b.branching(s, body, succ)
	b.condition(s.Cond, body, succ)
	b.loopHead(head, b.cur)
}

func (b *builder) doWhileStmt(s *ast.DoWhile) {
	succ := b.cur
	cond := b.forwarding()
	head := b.forwarding()

	b.cur = b.branching(s, head, succ)
	b.condition(s.Cond, head, succ)
	b.setForward(cond, b.cur)

	b.pushBreakable(breakable{breakTarget: succ, continueTarget: cond, labels: b.takeLabels()})
	b.cur = b.simple(b.cur)
	b.stmt(s.Body)
	b.popBreakable()
	b.loopHead(head, b.cur)
}

func (b *builder) forStmt(s *ast.For) {
	succ := b.cur
	head := b.forwarding()
	update := b.forwarding()

	b.cur = b.simple(head)
	if s.Update != nil {
		b.expr(s.Update)
	}
	b.setForward(update, b.cur)

	b.pushBreakable(breakable{breakTarget: succ, continueTarget: update, labels: b.takeLabels()})
	b.cur = b.simple(b.cur)
	b.stmt(s.Body)
	body := b.cur
	b.popBreakable()

	if s.Cond != nil {
		b.cur = b.branching(s, body, succ)
		b.condition(s.Cond, body, succ)
	} else {
		// An element keeps the head from being removed as empty.
		b.cur = b.simple(body)
		b.add(s)
	}
	b.loopHead(head, b.cur)
	if s.Init != nil {
		b.stmt(s.Init)
	}
}

func (b *builder) forInStmt(s *ast.ForIn) {
	succ := b.cur
	head := b.forwarding()
	b.pushBreakable(breakable{breakTarget: succ, continueTarget: head, labels: b.takeLabels()})
	b.cur = b.simple(head)
	b.stmt(s.Body)
	body := b.cur
	b.popBreakable()

	b.cur = b.branching(s, body, succ)
	b.add(s)
	b.expr(s.Right)
	b.loopHead(head, b.cur)
}

// loopHead resolves the forwarding block of a loop to its head and starts a
// fresh block for the code that precedes the loop.
func (b *builder) loopHead(forward, head BlockID) {
	b.setForward(forward, head)
	b.blocks[head].LoopHead = true
	b.cur = b.simple(head)
}

// takesLabels reports whether s consumes the labels in front of it.
func takesLabels(s ast.Stmt) bool {
	switch s.(type) {
	case *ast.While, *ast.DoWhile, *ast.For, *ast.ForIn, *ast.Switch:
		return true
	}
	return false
}

func (b *builder) labeledStmt(s *ast.Labeled) {
	labels := []string{s.Label}
	body := s.Body
	for {
		inner, ok := body.(*ast.Labeled)
		if !ok {
			break
		}
		labels = append(labels, inner.Label)
		body = inner.Body
	}
	if takesLabels(body) {
		b.labels = append(b.labels, labels...)
		b.stmt(body)
		return
	}
	succ := b.cur
	b.pushBreakable(breakable{breakTarget: succ, continueTarget: NoBlock, labels: labels, labelOnly: true})
	b.cur = b.simple(succ)
	b.stmt(body)
	b.popBreakable()
}

func (b *builder) switchStmt(s *ast.Switch) {
	succ := b.cur
	b.pushBreakable(breakable{breakTarget: succ, continueTarget: NoBlock, labels: b.takeLabels()})
	entries := make([]BlockID, len(s.Cases))
	next := succ
	for i := len(s.Cases) - 1; i >= 0; i-- {
		b.cur = b.simple(next)
		b.stmts(s.Cases[i].Body)
		entries[i] = b.cur
		next = b.cur
	}
	b.popBreakable()

	otherwise := succ
	for i, c := range s.Cases {
		if c.Test == nil {
			otherwise = entries[i]
		}
	}
	for i := len(s.Cases) - 1; i >= 0; i-- {
		c := s.Cases[i]
		if c.Test == nil {
			continue
		}
		b.cur = b.branching(c, entries[i], otherwise)
		b.expr(c.Test)
		otherwise = b.cur
	}
	b.cur = b.simple(otherwise)
	b.expr(s.Disc)
}

func (b *builder) tryStmt(s *ast.Try) {
	succ := b.cur
	outer := b.jumpContext.clone()
	outerExc := NoBlock
	if len(b.excs) > 0 {
		outerExc = b.excs[len(b.excs)-1]
	}

	next := succ
	excTarget := NoBlock // Where exceptions raised in the try body go
	var clause *finallyClause
	if s.Finalizer != nil {
		b.cur = b.simple(succ)
		b.stmts(s.Finalizer.Body)
		next = b.cur

		b.cur = b.simple(b.throwTarget())
		b.stmts(s.Finalizer.Body)
		excTarget = b.cur

		clause = &finallyClause{body: s.Finalizer.Body, outer: outer, copies: make(map[BlockID]BlockID)}
		b.finallies = append(b.finallies, clause)
	}

	if s.Handler != nil {
		handlerExc := outerExc
		if clause != nil {
			handlerExc = excTarget
			b.throws = append(b.throws, excTarget)
		}
		b.excs = append(b.excs, handlerExc)
		b.cur = b.simple(next)
		b.stmts(s.Handler.Body)
		if s.Param != nil {
			b.add(s.Param)
		}
		excTarget = b.cur
		b.excs = b.excs[:len(b.excs)-1]
		if clause != nil {
			b.throws = b.throws[:len(b.throws)-1]
		}
	}

	if excTarget == NoBlock {
		b.stmts(s.Body.Body)
		return
	}
	b.throws = append(b.throws, excTarget)
	b.excs = append(b.excs, excTarget)
	b.cur = b.simple(next)
	b.stmts(s.Body.Body)
	body := b.cur
	b.throws = b.throws[:len(b.throws)-1]
	b.excs = b.excs[:len(b.excs)-1]
	if clause != nil {
		b.finallies = b.finallies[:len(b.finallies)-1]
	}

	b.cur = b.simple(body)
}

// condition builds a branch condition into the current branching block.
// Short-circuit operators become chains of branching blocks.
func (b *builder) condition(e ast.Expr, whenTrue, whenFalse BlockID) {
	l, ok := e.(*ast.Logical)
	if !ok || l.Op == "??" {
		b.expr(e)
		return
	}
	b.condition(l.Y, whenTrue, whenFalse)
	right := b.cur
	if l.Op == "&&" {
		b.cur = b.branching(l, right, whenFalse)
		b.condition(l.X, right, whenFalse)
	} else {
		b.cur = b.branching(l, whenTrue, right)
		b.condition(l.X, whenTrue, right)
	}
}

// expr adds the elements of e in evaluation order.
func (b *builder) expr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.Ident, *ast.Literal, *ast.This, *ast.Super, *ast.FuncLit, *ast.ClassLit, *ast.Opaque, *ast.Pattern:
		b.add(e)
	case *ast.Template:
		b.add(e)
		b.exprsReversed(e.Exprs)
	case *ast.TaggedTemplate:
		b.add(e)
		if e.Quasi != nil {
			b.exprsReversed(e.Quasi.Exprs)
		}
		b.expr(e.Tag)
	case *ast.Array:
		b.add(e)
		b.exprsReversed(e.Elems)
	case *ast.Object:
		b.add(e)
		for i := len(e.Props) - 1; i >= 0; i-- {
			p := e.Props[i]
			if p.Value != nil {
				b.expr(p.Value)
			}
			if p.Key != nil {
				b.expr(p.Key)
			}
		}
	case *ast.Unary:
		b.add(e)
		b.expr(e.X)
	case *ast.Update:
		b.add(e)
		b.expr(e.X)
	case *ast.Binary:
		b.add(e)
		b.expr(e.Y)
		b.expr(e.X)
	case *ast.Logical:
		merge := b.cur
		b.add(e)
		b.cur = b.simple(merge)
		b.expr(e.Y)
		right := b.cur
		if e.Op == "||" {
			b.cur = b.branching(e, merge, right)
		} else {
			b.cur = b.branching(e, right, merge)
		}
		b.blocks[b.cur].KeepsValue = true
		b.expr(e.X)
	case *ast.Cond:
		merge := b.cur
		b.add(e)
		b.cur = b.simple(merge)
		b.expr(e.Else)
		elseEntry := b.cur
		b.cur = b.simple(merge)
		b.expr(e.Then)
		thenEntry := b.cur
		b.cur = b.branching(e, thenEntry, elseEntry)
		b.condition(e.Test, thenEntry, elseEntry)
	case *ast.Assign:
		b.add(e)
		b.expr(e.Value)
		b.assignTarget(e)
	case *ast.Call:
		b.add(e)
		b.exprsReversed(e.Args)
		b.expr(e.Callee)
	case *ast.New:
		b.add(e)
		b.exprsReversed(e.Args)
		b.expr(e.Callee)
	case *ast.Member:
		b.add(e)
		b.expr(e.X)
	case *ast.Index:
		b.add(e)
		b.expr(e.Index)
		b.expr(e.X)
	case *ast.Seq:
		b.add(e)
		b.exprsReversed(e.List)
	case *ast.Spread:
		b.add(e)
		b.expr(e.X)
	case *ast.Await:
		b.add(e)
		b.expr(e.X)
	case *ast.Yield:
		b.add(e)
		b.expr(e.X)
	default:
		b.fail(e, "")
	}
}

func (b *builder) exprsReversed(list []ast.Expr) {
	for i := len(list) - 1; i >= 0; i-- {
		b.expr(list[i])
	}
}

// assignTarget adds the operands an assignment evaluates before its value.
// Compound assignments also read an identifier target.
func (b *builder) assignTarget(e *ast.Assign) {
	switch t := e.Target.(type) {
	case *ast.Ident:
		if e.Op != "=" {
			b.expr(t)
		}
	case *ast.Member:
		b.expr(t.X)
	case *ast.Index:
		b.expr(t.Index)
		b.expr(t.X)
	case *ast.Pattern, nil:
	default:
		b.fail(e.Target, "invalid assignment target")
	}
}

// AssignOperands returns how many stack slots the target of e occupies below
// the assigned value.
func AssignOperands(e *ast.Assign) int {
	switch e.Target.(type) {
	case *ast.Ident:
		if e.Op != "=" {
			return 1
		}
	case *ast.Member:
		return 1
	case *ast.Index:
		return 2
	}
	return 0
}

// finish removes empty forwarding blocks, flags unreachable blocks and
// renumbers the arena in breadth-first order from the entry.
func (b *builder) finish(start BlockID) *Graph {
	n := len(b.blocks)
	removable := func(id BlockID) bool {
		blk := b.blocks[id]
		return id != b.end && id != b.throwEnd && blk.Branch == nil &&
			len(blk.Elements) == 0 && len(blk.Successors) == 1 && blk.Successors[0] != NoBlock
	}

	target := make([]BlockID, n)
	kept := make([]bool, n)
	for i := range b.blocks {
		id := BlockID(i)
		cur := id
		for steps := 0; removable(cur) && steps <= n; steps++ {
			cur = b.blocks[cur].Successors[0]
		}
		if removable(cur) {
			// Empty cycle: keep the block so the loop survives.
			cur = id
			kept[id] = true
		}
		target[id] = cur
	}
	for i := range b.blocks {
		if !removable(BlockID(i)) {
			kept[i] = true
		}
	}
	resolve := func(id BlockID) BlockID {
		if id == NoBlock {
			return NoBlock
		}
		return target[id]
	}
	for i, blk := range b.blocks {
		if !kept[i] && blk.LoopHead {
			b.blocks[resolve(BlockID(i))].LoopHead = true
		}
	}
	for i, blk := range b.blocks {
		if !kept[i] {
			continue
		}
		for j, s := range blk.Successors {
			blk.Successors[j] = resolve(s)
		}
		blk.Exception = resolve(blk.Exception)
	}

	entry := resolve(start)
	order := make([]BlockID, 0, n)
	reached := make([]bool, n)
	queue := []BlockID{entry}
	reached[entry] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id != b.end && id != b.throwEnd {
			order = append(order, id)
		}
		blk := b.blocks[id]
		next := append(slices.Clone(blk.Successors), blk.Exception)
		for _, s := range next {
			if s != NoBlock && !reached[s] {
				reached[s] = true
				queue = append(queue, s)
			}
		}
	}

	var dead []BlockID
	for i := range b.blocks {
		id := BlockID(i)
		if kept[i] && !reached[i] && id != b.end && id != b.throwEnd {
			b.blocks[i].Dead = true
			dead = append(dead, id)
		}
	}
	sort.SliceStable(dead, func(i, j int) bool {
		return firstByte(b.blocks[dead[i]]) < firstByte(b.blocks[dead[j]])
	})
	order = append(order, dead...)
	order = append(order, b.end, b.throwEnd)

	remap := make([]BlockID, n)
	for i := range remap {
		remap[i] = NoBlock
	}
	for newID, old := range order {
		remap[old] = BlockID(newID)
	}

	g := &Graph{Blocks: make([]*Block, len(order))}
	for newID, old := range order {
		blk := b.blocks[old]
		blk.ID = BlockID(newID)
		slices.Reverse(blk.Elements)
		for j, s := range blk.Successors {
			blk.Successors[j] = remap[s]
		}
		if blk.Exception != NoBlock {
			blk.Exception = remap[blk.Exception]
		}
		g.Blocks[newID] = blk
	}
	for _, blk := range g.Blocks {
		if blk.Dead {
			continue
		}
		for _, s := range blk.Successors {
			succ := g.Blocks[s]
			if !slices.Contains(succ.Predecessors, blk.ID) {
				succ.Predecessors = append(succ.Predecessors, blk.ID)
			}
		}
	}
	g.Entry = remap[entry]
	g.End = remap[b.end]
	g.ThrowEnd = remap[b.throwEnd]
	return g
}

// firstByte returns the start offset of the first element of a block still
// stored in reverse order.
func firstByte(blk *Block) int {
	if len(blk.Elements) == 0 {
		return -1
	}
	return blk.Elements[len(blk.Elements)-1].Span().StartByte
}
