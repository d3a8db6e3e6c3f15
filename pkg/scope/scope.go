// Package scope binds identifiers to their declarations.
//
// Resolution follows JavaScript scoping: var and function declarations are
// hoisted to the enclosing function, let, const and class declarations are
// scoped to their block, and catch parameters to their clause. Identifiers
// that resolve to no declaration keep a nil Symbol and are treated as globals.
// Symbols written by nested functions are flagged so the engine never tracks
// them.
package scope

import "github.com/l3aro/jsflow/pkg/ast"

type scope struct {
	parent *scope
	fn     *ast.Function
	names  map[string]*ast.Symbol
}

func (s *scope) lookup(name string) *ast.Symbol {
	for cur := s; cur != nil; cur = cur.parent {
		if sym, ok := cur.names[name]; ok {
			return sym
		}
	}
	return nil
}

type resolver struct {
	nextID int
	cur    *scope
}

// Resolve binds every identifier of file and fills each function's Symbols.
// It must be called once per parsed file.
func Resolve(file *ast.File) {
	r := &resolver{nextID: 1}
	r.function(file.Script, nil)
}

func (r *resolver) push(fn *ast.Function) {
	r.cur = &scope{parent: r.cur, fn: fn, names: make(map[string]*ast.Symbol)}
}

func (r *resolver) pop() {
	r.cur = r.cur.parent
}

// declare binds id in the current scope, reusing an existing binding of the
// same name in that scope.
func (r *resolver) declare(id *ast.Ident, kind ast.SymbolKind) *ast.Symbol {
	if id == nil {
		return nil
	}
	if sym, ok := r.cur.names[id.Name]; ok {
		id.Sym = sym
		return sym
	}
	sym := &ast.Symbol{ID: r.nextID, Name: id.Name, Kind: kind, Decl: id.Range, Owner: r.cur.fn}
	r.nextID++
	r.cur.names[id.Name] = sym
	r.cur.fn.Symbols = append(r.cur.fn.Symbols, sym)
	id.Sym = sym
	return sym
}

func (r *resolver) declareTarget(target ast.Expr, kind ast.SymbolKind) {
	switch t := target.(type) {
	case *ast.Ident:
		r.declare(t, kind)
	case *ast.Pattern:
		for _, id := range t.Names {
			r.declare(id, kind)
		}
	}
}

func (r *resolver) function(fn *ast.Function, nameBinding *ast.Ident) {
	r.push(fn)
	defer r.pop()

	if nameBinding != nil {
		r.declare(nameBinding, ast.SymbolFunction)
	}
	for _, p := range fn.Params {
		r.declareTarget(p, ast.SymbolParam)
	}
	hoistVars(fn.Body, func(target ast.Expr) {
		r.declareTarget(target, ast.SymbolVar)
	})
	r.hoistLexical(fn.Body)
	for _, s := range fn.Body {
		r.stmt(s)
	}
}

// hoistVars reports every var-declared target in stmts, not descending into
// nested functions.
func hoistVars(stmts []ast.Stmt, declare func(ast.Expr)) {
	var visit func(ast.Stmt)
	visit = func(s ast.Stmt) {
		switch s := s.(type) {
		case *ast.VarDecl:
			if s.Kind == ast.SymbolVar {
				for _, d := range s.Decls {
					declare(d.Target)
				}
			}
		case *ast.ForIn:
			if s.Decl == ast.SymbolVar {
				declare(s.Left)
			}
			visit(s.Body)
		case *ast.For:
			if s.Init != nil {
				visit(s.Init)
			}
			visit(s.Body)
		case *ast.If:
			visit(s.Then)
			if s.Else != nil {
				visit(s.Else)
			}
		case *ast.While:
			visit(s.Body)
		case *ast.DoWhile:
			visit(s.Body)
		case *ast.Block:
			for _, c := range s.Body {
				visit(c)
			}
		case *ast.Labeled:
			visit(s.Body)
		case *ast.Try:
			visit(s.Body)
			if s.Handler != nil {
				visit(s.Handler)
			}
			if s.Finalizer != nil {
				visit(s.Finalizer)
			}
		case *ast.Switch:
			for _, c := range s.Cases {
				for _, b := range c.Body {
					visit(b)
				}
			}
		}
	}
	for _, s := range stmts {
		if s != nil {
			visit(s)
		}
	}
}

// hoistLexical declares the block-scoped names of one statement list.
func (r *resolver) hoistLexical(stmts []ast.Stmt) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ast.VarDecl:
			if s.Kind != ast.SymbolVar {
				for _, d := range s.Decls {
					r.declareTarget(d.Target, s.Kind)
				}
			}
		case *ast.FuncDecl:
			r.declare(s.Name, ast.SymbolFunction)
		case *ast.ClassDecl:
			r.declare(s.Name, ast.SymbolClass)
		case *ast.ModuleDecl:
			for _, id := range s.Bindings {
				r.declare(id, ast.SymbolImport)
			}
		}
	}
}

func (r *resolver) block(stmts []ast.Stmt) {
	r.push(r.cur.fn)
	defer r.pop()
	r.hoistLexical(stmts)
	for _, s := range stmts {
		r.stmt(s)
	}
}

func (r *resolver) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case nil:
	case *ast.Block:
		if s != nil {
			r.block(s.Body)
		}
	case *ast.VarDecl:
		for _, d := range s.Decls {
			r.stmt(d)
		}
	case *ast.Declarator:
		r.bindTarget(s.Target)
		r.expr(s.Init)
	case *ast.FuncDecl:
		if s.Name != nil && s.Name.Sym == nil {
			s.Name.Sym = r.cur.lookup(s.Name.Name)
		}
		r.function(s.Func, nil)
	case *ast.ClassDecl:
		if s.Name != nil && s.Name.Sym == nil {
			s.Name.Sym = r.cur.lookup(s.Name.Name)
		}
		r.class(s.Class)
	case *ast.For:
		r.push(r.cur.fn)
		if decl, ok := s.Init.(*ast.VarDecl); ok && decl.Kind != ast.SymbolVar {
			for _, d := range decl.Decls {
				r.declareTarget(d.Target, decl.Kind)
			}
		}
		r.stmt(s.Init)
		r.expr(s.Cond)
		r.expr(s.Update)
		r.stmt(s.Body)
		r.pop()
	case *ast.ForIn:
		r.expr(s.Right)
		r.push(r.cur.fn)
		if s.Decl != "" && s.Decl != ast.SymbolVar {
			r.declareTarget(s.Left, s.Decl)
		}
		if s.Decl != "" {
			r.bindTarget(s.Left)
		} else {
			r.writeTarget(s.Left)
		}
		r.stmt(s.Body)
		r.pop()
	case *ast.Try:
		r.stmt(s.Body)
		if s.Handler != nil {
			r.push(r.cur.fn)
			if s.Param != nil && s.Param.Target != nil {
				r.declareTarget(s.Param.Target, ast.SymbolCatch)
			}
			r.block(s.Handler.Body)
			r.pop()
		}
		if s.Finalizer != nil {
			r.stmt(s.Finalizer)
		}
	case *ast.Switch:
		r.expr(s.Disc)
		r.push(r.cur.fn)
		for _, c := range s.Cases {
			r.hoistLexical(c.Body)
		}
		for _, c := range s.Cases {
			r.expr(c.Test)
			for _, b := range c.Body {
				r.stmt(b)
			}
		}
		r.pop()
	case *ast.ModuleDecl:
		for _, id := range s.Bindings {
			if id.Sym == nil {
				id.Sym = r.cur.lookup(id.Name)
			}
		}
	default:
		for _, c := range ast.Children(s) {
			r.node(c)
		}
	}
}

func (r *resolver) node(n ast.Node) {
	switch n := n.(type) {
	case ast.Expr:
		r.expr(n)
	case ast.Stmt:
		r.stmt(n)
	case *ast.Function:
		r.function(n, nil)
	case *ast.Class:
		r.class(n)
	case *ast.Property:
		r.expr(n.Key)
		r.expr(n.Value)
	}
}

func (r *resolver) class(c *ast.Class) {
	r.expr(c.Heritage)
	for _, m := range c.Methods {
		r.function(m, nil)
	}
}

func (r *resolver) expr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.Ident:
		if e != nil {
			r.reference(e, false)
		}
	case *ast.Assign:
		if e.Op == "=" {
			r.writeTarget(e.Target)
		} else {
			r.expr(e.Target)
			r.writeTarget(e.Target)
		}
		r.expr(e.Value)
	case *ast.Update:
		r.expr(e.X)
		r.writeTarget(e.X)
	case *ast.FuncLit:
		var self *ast.Ident
		if e.Func.Kind == ast.FuncExpression && e.Func.Name != "" {
			self = &ast.Ident{Loc: e.Loc, Name: e.Func.Name}
		}
		r.function(e.Func, self)
	case *ast.ClassLit:
		r.class(e.Class)
	case *ast.Pattern:
		for _, id := range e.Names {
			r.reference(id, true)
		}
	default:
		for _, c := range ast.Children(e) {
			r.node(c)
		}
	}
}

// bindTarget resolves the identifiers of a declaration target.
func (r *resolver) bindTarget(target ast.Expr) {
	switch t := target.(type) {
	case *ast.Ident:
		if t != nil && t.Sym == nil {
			t.Sym = r.cur.lookup(t.Name)
		}
	case *ast.Pattern:
		for _, id := range t.Names {
			if id.Sym == nil {
				id.Sym = r.cur.lookup(id.Name)
			}
		}
	default:
		r.expr(target)
	}
}

// writeTarget resolves an assignment target and records the write.
func (r *resolver) writeTarget(target ast.Expr) {
	switch t := target.(type) {
	case *ast.Ident:
		if t != nil {
			r.reference(t, true)
		}
	case *ast.Pattern:
		for _, id := range t.Names {
			r.reference(id, true)
		}
	case *ast.Member:
		r.expr(t.X)
	case *ast.Index:
		r.expr(t.X)
		r.expr(t.Index)
	}
}

func (r *resolver) reference(id *ast.Ident, write bool) {
	sym := r.cur.lookup(id.Name)
	if sym == nil && id.Name == "arguments" {
		sym = r.arguments()
	}
	if sym == nil {
		return
	}
	id.Sym = sym
	if sym.Owner != r.cur.fn {
		if write {
			sym.WrittenInNested = true
		} else {
			sym.ReadInNested = true
		}
	}
}

// arguments returns the implicit arguments symbol of the nearest non-arrow
// function, creating it on first use.
func (r *resolver) arguments() *ast.Symbol {
	fn := r.cur.fn
	for fn != nil && fn.Kind == ast.FuncArrow {
		fn = fn.Parent
	}
	if fn == nil || fn.Kind == ast.FuncScript {
		return nil
	}
	if fn.Arguments == nil {
		fn.Arguments = &ast.Symbol{ID: r.nextID, Name: "arguments", Kind: ast.SymbolArguments, Decl: fn.Range, Owner: fn}
		r.nextID++
		fn.Symbols = append(fn.Symbols, fn.Arguments)
	}
	return fn.Arguments
}
