package ast

// Inspect traverses the tree rooted at n in depth-first order. It calls f for
// each node; when f returns false the children of that node are skipped.
// Nested function bodies are traversed.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Children returns the direct children of n in source order. Nil children
// are omitted.
func Children(n Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, c := range nodes {
			if !isNil(c) {
				out = append(out, c)
			}
		}
	}
	addExprs := func(list []Expr) {
		for _, e := range list {
			add(e)
		}
	}
	addStmts := func(list []Stmt) {
		for _, s := range list {
			add(s)
		}
	}

	switch n := n.(type) {
	case *Function:
		addExprs(n.Params)
		addStmts(n.Body)
	case *Class:
		add(n.Heritage)
		for _, m := range n.Methods {
			add(m)
		}
	case *Property:
		add(n.Key, n.Value)

	case *ExprStmt:
		add(n.X)
	case *VarDecl:
		for _, d := range n.Decls {
			add(d)
		}
	case *Declarator:
		add(n.Target, n.Init)
	case *FuncDecl:
		add(n.Name, n.Func)
	case *ClassDecl:
		add(n.Name, n.Class)
	case *Return:
		add(n.Arg)
	case *Throw:
		add(n.Arg)
	case *If:
		add(n.Cond, n.Then, n.Else)
	case *For:
		add(n.Init, n.Cond, n.Update, n.Body)
	case *ForIn:
		add(n.Left, n.Right, n.Body)
	case *While:
		add(n.Cond, n.Body)
	case *DoWhile:
		add(n.Body, n.Cond)
	case *Block:
		addStmts(n.Body)
	case *Labeled:
		add(n.Body)
	case *Try:
		add(n.Body, n.Param, n.Handler, n.Finalizer)
	case *CatchParam:
		add(n.Target)
	case *Switch:
		add(n.Disc)
		for _, c := range n.Cases {
			add(c)
		}
	case *Case:
		add(n.Test)
		addStmts(n.Body)
	case *ModuleDecl:
		for _, b := range n.Bindings {
			add(b)
		}

	case *Template:
		addExprs(n.Exprs)
	case *TaggedTemplate:
		add(n.Tag, n.Quasi)
	case *FuncLit:
		add(n.Func)
	case *ClassLit:
		add(n.Class)
	case *Array:
		addExprs(n.Elems)
	case *Object:
		for _, p := range n.Props {
			add(p)
		}
	case *Unary:
		add(n.X)
	case *Update:
		add(n.X)
	case *Binary:
		add(n.X, n.Y)
	case *Logical:
		add(n.X, n.Y)
	case *Assign:
		add(n.Target, n.Value)
	case *Cond:
		add(n.Test, n.Then, n.Else)
	case *Call:
		add(n.Callee)
		addExprs(n.Args)
	case *New:
		add(n.Callee)
		addExprs(n.Args)
	case *Member:
		add(n.X)
	case *Index:
		add(n.X, n.Index)
	case *Seq:
		addExprs(n.List)
	case *Spread:
		add(n.X)
	case *Await:
		add(n.X)
	case *Yield:
		add(n.X)
	case *Pattern:
		for _, id := range n.Names {
			add(id)
		}
	case *Opaque:
		addExprs(n.Parts)

	case *Ident, *Literal, *This, *Super, *Unsupported,
		*Break, *Continue, *Empty, *Debugger, *TypeDecl:
		// leaves
	}
	return out
}

// isNil reports whether a Node interface holds nothing or a typed nil pointer.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch v := n.(type) {
	case Expr:
		return isNilExpr(v)
	case Stmt:
		return isNilStmt(v)
	case *Function:
		return v == nil
	case *Class:
		return v == nil
	case *Property:
		return v == nil
	}
	return false
}

func isNilExpr(e Expr) bool {
	switch v := e.(type) {
	case *Ident:
		return v == nil
	case *Template:
		return v == nil
	case *Pattern:
		return v == nil
	}
	return false
}

func isNilStmt(s Stmt) bool {
	switch v := s.(type) {
	case *Block:
		return v == nil
	case *CatchParam:
		return v == nil
	case *Declarator:
		return v == nil
	case *Case:
		return v == nil
	}
	return false
}
