package parser

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/jsflow/pkg/ast"
)

// converter walks one tree-sitter tree and builds the ast equivalent.
type converter struct {
	src   []byte
	funcs []*ast.Function
	cur   *ast.Function
}

func (c *converter) loc(n *sitter.Node) ast.Loc {
	if n == nil {
		return ast.Loc{}
	}
	start, end := n.StartPoint(), n.EndPoint()
	return ast.Loc{Range: ast.Range{
		Start:     ast.Pos{Line: int(start.Row) + 1, Column: int(start.Column) + 1},
		End:       ast.Pos{Line: int(end.Row) + 1, Column: int(end.Column) + 1},
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}}
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

// named returns the named children of n, skipping comments.
func named(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" || child.Type() == "hash_bang_line" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if list := named(n); len(list) > 0 {
		return list[0]
	}
	return nil
}

// hasToken reports whether n has a direct child of the given type.
func hasToken(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil && child.Type() == typ {
			return true
		}
	}
	return false
}

func field(n *sitter.Node, name string) *sitter.Node {
	if n == nil {
		return nil
	}
	return n.ChildByFieldName(name)
}

func (c *converter) unsupported(n *sitter.Node) *ast.Unsupported {
	if n == nil {
		return &ast.Unsupported{Kind: "missing"}
	}
	return &ast.Unsupported{Loc: c.loc(n), Kind: n.Type()}
}

// stmts converts the statement children of a block-like node.
func (c *converter) stmts(n *sitter.Node) []ast.Stmt {
	var out []ast.Stmt
	for _, child := range named(n) {
		if s := c.stmt(child); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *converter) stmt(n *sitter.Node) ast.Stmt {
	if n == nil {
		return nil
	}
	loc := c.loc(n)
	switch n.Type() {
	case "expression_statement":
		inner := firstNamed(n)
		if inner == nil {
			return &ast.Empty{Loc: loc}
		}
		return &ast.ExprStmt{Loc: loc, X: c.expr(inner)}

	case "variable_declaration":
		return c.varDecl(n, ast.SymbolVar)
	case "lexical_declaration":
		kind := ast.SymbolLet
		kindNode := field(n, "kind")
		if kindNode == nil && n.ChildCount() > 0 {
			kindNode = n.Child(0)
		}
		if kindNode != nil && kindNode.Type() == "const" {
			kind = ast.SymbolConst
		}
		return c.varDecl(n, kind)

	case "function_declaration", "generator_function_declaration":
		f := c.function(n, ast.FuncDeclaration)
		return &ast.FuncDecl{Loc: loc, Name: c.ident(field(n, "name")), Func: f}

	case "class_declaration", "abstract_class_declaration":
		cls := c.class(n)
		return &ast.ClassDecl{Loc: loc, Name: c.ident(field(n, "name")), Class: cls}

	case "if_statement":
		s := &ast.If{
			Loc:  loc,
			Cond: c.expr(field(n, "condition")),
			Then: c.stmt(field(n, "consequence")),
		}
		if alt := field(n, "alternative"); alt != nil {
			if alt.Type() == "else_clause" {
				alt = firstNamed(alt)
			}
			s.Else = c.stmt(alt)
		}
		return s

	case "for_statement":
		return c.forStmt(n)
	case "for_in_statement":
		return c.forInStmt(n)

	case "while_statement":
		return &ast.While{Loc: loc, Cond: c.expr(field(n, "condition")), Body: c.stmt(field(n, "body"))}
	case "do_statement":
		return &ast.DoWhile{Loc: loc, Body: c.stmt(field(n, "body")), Cond: c.expr(field(n, "condition"))}

	case "statement_block":
		return c.block(n)

	case "labeled_statement":
		return &ast.Labeled{Loc: loc, Label: c.text(field(n, "label")), Body: c.stmt(field(n, "body"))}
	case "break_statement":
		s := &ast.Break{Loc: loc}
		if label := field(n, "label"); label != nil {
			s.Label = c.text(label)
		}
		return s
	case "continue_statement":
		s := &ast.Continue{Loc: loc}
		if label := field(n, "label"); label != nil {
			s.Label = c.text(label)
		}
		return s

	case "return_statement":
		s := &ast.Return{Loc: loc}
		if arg := firstNamed(n); arg != nil {
			s.Arg = c.expr(arg)
		}
		return s
	case "throw_statement":
		return &ast.Throw{Loc: loc, Arg: c.expr(firstNamed(n))}

	case "try_statement":
		return c.tryStmt(n)
	case "switch_statement":
		return c.switchStmt(n)

	case "empty_statement":
		return &ast.Empty{Loc: loc}
	case "debugger_statement":
		return &ast.Debugger{Loc: loc}

	case "import_statement":
		return &ast.ModuleDecl{Loc: loc, Bindings: c.importBindings(n)}
	case "export_statement":
		if decl := field(n, "declaration"); decl != nil {
			return c.stmt(decl)
		}
		if value := field(n, "value"); value != nil {
			return &ast.ExprStmt{Loc: loc, X: c.expr(value)}
		}
		return &ast.ModuleDecl{Loc: loc}

	case "interface_declaration", "type_alias_declaration", "enum_declaration",
		"ambient_declaration", "module", "internal_module", "function_signature",
		"abstract_method_signature", "import_alias":
		return &ast.TypeDecl{Loc: loc, Kind: n.Type()}

	default:
		return c.unsupported(n)
	}
}

func (c *converter) block(n *sitter.Node) *ast.Block {
	return &ast.Block{Loc: c.loc(n), Body: c.stmts(n)}
}

func (c *converter) varDecl(n *sitter.Node, kind ast.SymbolKind) *ast.VarDecl {
	decl := &ast.VarDecl{Loc: c.loc(n), Kind: kind}
	for _, child := range named(n) {
		if child.Type() != "variable_declarator" {
			continue
		}
		d := &ast.Declarator{Loc: c.loc(child), Kind: kind, Target: c.target(field(child, "name"))}
		if value := field(child, "value"); value != nil {
			d.Init = c.expr(value)
		}
		decl.Decls = append(decl.Decls, d)
	}
	return decl
}

func (c *converter) forStmt(n *sitter.Node) ast.Stmt {
	s := &ast.For{Loc: c.loc(n), Body: c.stmt(field(n, "body"))}
	if init := field(n, "initializer"); init != nil {
		switch init.Type() {
		case "lexical_declaration", "variable_declaration", "expression_statement":
			s.Init = c.stmt(init)
		case "empty_statement", ";":
		default:
			s.Init = &ast.ExprStmt{Loc: c.loc(init), X: c.expr(init)}
		}
	}
	if cond := field(n, "condition"); cond != nil && cond.IsNamed() {
		switch cond.Type() {
		case "expression_statement":
			if inner := firstNamed(cond); inner != nil {
				s.Cond = c.expr(inner)
			}
		case "empty_statement":
		default:
			s.Cond = c.expr(cond)
		}
	}
	if update := field(n, "increment"); update != nil {
		s.Update = c.expr(update)
	}
	return s
}

func (c *converter) forInStmt(n *sitter.Node) ast.Stmt {
	s := &ast.ForIn{
		Loc:   c.loc(n),
		Left:  c.target(field(n, "left")),
		Right: c.expr(field(n, "right")),
		Body:  c.stmt(field(n, "body")),
		Await: hasToken(n, "await"),
	}
	if op := field(n, "operator"); op != nil {
		s.Of = op.Type() == "of"
	} else {
		s.Of = hasToken(n, "of")
	}
	if kind := field(n, "kind"); kind != nil {
		switch kind.Type() {
		case "let":
			s.Decl = ast.SymbolLet
		case "const":
			s.Decl = ast.SymbolConst
		default:
			s.Decl = ast.SymbolVar
		}
	}
	return s
}

func (c *converter) tryStmt(n *sitter.Node) ast.Stmt {
	s := &ast.Try{Loc: c.loc(n), Body: c.block(field(n, "body"))}
	if handler := field(n, "handler"); handler != nil {
		s.Param = &ast.CatchParam{Loc: c.loc(handler)}
		if param := field(handler, "parameter"); param != nil {
			s.Param.Loc = c.loc(param)
			s.Param.Target = c.target(param)
		}
		s.Handler = c.block(field(handler, "body"))
	}
	if finalizer := field(n, "finalizer"); finalizer != nil {
		s.Finalizer = c.block(field(finalizer, "body"))
	}
	return s
}

func (c *converter) switchStmt(n *sitter.Node) ast.Stmt {
	s := &ast.Switch{Loc: c.loc(n), Disc: c.expr(field(n, "value"))}
	for _, clause := range named(field(n, "body")) {
		cs := &ast.Case{Loc: c.loc(clause)}
		value := field(clause, "value")
		if clause.Type() == "switch_case" && value != nil {
			cs.Test = c.expr(value)
		}
		for _, child := range named(clause) {
			if value != nil && child.StartByte() == value.StartByte() && child.EndByte() == value.EndByte() {
				continue
			}
			if st := c.stmt(child); st != nil {
				cs.Body = append(cs.Body, st)
			}
		}
		s.Cases = append(s.Cases, cs)
	}
	return s
}

func (c *converter) importBindings(n *sitter.Node) []*ast.Ident {
	var out []*ast.Ident
	var visit func(*sitter.Node)
	visit = func(node *sitter.Node) {
		for _, child := range named(node) {
			switch child.Type() {
			case "identifier":
				out = append(out, c.ident(child))
			case "import_specifier":
				name := field(child, "alias")
				if name == nil {
					name = field(child, "name")
				}
				if name != nil && name.Type() == "identifier" {
					out = append(out, c.ident(name))
				}
			case "import_clause", "named_imports", "namespace_import":
				visit(child)
			}
		}
	}
	visit(n)
	return out
}

func (c *converter) ident(n *sitter.Node) *ast.Ident {
	if n == nil {
		return nil
	}
	return &ast.Ident{Loc: c.loc(n), Name: c.text(n)}
}

// target converts an assignment or binding target.
func (c *converter) target(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return c.ident(n)
	case "parenthesized_expression", "non_null_expression":
		return c.target(firstNamed(n))
	case "member_expression", "subscript_expression":
		return c.expr(n)
	default:
		p := &ast.Pattern{Loc: c.loc(n)}
		c.collectBindings(n, &p.Names)
		return p
	}
}

// collectBindings gathers the identifiers bound by a destructuring pattern.
func (c *converter) collectBindings(n *sitter.Node, out *[]*ast.Ident) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		*out = append(*out, c.ident(n))
	case "pair_pattern":
		c.collectBindings(field(n, "value"), out)
	case "assignment_pattern", "object_assignment_pattern":
		c.collectBindings(field(n, "left"), out)
	case "required_parameter", "optional_parameter":
		c.collectBindings(field(n, "pattern"), out)
	case "member_expression", "subscript_expression", "this":
	default:
		for _, child := range named(n) {
			c.collectBindings(child, out)
		}
	}
}

func (c *converter) param(n *sitter.Node) ast.Expr {
	switch n.Type() {
	case "identifier":
		return c.ident(n)
	case "assignment_pattern":
		return c.param(field(n, "left"))
	case "required_parameter", "optional_parameter":
		pattern := field(n, "pattern")
		if pattern == nil || pattern.Type() == "this" {
			return nil
		}
		return c.param(pattern)
	default:
		p := &ast.Pattern{Loc: c.loc(n)}
		c.collectBindings(n, &p.Names)
		return p
	}
}

// function converts any function-like node and registers it for analysis.
func (c *converter) function(n *sitter.Node, kind ast.FunctionKind) *ast.Function {
	f := &ast.Function{
		Loc:       c.loc(n),
		Kind:      kind,
		Async:     hasToken(n, "async"),
		Generator: hasToken(n, "*") || strings.HasPrefix(n.Type(), "generator_"),
		Parent:    c.cur,
	}
	if name := field(n, "name"); name != nil {
		f.Name = c.text(name)
	}
	if params := field(n, "parameters"); params != nil {
		for _, p := range named(params) {
			if e := c.param(p); e != nil {
				f.Params = append(f.Params, e)
			}
		}
	} else if single := field(n, "parameter"); single != nil {
		f.Params = append(f.Params, c.param(single))
	}

	c.funcs = append(c.funcs, f)
	outer := c.cur
	c.cur = f
	defer func() { c.cur = outer }()

	body := field(n, "body")
	switch {
	case body == nil:
	case body.Type() == "statement_block":
		f.Body = c.stmts(body)
	default:
		x := c.expr(body)
		f.Body = []ast.Stmt{&ast.Return{Loc: c.loc(body), Arg: x}}
	}
	return f
}

func (c *converter) class(n *sitter.Node) *ast.Class {
	cls := &ast.Class{Loc: c.loc(n)}
	if name := field(n, "name"); name != nil {
		cls.Name = c.text(name)
	}
	for _, child := range named(n) {
		if child.Type() == "class_heritage" {
			if sup := firstNamed(child); sup != nil {
				if sup.Type() == "extends_clause" {
					sup = field(sup, "value")
				}
				if sup != nil {
					cls.Heritage = c.expr(sup)
				}
			}
		}
	}
	for _, member := range named(field(n, "body")) {
		switch member.Type() {
		case "method_definition":
			cls.Methods = append(cls.Methods, c.function(member, ast.FuncMethod))
		case "field_definition", "public_field_definition":
			// Initializers are not evaluated, but functions inside them are
			// still analysis units.
			if value := field(member, "value"); value != nil {
				c.expr(value)
			}
		}
	}
	return cls
}

func (c *converter) args(n *sitter.Node) []ast.Expr {
	var out []ast.Expr
	for _, a := range named(n) {
		out = append(out, c.expr(a))
	}
	return out
}

// operator returns the operator token of a unary, update, binary or
// assignment node.
func operator(n *sitter.Node) string {
	if op := field(n, "operator"); op != nil {
		return op.Type()
	}
	return ""
}

func isOptional(n *sitter.Node) bool {
	return hasToken(n, "optional_chain") || hasToken(n, "?.")
}

// inOptionalChain reports whether a link below n in the same chain is
// optional. Parentheses end a chain.
func inOptionalChain(n *sitter.Node) bool {
	for obj := chainObject(n); obj != nil; obj = chainObject(obj) {
		if obj.Type() != "non_null_expression" && isOptional(obj) {
			return true
		}
	}
	return false
}

func chainObject(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "member_expression", "subscript_expression":
		return field(n, "object")
	case "call_expression":
		return field(n, "function")
	case "non_null_expression":
		return firstNamed(n)
	}
	return nil
}

func (c *converter) expr(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	loc := c.loc(n)
	switch n.Type() {
	case "parenthesized_expression":
		inner := firstNamed(n)
		if inner == nil {
			return c.unsupported(n)
		}
		return c.expr(inner)

	case "identifier", "shorthand_property_identifier":
		if c.text(n) == "undefined" {
			return &ast.Literal{Loc: loc, Kind: ast.LitUndefined, Raw: "undefined"}
		}
		return c.ident(n)
	case "undefined":
		return &ast.Literal{Loc: loc, Kind: ast.LitUndefined, Raw: "undefined"}
	case "null":
		return &ast.Literal{Loc: loc, Kind: ast.LitNull, Raw: "null"}
	case "true", "false":
		return &ast.Literal{Loc: loc, Kind: ast.LitBool, Raw: n.Type(), Bool: n.Type() == "true"}
	case "number":
		return c.number(n)
	case "string":
		raw := c.text(n)
		str := raw
		if len(str) >= 2 {
			str = str[1 : len(str)-1]
		}
		return &ast.Literal{Loc: loc, Kind: ast.LitString, Raw: raw, Str: str}
	case "regex":
		return &ast.Literal{Loc: loc, Kind: ast.LitRegex, Raw: c.text(n)}
	case "template_string":
		return c.template(n)

	case "this":
		return &ast.This{Loc: loc}
	case "super":
		return &ast.Super{Loc: loc}

	case "function", "function_expression", "generator_function":
		return &ast.FuncLit{Loc: loc, Func: c.function(n, ast.FuncExpression)}
	case "arrow_function":
		return &ast.FuncLit{Loc: loc, Func: c.function(n, ast.FuncArrow)}
	case "class":
		return &ast.ClassLit{Loc: loc, Class: c.class(n)}

	case "array":
		return &ast.Array{Loc: loc, Elems: c.args(n)}
	case "object":
		return c.object(n)

	case "unary_expression":
		return &ast.Unary{Loc: loc, Op: operator(n), X: c.expr(field(n, "argument"))}
	case "update_expression":
		prefix := n.ChildCount() > 0 && (n.Child(0).Type() == "++" || n.Child(0).Type() == "--")
		return &ast.Update{Loc: loc, Op: operator(n), Prefix: prefix, X: c.expr(field(n, "argument"))}
	case "binary_expression":
		op := operator(n)
		x, y := c.expr(field(n, "left")), c.expr(field(n, "right"))
		switch op {
		case "&&", "||", "??":
			return &ast.Logical{Loc: loc, Op: op, X: x, Y: y}
		}
		return &ast.Binary{Loc: loc, Op: op, X: x, Y: y}
	case "assignment_expression":
		return &ast.Assign{Loc: loc, Op: "=", Target: c.target(field(n, "left")), Value: c.expr(field(n, "right"))}
	case "augmented_assignment_expression":
		return &ast.Assign{
			Loc:    loc,
			Op:     operator(n),
			Target: c.target(field(n, "left")),
			Value:  c.expr(field(n, "right")),
		}
	case "ternary_expression":
		return &ast.Cond{
			Loc:  loc,
			Test: c.expr(field(n, "condition")),
			Then: c.expr(field(n, "consequence")),
			Else: c.expr(field(n, "alternative")),
		}

	case "call_expression":
		callee := field(n, "function")
		args := field(n, "arguments")
		if args != nil && args.Type() == "template_string" {
			quasi, _ := c.template(args).(*ast.Template)
			return &ast.TaggedTemplate{Loc: loc, Tag: c.expr(callee), Quasi: quasi}
		}
		var calleeExpr ast.Expr
		if callee != nil && callee.Type() == "import" {
			calleeExpr = &ast.Opaque{Loc: c.loc(callee), Kind: "import"}
		} else {
			calleeExpr = c.expr(callee)
		}
		return &ast.Call{Loc: loc, Callee: calleeExpr, Args: c.args(args), Optional: isOptional(n)}
	case "new_expression":
		return &ast.New{Loc: loc, Callee: c.expr(field(n, "constructor")), Args: c.args(field(n, "arguments"))}
	case "member_expression":
		return &ast.Member{
			Loc:      loc,
			X:        c.expr(field(n, "object")),
			Prop:     c.text(field(n, "property")),
			Optional: isOptional(n),
			InChain:  inOptionalChain(n),
		}
	case "subscript_expression":
		return &ast.Index{
			Loc:      loc,
			X:        c.expr(field(n, "object")),
			Index:    c.expr(field(n, "index")),
			Optional: isOptional(n),
			InChain:  inOptionalChain(n),
		}
	case "sequence_expression":
		seq := &ast.Seq{Loc: loc}
		c.flattenSeq(n, &seq.List)
		return seq

	case "spread_element":
		return &ast.Spread{Loc: loc, X: c.expr(firstNamed(n))}
	case "await_expression":
		return &ast.Await{Loc: loc, X: c.expr(firstNamed(n))}
	case "yield_expression":
		y := &ast.Yield{Loc: loc, Delegate: hasToken(n, "*")}
		if arg := firstNamed(n); arg != nil {
			y.X = c.expr(arg)
		}
		return y

	case "object_pattern", "array_pattern":
		return c.target(n)

	case "as_expression", "satisfies_expression", "non_null_expression", "instantiation_expression":
		return c.expr(firstNamed(n))
	case "type_assertion":
		list := named(n)
		if len(list) == 0 {
			return c.unsupported(n)
		}
		return c.expr(list[len(list)-1])

	case "jsx_element", "jsx_self_closing_element", "jsx_fragment":
		op := &ast.Opaque{Loc: loc, Kind: n.Type()}
		c.jsxParts(n, &op.Parts)
		return op
	case "meta_property", "import", "private_property_identifier":
		return &ast.Opaque{Loc: loc, Kind: n.Type()}

	default:
		return c.unsupported(n)
	}
}

func (c *converter) flattenSeq(n *sitter.Node, out *[]ast.Expr) {
	for _, child := range named(n) {
		if child.Type() == "sequence_expression" {
			c.flattenSeq(child, out)
			continue
		}
		*out = append(*out, c.expr(child))
	}
}

func (c *converter) jsxParts(n *sitter.Node, out *[]ast.Expr) {
	for _, child := range named(n) {
		if child.Type() == "jsx_expression" {
			if inner := firstNamed(child); inner != nil {
				*out = append(*out, c.expr(inner))
			}
			continue
		}
		c.jsxParts(child, out)
	}
}

func (c *converter) template(n *sitter.Node) ast.Expr {
	t := &ast.Template{Loc: c.loc(n), Empty: c.text(n) == "``"}
	for _, child := range named(n) {
		if child.Type() == "template_substitution" {
			t.Exprs = append(t.Exprs, c.expr(firstNamed(child)))
		}
	}
	return t
}

func (c *converter) object(n *sitter.Node) ast.Expr {
	obj := &ast.Object{Loc: c.loc(n)}
	for _, child := range named(n) {
		prop := &ast.Property{Loc: c.loc(child)}
		switch child.Type() {
		case "pair":
			if key := field(child, "key"); key != nil && key.Type() == "computed_property_name" {
				prop.Key = c.expr(firstNamed(key))
			}
			prop.Value = c.expr(field(child, "value"))
		case "shorthand_property_identifier":
			prop.Value = c.expr(child)
		case "spread_element":
			prop.Value = c.expr(child)
		case "method_definition":
			c.function(child, ast.FuncMethod)
		default:
			prop.Value = c.unsupported(child)
		}
		obj.Props = append(obj.Props, prop)
	}
	return obj
}

func (c *converter) number(n *sitter.Node) ast.Expr {
	raw := c.text(n)
	lit := &ast.Literal{Loc: c.loc(n), Kind: ast.LitNumber, Raw: raw}
	text := strings.ReplaceAll(raw, "_", "")
	if strings.HasSuffix(text, "n") {
		lit.Kind = ast.LitBigInt
		text = strings.TrimSuffix(text, "n")
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		lit.Num, lit.NumKnown = v, true
	} else if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		lit.Num, lit.NumKnown = float64(i), true
	}
	return lit
}

