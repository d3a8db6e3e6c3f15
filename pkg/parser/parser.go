// Package parser converts tree-sitter JavaScript and TypeScript parse trees
// into the ast package's syntax tree.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/l3aro/jsflow/internal/log"
	"github.com/l3aro/jsflow/pkg/ast"
)

// Dialect selects the tree-sitter grammar.
type Dialect string

const (
	JavaScript Dialect = "javascript"
	TypeScript Dialect = "typescript"
	TSX        Dialect = "tsx"
)

// DialectOf returns the dialect for a file path based on its extension.
// Unknown extensions are parsed as JavaScript.
func DialectOf(path string) Dialect {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return TypeScript
	case ".tsx":
		return TSX
	default:
		return JavaScript
	}
}

func (d Dialect) language() *sitter.Language {
	switch d {
	case TypeScript:
		return typescript.GetLanguage()
	case TSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// Parser parses source files into syntax trees. It is safe for concurrent use;
// every call creates its own tree-sitter parser.
type Parser struct {
	logger log.Logger
}

// New creates a Parser.
func New(logger log.Logger) *Parser {
	if logger == nil {
		logger = log.Nop()
	}
	return &Parser{logger: logger.Named("parser")}
}

// Parse parses src with the dialect inferred from path.
func (p *Parser) Parse(ctx context.Context, path string, src []byte) (*ast.File, error) {
	return p.ParseDialect(ctx, path, src, DialectOf(path))
}

// ParseDialect parses src with an explicit dialect.
func (p *Parser) ParseDialect(ctx context.Context, path string, src []byte, dialect Dialect) (*ast.File, error) {
	tsParser := sitter.NewParser()
	defer tsParser.Close()
	tsParser.SetLanguage(dialect.language())

	tree, err := tsParser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	file := &ast.File{Path: path, HasErrors: root.HasError()}
	if file.HasErrors {
		p.logger.Warn("syntax errors found; affected functions will be skipped", "file", path)
	}

	c := &converter{src: src}
	script := &ast.Function{Loc: c.loc(root), Kind: ast.FuncScript}
	c.funcs = append(c.funcs, script)
	c.cur = script
	script.Body = c.stmts(root)

	file.Script = script
	file.Functions = c.funcs
	p.logger.Debug("parsed file", "file", path, "dialect", string(dialect), "functions", len(c.funcs))
	return file, nil
}

// ParseString is a convenience wrapper used by tests and tools.
func ParseString(src string, dialect Dialect) (*ast.File, error) {
	name := "input.js"
	switch dialect {
	case TypeScript:
		name = "input.ts"
	case TSX:
		name = "input.tsx"
	}
	return New(nil).ParseDialect(context.Background(), name, []byte(src), dialect)
}
