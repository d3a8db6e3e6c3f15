package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/jsflow/internal/scanner"
	"github.com/l3aro/jsflow/pkg/ast"
	"github.com/l3aro/jsflow/pkg/cfg"
	"github.com/l3aro/jsflow/pkg/parser"
)

// scriptName selects the top-level code of a file.
const scriptName = "<script>"

type cfgOptions struct {
	*globalOptions
	jsonOutput bool
	line       int
}

func newCFGCmd(global *globalOptions) *cobra.Command {
	opts := &cfgOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "cfg <file> <function>",
		Short: "Show the control flow graph of a function",
		Long: `Builds the Control Flow Graph (CFG) for one function of a JavaScript or
TypeScript file and prints its blocks, edges and cyclomatic complexity.
Use "<script>" as the function name for top-level code.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCFG(cmd, opts, args[0], args[1])
		},
	}
	cmd.Flags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().IntVar(&opts.line, "line", 0, "Line of the function when the name is ambiguous")
	return cmd
}

func runCFG(cmd *cobra.Command, opts *cfgOptions, filePath, functionName string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, expected a file: %s", filePath)
	}
	dialect, ok := scanner.DetectDialect(filePath)
	if !ok {
		return fmt.Errorf("unsupported file type: %s (only JavaScript and TypeScript files are supported)", filePath)
	}

	conf, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(conf, cmd.ErrOrStderr())

	src, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	file, err := parser.New(logger).ParseDialect(cmd.Context(), filePath, src, dialect)
	if err != nil {
		return err
	}

	fn, err := findFunction(file, functionName, opts.line)
	if err != nil {
		return err
	}
	g, err := cfg.Build(fn.Body)
	if err != nil {
		return fmt.Errorf("building CFG for %s: %w", functionName, err)
	}

	cfgInfo := g.Info(fn.DisplayName(), src)
	if opts.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), cfgInfo)
	}
	printCFGInfo(cmd.OutOrStdout(), cfgInfo)
	return nil
}

// findFunction returns the function called name. line picks among several
// functions of the same name.
func findFunction(file *ast.File, name string, line int) (*ast.Function, error) {
	if name == scriptName {
		return file.Script, nil
	}

	var matches []*ast.Function
	for _, fn := range file.Functions {
		if fn.Kind != ast.FuncScript && fn.DisplayName() == name {
			matches = append(matches, fn)
		}
	}

	if line > 0 {
		for _, fn := range matches {
			if fn.Range.Start.Line == line {
				return fn, nil
			}
		}
		return nil, fmt.Errorf("function %q not found at line %d in %s", name, line, file.Path)
	}

	switch len(matches) {
	case 0:
		if suggestions := findSimilarFunctions(file, name); len(suggestions) > 0 {
			return nil, fmt.Errorf("function %q not found in %s\nDid you mean: %s?", name, file.Path, strings.Join(suggestions, ", "))
		}
		return nil, fmt.Errorf("function %q not found in %s", name, file.Path)
	case 1:
		return matches[0], nil
	default:
		lines := make([]string, len(matches))
		for i, fn := range matches {
			lines[i] = fmt.Sprint(fn.Range.Start.Line)
		}
		return nil, fmt.Errorf("function %q is ambiguous in %s (lines %s); use --line", name, file.Path, strings.Join(lines, ", "))
	}
}

// findSimilarFunctions returns the named functions whose name contains the
// query or is contained in it, ignoring case.
func findSimilarFunctions(file *ast.File, name string) []string {
	query := strings.ToLower(name)
	seen := make(map[string]bool)
	var out []string
	for _, fn := range file.Functions {
		if fn.Name == "" || seen[fn.Name] {
			continue
		}
		candidate := strings.ToLower(fn.Name)
		if strings.Contains(candidate, query) || strings.Contains(query, candidate) {
			seen[fn.Name] = true
			out = append(out, fn.Name)
		}
	}
	sort.Strings(out)
	return out
}

// printCFGInfo prints CFG information in human-readable format.
func printCFGInfo(w io.Writer, info *cfg.CFGInfo) {
	fmt.Fprintf(w, "=== CFG for function: %s ===\n", info.FunctionName)
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Fprintf(w, "Entry Block: %s\n", info.EntryBlockID)
	fmt.Fprintf(w, "Exit Blocks: %v\n", info.ExitBlockIDs)

	ids := make([]string, 0, len(info.Blocks))
	for id := range info.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return blockNumber(ids[i]) < blockNumber(ids[j]) })

	fmt.Fprintf(w, "\nBlocks (%d):\n", len(info.Blocks))
	for _, id := range ids {
		block := info.Blocks[id]
		if block.StartLine > 0 {
			fmt.Fprintf(w, "  %s (%s, lines %d-%d)\n", id, block.Type, block.StartLine, block.EndLine)
		} else {
			fmt.Fprintf(w, "  %s (%s)\n", id, block.Type)
		}
		for _, stmt := range block.Statements {
			fmt.Fprintf(w, "    %s\n", stmt)
		}
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(info.Edges))
	for _, edge := range info.Edges {
		if edge.Condition != "" {
			fmt.Fprintf(w, "  %s --%s [%s]--> %s\n", edge.SourceID, edge.EdgeType, edge.Condition, edge.TargetID)
			continue
		}
		fmt.Fprintf(w, "  %s --%s--> %s\n", edge.SourceID, edge.EdgeType, edge.TargetID)
	}
}

func blockNumber(id string) int {
	var n int
	fmt.Sscanf(id, "block_%d", &n)
	return n
}
