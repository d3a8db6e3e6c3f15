package scanner

import (
	"path/filepath"
	"strings"

	"github.com/l3aro/jsflow/pkg/parser"
)

// sourceExtensions lists the extensions of analyzable files.
var sourceExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
	".tsx": true,
	".mts": true,
	".cts": true,
}

// declarationSuffixes mark TypeScript declaration files, which carry no
// function bodies.
var declarationSuffixes = []string{".d.ts", ".d.mts", ".d.cts"}

// DetectDialect returns the parser dialect for a file path. The boolean is
// false for files that are not analyzed.
func DetectDialect(path string) (parser.Dialect, bool) {
	name := strings.ToLower(filepath.Base(path))
	if !sourceExtensions[filepath.Ext(name)] {
		return "", false
	}
	for _, suffix := range declarationSuffixes {
		if strings.HasSuffix(name, suffix) {
			return "", false
		}
	}
	return parser.DialectOf(name), true
}
