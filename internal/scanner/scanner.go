// Package scanner walks a directory tree and collects JavaScript and
// TypeScript sources. It respects .jsflowignore files with gitignore-style
// patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/jsflow/pkg/parser"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string         // Relative path from root, slash separated
	FullPath string         // Absolute path
	Dialect  parser.Dialect // Grammar to parse the file with
	Size     int64          // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow file symlinks that stay within root
	DefaultExcludes []string // Directory names that are never entered
	IgnoreFileName  string   // Name of the ignore file (default: .jsflowignore)
	Exclude         []string // Extra patterns applied before any ignore file
	MaxFileSize     int64    // Larger files are skipped. 0 means unlimited.
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".jsflowignore",
		DefaultExcludes: []string{
			"node_modules",
			"bower_components",
			"jspm_packages",
			".git",
			".hg",
			".svn",
			"dist",
			"build",
			"out",
			"coverage",
			".next",
			".nuxt",
			".cache",
			".idea",
			".vscode",
		},
		MaxFileSize: 1 << 20,
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".jsflowignore"
	}
	return &Scanner{opts: opts}
}

// Scan returns the analyzable files under root in lexical order. When root
// is a single file it is returned on its own, whatever the ignore rules say.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		dialect, ok := DetectDialect(absRoot)
		if !ok {
			return nil, fmt.Errorf("%s is not a JavaScript or TypeScript file", root)
		}
		return []FileInfo{{
			Path:     filepath.Base(absRoot),
			FullPath: absRoot,
			Dialect:  dialect,
			Size:     info.Size(),
		}}, nil
	}

	patterns := make(ignoreSet, 0, len(s.opts.Exclude))
	for _, raw := range s.opts.Exclude {
		patterns = append(patterns, ParseIgnorePattern(raw))
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped.
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relSlash := filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." {
				if s.opts.SkipHidden && isHidden(d.Name()) {
					return filepath.SkipDir
				}
				if s.isDefaultExcluded(d.Name()) || patterns.ignored(relSlash, true) {
					return filepath.SkipDir
				}
			}
			nested, err := s.loadIgnorePatterns(path, relSlash)
			if err != nil {
				return fmt.Errorf("loading %s: %w", s.opts.IgnoreFileName, err)
			}
			patterns = append(patterns, nested...)
			return nil
		}

		if s.opts.SkipHidden && isHidden(d.Name()) {
			return nil
		}
		dialect, ok := DetectDialect(path)
		if !ok || patterns.ignored(relSlash, false) {
			return nil
		}

		fi, ok := s.resolve(absRoot, path, d)
		if !ok {
			return nil
		}
		if s.opts.MaxFileSize > 0 && fi.Size() > s.opts.MaxFileSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:     relSlash,
			FullPath: path,
			Dialect:  dialect,
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

// resolve returns the file info of a regular file, following a symlink when
// allowed and when its target stays within root.
func (s *Scanner) resolve(absRoot, path string, d fs.DirEntry) (fs.FileInfo, bool) {
	if d.Type()&fs.ModeSymlink == 0 {
		fi, err := d.Info()
		return fi, err == nil && fi.Mode().IsRegular()
	}
	if !s.opts.FollowSymlinks {
		return nil, false
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, false
	}
	if !strings.HasPrefix(realPath, realRoot+string(filepath.Separator)) {
		return nil, false
	}
	fi, err := os.Stat(realPath)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, false
	}
	return fi, true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file in dir. Its patterns are relative
// to relDir.
func (s *Scanner) loadIgnorePatterns(dir, relDir string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if relDir == "." {
		relDir = ""
	}
	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, parseIgnorePattern(line, relDir))
	}
	return patterns, sc.Err()
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
