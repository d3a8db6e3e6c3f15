package scanner

import (
	"path"
	"strings"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	raw         string
	base        string // directory of the ignore file the pattern came from, slash separated
	isNegation  bool   // pattern starts with !
	isDirectory bool   // pattern ends with /
	isAnchored  bool   // pattern starts with / or contains an inner /
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	return parseIgnorePattern(pattern, "")
}

func parseIgnorePattern(pattern, base string) IgnorePattern {
	p := IgnorePattern{raw: pattern, base: strings.Trim(base, "/")}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAnchored = true
		pattern = pattern[1:]
	} else if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		p.isAnchored = true
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// String returns the pattern as it was written.
func (p IgnorePattern) String() string {
	return p.raw
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// Match reports whether the slash-separated file path, relative to the scan
// root, matches the pattern. Negation is left to the caller.
func (p IgnorePattern) Match(relPath string) bool {
	return p.match(relPath, false)
}

// MatchDir is Match for a directory path.
func (p IgnorePattern) MatchDir(relPath string) bool {
	return p.match(relPath, true)
}

func (p IgnorePattern) match(relPath string, isDir bool) bool {
	relPath = strings.Trim(relPath, "/")
	if p.base != "" {
		if !strings.HasPrefix(relPath, p.base+"/") {
			return false
		}
		relPath = strings.TrimPrefix(relPath, p.base+"/")
	}
	segs := strings.Split(relPath, "/")

	// A pattern matches the path itself or any of its parent directories.
	// Directory patterns never match a file name.
	candidates := segs
	if p.isDirectory && !isDir {
		candidates = segs[:len(segs)-1]
	}
	for end := 1; end <= len(candidates); end++ {
		if p.matchAt(candidates[:end]) {
			return true
		}
	}
	return false
}

// matchAt matches the pattern against a path prefix, anchored at its end.
func (p IgnorePattern) matchAt(segs []string) bool {
	if p.isAnchored {
		return matchSegments(p.segments, segs)
	}
	for start := 0; start < len(segs); start++ {
		if matchSegments(p.segments, segs[start:]) {
			return true
		}
	}
	return false
}

// matchSegments matches glob pattern segments against path segments. A **
// segment matches any number of directories.
func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}

// ignoreSet evaluates patterns in order so that later negations can re-include
// earlier matches.
type ignoreSet []IgnorePattern

func (s ignoreSet) ignored(relPath string, isDir bool) bool {
	ignored := false
	for _, pattern := range s {
		if pattern.match(relPath, isDir) {
			ignored = !pattern.IsNegation()
		}
	}
	return ignored
}
