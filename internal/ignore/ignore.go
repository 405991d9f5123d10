// Package ignore provides gitignore-style exclusion for document ingestion.
//
// An ingestion root may hold a .ragignore file. Each non-comment line is a
// filepath.Match pattern:
//
//	drafts/        any directory named drafts
//	*.tmp.md       any file whose name matches
//	/acme/old      acme/old relative to the root, and everything below it
//
// Negation ("!pattern") is not supported and such lines are ignored.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the ignore file looked up at the ingestion root.
const FileName = ".ragignore"

type pattern struct {
	glob     string
	dirOnly  bool
	anchored bool
}

// Matcher reports whether root-relative paths are excluded. The zero value
// excludes nothing.
type Matcher struct {
	patterns []pattern
}

// Load reads root/.ragignore. A missing file yields an empty Matcher.
func Load(root string) (*Matcher, error) {
	file, err := os.Open(filepath.Join(root, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return &Matcher{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FileName, err)
	}
	return m, nil
}

// Parse reads patterns from r.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		p, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if _, err := filepath.Match(p.glob, "probe"); err != nil {
			return nil, fmt.Errorf("line %d: invalid pattern %q: %w", line, p.glob, err)
		}
		m.patterns = append(m.patterns, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseLine returns false for blank lines, comments and negations.
func parseLine(line string) (pattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return pattern{}, false
	}

	var p pattern
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "**/") {
		line = strings.TrimPrefix(line, "**/")
	} else if strings.Contains(line, "/") {
		// A slash anywhere but the end ties the pattern to the root.
		p.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return pattern{}, false
	}
	p.glob = line
	return p, true
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Match reports whether rel, a path relative to the ingestion root, is
// excluded. isDir marks rel itself as a directory. A path is also excluded
// when any of its parent directories is.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	parts := strings.Split(filepath.ToSlash(filepath.Clean(rel)), "/")

	for _, p := range m.patterns {
		if p.anchored {
			for i := 1; i <= len(parts); i++ {
				if p.dirOnly && i == len(parts) && !isDir {
					break
				}
				if ok, _ := filepath.Match(p.glob, strings.Join(parts[:i], "/")); ok {
					return true
				}
			}
			continue
		}
		for i, part := range parts {
			if p.dirOnly && i == len(parts)-1 && !isDir {
				break
			}
			if ok, _ := filepath.Match(p.glob, part); ok {
				return true
			}
		}
	}
	return false
}
