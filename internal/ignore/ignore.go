// Package ignore matches repository paths against gitignore-style files.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the project-level ignore file read in addition to .gitignore.
const FileName = ".codetonameignore"

// Matcher reports whether a path relative to the project root is ignored.
// A nil Matcher ignores nothing.
type Matcher struct {
	matcher  gitignore.Matcher
	patterns int
}

// Load reads every .gitignore under root and the extra ignore files found
// directly in root. Missing files are not an error.
func Load(root string, extraFiles ...string) (*Matcher, error) {
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return nil, fmt.Errorf("reading .gitignore files: %w", err)
	}

	for _, name := range extraFiles {
		filePatterns, err := parseFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
	}

	return &Matcher{
		matcher:  gitignore.NewMatcher(patterns),
		patterns: len(patterns),
	}, nil
}

// parseFile reads one ignore file. Patterns apply from the project root.
func parseFile(path string) ([]gitignore.Pattern, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := parseLine(scanner.Text()); line != "" {
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return patterns, nil
}

// parseLine returns the pattern on line, or "" for blanks and comments.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// Match reports whether rel, a slash or OS separated path relative to the
// root, is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || m.patterns == 0 {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return m.matcher.Match(parts, isDir)
}

// Len returns the number of loaded patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return m.patterns
}
