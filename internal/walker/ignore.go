package walker

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer reports whether a relative path (forward-slashed) should be
// excluded from a walk. isDir distinguishes directory-only patterns.
type Ignorer interface {
	IsIgnored(relPath string, isDir bool) bool
}

// CompositeIgnorer chains Ignorers; a path is ignored if any one matches.
type CompositeIgnorer struct {
	chain []Ignorer
}

// NewCompositeIgnorer builds a CompositeIgnorer from ignorers, skipping any
// nil entries.
func NewCompositeIgnorer(ignorers ...Ignorer) *CompositeIgnorer {
	c := &CompositeIgnorer{}
	for _, ig := range ignorers {
		if ig != nil {
			c.chain = append(c.chain, ig)
		}
	}
	return c
}

// IsIgnored reports whether any chained Ignorer matches relPath.
func (c *CompositeIgnorer) IsIgnored(relPath string, isDir bool) bool {
	for _, ig := range c.chain {
		if ig.IsIgnored(relPath, isDir) {
			return true
		}
	}
	return false
}

// defaultIgnorer matches the package's built-in DefaultIgnorePatterns.
type defaultIgnorer struct {
	matcher *gitignore.GitIgnore
}

func newDefaultIgnorer() *defaultIgnorer {
	return &defaultIgnorer{matcher: gitignore.CompileIgnoreLines(DefaultIgnorePatterns...)}
}

func (d *defaultIgnorer) IsIgnored(relPath string, isDir bool) bool {
	return matchesPath(d.matcher, relPath, isDir)
}

func matchesPath(m *gitignore.GitIgnore, relPath string, isDir bool) bool {
	p := normalizeRel(relPath)
	if p == "" {
		return false
	}
	if isDir && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return m.MatchesPath(p)
}

func normalizeRel(p string) string {
	p = filepath.ToSlash(p)
	return strings.TrimPrefix(p, "./")
}

// GitignoreTree loads every .gitignore below a root and evaluates them
// hierarchically: a file is ignored if any ancestor directory's .gitignore
// matches it, relative to that .gitignore's own directory.
type GitignoreTree struct {
	root     string
	matchers map[string]*gitignore.GitIgnore
	dirs     []string // sorted, for deterministic evaluation
}

// NewGitignoreTree walks root to discover every .gitignore file and compiles
// it. A root with no .gitignore files anywhere yields a tree that never
// ignores anything.
func NewGitignoreTree(root string) (*GitignoreTree, error) {
	t := &GitignoreTree{root: root, matchers: make(map[string]*gitignore.GitIgnore)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return fs.SkipDir
		}
		if d.IsDir() || d.Name() != ".gitignore" {
			return nil
		}

		relDir, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return nil
		}
		relDir = normalizeRel(relDir)
		if relDir == "" {
			relDir = "."
		}

		compiled, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			return nil
		}
		t.matchers[relDir] = compiled
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning for .gitignore files under %s: %w", root, err)
	}

	t.dirs = make([]string, 0, len(t.matchers))
	for dir := range t.matchers {
		t.dirs = append(t.dirs, dir)
	}
	sort.Strings(t.dirs)
	return t, nil
}

// IsIgnored reports whether relPath is ignored by any applicable .gitignore.
func (t *GitignoreTree) IsIgnored(relPath string, isDir bool) bool {
	p := normalizeRel(relPath)
	if p == "" {
		return false
	}
	matchPath := p
	if isDir && !strings.HasSuffix(matchPath, "/") {
		matchPath += "/"
	}

	for _, dir := range t.dirs {
		if dir != "." {
			prefix := dir + "/"
			if !strings.HasPrefix(p, prefix) {
				continue
			}
		}
		rel := matchPath
		if dir != "." {
			rel = strings.TrimPrefix(matchPath, dir+"/")
		}
		if t.matchers[dir].MatchesPath(rel) {
			return true
		}
	}
	return false
}

// GitTrackedFiles runs `git ls-files` under root and returns the set of
// paths (relative to root) tracked by git, for Walker.GitTrackedOnly.
func GitTrackedFiles(root string) (map[string]bool, error) {
	out, err := runCommand(root, "git", "ls-files")
	if err != nil {
		return nil, fmt.Errorf("git ls-files in %s: %w", root, err)
	}

	files := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			files[line] = true
		}
	}
	return files, nil
}
