// Package dirtree implements the in-memory relative-path tree the file
// walker builds when an external command's streamed output still needs
// sibling-clause exclusions applied after the fact. A Tree is populated by
// adding relative file paths one at a time as they arrive from the
// command's stdout; MatchDirectoryTree then performs one depth-first walk,
// evaluating the exclude predicate once per directory rather than once per
// file.
package dirtree

import (
	"path"
	"sort"
	"strings"

	"github.com/rgsearch/rgsearch/internal/globmatch"
)

// Entry is one file or directory discovered under a directory in the tree.
type Entry struct {
	Name  string // basename only
	IsDir bool
}

// Tree is a two-level structure: a list of root entries, and a map from
// relative directory path to the entries it directly contains. It exists
// purely to let MatchDirectoryTree resolve sibling clauses from already-known
// data, without a second directory listing pass.
type Tree struct {
	rootEntries []Entry
	byDir       map[string][]Entry
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{byDir: make(map[string][]Entry)}
}

// AddPath records relPath (forward-slash separated, relative to the walk
// root) in the tree, creating any intermediate directory entries implied by
// its path components.
func (t *Tree) AddPath(relPath string) {
	relPath = strings.TrimPrefix(strings.ReplaceAll(relPath, `\`, "/"), "./")
	if relPath == "" {
		return
	}

	dir := path.Dir(relPath)
	base := path.Base(relPath)
	if dir == "." {
		t.addRootEntry(base, false)
		return
	}

	t.addDirChain(dir)
	t.addEntry(dir, base, false)
}

// addDirChain ensures every ancestor directory of dir has an entry in its
// own parent's listing, and an (empty until populated) listing of its own.
func (t *Tree) addDirChain(dir string) {
	if _, ok := t.byDir[dir]; ok {
		return
	}
	t.byDir[dir] = nil

	parent := path.Dir(dir)
	base := path.Base(dir)
	if parent == "." {
		t.addRootEntry(base, true)
		return
	}
	t.addDirChain(parent)
	t.addEntry(parent, base, true)
}

func (t *Tree) addRootEntry(name string, isDir bool) {
	for _, e := range t.rootEntries {
		if e.Name == name {
			return
		}
	}
	t.rootEntries = append(t.rootEntries, Entry{Name: name, IsDir: isDir})
}

func (t *Tree) addEntry(dir, name string, isDir bool) {
	for _, e := range t.byDir[dir] {
		if e.Name == name {
			return
		}
	}
	t.byDir[dir] = append(t.byDir[dir], Entry{Name: name, IsDir: isDir})
}

// Match is one surviving file reported by MatchDirectoryTree.
type Match struct {
	RelativePath string
	Basename     string
}

// MatchDirectoryTree performs a depth-first walk from the tree root,
// applying pred to every directory once (computing any pending sibling
// clause from that directory's own entry list) and to every file. A file
// whose relative path equals literalFilePattern verbatim is always reported,
// even if its directory's sibling clause would otherwise exclude it — the
// "I know exactly what I want" escape hatch.
func MatchDirectoryTree(t *Tree, pred *globmatch.Predicate, literalFilePattern string) []Match {
	var out []Match
	walkDir(t, pred, literalFilePattern, "", t.rootEntries, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out
}

func walkDir(t *Tree, pred *globmatch.Predicate, literalFilePattern, dir string, entries []Entry, out *[]Match) {
	names := dirBasenames(entries)

	for _, e := range entries {
		rel := e.Name
		if dir != "" {
			rel = dir + "/" + e.Name
		}

		if e.IsDir {
			matched, pending := pred.Test(rel+"/", "", e.Name)
			if matched || globmatch.Resolve(pending, names) {
				continue
			}
			walkDir(t, pred, literalFilePattern, rel, t.byDir[rel], out)
			continue
		}

		matched, pending := pred.Test(rel, "", e.Name)
		excluded := matched || globmatch.Resolve(pending, names)
		if excluded && rel != literalFilePattern {
			continue
		}
		*out = append(*out, Match{RelativePath: rel, Basename: e.Name})
	}
}

func dirBasenames(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
