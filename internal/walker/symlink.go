package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SymlinkGuard resolves symlinks to their real path and detects cycles
// within one walk. It is shared across every root traversed concurrently by
// one Walker.Walk call, so access to the visited set is mutex-guarded.
type SymlinkGuard struct {
	mu      sync.Mutex
	visited map[string]bool
}

// NewSymlinkGuard returns a guard with an empty visited set.
func NewSymlinkGuard() *SymlinkGuard {
	return &SymlinkGuard{visited: make(map[string]bool)}
}

// Resolve evaluates path through any symlinks. isLoop reports whether the
// resolved real path was already marked visited by an earlier call. Resolve
// does not itself mark the path visited; call MarkVisited once the caller
// has decided to keep the entry.
func (g *SymlinkGuard) Resolve(path string) (realPath string, isLoop bool, err error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, fmt.Errorf("dangling symlink %s: %w", path, err)
		}
		return "", false, fmt.Errorf("resolving symlink %s: %w", path, err)
	}

	g.mu.Lock()
	loop := g.visited[resolved]
	g.mu.Unlock()

	return resolved, loop, nil
}

// MarkVisited records realPath as visited.
func (g *SymlinkGuard) MarkVisited(realPath string) {
	g.mu.Lock()
	g.visited[realPath] = true
	g.mu.Unlock()
}
