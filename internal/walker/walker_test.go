package walker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rgsearch/rgsearch/internal/globmatch"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func nativeOnlyRoot(path string, exclude, include *globmatch.Predicate) Root {
	return Root{Path: path, Exclude: exclude, Include: include, DisregardIgnoreFiles: true}
}

func TestWalkFindsIndividualFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src/walker.go"), "package walker")
	writeFile(t, filepath.Join(dir, "README.md"), "# readme")

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, nil)},
		FilePattern:        "walkergo",
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].RelativePath != "src/walker.go" {
		t.Fatalf("unexpected matches: %+v", res.Matches)
	}
}

func TestWalkRespectsMaxResultsAndReportsLimitHit(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, "file"+string(rune('a'+i))+".go"), "x")
	}

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, nil)},
		MaxResults:         2,
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected exactly 2 matches, got %d", len(res.Matches))
	}
	if !res.LimitHit {
		t.Fatalf("expected LimitHit to be set")
	}
}

func TestWalkExistsOnlyStopsAtFirstMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "x")
	writeFile(t, filepath.Join(dir, "b.go"), "x")

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, nil)},
		ExistsOnly:         true,
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 0 || !res.LimitHit {
		t.Fatalf("expected no surfaced matches and LimitHit, got %+v", res)
	}
}

func TestWalkExcludePredicateDropsMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.go"), "x")
	writeFile(t, filepath.Join(dir, "vendor/dep.go"), "x")

	excl := globmatch.Compile(globmatch.Expression{"vendor/**": {Enabled: true}})

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, excl, nil)},
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].RelativePath != "keep.go" {
		t.Fatalf("expected only keep.go to survive, got %+v", res.Matches)
	}
}

func TestWalkIncludePredicateRestrictsMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "x")
	writeFile(t, filepath.Join(dir, "a.md"), "x")

	inc := globmatch.Compile(globmatch.Expression{"**/*.go": {Enabled: true}})

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, inc)},
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].RelativePath != "a.go" {
		t.Fatalf("expected only a.go to survive, got %+v", res.Matches)
	}
}

func TestWalkMultiRootAggregatesAndSorts(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirA, "z.go"), "x")
	writeFile(t, filepath.Join(dirB, "a.go"), "x")

	w := New(nil)
	opts := Options{
		Roots: []Root{
			nativeOnlyRoot(dirA, nil, nil),
			nativeOnlyRoot(dirB, nil, nil),
		},
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches across both roots, got %d", len(res.Matches))
	}
}

func TestWalkDefaultIgnorePrunesGitAndNodeModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git/HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(dir, "node_modules/pkg/index.js"), "x")
	writeFile(t, filepath.Join(dir, "main.go"), "package main")

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, nil)},
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].RelativePath != "main.go" {
		t.Fatalf("expected only main.go to survive default ignores, got %+v", res.Matches)
	}
}

func TestWalkExtraFilesBypassExclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vendor/loose.go"), "x")

	excl := globmatch.Compile(globmatch.Expression{"vendor/**": {Enabled: true}})

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, excl, nil)},
		ExtraFiles:         []string{filepath.Join(dir, "vendor/loose.go")},
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	found := false
	for _, m := range res.Matches {
		if m.Basename == "loose.go" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected extra file to bypass exclude predicate, got %+v", res.Matches)
	}
}

func TestWalkMaxFileSizeSkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small.go"), "x")
	writeFile(t, filepath.Join(dir, "big.go"), string(make([]byte, 4096)))

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, nil)},
		MaxFileSize:        1024,
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	res, err := w.Walk(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].RelativePath != "small.go" {
		t.Fatalf("expected only small.go under the size cap, got %+v", res.Matches)
	}
}

func TestWalkOnMatchCallbackFiresPerResult(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "x")
	writeFile(t, filepath.Join(dir, "b.go"), "x")

	var seen []string
	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, nil)},
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	_, err := w.Walk(context.Background(), opts, func(m RawFileMatch) {
		seen = append(seen, m.RelativePath)
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected callback invoked for every match, got %v", seen)
	}
}

func TestWalkContextCancellationStopsTraversal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(nil)
	opts := Options{
		Roots:              []Root{nativeOnlyRoot(dir, nil, nil)},
		DisableGrepBackend: true,
		DisableFindBackend: true,
	}

	_, err := w.Walk(ctx, opts, nil)
	if err == nil {
		t.Fatalf("expected an error from an already-cancelled context")
	}
}
