package search

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rgsearch/rgsearch/internal/config"
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

func testService() *Service {
	cfg := config.Default()
	cfg.DefaultExcludes = nil
	return New(cfg, nil)
}

func drain(t *testing.T, ch <-chan ProgressEvent, timeout time.Duration) []ProgressEvent {
	t.Helper()
	var events []ProgressEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
			if ev.Done {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for search to complete")
		}
	}
}

func terminal(events []ProgressEvent) ProgressEvent {
	return events[len(events)-1]
}

func TestSearchFindsIndividualFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src/walker.go"), "package walker")
	writeFile(t, filepath.Join(dir, "README.md"), "# readme")

	s := testService()
	ch, err := s.Search(context.Background(), Query{
		Folders:     []FolderQuery{{Folder: dir, DisregardIgnoreFiles: true}},
		FilePattern: "walkergo",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	term := terminal(events)
	if term.Err != nil {
		t.Fatalf("unexpected error: %v", term.Err)
	}

	var found []RawFileMatch
	for _, ev := range events {
		found = append(found, ev.Files...)
	}
	if len(found) != 1 || found[0].RelativePath != "src/walker.go" {
		t.Fatalf("expected exactly src/walker.go, got %+v", found)
	}
}

func TestSearchBatchesFileResultsOnceWarmupPasses(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 60; i++ {
		writeFile(t, filepath.Join(dir, fmt.Sprintf("file%02d.go", i)), "x")
	}

	s := testService()
	s.cfg.BatchSize = 10

	ch, err := s.Search(context.Background(), Query{
		Folders: []FolderQuery{{Folder: dir, DisregardIgnoreFiles: true}},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	term := terminal(events)
	if term.Err != nil {
		t.Fatalf("unexpected error: %v", term.Err)
	}

	total := 0
	sawBatchOfTen := false
	for _, ev := range events {
		total += len(ev.Files)
		if len(ev.Files) == 10 {
			sawBatchOfTen = true
		}
	}
	if total != 60 {
		t.Fatalf("expected 60 files across all batches, got %d", total)
	}
	if !sawBatchOfTen {
		t.Fatalf("expected at least one batch of exactly 10 once warm-up passed, got events %+v", events)
	}
}

func TestSearchMultiRootIncludePatternAndMaxResults(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirA, "a1.go"), "x")
	writeFile(t, filepath.Join(dirA, "a1.md"), "x")
	writeFile(t, filepath.Join(dirB, "b1.go"), "x")
	writeFile(t, filepath.Join(dirB, "b2.go"), "x")

	s := testService()
	ch, err := s.Search(context.Background(), Query{
		Folders: []FolderQuery{
			{Folder: dirA, DisregardIgnoreFiles: true},
			{Folder: dirB, DisregardIgnoreFiles: true},
		},
		IncludePattern: map[string]ExcludeValue{"**/*.go": {Enabled: true}},
		MaxResults:     2,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	term := terminal(events)
	if term.Err != nil {
		t.Fatalf("unexpected error: %v", term.Err)
	}
	if !term.LimitHit {
		t.Fatalf("expected LimitHit once MaxResults is reached")
	}

	var found []RawFileMatch
	for _, ev := range events {
		found = append(found, ev.Files...)
	}
	if len(found) != 2 {
		t.Fatalf("expected exactly 2 results under MaxResults, got %+v", found)
	}
	for _, m := range found {
		if filepath.Ext(m.RelativePath) != ".go" {
			t.Fatalf("expected only .go files, got %+v", found)
		}
	}
}

func TestSearchExistsOnlyAcrossRoots(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirA, "a.go"), "x")
	writeFile(t, filepath.Join(dirB, "b.go"), "x")

	s := testService()
	ch, err := s.Search(context.Background(), Query{
		Folders: []FolderQuery{
			{Folder: dirA, DisregardIgnoreFiles: true},
			{Folder: dirB, DisregardIgnoreFiles: true},
		},
		ExistsOnly: true,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	term := terminal(events)
	if term.Err != nil {
		t.Fatalf("unexpected error: %v", term.Err)
	}
	if !term.LimitHit {
		t.Fatalf("expected LimitHit for an exists-only query")
	}
	if term.Total != 0 {
		t.Fatalf("expected zero surfaced results for exists-only, got total %d", term.Total)
	}
}

func TestSearchSortByScoreOrdersResults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "zzfoo.go"), "x")
	writeFile(t, filepath.Join(dir, "foo.go"), "x")
	writeFile(t, filepath.Join(dir, "foobar.go"), "x")

	s := testService()
	ch, err := s.Search(context.Background(), Query{
		Folders:     []FolderQuery{{Folder: dir, DisregardIgnoreFiles: true}},
		FilePattern: "foo",
		SortByScore: true,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	term := terminal(events)
	if term.Err != nil {
		t.Fatalf("unexpected error: %v", term.Err)
	}

	var found []RawFileMatch
	for _, ev := range events {
		found = append(found, ev.Files...)
	}
	if len(found) != 3 {
		t.Fatalf("expected all 3 candidates to fuzzy-match, got %+v", found)
	}
	if found[0].RelativePath != "foo.go" {
		t.Fatalf("expected foo.go to rank first as the closest match, got %+v", found)
	}
}

func TestSearchCacheReuseNarrowsWithoutFullRewalk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "alpha.go"), "x")
	writeFile(t, filepath.Join(dir, "album.go"), "x")
	writeFile(t, filepath.Join(dir, "beta.go"), "x")

	s := testService()
	base := Query{
		Folders:  []FolderQuery{{Folder: dir, DisregardIgnoreFiles: true}},
		CacheKey: "workspace-1",
	}

	first := base
	first.FilePattern = "al"
	ch1, err := s.Search(context.Background(), first)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	events1 := drain(t, ch1, 5*time.Second)
	term1 := terminal(events1)
	if term1.Err != nil {
		t.Fatalf("unexpected error: %v", term1.Err)
	}
	if term1.FromCache {
		t.Fatalf("expected the first query against an empty cache to report fromCache=false")
	}

	second := base
	second.FilePattern = "alph"
	ch2, err := s.Search(context.Background(), second)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	events2 := drain(t, ch2, 5*time.Second)
	term2 := terminal(events2)
	if term2.Err != nil {
		t.Fatalf("unexpected error: %v", term2.Err)
	}
	if !term2.FromCache {
		t.Fatalf("expected the narrowing query to reuse the cached row and report fromCache=true")
	}

	var found []RawFileMatch
	for _, ev := range events2 {
		found = append(found, ev.Files...)
	}
	if len(found) != 1 || found[0].RelativePath != "alpha.go" {
		t.Fatalf("expected the narrowing query to reuse the cached scan and return only alpha.go, got %+v", found)
	}

	s.ClearCache("workspace-1")
	third := base
	third.FilePattern = "alph"
	ch3, err := s.Search(context.Background(), third)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	events3 := drain(t, ch3, 5*time.Second)
	term3 := terminal(events3)
	if term3.Err != nil {
		t.Fatalf("unexpected error after ClearCache: %v", term3.Err)
	}
	if term3.FromCache {
		t.Fatalf("expected the post-ClearCache query to report fromCache=false, since the reused row no longer exists")
	}
}

func requireRipgrep(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("rg")
	if err != nil {
		t.Skip("ripgrep (rg) not found on PATH, skipping content search integration test")
	}
	return path
}

func TestSearchContentFindsMatchesAcrossFolders(t *testing.T) {
	rgPath := requireRipgrep(t)
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirA, "a.txt"), "hello world\n")
	writeFile(t, filepath.Join(dirB, "b.txt"), "hello again\n")

	cfg := config.Default()
	cfg.GrepPath = rgPath
	cfg.DefaultExcludes = nil
	s := New(cfg, nil)

	ch, err := s.Search(context.Background(), Query{
		Folders: []FolderQuery{
			{Folder: dirA, DisregardIgnoreFiles: true},
			{Folder: dirB, DisregardIgnoreFiles: true},
		},
		ContentPattern: &ContentQuery{Pattern: "hello"},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	term := terminal(events)
	if term.Err != nil {
		t.Fatalf("unexpected error: %v", term.Err)
	}
	if term.Total != 2 {
		t.Fatalf("expected a content match in both files, got total %d", term.Total)
	}
}

func TestSearchValidatesEmptyQuery(t *testing.T) {
	s := testService()
	if _, err := s.Search(context.Background(), Query{}); err == nil {
		t.Fatalf("expected an error for a query with no folders or extra files")
	}
}

func TestSearchContextCancellationSurfacesCanceledError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := testService()
	ch, err := s.Search(ctx, Query{
		Folders: []FolderQuery{{Folder: dir, DisregardIgnoreFiles: true}},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	term := terminal(events)
	if term.Err == nil {
		t.Fatalf("expected a canceled error from an already-cancelled context")
	}
}
