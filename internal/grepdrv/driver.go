package grepdrv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"sync"

	"github.com/rgsearch/rgsearch/internal/grepout"
	"github.com/rgsearch/rgsearch/internal/rgerr"
)

// fatalStderrPatterns whitelists the child's stderr first line against known
// user-fatal causes, producing a clean message instead of the raw process
// error. Anything that doesn't match falls back to the generic
// "command failed" message.
var fatalStderrPatterns = []struct {
	re  *regexp.Regexp
	msg string
}{
	{regexp.MustCompile(`(?i)regex parse error`), "invalid search pattern"},
	{regexp.MustCompile(`(?i)error parsing glob`), "invalid glob pattern"},
	{regexp.MustCompile(`(?i)unsupported encoding`), "unsupported file encoding"},
}

// Driver runs one grep child process per content search and streams its
// stdout into a grepout.Decoder.
type Driver struct {
	GrepPath string
}

// New returns a Driver invoking grepPath (e.g. "rg").
func New(grepPath string) *Driver {
	return &Driver{GrepPath: grepPath}
}

// Run executes the child with args, feeding its stdout to decoder in 32KiB
// chunks. Exit code 0, or exit code 1 with data already decoded, is success;
// any other nonzero exit produces an *rgerr.Error built from the child's
// stderr. The process is registered with the package-wide shutdown hook for
// the duration of the call so an interrupted parent process does not leave
// it running.
func (d *Driver) Run(ctx context.Context, args []string, decoder *grepout.Decoder) error {
	cmd := exec.CommandContext(ctx, d.GrepPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return rgerr.New(rgerr.KindChildCrash, "piping grep stdout", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return rgerr.New(rgerr.KindChildCrash, "starting grep", err)
	}
	release := registerChild(cmd)
	defer release()

	sawAnyOutput := false
	decodeErr := streamToDecoder(stdout, decoder, &sawAnyOutput)

	waitErr := cmd.Wait()

	if decodeErr != nil && decodeErr != grepout.ErrHitLimit {
		return rgerr.New(rgerr.KindInvariant, "decoding grep output", decodeErr)
	}
	if decodeErr == grepout.ErrHitLimit {
		return nil
	}

	if flushErr := decoder.Flush(); flushErr != nil && flushErr != grepout.ErrNoFileContext {
		return rgerr.New(rgerr.KindInvariant, "flushing grep output", flushErr)
	}

	if ctx.Err() != nil {
		return rgerr.Canceled()
	}

	if waitErr == nil {
		return nil
	}

	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if exitErr.ExitCode() == 1 {
			// No matches (or matches already fully decoded) is success.
			return nil
		}
		return rgerr.New(rgerr.KindUserFatal, fatalMessage(exitErr, stderr.String()), waitErr)
	}

	return rgerr.New(rgerr.KindChildCrash, "grep process failed", waitErr)
}

func streamToDecoder(r io.Reader, decoder *grepout.Decoder, sawAnyOutput *bool) error {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			*sawAnyOutput = true
			if err := decoder.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func fatalMessage(exitErr *exec.ExitError, stderr string) string {
	firstLine := stderr
	if idx := bytes.IndexByte([]byte(stderr), '\n'); idx >= 0 {
		firstLine = stderr[:idx]
	}
	for _, p := range fatalStderrPatterns {
		if p.re.MatchString(firstLine) {
			return p.msg
		}
	}
	return fmt.Sprintf("command failed with code %d: %s", exitErr.ExitCode(), firstLine)
}

// childRegistry tracks every in-flight grep child so a process-wide shutdown
// hook can terminate them if the parent is interrupted mid-search.
var childRegistry = struct {
	mu    sync.Mutex
	procs map[*exec.Cmd]struct{}
}{procs: make(map[*exec.Cmd]struct{})}

func registerChild(cmd *exec.Cmd) (release func()) {
	childRegistry.mu.Lock()
	childRegistry.procs[cmd] = struct{}{}
	childRegistry.mu.Unlock()

	return func() {
		childRegistry.mu.Lock()
		delete(childRegistry.procs, cmd)
		childRegistry.mu.Unlock()
	}
}

// KillAll terminates every currently registered grep child. Intended to be
// called once from a process-wide os/signal handler installed by the CLI
// entry point, so an interrupted search never leaves an orphaned grep
// running.
func KillAll() {
	childRegistry.mu.Lock()
	defer childRegistry.mu.Unlock()
	for cmd := range childRegistry.procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}
