// Package testutil holds helpers shared by package tests: shell stubs placed on PATH
// and a scripted process.Runner.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/conn-castle/whisper-provision/internal/process"
)

// WriteStub writes an executable shell script named name into dir with body as its
// contents after the shebang, and returns its path.
func WriteStub(t *testing.T, dir string, name string, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := []byte("#!/bin/sh\n" + body + "\n")
	if err := os.WriteFile(path, content, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// WriteExitStub writes a stub that exits with exitCode.
func WriteExitStub(t *testing.T, dir string, name string, exitCode int) string {
	t.Helper()
	return WriteStub(t, dir, name, fmt.Sprintf("exit %d", exitCode))
}

// WriteRecordingStub writes a stub that appends its name and arguments as one line to
// logPath, then exits successfully.
func WriteRecordingStub(t *testing.T, dir string, name string, logPath string) string {
	t.Helper()
	return WriteStub(t, dir, name, fmt.Sprintf("echo \"%s $*\" >> %q", name, logPath))
}

// PrependPath puts dir first on PATH for the rest of the test.
func PrependPath(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// Call is one command seen by FakeRunner.
type Call struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Response is FakeRunner's answer to one call.
type Response struct {
	// Output is written to stdout.
	Output string
	// Stderr is interleaved ahead of Output in the combined capture.
	Stderr string
	// ExitCode, when non-zero, makes the call fail with a *process.ExitError.
	ExitCode int
	Err      error
}

// FakeRunner implements process.Runner without spawning anything.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Call
	// Handler picks the response for a call. Nil answers every call with success.
	Handler func(Call) Response
}

// Run implements process.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd process.Command) (*process.Result, error) {
	call := Call{Binary: cmd.Binary, Args: append([]string(nil), cmd.Args...), Dir: cmd.Dir, Env: cmd.Env}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.Handler
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &process.Result{ExitCode: -1}, err
	}
	var resp Response
	if handler != nil {
		resp = handler(call)
	}
	combined := resp.Stderr + resp.Output
	if cmd.Output != nil && combined != "" {
		_, _ = fmt.Fprint(cmd.Output, combined)
	}
	res := &process.Result{Output: []byte(combined), Stdout: []byte(resp.Output), ExitCode: resp.ExitCode}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, &process.ExitError{Binary: cmd.Binary, Code: resp.ExitCode, Output: res.Output}
	}
	return res, nil
}

// Calls returns every call so far.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns every call rendered with Call.String.
func (f *FakeRunner) Commands() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// WithWorkingDir runs fn with dir as the current working directory and restores the previous directory.
func WithWorkingDir(t *testing.T, dir string, fn func()) {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(cwd); err != nil {
			t.Fatalf("restore chdir: %v", err)
		}
	}()
	fn()
}
