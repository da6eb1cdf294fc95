package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

// ErrBinaryRequired is returned when a Command has no binary.
var ErrBinaryRequired = errors.New(messages.ProcessBinaryRequired)

// ExitError reports a subprocess that ran and exited non-zero.
type ExitError struct {
	Binary string
	Code   int
	Output []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf(messages.ProcessExitedFmt, e.Binary, e.Code)
}

// Exec implements Runner with real subprocesses.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, cmd Command) (*Result, error) {
	return Run(ctx, cmd)
}

// Run executes a subprocess and waits for it to complete.
// If the context is canceled, SIGTERM is sent to the whole process group first,
// then SIGKILL after GracePeriod.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return &Result{ExitCode: -1}, ErrBinaryRequired
	}

	gracePeriod := cmd.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = 5 * time.Second
	}
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running install tooling is the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	var captured, stdout bytes.Buffer
	var sink io.Writer = &captured
	if cmd.Output != nil {
		sink = io.MultiWriter(&captured, cmd.Output)
	}
	// Tools print notices on stderr; only stdout is safe to decode.
	c.Stdout = io.MultiWriter(&stdout, sink)
	c.Stderr = sink

	// Own process group so an interrupt reaches pip/npm children too.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = gracePeriod

	start := time.Now()
	err := c.Run()
	result := &Result{
		Output:   captured.Bytes(),
		Stdout:   stdout.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf(messages.ProcessKilledFmt, cmd.Binary, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, &ExitError{Binary: cmd.Binary, Code: result.ExitCode, Output: result.Output}
		}
		return result, fmt.Errorf(messages.ProcessRunFailedFmt, cmd.Binary, err)
	}
	return result, nil
}

// LookPath resolves a binary on PATH.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Tail returns at most n trailing non-empty lines of output.
func Tail(output []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		kept = append([]string{lines[i]}, kept...)
	}
	return strings.Join(kept, "\n")
}

// mergeEnv merges additional env vars with the current environment.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit parent env
	}
	env := os.Environ()
	return append(env, extra...)
}
