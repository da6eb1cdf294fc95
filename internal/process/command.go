// Package process runs the subprocesses behind every provisioning step.
package process

import (
	"context"
	"io"
	"time"
)

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// Stdin provides input to the process. May be nil.
	Stdin io.Reader
	// Output receives combined stdout/stderr as it is produced, in addition to capture.
	// Nil means capture only.
	Output io.Writer
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Defaults to 5 seconds if zero.
	GracePeriod time.Duration
	// Timeout bounds the run. Zero means no timeout.
	Timeout time.Duration
}

// Result holds the output and status of a completed subprocess.
type Result struct {
	// Output is the captured, interleaved stdout and stderr.
	Output []byte
	// Stdout is the captured standard output alone, for callers that decode it.
	Stdout []byte
	// ExitCode is the process exit code. -1 if the process was killed or never started.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
}

// Runner executes commands. Components take a Runner so tests can substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}
