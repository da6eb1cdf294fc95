package capability

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/conn-castle/whisper-provision/internal/process"
)

// System abstracts the read-only host probes used by Detect.
type System interface {
	GOOS() string
	GOARCH() string
	LookPath(name string) (string, error)
	// Output runs a probe program and returns its combined output.
	// A non-zero exit returns a *process.ExitError.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	HostInfo(ctx context.Context) (*host.InfoStat, error)
}

// RealSystem implements System against the running host.
type RealSystem struct{}

// GOOS returns the running operating system.
func (RealSystem) GOOS() string { return runtime.GOOS }

// GOARCH returns the running architecture.
func (RealSystem) GOARCH() string { return runtime.GOARCH }

// LookPath resolves name on PATH.
func (RealSystem) LookPath(name string) (string, error) { return exec.LookPath(name) }

// Output runs name with args and returns the combined output.
func (RealSystem) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	res, err := process.Run(ctx, process.Command{Binary: name, Args: args})
	if res == nil {
		return nil, err
	}
	return res.Output, err
}

// HostInfo returns gopsutil host information.
func (RealSystem) HostInfo(ctx context.Context) (*host.InfoStat, error) {
	return host.InfoWithContext(ctx)
}
