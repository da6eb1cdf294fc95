package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

// StartDetached launches cmd in its own session with output appended to logPath
// and returns its pid. The caller does not wait for or monitor the process.
func StartDetached(cmd Command, logPath string) (int, error) {
	if cmd.Binary == "" {
		return 0, ErrBinaryRequired
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf(messages.ProcessOpenLogFmt, logPath, err)
	}
	defer func() { _ = logFile.Close() }()

	c := exec.Command(cmd.Binary, cmd.Args...) //nolint:gosec // detached agent binaries are resolved by the caller
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	c.Stdout = logFile
	c.Stderr = logFile
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := c.Start(); err != nil {
		return 0, fmt.Errorf(messages.ProcessStartFailedFmt, cmd.Binary, err)
	}
	pid := c.Process.Pid
	if err := c.Process.Release(); err != nil {
		return pid, fmt.Errorf(messages.ProcessReleaseFailedFmt, cmd.Binary, err)
	}
	return pid, nil
}

// Alive reports whether a process with pid exists and can be signalled.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
