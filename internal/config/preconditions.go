package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

var (
	// ErrMissingTool is returned when a required system tool is not on PATH.
	ErrMissingTool = errors.New("required tool missing")
	// ErrBinDirNotWritable is returned when the system bin directory cannot be written.
	ErrBinDirNotWritable = errors.New("bin directory not writable")
)

// PreconditionSystem abstracts the probes made by CheckPreconditions.
type PreconditionSystem interface {
	LookPath(name string) (string, error)
	Writable(dir string) error
}

// RealPreconditionSystem probes the running host.
type RealPreconditionSystem struct{}

// LookPath resolves name on PATH.
func (RealPreconditionSystem) LookPath(name string) (string, error) { return exec.LookPath(name) }

// Writable checks that dir exists and the current user may create files in it.
func (RealPreconditionSystem) Writable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf(messages.ConfigNotADirectoryFmt, dir)
	}
	return unix.Access(dir, unix.W_OK|unix.X_OK)
}

// RequiredTools lists the tools the session needs on PATH.
func RequiredTools(s *Session) []string {
	tools := []string{"git"}
	if !s.ServiceOnly() && s.EnvKind() == envmgr.KindConda {
		tools = append(tools, "conda")
	}
	tools = append(tools, "node", "npm")
	return tools
}

// CheckPreconditions fails before anything irreversible happens when a required tool
// is missing or the bin directory cannot be written.
func CheckPreconditions(s *Session, sys PreconditionSystem) error {
	for _, tool := range RequiredTools(s) {
		if _, err := sys.LookPath(tool); err != nil {
			return fmt.Errorf(messages.ConfigMissingToolFmt, ErrMissingTool, tool)
		}
	}
	if err := sys.Writable(s.BinDir()); err != nil {
		return fmt.Errorf(messages.ConfigBinDirNotWritableFmt, ErrBinDirNotWritable, s.BinDir(), err)
	}
	return nil
}
