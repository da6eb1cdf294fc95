// Package envmgr creates, locates and removes the isolated runtime environment the
// transcription CLI runs in.
package envmgr

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
)

// Kind selects an environment manager.
type Kind string

const (
	// KindVenv is an isolated interpreter virtual environment in a directory.
	KindVenv Kind = "venv"
	// KindConda is a named conda environment.
	KindConda Kind = "conda"
)

// CondaPython is the interpreter series requested for new conda environments.
const CondaPython = "3.10"

// Manager manages one runtime environment.
type Manager interface {
	Kind() Kind
	// Location is the venv directory or the conda environment name.
	Location() string
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, out io.Writer) error
	Remove(ctx context.Context) error
	// Prefix returns the absolute environment root directory.
	Prefix(ctx context.Context) (string, error)
}

// New returns the manager for kind. interpreter creates venvs; location is the venv
// directory or conda environment name.
func New(kind Kind, runner process.Runner, interpreter, location string) (Manager, error) {
	switch kind {
	case KindVenv, "":
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, fmt.Errorf(messages.EnvResolveLocationFmt, location, err)
		}
		return &Venv{runner: runner, interpreter: interpreter, dir: abs}, nil
	case KindConda:
		return &Conda{runner: runner, name: location}, nil
	default:
		return nil, fmt.Errorf(messages.EnvUnknownKindFmt, kind)
	}
}

// PythonPath returns the environment's interpreter under prefix.
func PythonPath(prefix string) string {
	return filepath.Join(prefix, "bin", "python")
}

// PipPath returns the environment's pip entry point under prefix.
func PipPath(prefix string) string {
	return filepath.Join(prefix, "bin", "pip")
}

// Pip runs `python -m pip args...` inside the environment rooted at prefix.
func Pip(ctx context.Context, runner process.Runner, prefix string, out io.Writer, args ...string) error {
	_, err := runner.Run(ctx, process.Command{
		Binary: PythonPath(prefix),
		Args:   append([]string{"-m", "pip"}, args...),
		Output: out,
		Env:    []string{"PIP_DISABLE_PIP_VERSION_CHECK=1"},
	})
	return err
}
