package envmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
)

// Venv manages a directory-based virtual environment.
type Venv struct {
	runner      process.Runner
	interpreter string
	dir         string
}

// Kind implements Manager.
func (v *Venv) Kind() Kind { return KindVenv }

// Location implements Manager.
func (v *Venv) Location() string { return v.dir }

// Exists reports whether the environment is complete: venv writes the interpreter
// before bootstrapping pip, so a present interpreter alone can be a half-built tree.
func (v *Venv) Exists(context.Context) (bool, error) {
	for _, path := range []string{PythonPath(v.dir), PipPath(v.dir)} {
		ok, err := fsutil.Exists(path)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Create runs `<interpreter> -m venv <dir>`. A directory this call created is
// removed again when the command fails.
func (v *Venv) Create(ctx context.Context, out io.Writer) error {
	existed, err := fsutil.Exists(v.dir)
	if err != nil {
		return fmt.Errorf(messages.EnvCreateFailedFmt, v.dir, err)
	}
	_, err = v.runner.Run(ctx, process.Command{
		Binary: v.interpreter,
		Args:   []string{"-m", "venv", v.dir},
		Output: out,
	})
	if err == nil {
		return nil
	}
	if !existed {
		if rmErr := os.RemoveAll(v.dir); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
	}
	return fmt.Errorf(messages.EnvCreateFailedFmt, v.dir, err)
}

// Remove deletes the environment directory.
func (v *Venv) Remove(context.Context) error {
	if err := os.RemoveAll(v.dir); err != nil {
		return fmt.Errorf(messages.EnvRemoveFailedFmt, v.dir, err)
	}
	return nil
}

// Prefix implements Manager.
func (v *Venv) Prefix(context.Context) (string, error) { return v.dir, nil }
