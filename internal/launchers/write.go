// Package launchers generates the executables installed into the system bin directory:
// the transcription CLI wrapper and the update-service script.
package launchers

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

// CLIVersion is the version of the transcription CLI the wrapper reports.
const CLIVersion = "2.0.0"

// System is the minimal interface needed for launcher operations.
type System interface {
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
	WriteFileAtomic(filename string, data []byte, perm os.FileMode) error
}

// RealSystem implements System using actual system calls.
type RealSystem struct{}

// MkdirAll creates a directory and all parent directories.
func (RealSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// ReadFile reads the named file.
func (RealSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Remove removes the named file.
func (RealSystem) Remove(name string) error {
	return os.Remove(name)
}

// WriteFileAtomic writes data to path atomically.
func (RealSystem) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return fsutil.WriteFileAtomic(path, data, perm)
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var scripts = template.Must(template.New("").Funcs(template.FuncMap{"shquote": shellQuote}).ParseFS(templateFS, "templates/*.tmpl"))

const (
	wrapperTemplate       = "wrapper.sh.tmpl"
	updateServiceTemplate = "update-service.sh.tmpl"
)

// WrapperParams binds the wrapper to one provisioned environment.
type WrapperParams struct {
	// Name is the installed command name.
	Name        string
	CLIVersion  string
	InstallPath capability.InstallPath
	EnvKind     envmgr.Kind
	// EnvPrefix is the absolute environment root.
	EnvPrefix string
	// EntryPoint is the absolute path of the CLI script.
	EntryPoint string
	// HFTokenFile, when set, is read into HF_TOKEN unless the caller already exported one.
	HFTokenFile string
}

// UpdateServiceParams binds the update script to one service checkout.
type UpdateServiceParams struct {
	ServiceDir  string
	ServiceName string
}

// RenderWrapper renders the wrapper script.
func RenderWrapper(p WrapperParams) ([]byte, error) {
	if !filepath.IsAbs(p.EnvPrefix) || !filepath.IsAbs(p.EntryPoint) {
		return nil, fmt.Errorf(messages.LaunchersPathsMustBeAbsoluteFmt, p.EnvPrefix, p.EntryPoint)
	}
	if p.CLIVersion == "" {
		p.CLIVersion = CLIVersion
	}
	return render(wrapperTemplate, p)
}

// RenderUpdateService renders the update-service script.
func RenderUpdateService(p UpdateServiceParams) ([]byte, error) {
	if !filepath.IsAbs(p.ServiceDir) {
		return nil, fmt.Errorf(messages.LaunchersPathMustBeAbsoluteFmt, p.ServiceDir)
	}
	return render(updateServiceTemplate, p)
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := scripts.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf(messages.LaunchersRenderFailedFmt, name, err)
	}
	return buf.Bytes(), nil
}

// WriteLocal writes an executable into dir and returns its path.
func WriteLocal(sys System, dir string, name string, data []byte) (string, error) {
	if err := sys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf(messages.LaunchersCreateDirFailedFmt, dir, err)
	}
	path := filepath.Join(dir, name)
	if err := sys.WriteFileAtomic(path, data, 0o755); err != nil {
		return "", fmt.Errorf(messages.LaunchersWriteFailedFmt, path, err)
	}
	return path, nil
}

// Installation is a copy of a local executable into the system bin directory.
type Installation struct {
	Path string
	// Previous holds the file this copy replaced, nil when the path was free.
	Previous []byte
	Content  []byte
	sys      System
}

// Replaced reports whether the installation overwrote an existing file.
func (i *Installation) Replaced() bool {
	return i.Previous != nil
}

// Install copies the local executable at src into binDir under the same name.
func Install(sys System, src string, binDir string) (*Installation, error) {
	data, err := sys.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf(messages.LaunchersReadFailedFmt, src, err)
	}
	dest := filepath.Join(binDir, filepath.Base(src))
	inst := &Installation{Path: dest, Content: data, sys: sys}
	prev, err := sys.ReadFile(dest)
	switch {
	case err == nil:
		inst.Previous = prev
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf(messages.LaunchersReadFailedFmt, dest, err)
	}
	if err := sys.WriteFileAtomic(dest, data, 0o755); err != nil {
		return nil, fmt.Errorf(messages.LaunchersWriteFailedFmt, dest, err)
	}
	return inst, nil
}

// Undo removes the system-wide copy, restoring whatever it replaced.
func (i *Installation) Undo() error {
	if i.Previous != nil {
		if err := i.sys.WriteFileAtomic(i.Path, i.Previous, 0o755); err != nil {
			return fmt.Errorf(messages.LaunchersWriteFailedFmt, i.Path, err)
		}
		return nil
	}
	if err := i.sys.Remove(i.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf(messages.LaunchersRemoveFailedFmt, i.Path, err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
