package orchestrator

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

// InstallState is the record of the last successful CLI install, kept in the state dir.
type InstallState struct {
	SessionID      string    `toml:"session_id"`
	InstalledAt    time.Time `toml:"installed_at"`
	InstallPath    string    `toml:"install_path"`
	EnvKind        string    `toml:"env_kind"`
	EnvLocation    string    `toml:"env_location"`
	EnvPrefix      string    `toml:"env_prefix"`
	ManifestDigest string    `toml:"manifest_digest"`
	Wrapper        string    `toml:"wrapper,omitempty"`
	UpdateScript   string    `toml:"update_script,omitempty"`
	ServiceName    string    `toml:"service_name,omitempty"`
}

// ReadInstallState reads the state file. A missing file returns nil, nil.
func ReadInstallState(path string) (*InstallState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf(messages.StateReadFailedFmt, path, err)
	}
	var st InstallState
	if err := toml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf(messages.StateReadFailedFmt, path, err)
	}
	return &st, nil
}

// WriteInstallState writes st to path.
func WriteInstallState(path string, st InstallState) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf(messages.StateWriteFailedFmt, path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf(messages.StateWriteFailedFmt, path, err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf(messages.StateWriteFailedFmt, path, err)
	}
	return nil
}

// fileSnapshot remembers a file's content so a compensation can put it back.
type fileSnapshot struct {
	path    string
	existed bool
	data    []byte
	perm    os.FileMode
}

func snapshotFile(path string) (fileSnapshot, error) {
	snap := fileSnapshot{path: path}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	snap.existed = true
	snap.data = data
	snap.perm = info.Mode().Perm()
	return snap, nil
}

// restore puts the file back as it was when the snapshot was taken.
func (s fileSnapshot) restore() error {
	if !s.existed {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return fsutil.WriteFileAtomic(s.path, s.data, s.perm)
}
