package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
)

// PM2 drives the pm2 process manager.
type PM2 struct {
	runner process.Runner
	// Binary defaults to "pm2".
	Binary string
	// EcosystemDir receives the generated ecosystem file.
	EcosystemDir string
}

// NewPM2 returns a pm2 supervisor writing its ecosystem file into ecosystemDir.
func NewPM2(runner process.Runner, ecosystemDir string) *PM2 {
	return &PM2{runner: runner, Binary: "pm2", EcosystemDir: ecosystemDir}
}

type pm2Entry struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	PM2Env struct {
		Status string `json:"status"`
	} `json:"pm2_env"`
}

// Lookup reads `pm2 jlist`.
func (p *PM2) Lookup(ctx context.Context, name string) (*ProcessInfo, error) {
	res, err := p.runner.Run(ctx, process.Command{Binary: p.Binary, Args: []string{"jlist"}})
	if err != nil {
		return nil, fmt.Errorf(messages.ServiceSupervisorListFailedFmt, err)
	}
	var entries []pm2Entry
	if err := json.Unmarshal(res.Stdout, &entries); err != nil {
		return nil, fmt.Errorf(messages.ServiceSupervisorListFailedFmt, err)
	}
	for _, e := range entries {
		if e.Name == name {
			return &ProcessInfo{Name: e.Name, PID: e.PID, Status: e.PM2Env.Status}, nil
		}
	}
	return nil, nil
}

type ecosystem struct {
	Apps []ecosystemApp `yaml:"apps"`
}

type ecosystemApp struct {
	Name        string            `yaml:"name"`
	Script      string            `yaml:"script"`
	Args        string            `yaml:"args,omitempty"`
	Cwd         string            `yaml:"cwd"`
	Autorestart bool              `yaml:"autorestart"`
	Env         map[string]string `yaml:"env"`
}

// EcosystemPath returns where the ecosystem file for name is written.
func (p *PM2) EcosystemPath(name string) string {
	return filepath.Join(p.EcosystemDir, name+".ecosystem.yml")
}

// WriteEcosystem renders the pm2 ecosystem file for spec.
func (p *PM2) WriteEcosystem(spec ProcessSpec) (string, error) {
	env := map[string]string{
		"PORT":       strconv.Itoa(spec.Port),
		"UPLOAD_DIR": spec.UploadDir,
	}
	for k, v := range spec.Env {
		env[k] = v
	}
	doc := ecosystem{Apps: []ecosystemApp{{
		Name:        spec.Name,
		Script:      spec.Script,
		Args:        spec.Args,
		Cwd:         spec.Dir,
		Autorestart: true,
		Env:         env,
	}}}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf(messages.ServiceEcosystemWriteFailedFmt, spec.Name, err)
	}
	if err := os.MkdirAll(p.EcosystemDir, 0o755); err != nil {
		return "", fmt.Errorf(messages.ServiceEcosystemWriteFailedFmt, spec.Name, err)
	}
	path := p.EcosystemPath(spec.Name)
	// The environment can carry the model-hub token.
	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", fmt.Errorf(messages.ServiceEcosystemWriteFailedFmt, spec.Name, err)
	}
	return path, nil
}

// Start registers and starts spec from a generated ecosystem file.
func (p *PM2) Start(ctx context.Context, spec ProcessSpec, out io.Writer) error {
	path, err := p.WriteEcosystem(spec)
	if err != nil {
		return err
	}
	if _, err := p.runner.Run(ctx, process.Command{Binary: p.Binary, Args: []string{"start", path}, Dir: spec.Dir, Output: out}); err != nil {
		return fmt.Errorf(messages.ServiceStartFailedFmt, spec.Name, err)
	}
	return nil
}

// Save runs `pm2 save`.
func (p *PM2) Save(ctx context.Context, out io.Writer) error {
	if _, err := p.runner.Run(ctx, process.Command{Binary: p.Binary, Args: []string{"save"}, Output: out}); err != nil {
		return fmt.Errorf(messages.ServiceSaveFailedFmt, err)
	}
	return nil
}

// Delete runs `pm2 delete <name>`.
func (p *PM2) Delete(ctx context.Context, name string) error {
	if _, err := p.runner.Run(ctx, process.Command{Binary: p.Binary, Args: []string{"delete", name}}); err != nil {
		return fmt.Errorf(messages.ServiceDeleteFailedFmt, name, err)
	}
	return nil
}
