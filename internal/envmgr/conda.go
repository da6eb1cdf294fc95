package envmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
)

// Conda manages a named conda environment.
type Conda struct {
	runner process.Runner
	name   string
}

// Kind implements Manager.
func (c *Conda) Kind() Kind { return KindConda }

// Location implements Manager.
func (c *Conda) Location() string { return c.name }

type condaEnvList struct {
	Envs []string `json:"envs"`
}

func (c *Conda) lookup(ctx context.Context) (string, error) {
	res, err := c.runner.Run(ctx, process.Command{Binary: "conda", Args: []string{"env", "list", "--json"}})
	if err != nil {
		return "", fmt.Errorf(messages.EnvCondaListFailedFmt, err)
	}
	var list condaEnvList
	if err := json.Unmarshal(res.Stdout, &list); err != nil {
		return "", fmt.Errorf(messages.EnvCondaListFailedFmt, err)
	}
	for _, prefix := range list.Envs {
		if filepath.Base(prefix) == c.name {
			return prefix, nil
		}
	}
	return "", nil
}

// Exists reports whether conda knows an environment with this name.
func (c *Conda) Exists(ctx context.Context) (bool, error) {
	prefix, err := c.lookup(ctx)
	return prefix != "", err
}

// Create runs `conda create -y -n <name> python=<CondaPython>`.
func (c *Conda) Create(ctx context.Context, out io.Writer) error {
	_, err := c.runner.Run(ctx, process.Command{
		Binary: "conda",
		Args:   []string{"create", "-y", "-n", c.name, "python=" + CondaPython},
		Output: out,
	})
	if err != nil {
		return fmt.Errorf(messages.EnvCreateFailedFmt, c.name, err)
	}
	return nil
}

// Remove runs `conda env remove -y -n <name>`.
func (c *Conda) Remove(ctx context.Context) error {
	_, err := c.runner.Run(ctx, process.Command{Binary: "conda", Args: []string{"env", "remove", "-y", "-n", c.name}})
	if err != nil {
		return fmt.Errorf(messages.EnvRemoveFailedFmt, c.name, err)
	}
	return nil
}

// Prefix returns the environment's root directory as reported by conda.
func (c *Conda) Prefix(ctx context.Context) (string, error) {
	prefix, err := c.lookup(ctx)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return "", fmt.Errorf(messages.EnvCondaNotFoundFmt, c.name)
	}
	return prefix, nil
}
