package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/config"
	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/service"
)

// TunnelStopper stops a running tunnel agent.
type TunnelStopper interface {
	Stop() (bool, error)
}

// UninstallDeps are the collaborators of Uninstall.
type UninstallDeps struct {
	Runner     process.Runner
	Supervisor service.Supervisor
	Tunnel     TunnelStopper
	// NewEnv defaults to envmgr.New.
	NewEnv EnvFactory
}

// Uninstall tears down everything install created: the service process, the tunnel,
// the system-wide executables, the token and state files and the runtime environment.
// It keeps going after a failed removal and returns every error joined.
func Uninstall(ctx context.Context, session *config.Session, deps UninstallDeps, out io.Writer, log zerolog.Logger) error {
	if deps.NewEnv == nil {
		deps.NewEnv = envmgr.New
	}
	state, err := ReadInstallState(session.StatePath())
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable install state")
	}

	var errs []error
	report := func(what string, err error) {
		if err != nil {
			log.Error().Err(err).Str("target", what).Msg("uninstall step failed")
			_, _ = fmt.Fprintf(out, messages.UninstallFailedFmt, what, err)
			errs = append(errs, err)
			return
		}
		_, _ = fmt.Fprintf(out, messages.UninstallRemovedFmt, what)
	}

	serviceName := session.ServiceName()
	if state != nil && state.ServiceName != "" {
		serviceName = state.ServiceName
	}
	if deps.Supervisor != nil {
		removed, err := service.NewLauncher(deps.Supervisor, log).Remove(ctx, serviceName)
		if err != nil || removed {
			report(serviceName, err)
		}
		if removed {
			if err := deps.Supervisor.Save(ctx, nil); err != nil {
				log.Warn().Err(err).Msg("supervisor save after delete failed")
			}
		}
	}
	if deps.Tunnel != nil {
		stopped, err := deps.Tunnel.Stop()
		if err != nil || stopped {
			report(messages.UninstallTunnelTarget, err)
		}
	}

	files := []string{
		filepath.Join(session.BinDir(), session.CommandName()),
		filepath.Join(session.BinDir(), session.UpdateCommandName()),
	}
	if state != nil {
		files = append(files, state.Wrapper, state.UpdateScript)
	}
	files = append(files, session.HFTokenPath())
	seen := map[string]bool{}
	for _, path := range files {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		report(path, err)
	}

	kind, location := session.EnvKind(), session.EnvLocation()
	if state != nil && state.EnvKind != "" {
		kind, location = envmgr.Kind(state.EnvKind), state.EnvLocation
	}
	env, err := deps.NewEnv(kind, deps.Runner, session.Interpreter(), location)
	if err != nil {
		errs = append(errs, err)
	} else if exists, err := env.Exists(ctx); err != nil {
		report(location, err)
	} else if exists {
		report(location, env.Remove(ctx))
	}

	if err := os.Remove(session.StatePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		report(session.StatePath(), err)
	}
	return errors.Join(errs...)
}
