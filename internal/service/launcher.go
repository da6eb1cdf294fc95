package service

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

// ServiceProcess is the running service as seen after EnsureRunning.
type ServiceProcess struct {
	Name string
	Port int
	PID  int
	// AlreadyRunning reports that the supervisor already had the process and it was left untouched.
	AlreadyRunning bool
	// PublicURL is the tunnel endpoint, when a tunnel is running.
	PublicURL string
}

// Launcher ensures the service runs under a supervisor.
type Launcher struct {
	sup Supervisor
	log zerolog.Logger
}

// NewLauncher returns a launcher backed by sup.
func NewLauncher(sup Supervisor, log zerolog.Logger) *Launcher {
	return &Launcher{sup: sup, log: log}
}

// EnsureRunning starts spec unless a process with the same name is already
// registered, in which case it is left untouched. Restarting an existing process is
// the update script's job, never install's.
func (l *Launcher) EnsureRunning(ctx context.Context, spec ProcessSpec, out io.Writer) (*ServiceProcess, error) {
	existing, err := l.sup.Lookup(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		l.log.Info().Str("service", spec.Name).Int("pid", existing.PID).Str("status", existing.Status).Msg("service already registered; leaving it untouched")
		if out != nil {
			_, _ = fmt.Fprintf(out, messages.ServiceAlreadyRunningFmt, spec.Name, existing.Status)
		}
		return &ServiceProcess{Name: spec.Name, Port: spec.Port, PID: existing.PID, AlreadyRunning: true}, nil
	}

	if err := l.sup.Start(ctx, spec, out); err != nil {
		return nil, err
	}
	started, err := l.sup.Lookup(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if started == nil {
		return nil, fmt.Errorf(messages.ServiceNotRegisteredFmt, spec.Name)
	}
	l.log.Info().Str("service", spec.Name).Int("pid", started.PID).Int("port", spec.Port).Msg("service started")
	return &ServiceProcess{Name: spec.Name, Port: spec.Port, PID: started.PID}, nil
}

// Persist saves the supervisor's process table.
func (l *Launcher) Persist(ctx context.Context, out io.Writer) error {
	return l.sup.Save(ctx, out)
}

// Remove deletes the service from the supervisor. Only explicit uninstall calls this.
func (l *Launcher) Remove(ctx context.Context, name string) (bool, error) {
	existing, err := l.sup.Lookup(ctx, name)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	return true, l.sup.Delete(ctx, name)
}
