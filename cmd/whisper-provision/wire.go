package main

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/config"
	"github.com/conn-castle/whisper-provision/internal/doctor"
	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/launchers"
	"github.com/conn-castle/whisper-provision/internal/manifest"
	"github.com/conn-castle/whisper-provision/internal/orchestrator"
	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/service"
)

// Collaborator factories. Tests replace them to keep commands off the real host.
var (
	newInstallDeps   = realInstallDeps
	newDoctorDeps    = realDoctorDeps
	newUninstallDeps = realUninstallDeps
)

func supervisor(s *config.Session, runner process.Runner) *service.PM2 {
	return service.NewPM2(runner, filepath.Join(s.StateDir(), "pm2"))
}

func tunnelAgent(s *config.Session, runner process.Runner, log zerolog.Logger) *service.TunnelAgent {
	client := service.NewHTTPClient(service.DefaultHTTPOptions, log)
	return service.NewTunnelAgent(runner, client, log, service.TunnelOptions{
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
		StateDir: s.StateDir(),
		BinDir:   s.BinDir(),
	})
}

func realInstallDeps(s *config.Session, log zerolog.Logger) (orchestrator.Deps, error) {
	m, err := manifest.Load()
	if err != nil {
		return orchestrator.Deps{}, err
	}
	runner := process.Exec{}
	client := service.NewHTTPClient(service.DefaultHTTPOptions, log)
	return orchestrator.Deps{
		Detector:      capability.NewDetector(capability.RealSystem{}, s.Interpreter()),
		Preconditions: config.RealPreconditionSystem{},
		Runner:        runner,
		Manifest:      m,
		Launchers:     launchers.RealSystem{},
		Supervisor:    supervisor(s, runner),
		Tunnel:        tunnelAgent(s, runner, log),
		Probe: func(ctx context.Context, port int) error {
			return service.Probe(ctx, client, port)
		},
	}, nil
}

// doctorDeps are the read-only probes behind the doctor command.
type doctorDeps struct {
	Detector   doctor.Detector
	Tools      config.PreconditionSystem
	Resources  doctor.Resources
	Env        envmgr.Manager
	Supervisor service.Supervisor
}

func realDoctorDeps(s *config.Session) doctorDeps {
	runner := process.Exec{}
	deps := doctorDeps{
		Detector:   capability.NewDetector(capability.RealSystem{}, s.Interpreter()),
		Tools:      config.RealPreconditionSystem{},
		Resources:  doctor.RealResources{},
		Supervisor: supervisor(s, runner),
	}
	if env, err := envmgr.New(s.EnvKind(), runner, s.Interpreter(), s.EnvLocation()); err == nil {
		deps.Env = env
	}
	return deps
}

func realUninstallDeps(s *config.Session, log zerolog.Logger) orchestrator.UninstallDeps {
	runner := process.Exec{}
	return orchestrator.UninstallDeps{
		Runner:     runner,
		Supervisor: supervisor(s, runner),
		Tunnel:     tunnelAgent(s, runner, log),
	}
}
