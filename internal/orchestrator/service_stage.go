package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"

	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/launchers"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/service"
	"github.com/conn-castle/whisper-provision/internal/step"
)

const supervisorBinary = "pm2"

func (o *Orchestrator) serviceSteps() []step.Step {
	launcher := service.NewLauncher(o.deps.Supervisor, o.log)
	localUpdate := filepath.Join(o.session.BuildDir(), o.session.UpdateCommandName())
	installedUpdate := filepath.Join(o.session.BinDir(), o.session.UpdateCommandName())
	o.summary.UpdateScript = installedUpdate

	steps := []step.Step{
		o.ensureSupervisorStep(),
		o.serviceModulesStep(),
		o.uploadDirStep(),
		o.serviceEnvStep(),
		o.generateUpdateScriptStep(localUpdate),
		o.installArtifactStep(messages.StepInstallUpdateScript, localUpdate, installedUpdate),
		o.startServiceStep(launcher),
		{
			Name: messages.StepPersistSupervisor,
			Action: func(ctx context.Context, out io.Writer) error {
				return launcher.Persist(ctx, out)
			},
		},
	}
	if o.session.HasTunnel() {
		steps = append(steps, o.tunnelStep())
	}
	if o.deps.Probe != nil {
		steps = append(steps, step.Step{
			Name: messages.StepProbeService,
			Action: func(ctx context.Context, _ io.Writer) error {
				return o.deps.Probe(ctx, o.session.Port())
			},
		})
	}
	return steps
}

func (o *Orchestrator) ensureSupervisorStep() step.Step {
	return step.Step{
		Name:     messages.StepEnsureSupervisor,
		Critical: true,
		Check: func(context.Context) (bool, error) {
			_, err := o.deps.LookPath(supervisorBinary)
			return err == nil, nil
		},
		Action: func(ctx context.Context, out io.Writer) error {
			_, err := o.deps.Runner.Run(ctx, process.Command{Binary: "npm", Args: []string{"install", "-g", supervisorBinary}, Output: out})
			return err
		},
		Undo: func(ctx context.Context) error {
			_, err := o.deps.Runner.Run(ctx, process.Command{Binary: "npm", Args: []string{"uninstall", "-g", supervisorBinary}})
			return err
		},
		UndoDescription: fmt.Sprintf(messages.UndoUninstallGlobalFmt, supervisorBinary),
	}
}

func (o *Orchestrator) serviceModulesStep() step.Step {
	modules := filepath.Join(o.session.ServiceDir(), "node_modules")
	return step.Step{
		Name:     messages.StepServiceModules,
		Critical: true,
		Check: func(context.Context) (bool, error) {
			return fsutil.Exists(modules)
		},
		Action: func(ctx context.Context, out io.Writer) error {
			_, err := o.deps.Runner.Run(ctx, process.Command{Binary: "npm", Args: []string{"install"}, Dir: o.session.ServiceDir(), Output: out})
			return err
		},
		Undo: func(context.Context) error {
			return os.RemoveAll(modules)
		},
		UndoDescription: fmt.Sprintf(messages.UndoRemoveDirFmt, modules),
	}
}

func (o *Orchestrator) uploadDirStep() step.Step {
	dir := o.session.UploadDir()
	return step.Step{
		Name:     messages.StepUploadDir,
		Critical: true,
		Check: func(context.Context) (bool, error) {
			return fsutil.Exists(dir)
		},
		Action: func(context.Context, io.Writer) error {
			return os.MkdirAll(dir, 0o755)
		},
		Undo: func(context.Context) error {
			return os.RemoveAll(dir)
		},
		UndoDescription: fmt.Sprintf(messages.UndoRemoveDirFmt, dir),
	}
}

func (o *Orchestrator) serviceEnv() service.EnvFile {
	return service.EnvFile{
		Port:       o.session.Port(),
		UploadDir:  o.session.UploadDir(),
		WhisperCLI: filepath.Join(o.session.BinDir(), o.session.CommandName()),
		HFToken:    o.session.HFToken(),
	}
}

func (o *Orchestrator) serviceEnvStep() step.Step {
	path := filepath.Join(o.session.ServiceDir(), ".env")
	var snap fileSnapshot
	return step.Step{
		Name:     messages.StepServiceEnv,
		Critical: true,
		Check: func(context.Context) (bool, error) {
			have, err := service.ReadEnvFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return maps.Equal(have, o.serviceEnv().Values()), nil
		},
		Action: func(context.Context, io.Writer) error {
			var err error
			if snap, err = snapshotFile(path); err != nil {
				return err
			}
			return service.WriteEnvFile(path, o.serviceEnv())
		},
		Undo: func(context.Context) error {
			return snap.restore()
		},
		UndoDescription: fmt.Sprintf(messages.UndoRestoreFileFmt, path),
	}
}

func (o *Orchestrator) generateUpdateScriptStep(localPath string) step.Step {
	return step.Step{
		Name:     messages.StepGenerateUpdateScript,
		Critical: true,
		Action: func(context.Context, io.Writer) error {
			data, err := launchers.RenderUpdateService(launchers.UpdateServiceParams{
				ServiceDir:  o.session.ServiceDir(),
				ServiceName: o.session.ServiceName(),
			})
			if err != nil {
				return err
			}
			_, err = launchers.WriteLocal(o.deps.Launchers, filepath.Dir(localPath), filepath.Base(localPath), data)
			return err
		},
	}
}

// startServiceStep never records a compensation: the supervisor owns the process and
// only an explicit uninstall removes it.
func (o *Orchestrator) startServiceStep(launcher *service.Launcher) step.Step {
	return step.Step{
		Name:     messages.StepStartService,
		Critical: true,
		Action: func(ctx context.Context, out io.Writer) error {
			proc, err := launcher.EnsureRunning(ctx, service.ProcessSpec{
				Name:      o.session.ServiceName(),
				Dir:       o.session.ServiceDir(),
				Script:    "npm",
				Args:      "start",
				Port:      o.session.Port(),
				UploadDir: o.session.UploadDir(),
			}, out)
			if err != nil {
				return err
			}
			o.summary.Service = proc
			return nil
		},
	}
}

func (o *Orchestrator) tunnelStep() step.Step {
	return step.Step{
		Name: messages.StepStartTunnel,
		Action: func(ctx context.Context, out io.Writer) error {
			binary, installed, err := o.deps.Tunnel.EnsureInstalled(ctx, out)
			if err != nil {
				return err
			}
			if installed {
				o.log.Info().Str("path", binary).Msg("tunnel agent installed")
			}
			endpoint, err := o.deps.Tunnel.Start(ctx, binary, service.TunnelSpec{
				Token:    o.session.TunnelToken(),
				Port:     o.session.Port(),
				Hostname: o.session.TunnelHostname(),
			})
			if err != nil {
				return err
			}
			o.summary.TunnelURL = endpoint.URL
			if o.summary.Service != nil {
				o.summary.Service.PublicURL = endpoint.URL
			}
			return nil
		},
	}
}
