package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conn-castle/whisper-provision/internal/deps"
	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/launchers"
	"github.com/conn-castle/whisper-provision/internal/manifest"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/step"
)

// smokeModel is the smallest model, enough to prove the toolchain loads.
const smokeModel = "tiny"

func (o *Orchestrator) cliSteps() []step.Step {
	specs := o.deps.Manifest.Select(o.profile.InstallPath(), o.session.SkipAdvanced())
	digest := manifest.Digest(specs)
	localWrapper := filepath.Join(o.session.BuildDir(), o.session.CommandName())
	installedWrapper := filepath.Join(o.session.BinDir(), o.session.CommandName())
	o.summary.Wrapper = installedWrapper

	steps := []step.Step{
		o.createEnvStep(),
		o.upgradePipStep(digest),
		o.installDepsStep(specs, digest),
	}
	if o.session.HasHFToken() {
		steps = append(steps, o.storeTokenStep())
	}
	return append(steps,
		o.generateWrapperStep(localWrapper),
		o.installArtifactStep(messages.StepInstallWrapper, localWrapper, installedWrapper),
		o.writeStateStep(digest, installedWrapper),
		o.versionSmokeStep(installedWrapper),
		o.transcriptionSmokeStep(installedWrapper),
	)
}

func (o *Orchestrator) createEnvStep() step.Step {
	return step.Step{
		Name:      messages.StepCreateEnv,
		Critical:  true,
		Forceable: true,
		Check: func(ctx context.Context) (bool, error) {
			return o.env.Exists(ctx)
		},
		Action: func(ctx context.Context, out io.Writer) error {
			if err := o.env.Create(ctx, out); err != nil {
				return err
			}
			o.envCreated = true
			o.envPrefix = ""
			return nil
		},
		Undo: func(ctx context.Context) error {
			return o.env.Remove(ctx)
		},
		UndoDescription: fmt.Sprintf(messages.UndoRemoveEnvFmt, o.env.Kind(), o.env.Location()),
	}
}

// depsCurrent reports whether the environment already holds the packages behind
// digest. A freshly created environment never does.
func (o *Orchestrator) depsCurrent(ctx context.Context, digest string) (bool, error) {
	if o.envCreated || o.previous == nil {
		return false, nil
	}
	prefix, err := o.prefix(ctx)
	if err != nil {
		return false, err
	}
	return o.previous.ManifestDigest == digest &&
		o.previous.EnvPrefix == prefix &&
		o.previous.InstallPath == string(o.profile.InstallPath()), nil
}

func (o *Orchestrator) upgradePipStep(digest string) step.Step {
	return step.Step{
		Name: messages.StepUpgradePip,
		Check: func(ctx context.Context) (bool, error) {
			return o.depsCurrent(ctx, digest)
		},
		Action: func(ctx context.Context, out io.Writer) error {
			prefix, err := o.prefix(ctx)
			if err != nil {
				return err
			}
			return envmgr.Pip(ctx, o.deps.Runner, prefix, out, "install", "--upgrade", "pip", "setuptools", "wheel")
		},
	}
}

func (o *Orchestrator) installDepsStep(specs []deps.PackageSpec, digest string) step.Step {
	return step.Step{
		Name:      messages.StepInstallDeps,
		Critical:  true,
		Forceable: true,
		Check: func(ctx context.Context) (bool, error) {
			return o.depsCurrent(ctx, digest)
		},
		Action: func(ctx context.Context, out io.Writer) error {
			prefix, err := o.prefix(ctx)
			if err != nil {
				return err
			}
			pip := func(ctx context.Context, out io.Writer, args ...string) error {
				return envmgr.Pip(ctx, o.deps.Runner, prefix, out, args...)
			}
			report, err := deps.NewInstaller(pip, o.log).InstallAll(ctx, specs, out)
			for _, failed := range report.OptionalFailures() {
				o.summary.Warnings = append(o.summary.Warnings, fmt.Sprintf(messages.SummaryOptionalPackageFmt, failed.Name))
			}
			return err
		},
	}
}

// storeTokenStep keeps the model-hub token in an owner-only file the wrapper reads.
func (o *Orchestrator) storeTokenStep() step.Step {
	path := o.session.HFTokenPath()
	var snap fileSnapshot
	return step.Step{
		Name: messages.StepStoreToken,
		Check: func(context.Context) (bool, error) {
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return strings.TrimSpace(string(data)) == o.session.HFToken(), nil
		},
		Action: func(context.Context, io.Writer) error {
			var err error
			if snap, err = snapshotFile(path); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			return fsutil.WriteFileAtomic(path, []byte(o.session.HFToken()+"\n"), 0o600)
		},
		Undo: func(context.Context) error {
			return snap.restore()
		},
		UndoDescription: fmt.Sprintf(messages.UndoRestoreFileFmt, path),
	}
}

func (o *Orchestrator) generateWrapperStep(localPath string) step.Step {
	return step.Step{
		Name:     messages.StepGenerateWrapper,
		Critical: true,
		Action: func(ctx context.Context, _ io.Writer) error {
			prefix, err := o.prefix(ctx)
			if err != nil {
				return err
			}
			data, err := launchers.RenderWrapper(launchers.WrapperParams{
				Name:        o.session.CommandName(),
				InstallPath: o.profile.InstallPath(),
				EnvKind:     o.env.Kind(),
				EnvPrefix:   prefix,
				EntryPoint:  o.session.EntryPoint(),
				HFTokenFile: o.session.HFTokenPath(),
			})
			if err != nil {
				return err
			}
			_, err = launchers.WriteLocal(o.deps.Launchers, filepath.Dir(localPath), filepath.Base(localPath), data)
			return err
		},
	}
}

// installArtifactStep copies a generated executable into the bin dir. Rollback removes
// the system-wide copy, restoring any file it replaced; the local copy stays.
func (o *Orchestrator) installArtifactStep(name, localPath, installedPath string) step.Step {
	var inst *launchers.Installation
	return step.Step{
		Name:     name,
		Critical: true,
		Check: func(context.Context) (bool, error) {
			want, err := o.deps.Launchers.ReadFile(localPath)
			if err != nil {
				return false, nil
			}
			have, err := o.deps.Launchers.ReadFile(installedPath)
			if err != nil {
				return false, nil
			}
			return bytes.Equal(want, have), nil
		},
		Action: func(_ context.Context, out io.Writer) error {
			var err error
			inst, err = launchers.Install(o.deps.Launchers, localPath, filepath.Dir(installedPath))
			if err != nil {
				return err
			}
			if inst.Replaced() {
				o.log.Info().Str("path", inst.Path).Msg("replaced existing executable")
				_, _ = fmt.Fprint(out, inst.Diff())
			}
			return nil
		},
		Undo: func(context.Context) error {
			if inst == nil {
				return nil
			}
			return inst.Undo()
		},
		UndoDescription: fmt.Sprintf(messages.UndoRemoveExecutableFmt, installedPath),
	}
}

func (o *Orchestrator) writeStateStep(digest, wrapper string) step.Step {
	path := o.session.StatePath()
	var snap fileSnapshot
	return step.Step{
		Name: messages.StepWriteState,
		Action: func(ctx context.Context, _ io.Writer) error {
			prefix, err := o.prefix(ctx)
			if err != nil {
				return err
			}
			if snap, err = snapshotFile(path); err != nil {
				return err
			}
			return WriteInstallState(path, InstallState{
				SessionID:      o.session.ID(),
				InstalledAt:    time.Now().UTC(),
				InstallPath:    string(o.profile.InstallPath()),
				EnvKind:        string(o.env.Kind()),
				EnvLocation:    o.env.Location(),
				EnvPrefix:      prefix,
				ManifestDigest: digest,
				Wrapper:        wrapper,
				UpdateScript:   filepath.Join(o.session.BinDir(), o.session.UpdateCommandName()),
				ServiceName:    o.session.ServiceName(),
			})
		},
		Undo: func(context.Context) error {
			return snap.restore()
		},
		UndoDescription: fmt.Sprintf(messages.UndoRestoreFileFmt, path),
	}
}

func (o *Orchestrator) versionSmokeStep(wrapper string) step.Step {
	return step.Step{
		Name: messages.StepSmokeVersion,
		Action: func(ctx context.Context, out io.Writer) error {
			res, err := o.deps.Runner.Run(ctx, process.Command{Binary: wrapper, Args: []string{"--version"}, Output: out})
			if err != nil {
				return err
			}
			banner := "Whisper CLI v" + launchers.CLIVersion
			if !strings.Contains(string(res.Output), banner) {
				return fmt.Errorf(messages.SmokeVersionMismatchFmt, banner, process.Tail(res.Output, 3))
			}
			return nil
		},
	}
}

// transcriptionSmokeStep runs a short transcription of the sample asset. A missing
// asset is a soft failure, not a skip, so the summary shows the gap.
func (o *Orchestrator) transcriptionSmokeStep(wrapper string) step.Step {
	return step.Step{
		Name: messages.StepSmokeTranscribe,
		Action: func(ctx context.Context, out io.Writer) error {
			sample := o.session.SampleAudio()
			ok, err := fsutil.Exists(sample)
			if sample == "" || err != nil || !ok {
				return fmt.Errorf(messages.SmokeSampleMissingFmt, sample)
			}
			output := filepath.Join(o.session.StateDir(), "smoke.txt")
			args := []string{sample, "--model", smokeModel, "--no-diarize", "--output", output, "--output_format", "txt"}
			if !o.profile.HasAccelerator() {
				args = append(args, "--device", "cpu", "--compute_type", "int8")
			}
			_, err = o.deps.Runner.Run(ctx, process.Command{Binary: wrapper, Args: args, Output: out})
			return err
		},
	}
}
