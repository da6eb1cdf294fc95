// Package orchestrator runs one provisioning session: detect the host, install the
// transcription CLI, install the companion service, print a summary. Any critical
// failure or interruption unwinds every recorded irreversible action.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/config"
	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/launchers"
	"github.com/conn-castle/whisper-provision/internal/logging"
	"github.com/conn-castle/whisper-provision/internal/manifest"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/rollback"
	"github.com/conn-castle/whisper-provision/internal/service"
	"github.com/conn-castle/whisper-provision/internal/step"
)

var (
	// ErrInterrupted reports that the session was canceled from outside.
	ErrInterrupted = errors.New("provisioning interrupted")
	// ErrCriticalStep reports that a critical step failed.
	ErrCriticalStep = errors.New("critical step failed")
)

const (
	stageCLI     = "cli-install"
	stageService = "service-install"
)

// Detector produces the capability profile.
type Detector interface {
	Detect(ctx context.Context) (capability.Profile, error)
}

// Tunnel installs and starts the tunnel agent.
type Tunnel interface {
	EnsureInstalled(ctx context.Context, out io.Writer) (string, bool, error)
	Start(ctx context.Context, binary string, spec service.TunnelSpec) (*service.TunnelEndpoint, error)
}

// EnvFactory builds the runtime environment manager.
type EnvFactory func(kind envmgr.Kind, runner process.Runner, interpreter, location string) (envmgr.Manager, error)

// Deps are the collaborators of a session.
type Deps struct {
	Detector      Detector
	Preconditions config.PreconditionSystem
	Runner        process.Runner
	Manifest      *manifest.Manifest
	Launchers     launchers.System
	Supervisor    service.Supervisor
	Tunnel        Tunnel
	// Probe checks the service health endpoint on port.
	Probe func(ctx context.Context, port int) error
	// LookPath defaults to process.LookPath.
	LookPath func(string) (string, error)
	// NewEnv defaults to envmgr.New.
	NewEnv EnvFactory
}

// Orchestrator sequences one session. It is single use.
type Orchestrator struct {
	session *config.Session
	deps    Deps
	out     io.Writer
	log     zerolog.Logger
	tracker *rollback.Tracker
	runner  *step.Runner

	state   State
	history []State
	summary *Summary

	profile    capability.Profile
	env        envmgr.Manager
	envPrefix  string
	envCreated bool
	previous   *InstallState
}

// New returns an orchestrator in the Init state. out receives console progress.
func New(session *config.Session, deps Deps, out io.Writer, log zerolog.Logger) *Orchestrator {
	if out == nil {
		out = io.Discard
	}
	if deps.LookPath == nil {
		deps.LookPath = process.LookPath
	}
	if deps.NewEnv == nil {
		deps.NewEnv = envmgr.New
	}
	if deps.Launchers == nil {
		deps.Launchers = launchers.RealSystem{}
	}
	log = log.With().Str(logging.FieldSession, session.ID()).Logger()
	tracker := rollback.New(log, out)
	return &Orchestrator{
		session: session,
		deps:    deps,
		out:     out,
		log:     log,
		tracker: tracker,
		runner: step.NewRunner(step.Options{
			Out:     out,
			Verbose: session.Verbose(),
			Force:   session.Force(),
			Timeout: session.StepTimeout(),
			Log:     log,
			Tracker: tracker,
		}),
		state:   StateInit,
		history: []State{StateInit},
		summary: &Summary{SessionID: session.ID()},
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// History returns every state entered, in order.
func (o *Orchestrator) History() []State {
	return append([]State(nil), o.history...)
}

// Tracker exposes the rollback stack.
func (o *Orchestrator) Tracker() *rollback.Tracker { return o.tracker }

// Run drives the session to Done. On failure the returned summary still describes
// what ran and what was unwound.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	o.transition(StateDetectCapabilities)
	if err := o.detect(ctx); err != nil {
		return o.abort(ctx, err)
	}

	if !o.session.ServiceOnly() {
		o.transition(StateCLIInstall)
		if err := o.prepareEnv(ctx); err != nil {
			return o.abort(ctx, err)
		}
		if err := o.runStage(ctx, stageCLI, messages.StageCLIHeader, o.cliSteps()); err != nil {
			return o.abort(ctx, err)
		}
	}

	o.transition(StateServiceInstall)
	if err := o.runStage(ctx, stageService, messages.StageServiceHeader, o.serviceSteps()); err != nil {
		return o.abort(ctx, err)
	}

	o.transition(StateSummary)
	o.summary.Print(o.out)
	o.log.Info().Int("warnings", len(o.summary.Warnings)).Msg("provisioning complete")
	o.transition(StateDone)
	return o.summary, nil
}

func (o *Orchestrator) detect(ctx context.Context) error {
	_, _ = fmt.Fprintln(o.out, messages.StageDetectHeader)
	profile, err := o.deps.Detector.Detect(ctx)
	if err != nil {
		return err
	}
	o.profile = profile
	o.summary.Profile = profile
	o.log.Info().
		Str("os", string(profile.OS)).
		Str("interpreter", profile.Interpreter).
		Bool("driver", profile.DriverPresent).
		Str("accelerator", profile.Accelerator.String()).
		Str("install_path", string(profile.InstallPath())).
		Msg("capabilities detected")
	_, _ = fmt.Fprintf(o.out, messages.DetectProfileFmt, profile.OS, profile.Interpreter, profile.Accelerator, profile.InstallPath())

	if o.deps.Preconditions != nil {
		if err := config.CheckPreconditions(o.session, o.deps.Preconditions); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) prepareEnv(ctx context.Context) error {
	interpreter := o.session.Interpreter()
	if o.profile.InterpreterPath != "" {
		interpreter = o.profile.InterpreterPath
	}
	env, err := o.deps.NewEnv(o.session.EnvKind(), o.deps.Runner, interpreter, o.session.EnvLocation())
	if err != nil {
		return err
	}
	o.env = env
	previous, err := ReadInstallState(o.session.StatePath())
	if err != nil {
		o.log.Warn().Err(err).Msg("ignoring unreadable install state")
		previous = nil
	}
	o.previous = previous
	return ctx.Err()
}

func (o *Orchestrator) runStage(ctx context.Context, stage string, header string, steps []step.Step) error {
	_, _ = fmt.Fprintln(o.out, header)
	runner := o.runner.WithStage(stage)
	for _, s := range steps {
		if ctx.Err() != nil {
			return fmt.Errorf(messages.OrchestratorInterruptedBeforeFmt, ErrInterrupted, s.Name)
		}
		res := runner.Run(ctx, s)
		o.summary.Results = append(o.summary.Results, res)
		switch res.Outcome {
		case step.HardFailed:
			if ctx.Err() != nil {
				return fmt.Errorf(messages.OrchestratorInterruptedDuringFmt, ErrInterrupted, s.Name)
			}
			return fmt.Errorf(messages.OrchestratorCriticalStepFmt, ErrCriticalStep, s.Name, res.Err)
		case step.SoftFailed:
			o.summary.Warnings = append(o.summary.Warnings, fmt.Sprintf(messages.SummaryStepWarningFmt, s.Name, res.Err))
		}
	}
	return nil
}

// abort unwinds the rollback stack once and finishes in Done. cause is returned
// unchanged so callers can match its sentinel.
func (o *Orchestrator) abort(ctx context.Context, cause error) (*Summary, error) {
	o.transition(StateAborting)
	o.log.Error().Err(cause).Msg("session aborting")
	_, _ = fmt.Fprintf(o.out, messages.OrchestratorAbortingFmt, cause)
	report := o.tracker.Unwind(ctx)
	o.summary.Rollback = &report
	o.summary.Err = cause
	o.log.Info().Strs("undone", report.Undone).Int("failures", len(report.Failures)).Msg("rollback finished")
	o.transition(StateDone)
	return o.summary, cause
}

func (o *Orchestrator) prefix(ctx context.Context) (string, error) {
	if o.envPrefix != "" {
		return o.envPrefix, nil
	}
	p, err := o.env.Prefix(ctx)
	if err != nil {
		return "", err
	}
	o.envPrefix = p
	return p, nil
}
