package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/config"
	"github.com/conn-castle/whisper-provision/internal/deps"
	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/launchers"
	"github.com/conn-castle/whisper-provision/internal/manifest"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/service"
	"github.com/conn-castle/whisper-provision/internal/step"
	"github.com/conn-castle/whisper-provision/internal/testutil"
)

type fakeDetector struct {
	profile capability.Profile
	err     error
}

func (f fakeDetector) Detect(context.Context) (capability.Profile, error) {
	return f.profile, f.err
}

// fakeEnv is a venv that is just a directory.
type fakeEnv struct {
	dir     string
	creates int
	removes int
}

func (e *fakeEnv) Kind() envmgr.Kind { return envmgr.KindVenv }
func (e *fakeEnv) Location() string { return e.dir }
func (e *fakeEnv) Exists(context.Context) (bool, error) { return fsutil.Exists(e.dir) }
func (e *fakeEnv) Prefix(context.Context) (string, error) { return e.dir, nil }

func (e *fakeEnv) Create(context.Context, io.Writer) error {
	e.creates++
	return os.MkdirAll(filepath.Join(e.dir, "bin"), 0o755)
}

func (e *fakeEnv) Remove(context.Context) error {
	e.removes++
	return os.RemoveAll(e.dir)
}

type fakeSupervisor struct {
	mu     sync.Mutex
	table  map[string]service.ProcessInfo
	starts int
	saves  int
}

func (f *fakeSupervisor) Lookup(_ context.Context, name string) (*service.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.table[name]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeSupervisor) Start(_ context.Context, spec service.ProcessSpec, _ io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.table[spec.Name] = service.ProcessInfo{Name: spec.Name, PID: 4000 + f.starts, Status: "online"}
	return nil
}

func (f *fakeSupervisor) Save(context.Context, io.Writer) error {
	f.saves++
	return nil
}

func (f *fakeSupervisor) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.table, name)
	return nil
}

type fakeTunnel struct {
	starts  int
	stopped bool
}

func (f *fakeTunnel) EnsureInstalled(context.Context, io.Writer) (string, bool, error) {
	return "/usr/local/bin/cloudflared", false, nil
}

func (f *fakeTunnel) Start(_ context.Context, _ string, spec service.TunnelSpec) (*service.TunnelEndpoint, error) {
	f.starts++
	host := spec.Hostname
	if host == "" {
		host = "quiet-river.trycloudflare.com"
	}
	return &service.TunnelEndpoint{URL: "https://" + host, PID: 77}, nil
}

func (f *fakeTunnel) Stop() (bool, error) {
	f.stopped = true
	return true, nil
}

type harness struct {
	root         string
	env          *fakeEnv
	runner       *testutil.FakeRunner
	sup          *fakeSupervisor
	tunnel       *fakeTunnel
	pm2Installed bool
	probes       int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "api"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	h := &harness{
		root:         root,
		env:          &fakeEnv{dir: filepath.Join(root, "src", "venv")},
		sup:          &fakeSupervisor{table: map[string]service.ProcessInfo{}},
		tunnel:       &fakeTunnel{},
		pm2Installed: true,
	}
	h.runner = &testutil.FakeRunner{Handler: h.respond}
	return h
}

func (h *harness) wrapper() string {
	return filepath.Join(h.root, "bin", config.DefaultCommandName)
}

// respond answers the wrapper's reserved version flag; everything else succeeds.
func (h *harness) respond(c testutil.Call) testutil.Response {
	if c.Binary == h.wrapper() && slices.Equal(c.Args, []string{"--version"}) {
		return testutil.Response{Output: "Whisper CLI v" + launchers.CLIVersion + "\n"}
	}
	return testutil.Response{}
}

func (h *harness) values() config.Values {
	src := filepath.Join(h.root, "src")
	return config.Values{
		SessionID:   "session-1",
		EnvKind:     envmgr.KindVenv,
		EnvLocation: h.env.dir,
		Interpreter: config.DefaultInterpreter,
		Port:        config.DefaultPort,
		SourceDir:   src,
		BinDir:      filepath.Join(h.root, "bin"),
		CommandName: config.DefaultCommandName,
		ServiceName: config.DefaultServiceName,
		ServiceDir:  filepath.Join(src, "api"),
		UploadDir:   filepath.Join(h.root, "uploads"),
		StateDir:    filepath.Join(h.root, "state"),
	}
}

func (h *harness) session(t *testing.T, mutate func(*config.Values)) *config.Session {
	t.Helper()
	v := h.values()
	if mutate != nil {
		mutate(&v)
	}
	s, err := config.NewSession(v)
	require.NoError(t, err)
	return s
}

func (h *harness) deps(t *testing.T, profile capability.Profile, detectErr error) Deps {
	t.Helper()
	m, err := manifest.Load()
	require.NoError(t, err)
	return Deps{
		Detector:   fakeDetector{profile: profile, err: detectErr},
		Runner:     h.runner,
		Manifest:   m,
		Launchers:  launchers.RealSystem{},
		Supervisor: h.sup,
		Tunnel:     h.tunnel,
		Probe: func(context.Context, int) error {
			h.probes++
			return nil
		},
		LookPath: func(name string) (string, error) {
			if name == supervisorBinary && h.pm2Installed {
				return "/usr/bin/pm2", nil
			}
			return "", exec.ErrNotFound
		},
		NewEnv: func(envmgr.Kind, process.Runner, string, string) (envmgr.Manager, error) {
			return h.env, nil
		},
	}
}

func (h *harness) run(t *testing.T, ctx context.Context, s *config.Session, d Deps) (*Orchestrator, *Summary, error) {
	t.Helper()
	o := New(s, d, &bytes.Buffer{}, zerolog.Nop())
	summary, err := o.Run(ctx)
	return o, summary, err
}

func cpuProfile() capability.Profile {
	return capability.Profile{OS: capability.OSLinux, Arch: "amd64", Interpreter: "3.10.12"}
}

func resultFor(t *testing.T, s *Summary, name string) step.Result {
	t.Helper()
	for _, r := range s.Results {
		if r.Step == name {
			return r
		}
	}
	t.Fatalf("no result for step %q", name)
	return step.Result{}
}

func countCalls(r *testutil.FakeRunner, fragment string) int {
	n := 0
	for _, c := range r.Commands() {
		if strings.Contains(c, fragment) {
			n++
		}
	}
	return n
}

func TestFreshInstall(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, func(v *config.Values) { v.TunnelToken = "tok" })

	o, summary, err := h.run(t, context.Background(), s, h.deps(t, cpuProfile(), nil))
	require.NoError(t, err)

	want := []State{StateInit, StateDetectCapabilities, StateCLIInstall, StateServiceInstall, StateSummary, StateDone}
	if diff := cmp.Diff(want, o.History()); diff != "" {
		t.Fatalf("state history mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, h.env.creates)
	assert.Equal(t, 1, h.sup.starts)
	assert.Equal(t, 1, h.sup.saves)
	assert.Equal(t, 1, h.probes)
	assert.Nil(t, summary.Rollback)

	wrapper, err := os.ReadFile(h.wrapper())
	require.NoError(t, err)
	assert.Contains(t, string(wrapper), h.env.dir)
	assert.FileExists(t, filepath.Join(h.root, "bin", config.DefaultCommandName+"-update"))
	assert.DirExists(t, filepath.Join(h.root, "uploads"))

	env, err := service.ReadEnvFile(filepath.Join(h.root, "src", "api", ".env"))
	require.NoError(t, err)
	assert.Equal(t, "8088", env["PORT"])
	assert.Equal(t, h.wrapper(), env["WHISPERX_CLI"])

	st, err := ReadInstallState(s.StatePath())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, string(capability.PathCPU), st.InstallPath)
	assert.Equal(t, h.env.dir, st.EnvPrefix)

	assert.Equal(t, step.Succeeded, resultFor(t, summary, messages.StepSmokeVersion).Outcome)
	// No sample asset configured: a warning, not a failure of the session.
	assert.Equal(t, step.SoftFailed, resultFor(t, summary, messages.StepSmokeTranscribe).Outcome)
	assert.NotEmpty(t, summary.Warnings)

	assert.Equal(t, "https://quiet-river.trycloudflare.com", summary.TunnelURL)
	require.NotNil(t, summary.Service)
	assert.Equal(t, summary.TunnelURL, summary.Service.PublicURL)
	assert.Equal(t, 1, countCalls(h.runner, "numpy<2.0"))
}

func TestRerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)
	d := h.deps(t, cpuProfile(), nil)

	_, _, err := h.run(t, context.Background(), s, d)
	require.NoError(t, err)
	_, second, err := h.run(t, context.Background(), s, d)
	require.NoError(t, err)

	assert.Equal(t, 1, h.env.creates, "environment must not be recreated")
	assert.Equal(t, 0, h.env.removes)
	assert.Equal(t, 1, countCalls(h.runner, "numpy<2.0"), "packages must not be reinstalled")
	assert.Equal(t, 1, h.sup.starts, "service must not be started twice")
	require.NotNil(t, second.Service)
	assert.True(t, second.Service.AlreadyRunning)

	for _, name := range []string{messages.StepCreateEnv, messages.StepUpgradePip, messages.StepInstallDeps, messages.StepInstallWrapper, messages.StepServiceEnv} {
		assert.Equal(t, step.Skipped, resultFor(t, second, name).Outcome, name)
	}
}

func TestForceRecreatesEnvironment(t *testing.T) {
	h := newHarness(t)
	d := h.deps(t, cpuProfile(), nil)

	_, _, err := h.run(t, context.Background(), h.session(t, nil), d)
	require.NoError(t, err)
	_, summary, err := h.run(t, context.Background(), h.session(t, func(v *config.Values) { v.Force = true }), d)
	require.NoError(t, err)

	assert.Equal(t, 2, h.env.creates)
	assert.Equal(t, 1, h.env.removes)
	assert.True(t, resultFor(t, summary, messages.StepCreateEnv).Forced)
	assert.Equal(t, 2, countCalls(h.runner, "numpy<2.0"))
}

func TestInterruptUnwindsCompletedStepsInReverse(t *testing.T) {
	h := newHarness(t)
	h.pm2Installed = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.runner.Handler = func(c testutil.Call) testutil.Response {
		if c.String() == "npm install -g pm2" {
			// The interrupt lands after the supervisor install completed.
			cancel()
			return testutil.Response{}
		}
		return h.respond(c)
	}
	s := h.session(t, func(v *config.Values) { v.HFToken = "hf_secret" })

	o, summary, err := h.run(t, ctx, s, h.deps(t, cpuProfile(), nil))
	require.ErrorIs(t, err, ErrInterrupted)

	require.NotNil(t, summary.Rollback)
	want := []string{
		messages.StepEnsureSupervisor,
		messages.StepWriteState,
		messages.StepInstallWrapper,
		messages.StepStoreToken,
		messages.StepCreateEnv,
	}
	if diff := cmp.Diff(want, summary.Rollback.Undone); diff != "" {
		t.Fatalf("unwind order mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, summary.Rollback.Failures)
	assert.Equal(t, []State{StateAborting, StateDone}, o.History()[len(o.History())-2:])

	entries, err := os.ReadDir(filepath.Join(h.root, "bin"))
	require.NoError(t, err)
	assert.Empty(t, entries, "system-wide copies must be removed")
	assert.NoDirExists(t, h.env.dir)
	assert.NoFileExists(t, s.StatePath())
	assert.NoFileExists(t, s.HFTokenPath())
	assert.Equal(t, 1, countCalls(h.runner, "npm uninstall -g pm2"))
	assert.Equal(t, 0, h.sup.starts)
}

func TestRequiredDependencyFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.runner.Handler = func(c testutil.Call) testutil.Response {
		if slices.Contains(c.Args, "numpy<2.0") {
			return testutil.Response{Output: "no matching distribution", ExitCode: 1}
		}
		return h.respond(c)
	}

	_, summary, err := h.run(t, context.Background(), h.session(t, nil), h.deps(t, cpuProfile(), nil))
	require.ErrorIs(t, err, ErrCriticalStep)
	assert.ErrorIs(t, err, deps.ErrRequiredPackage)
	assert.Equal(t, step.HardFailed, resultFor(t, summary, messages.StepInstallDeps).Outcome)
	require.NotNil(t, summary.Rollback)
	assert.Equal(t, []string{messages.StepCreateEnv}, summary.Rollback.Undone)
	assert.NoDirExists(t, h.env.dir)
	assert.NoFileExists(t, h.wrapper())
}

func TestFailedVenvCreationLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)
	venvFails := true
	h.runner.Handler = func(c testutil.Call) testutil.Response {
		if slices.Equal(c.Args[:min(2, len(c.Args))], []string{"-m", "venv"}) {
			dir := c.Args[2]
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
			require.NoError(t, os.WriteFile(envmgr.PythonPath(dir), nil, 0o755))
			if venvFails {
				return testutil.Response{Output: "Error: ensurepip failed", ExitCode: 1}
			}
			require.NoError(t, os.WriteFile(envmgr.PipPath(dir), nil, 0o755))
		}
		return h.respond(c)
	}
	d := h.deps(t, cpuProfile(), nil)
	d.NewEnv = envmgr.New
	s := h.session(t, nil)

	_, summary, err := h.run(t, context.Background(), s, d)
	require.ErrorIs(t, err, ErrCriticalStep)
	assert.Equal(t, step.HardFailed, resultFor(t, summary, messages.StepCreateEnv).Outcome)
	assert.NoDirExists(t, s.EnvLocation())

	venvFails = false
	_, summary, err = h.run(t, context.Background(), s, d)
	require.NoError(t, err)
	assert.Equal(t, step.Succeeded, resultFor(t, summary, messages.StepCreateEnv).Outcome)
	assert.FileExists(t, envmgr.PipPath(s.EnvLocation()))
}

func TestOptionalDependencyFailureContinues(t *testing.T) {
	h := newHarness(t)
	h.runner.Handler = func(c testutil.Call) testutil.Response {
		for _, a := range c.Args {
			if strings.HasPrefix(a, "soundfile") {
				return testutil.Response{ExitCode: 1}
			}
		}
		return h.respond(c)
	}

	_, summary, err := h.run(t, context.Background(), h.session(t, nil), h.deps(t, cpuProfile(), nil))
	require.NoError(t, err)
	assert.Equal(t, step.Succeeded, resultFor(t, summary, messages.StepInstallDeps).Outcome)
	assert.Contains(t, summary.Warnings, "optional package soundfile was not installed")
	assert.FileExists(t, h.wrapper())
}

func TestServiceOnlySkipsCLIStage(t *testing.T) {
	h := newHarness(t)
	o, summary, err := h.run(t, context.Background(), h.session(t, func(v *config.Values) { v.ServiceOnly = true }), h.deps(t, cpuProfile(), nil))
	require.NoError(t, err)

	assert.NotContains(t, o.History(), StateCLIInstall)
	assert.Equal(t, 0, h.env.creates)
	assert.Equal(t, 0, countCalls(h.runner, "pip"))
	assert.Empty(t, summary.Wrapper)
	assert.Equal(t, 1, h.sup.starts)
}

func TestFatalPreconditionAbortsWithNothingToUndo(t *testing.T) {
	h := newHarness(t)
	detectErr := fmt.Errorf("%w: python 3.8.10", capability.ErrUnsupportedInterpreter)

	o, summary, err := h.run(t, context.Background(), h.session(t, nil), h.deps(t, capability.Profile{}, detectErr))
	require.ErrorIs(t, err, capability.ErrUnsupportedInterpreter)
	assert.Equal(t, []State{StateInit, StateDetectCapabilities, StateAborting, StateDone}, o.History())
	require.NotNil(t, summary.Rollback)
	assert.Empty(t, summary.Rollback.Undone)
	assert.Empty(t, h.runner.Calls())
}

func TestCriticalServiceStepRollsBackCLIStage(t *testing.T) {
	h := newHarness(t)
	h.runner.Handler = func(c testutil.Call) testutil.Response {
		if c.String() == "npm install" {
			return testutil.Response{Output: "ERESOLVE", ExitCode: 1}
		}
		return h.respond(c)
	}

	_, summary, err := h.run(t, context.Background(), h.session(t, nil), h.deps(t, cpuProfile(), nil))
	require.ErrorIs(t, err, ErrCriticalStep)
	assert.Equal(t, []string{messages.StepWriteState, messages.StepInstallWrapper, messages.StepCreateEnv}, summary.Rollback.Undone)
	assert.NoFileExists(t, h.wrapper())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInit, StateDetectCapabilities, true},
		{StateDetectCapabilities, StateServiceInstall, true},
		{StateCLIInstall, StateDetectCapabilities, false},
		{StateSummary, StateCLIInstall, false},
		{StateServiceInstall, StateAborting, true},
		{StateAborting, StateDone, true},
		{StateAborting, StateAborting, false},
		{StateDone, StateAborting, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestUninstallRemovesInstalledArtifacts(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, func(v *config.Values) { v.HFToken = "hf_secret" })
	_, _, err := h.run(t, context.Background(), s, h.deps(t, cpuProfile(), nil))
	require.NoError(t, err)

	var out bytes.Buffer
	err = Uninstall(context.Background(), s, UninstallDeps{
		Runner:     h.runner,
		Supervisor: h.sup,
		Tunnel:     h.tunnel,
		NewEnv: func(envmgr.Kind, process.Runner, string, string) (envmgr.Manager, error) {
			return h.env, nil
		},
	}, &out, zerolog.Nop())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(h.root, "bin"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoDirExists(t, h.env.dir)
	assert.NoFileExists(t, s.StatePath())
	assert.NoFileExists(t, s.HFTokenPath())
	assert.Empty(t, h.sup.table)
	assert.True(t, h.tunnel.stopped)
}

func TestReadInstallStateMissing(t *testing.T) {
	st, err := ReadInstallState(filepath.Join(t.TempDir(), "state.toml"))
	require.NoError(t, err)
	assert.Nil(t, st)
}
