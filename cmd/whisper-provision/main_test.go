package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/config"
	"github.com/conn-castle/whisper-provision/internal/doctor"
	"github.com/conn-castle/whisper-provision/internal/orchestrator"
	"github.com/conn-castle/whisper-provision/internal/testutil"
)

type fakeDetector struct {
	profile capability.Profile
	err     error
}

func (f fakeDetector) Detect(context.Context) (capability.Profile, error) { return f.profile, f.err }

type fakeUI struct {
	interactive bool
	confirm     bool
	confirmed   int
}

func (f *fakeUI) Interactive() bool { return f.interactive }
func (f *fakeUI) Input(string, *string) error { return nil }
func (f *fakeUI) SecretInput(string, *string) error { return nil }

func (f *fakeUI) Confirm(_ string, value *bool) error {
	f.confirmed++
	*value = f.confirm
	return nil
}

func stubUI(t *testing.T, ui *fakeUI) {
	t.Helper()
	orig := newUI
	newUI = func() operatorUI { return ui }
	t.Cleanup(func() { newUI = orig })
}

// hostArgs points every path setting into a temp dir.
func hostArgs(t *testing.T, cmd ...string) []string {
	t.Helper()
	t.Setenv("HF_TOKEN", "")
	t.Setenv("CLOUDFLARE_TUNNEL_TOKEN", "")
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	args := append([]string{"whisper-provision"}, cmd...)
	return append(args,
		"--source-dir", dir,
		"--bin-dir", filepath.Join(dir, "bin"),
		"--state-dir", filepath.Join(dir, "state"),
		"--no-prompt",
	)
}

func TestMainVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"whisper-provision", "--version"}, &out, &out))
	assert.Contains(t, out.String(), Version)
}

func TestVersionCommandReportsCLIVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"whisper-provision", "version"}, &out, &out))
	assert.Contains(t, out.String(), "2.0.0")
}

func TestRunMainHelpExitsZero(t *testing.T) {
	var out bytes.Buffer
	called := false
	runMain([]string{"whisper-provision", "--help"}, &out, &out, func(int) { called = true })
	assert.False(t, called)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunMainUnknownFlagPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	code := 0
	runMain([]string{"whisper-provision", "--no-such-flag"}, &out, &out, func(c int) { code = c })
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "unknown flag")
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunMainSilentExit(t *testing.T) {
	orig := executeFunc
	t.Cleanup(func() { executeFunc = orig })
	executeFunc = func(context.Context, []string, io.Writer, io.Writer) error {
		return &SilentExitError{Code: 1}
	}

	var out bytes.Buffer
	code := 0
	runMain([]string{"whisper-provision"}, &out, &out, func(c int) { code = c })
	assert.Equal(t, 1, code)
	assert.Empty(t, out.String())
}

func TestInstallAbortsOnFatalPrecondition(t *testing.T) {
	stubUI(t, &fakeUI{})
	orig := newInstallDeps
	t.Cleanup(func() { newInstallDeps = orig })
	runner := &testutil.FakeRunner{}
	newInstallDeps = func(*config.Session, zerolog.Logger) (orchestrator.Deps, error) {
		return orchestrator.Deps{
			Detector: fakeDetector{err: fmt.Errorf("%w: 3.8.10", capability.ErrUnsupportedInterpreter)},
			Runner:   runner,
		}, nil
	}

	var stdout, stderr bytes.Buffer
	code := 0
	runMain(hostArgs(t), &stdout, &stderr, func(c int) { code = c })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "3.8.10")
	assert.Contains(t, stderr.String(), "provision-")
	assert.Empty(t, runner.Calls())
}

func TestInstallRejectsInvalidPort(t *testing.T) {
	stubUI(t, &fakeUI{})
	var stdout, stderr bytes.Buffer
	code := 0
	runMain(append(hostArgs(t), "--port", "70000"), &stdout, &stderr, func(c int) { code = c })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "port")
}

func TestDoctorExitCode(t *testing.T) {
	orig := newDoctorDeps
	t.Cleanup(func() { newDoctorDeps = orig })

	tests := []struct {
		name     string
		detector fakeDetector
		wantCode int
	}{
		{name: "healthy", detector: fakeDetector{profile: capability.Profile{OS: capability.OSLinux, Interpreter: "3.11.4"}}},
		{name: "broken driver", detector: fakeDetector{err: fmt.Errorf("%w: nvidia-smi exit 9", capability.ErrBrokenDriver)}, wantCode: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newDoctorDeps = func(*config.Session) doctorDeps {
				return doctorDeps{Detector: tt.detector, Tools: okTools{}, Resources: plentyResources{}}
			}
			var out bytes.Buffer
			code := 0
			runMain(hostArgs(t, "doctor"), &out, &out, func(c int) { code = c })
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, out.String(), "[OK]")
		})
	}
}

type okTools struct{}

func (okTools) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }
func (okTools) Writable(string) error { return nil }

type plentyResources struct{}

func (plentyResources) DiskFree(context.Context, string) (uint64, error) { return doctor.MinFreeDisk * 2, nil }
func (plentyResources) MemoryTotal(context.Context) (uint64, error) { return doctor.MinMemory * 2, nil }

func TestUninstallRequiresYesWithoutTerminal(t *testing.T) {
	stubUI(t, &fakeUI{interactive: false})
	var out bytes.Buffer
	code := 0
	runMain(hostArgs(t, "uninstall"), &out, &out, func(c int) { code = c })
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "--yes")
}

func TestUninstallDeclinedDoesNothing(t *testing.T) {
	ui := &fakeUI{interactive: true, confirm: false}
	stubUI(t, ui)
	orig := newUninstallDeps
	t.Cleanup(func() { newUninstallDeps = orig })
	newUninstallDeps = func(*config.Session, zerolog.Logger) orchestrator.UninstallDeps {
		t.Fatal("uninstall must not run after a declined confirmation")
		return orchestrator.UninstallDeps{}
	}

	var out bytes.Buffer
	called := false
	runMain(hostArgs(t, "uninstall"), &out, &out, func(int) { called = true })
	assert.False(t, called)
	assert.Equal(t, 1, ui.confirmed)
}

func TestUninstallWithYesRemovesWrapper(t *testing.T) {
	args := hostArgs(t, "uninstall", "--yes")
	var binDir string
	for i, a := range args {
		if a == "--bin-dir" {
			binDir = args[i+1]
		}
	}
	wrapper := filepath.Join(binDir, config.DefaultCommandName)
	require.NoError(t, os.WriteFile(wrapper, []byte("#!/bin/sh\n"), 0o755))

	orig := newUninstallDeps
	t.Cleanup(func() { newUninstallDeps = orig })
	runner := &testutil.FakeRunner{}
	newUninstallDeps = func(*config.Session, zerolog.Logger) orchestrator.UninstallDeps {
		return orchestrator.UninstallDeps{Runner: runner}
	}

	var out bytes.Buffer
	called := false
	runMain(args, &out, &out, func(int) { called = true })
	assert.False(t, called, out.String())
	assert.NoFileExists(t, wrapper)
	assert.Contains(t, out.String(), wrapper)
	assert.Empty(t, runner.Calls())
}
