package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/testutil"
)

// fakeSupervisor keeps a process table in memory.
type fakeSupervisor struct {
	mu      sync.Mutex
	table   map[string]ProcessInfo
	starts  int
	saved   int
	nextPID int
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{table: map[string]ProcessInfo{}, nextPID: 100}
}

func (f *fakeSupervisor) Lookup(_ context.Context, name string) (*ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.table[name]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeSupervisor) Start(_ context.Context, spec ProcessSpec, _ io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.nextPID++
	f.table[spec.Name] = ProcessInfo{Name: spec.Name, PID: f.nextPID, Status: "online"}
	return nil
}

func (f *fakeSupervisor) Save(context.Context, io.Writer) error {
	f.saved++
	return nil
}

func (f *fakeSupervisor) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.table, name)
	return nil
}

func TestEnsureRunningTwiceYieldsOneProcess(t *testing.T) {
	sup := newFakeSupervisor()
	l := NewLauncher(sup, zerolog.Nop())
	spec := ProcessSpec{Name: "whisperx-api", Port: 8088}

	first, err := l.EnsureRunning(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.False(t, first.AlreadyRunning)

	second, err := l.EnsureRunning(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, first.PID, second.PID)

	assert.Equal(t, 1, sup.starts)
	assert.Len(t, sup.table, 1)
}

func TestLauncherRemove(t *testing.T) {
	sup := newFakeSupervisor()
	l := NewLauncher(sup, zerolog.Nop())
	removed, err := l.Remove(context.Background(), "whisperx-api")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = l.EnsureRunning(context.Background(), ProcessSpec{Name: "whisperx-api"}, nil)
	require.NoError(t, err)
	removed, err = l.Remove(context.Background(), "whisperx-api")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, sup.table)
}

const jlist = `[{"name":"other","pid":5,"pm2_env":{"status":"online"}},{"name":"whisperx-api","pid":42,"pm2_env":{"status":"stopped"}}]`

func TestPM2Lookup(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(testutil.Call) testutil.Response {
		return testutil.Response{Output: jlist}
	}}
	pm2 := NewPM2(runner, t.TempDir())

	info, err := pm2.Lookup(context.Background(), "whisperx-api")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, ProcessInfo{Name: "whisperx-api", PID: 42, Status: "stopped"}, *info)

	missing, err := pm2.Lookup(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, []string{"pm2 jlist", "pm2 jlist"}, runner.Commands())
}

func TestPM2LookupIgnoresStderrNotices(t *testing.T) {
	dir := t.TempDir()
	stub := testutil.WriteStub(t, dir, "pm2", fmt.Sprintf(
		"echo '>>>> In-memory PM2 is out-of-date, do:' >&2\nprintf '%%s\\n' '%s'", jlist))
	pm2 := NewPM2(process.Exec{}, dir)
	pm2.Binary = stub

	info, err := pm2.Lookup(context.Background(), "whisperx-api")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 42, info.PID)
}

func TestPM2LookupRejectsGarbage(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(testutil.Call) testutil.Response {
		return testutil.Response{Output: "not json"}
	}}
	_, err := NewPM2(runner, t.TempDir()).Lookup(context.Background(), "x")
	assert.Error(t, err)
}

func TestPM2StartWritesEcosystem(t *testing.T) {
	runner := &testutil.FakeRunner{}
	dir := t.TempDir()
	pm2 := NewPM2(runner, dir)
	spec := ProcessSpec{
		Name:      "whisperx-api",
		Dir:       "/srv/api",
		Script:    "npm",
		Args:      "start",
		Port:      8088,
		UploadDir: "/srv/uploads",
		Env:       map[string]string{"HF_TOKEN": "hf_x"},
	}
	require.NoError(t, pm2.Start(context.Background(), spec, nil))
	require.NoError(t, pm2.Save(context.Background(), nil))
	require.NoError(t, pm2.Delete(context.Background(), "whisperx-api"))

	path := pm2.EcosystemPath("whisperx-api")
	assert.Equal(t, []string{"pm2 start " + path, "pm2 save", "pm2 delete whisperx-api"}, runner.Commands())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc ecosystem
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Apps, 1)
	app := doc.Apps[0]
	assert.Equal(t, "whisperx-api", app.Name)
	assert.Equal(t, "/srv/api", app.Cwd)
	assert.Equal(t, "8088", app.Env["PORT"])
	assert.Equal(t, "/srv/uploads", app.Env["UPLOAD_DIR"])
	assert.Equal(t, "hf_x", app.Env["HF_TOKEN"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnvFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, WriteEnvFile(path, EnvFile{Port: 8088, UploadDir: "/srv/up loads", WhisperCLI: "/usr/local/bin/whisperx", HFToken: "hf_abc"}))

	values, err := ReadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"PORT":         "8088",
		"UPLOAD_DIR":   "/srv/up loads",
		"WHISPERX_CLI": "/usr/local/bin/whisperx",
		"HF_TOKEN":     "hf_abc",
	}, values)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnvFileOmitsEmptyToken(t *testing.T) {
	assert.NotContains(t, EnvFile{Port: 1}.Values(), "HF_TOKEN")
}

func fastClient() HTTPOptions {
	return HTTPOptions{RetryMax: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: 5 * time.Millisecond, Timeout: time.Second}
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestProbeRetriesUntilHealthy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(fastClient(), zerolog.Nop())
	require.NoError(t, Probe(context.Background(), client, serverPort(t, srv)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestProbeFailsOnPersistentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTPClient(fastClient(), zerolog.Nop())
	assert.Error(t, Probe(context.Background(), client, serverPort(t, srv)))
}

func newTestAgent(t *testing.T, srvURL string) (*TunnelAgent, *[]process.Command) {
	t.Helper()
	started := &[]process.Command{}
	alive := map[int]bool{}
	a := NewTunnelAgent(&testutil.FakeRunner{}, NewHTTPClient(fastClient(), zerolog.Nop()), zerolog.Nop(), TunnelOptions{
		GOOS: "linux", GOARCH: "amd64", StateDir: t.TempDir(), BinDir: t.TempDir(),
	})
	a.SettleDelay = 0
	a.DownloadURL = srvURL + "/download"
	a.LookPath = func(string) (string, error) { return "", os.ErrNotExist }
	a.StartDetached = func(cmd process.Command, _ string) (int, error) {
		*started = append(*started, cmd)
		pid := 4000 + len(*started)
		alive[pid] = true
		return pid, nil
	}
	a.Alive = func(pid int) bool { return alive[pid] }
	return a, started
}

func TestTunnelQuickHostnameAndSingleInstance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quicktunnel":
			_, _ = w.Write([]byte(`{"hostname":"calm-river.trycloudflare.com"}`))
		case "/download":
			_, _ = w.Write([]byte("#!/bin/sh\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a, started := newTestAgent(t, srv.URL)
	binary, installed, err := a.EnsureInstalled(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, installed)
	info, err := os.Stat(binary)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	spec := TunnelSpec{Token: "tok", Port: 8088, MetricsPort: serverPort(t, srv)}
	ep, err := a.Start(context.Background(), binary, spec)
	require.NoError(t, err)
	assert.Equal(t, "https://calm-river.trycloudflare.com", ep.URL)
	assert.False(t, ep.AlreadyRunning)

	require.Len(t, *started, 1)
	metrics := fmt.Sprintf("127.0.0.1:%d", spec.MetricsPort)
	assert.Equal(t, []string{"tunnel", "--no-autoupdate", "--metrics", metrics, "--url", "http://localhost:8088"}, (*started)[0].Args)
	assert.NoFileExists(t, a.tokenPath(), "a quick tunnel takes no credential")

	again, err := a.Start(context.Background(), binary, spec)
	require.NoError(t, err)
	assert.True(t, again.AlreadyRunning)
	assert.Equal(t, ep.PID, again.PID)
	assert.Len(t, *started, 1)
}

func TestTunnelFixedHostname(t *testing.T) {
	a, started := newTestAgent(t, "http://127.0.0.1:1")
	ep, err := a.Start(context.Background(), "/usr/bin/cloudflared", TunnelSpec{Token: "tok", Port: 8088, Hostname: "whisper.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://whisper.example.com", ep.URL)

	require.Len(t, *started, 1)
	metrics := fmt.Sprintf("127.0.0.1:%d", DefaultMetricsPort)
	assert.Equal(t, []string{
		"tunnel", "--no-autoupdate", "--metrics", metrics,
		"run", "--token-file", a.tokenPath(), "--url", "http://localhost:8088",
	}, (*started)[0].Args)
	token, err := os.ReadFile(a.tokenPath())
	require.NoError(t, err)
	assert.Equal(t, "tok", string(token))
	tokenInfo, err := os.Stat(a.tokenPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), tokenInfo.Mode().Perm())
}

func TestTunnelMissingQuickHostname(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hostname":""}`))
	}))
	defer srv.Close()

	a, _ := newTestAgent(t, srv.URL)
	_, err := a.Start(context.Background(), "/usr/bin/cloudflared", TunnelSpec{Token: "tok", Port: 8088, MetricsPort: serverPort(t, srv)})
	assert.Error(t, err)
}

func TestTunnelStopRemovesState(t *testing.T) {
	a, _ := newTestAgent(t, "http://127.0.0.1:1")
	_, err := a.Start(context.Background(), "/usr/bin/cloudflared", TunnelSpec{Token: "tok", Port: 8088, Hostname: "h.example.com"})
	require.NoError(t, err)
	a.Alive = func(int) bool { return false }

	running, err := a.Stop()
	require.NoError(t, err)
	assert.False(t, running)
	_, err = os.Stat(a.tokenPath())
	assert.True(t, os.IsNotExist(err))
}

func TestTunnelInstallUsesExistingBinary(t *testing.T) {
	a, _ := newTestAgent(t, "http://127.0.0.1:1")
	a.LookPath = func(string) (string, error) { return "/opt/bin/cloudflared", nil }
	path, installed, err := a.EnsureInstalled(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, installed)
	assert.Equal(t, "/opt/bin/cloudflared", path)
}

func TestTunnelInstallDarwinUsesBrew(t *testing.T) {
	a, _ := newTestAgent(t, "http://127.0.0.1:1")
	runner := &testutil.FakeRunner{}
	a.runner = runner
	a.goos = "darwin"
	calls := 0
	a.LookPath = func(string) (string, error) {
		calls++
		if calls == 1 {
			return "", os.ErrNotExist
		}
		return "/opt/homebrew/bin/cloudflared", nil
	}
	path, installed, err := a.EnsureInstalled(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Equal(t, "/opt/homebrew/bin/cloudflared", path)
	assert.Equal(t, []string{"brew install cloudflared"}, runner.Commands())
}
