package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
)

const (
	tunnelBinary = "cloudflared"
	// DefaultSettleDelay is how long Start waits for the agent before reading its status.
	DefaultSettleDelay = 5 * time.Second
	// DefaultMetricsPort is the agent's local status listener.
	DefaultMetricsPort = 20241
)

// DownloadURLFmt is the release binary URL for an architecture.
const DownloadURLFmt = "https://github.com/cloudflare/cloudflared/releases/latest/download/cloudflared-linux-%s"

// TunnelSpec configures a tunnel for the service port.
type TunnelSpec struct {
	Token string
	Port  int
	// MetricsPort serves the agent's local status endpoint.
	MetricsPort int
	// Hostname is a fixed pre-registered public hostname. Empty means discover the
	// dynamically assigned one from the status endpoint.
	Hostname string
}

// TunnelEndpoint is a running tunnel.
type TunnelEndpoint struct {
	URL            string
	PID            int
	AlreadyRunning bool
}

// TunnelAgent installs and starts the tunnel agent. The agent runs detached and is
// not monitored after Start returns.
type TunnelAgent struct {
	runner   process.Runner
	http     *retryablehttp.Client
	log      zerolog.Logger
	goos     string
	goarch   string
	stateDir string
	binDir   string

	// SettleDelay is waited after starting the agent.
	SettleDelay time.Duration
	// DownloadURL overrides the release binary URL.
	DownloadURL string
	// LookPath and StartDetached default to the process package.
	LookPath      func(string) (string, error)
	StartDetached func(process.Command, string) (int, error)
	Alive         func(int) bool
	Sleep         func(context.Context, time.Duration) error
}

// TunnelOptions configures NewTunnelAgent.
type TunnelOptions struct {
	GOOS     string
	GOARCH   string
	StateDir string
	BinDir   string
}

// NewTunnelAgent returns an agent keeping its token, pid and log under opts.StateDir.
func NewTunnelAgent(runner process.Runner, client *retryablehttp.Client, log zerolog.Logger, opts TunnelOptions) *TunnelAgent {
	return &TunnelAgent{
		runner:        runner,
		http:          client,
		log:           log,
		goos:          opts.GOOS,
		goarch:        opts.GOARCH,
		stateDir:      opts.StateDir,
		binDir:        opts.BinDir,
		SettleDelay:   DefaultSettleDelay,
		DownloadURL:   fmt.Sprintf(DownloadURLFmt, opts.GOARCH),
		LookPath:      process.LookPath,
		StartDetached: process.StartDetached,
		Alive:         process.Alive,
		Sleep:         sleepContext,
	}
}

func (a *TunnelAgent) tunnelDir() string { return filepath.Join(a.stateDir, "tunnel") }
func (a *TunnelAgent) pidPath() string { return filepath.Join(a.tunnelDir(), "cloudflared.pid") }
func (a *TunnelAgent) tokenPath() string { return filepath.Join(a.tunnelDir(), "token") }
func (a *TunnelAgent) logPath() string { return filepath.Join(a.tunnelDir(), "cloudflared.log") }
func (a *TunnelAgent) installPath() string { return filepath.Join(a.binDir, tunnelBinary) }

// EnsureInstalled returns the agent binary, installing it when absent. installed
// reports whether this call installed it.
func (a *TunnelAgent) EnsureInstalled(ctx context.Context, out io.Writer) (path string, installed bool, err error) {
	if path, err := a.LookPath(tunnelBinary); err == nil {
		return path, false, nil
	}
	switch a.goos {
	case "darwin":
		if _, err := a.runner.Run(ctx, process.Command{Binary: "brew", Args: []string{"install", tunnelBinary}, Output: out}); err != nil {
			return "", false, fmt.Errorf(messages.TunnelInstallFailedFmt, err)
		}
		path, err := a.LookPath(tunnelBinary)
		if err != nil {
			return "", false, fmt.Errorf(messages.TunnelInstallFailedFmt, err)
		}
		return path, true, nil
	case "linux":
		if err := a.download(ctx); err != nil {
			return "", false, fmt.Errorf(messages.TunnelInstallFailedFmt, err)
		}
		return a.installPath(), true, nil
	default:
		return "", false, fmt.Errorf(messages.TunnelUnsupportedOSFmt, a.goos)
	}
}

func (a *TunnelAgent) download(ctx context.Context) error {
	a.log.Info().Str("url", a.DownloadURL).Msg("downloading tunnel agent")
	data, err := Get(ctx, a.http, a.DownloadURL)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(a.installPath(), data, 0o755)
}

// Uninstall removes an agent binary this tool downloaded.
func (a *TunnelAgent) Uninstall(ctx context.Context) error {
	if a.goos == "darwin" {
		_, err := a.runner.Run(ctx, process.Command{Binary: "brew", Args: []string{"uninstall", tunnelBinary}})
		return err
	}
	if err := os.Remove(a.installPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Running returns the pid of an agent started earlier, or 0.
func (a *TunnelAgent) Running() int {
	data, err := os.ReadFile(a.pidPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !a.Alive(pid) {
		return 0
	}
	return pid
}

// Start registers the credential and starts the agent for spec, unless one started
// earlier is still alive. It then waits the settle delay and resolves the public URL.
func (a *TunnelAgent) Start(ctx context.Context, binary string, spec TunnelSpec) (*TunnelEndpoint, error) {
	if spec.MetricsPort == 0 {
		spec.MetricsPort = DefaultMetricsPort
	}
	endpoint := &TunnelEndpoint{}
	if pid := a.Running(); pid > 0 {
		a.log.Info().Int("pid", pid).Msg("tunnel agent already running")
		endpoint.PID = pid
		endpoint.AlreadyRunning = true
	} else {
		if err := os.MkdirAll(a.tunnelDir(), 0o700); err != nil {
			return nil, fmt.Errorf(messages.TunnelStartFailedFmt, err)
		}
		if spec.Hostname != "" {
			if err := fsutil.WriteFileAtomic(a.tokenPath(), []byte(spec.Token), 0o600); err != nil {
				return nil, fmt.Errorf(messages.TunnelTokenWriteFailedFmt, err)
			}
		}
		pid, err := a.StartDetached(process.Command{Binary: binary, Args: TunnelArgs(a.tokenPath(), spec)}, a.logPath())
		if err != nil {
			return nil, fmt.Errorf(messages.TunnelStartFailedFmt, err)
		}
		if err := fsutil.WriteFileAtomic(a.pidPath(), []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
			return nil, fmt.Errorf(messages.TunnelStartFailedFmt, err)
		}
		a.log.Info().Int("pid", pid).Int("port", spec.Port).Msg("tunnel agent started")
		endpoint.PID = pid
		if err := a.Sleep(ctx, a.SettleDelay); err != nil {
			return endpoint, err
		}
	}

	if spec.Hostname != "" {
		endpoint.URL = "https://" + spec.Hostname
		return endpoint, nil
	}
	host, err := a.QuickTunnelHostname(ctx, spec.MetricsPort)
	if err != nil {
		return endpoint, err
	}
	endpoint.URL = "https://" + host
	return endpoint, nil
}

// TunnelArgs returns the agent command line for spec. A fixed hostname runs the
// pre-registered tunnel behind the token. Without one the agent starts a quick
// tunnel, which takes no credential and reports its assigned hostname on the
// metrics listener.
func TunnelArgs(tokenFile string, spec TunnelSpec) []string {
	args := []string{
		"tunnel", "--no-autoupdate",
		"--metrics", fmt.Sprintf("127.0.0.1:%d", spec.MetricsPort),
	}
	local := fmt.Sprintf("http://localhost:%d", spec.Port)
	if spec.Hostname == "" {
		return append(args, "--url", local)
	}
	return append(args, "run", "--token-file", tokenFile, "--url", local)
}

type quickTunnelStatus struct {
	Hostname string `json:"hostname"`
}

// QuickTunnelHostname reads the dynamically assigned hostname from the agent's local
// status endpoint.
func (a *TunnelAgent) QuickTunnelHostname(ctx context.Context, metricsPort int) (string, error) {
	body, err := Get(ctx, a.http, fmt.Sprintf("http://127.0.0.1:%d/quicktunnel", metricsPort))
	if err != nil {
		return "", fmt.Errorf(messages.TunnelStatusFailedFmt, err)
	}
	var status quickTunnelStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf(messages.TunnelStatusFailedFmt, err)
	}
	if status.Hostname == "" {
		return "", fmt.Errorf(messages.TunnelStatusFailedFmt, errors.New(messages.TunnelNoHostname))
	}
	return status.Hostname, nil
}

// Stop terminates a running agent and removes its pid and token files.
func (a *TunnelAgent) Stop() (bool, error) {
	pid := a.Running()
	var err error
	if pid > 0 {
		if p, findErr := os.FindProcess(pid); findErr == nil {
			err = p.Signal(os.Interrupt)
		}
	}
	for _, path := range []string{a.pidPath(), a.tokenPath()} {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	return pid > 0, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
