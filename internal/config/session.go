// Package config resolves the immutable installation session from flags,
// environment, the optional config file and interactive prompts.
package config

import (
	"path/filepath"
	"time"

	"github.com/conn-castle/whisper-provision/internal/envmgr"
)

const (
	// ConfigFileName is the optional config file in the source checkout.
	ConfigFileName = "whisper-provision.toml"
	// EntryPointName is the transcription CLI script in the source checkout.
	EntryPointName = "whisperx_cli.py"

	DefaultPort        = 8088
	DefaultServiceName = "whisperx-api"
	DefaultBinDir      = "/usr/local/bin"
	DefaultInterpreter = "python3"
	DefaultStateDir    = "~/.cache/whisper-provision"
	DefaultCondaEnv    = "whisperx"
	DefaultCommandName = "whisperx"
)

// Values is the plain form of a session, used to construct one.
type Values struct {
	SessionID string

	Verbose      bool
	ServiceOnly  bool
	Force        bool
	SkipAdvanced bool
	NoPrompt     bool

	EnvKind     envmgr.Kind
	EnvLocation string
	Interpreter string

	HFToken        string
	TunnelToken    string
	TunnelHostname string

	Port        int
	SourceDir   string
	BinDir      string
	CommandName string
	ServiceName string
	ServiceDir  string
	UploadDir   string
	SampleAudio string
	StateDir    string

	StepTimeout time.Duration
}

// Session is the resolved, immutable configuration of one provisioning run.
// Every component reads it; none mutates it.
type Session struct {
	v Values
}

// NewSession validates values and returns the session.
func NewSession(values Values) (*Session, error) {
	if err := Validate(values); err != nil {
		return nil, err
	}
	return &Session{v: values}, nil
}

func (s *Session) ID() string { return s.v.SessionID }
func (s *Session) Verbose() bool { return s.v.Verbose }
func (s *Session) ServiceOnly() bool { return s.v.ServiceOnly }
func (s *Session) Force() bool { return s.v.Force }
func (s *Session) SkipAdvanced() bool { return s.v.SkipAdvanced }
func (s *Session) NoPrompt() bool { return s.v.NoPrompt }
func (s *Session) EnvKind() envmgr.Kind { return s.v.EnvKind }
func (s *Session) EnvLocation() string { return s.v.EnvLocation }
func (s *Session) Interpreter() string { return s.v.Interpreter }
func (s *Session) HFToken() string { return s.v.HFToken }
func (s *Session) TunnelToken() string { return s.v.TunnelToken }
func (s *Session) TunnelHostname() string { return s.v.TunnelHostname }
func (s *Session) Port() int { return s.v.Port }
func (s *Session) SourceDir() string { return s.v.SourceDir }
func (s *Session) BinDir() string { return s.v.BinDir }
func (s *Session) CommandName() string { return s.v.CommandName }
func (s *Session) ServiceName() string { return s.v.ServiceName }
func (s *Session) ServiceDir() string { return s.v.ServiceDir }
func (s *Session) UploadDir() string { return s.v.UploadDir }
func (s *Session) SampleAudio() string { return s.v.SampleAudio }
func (s *Session) StateDir() string { return s.v.StateDir }
func (s *Session) StepTimeout() time.Duration { return s.v.StepTimeout }

// Values returns a copy of the session's values.
func (s *Session) Values() Values { return s.v }

// HasHFToken reports whether diarization credentials were supplied.
func (s *Session) HasHFToken() bool { return s.v.HFToken != "" }

// HasTunnel reports whether a tunnel credential was supplied.
func (s *Session) HasTunnel() bool { return s.v.TunnelToken != "" }

// EntryPoint is the transcription CLI script the wrapper forwards to.
func (s *Session) EntryPoint() string { return filepath.Join(s.v.SourceDir, EntryPointName) }

// UpdateCommandName is the installed update-service script name.
func (s *Session) UpdateCommandName() string { return s.v.CommandName + "-update" }

// LogDir holds session logs.
func (s *Session) LogDir() string { return filepath.Join(s.v.StateDir, "logs") }

// BuildDir holds locally generated executables before they are installed.
func (s *Session) BuildDir() string { return filepath.Join(s.v.StateDir, "bin") }

// StatePath is the install state file.
func (s *Session) StatePath() string { return filepath.Join(s.v.StateDir, "state.toml") }

// HFTokenPath is where the model-hub token is stored for the CLI.
func (s *Session) HFTokenPath() string { return filepath.Join(s.v.StateDir, "hf_token") }
