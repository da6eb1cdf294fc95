// Package logging owns the structured session log written for every provisioning run.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

// Field names shared by every component that logs.
const (
	FieldSession = "session"
	FieldStage   = "stage"
	FieldStep    = "step"
	FieldOutcome = "outcome"
	FieldOutput  = "output"
)

// Options configures a session log.
type Options struct {
	// Dir is the directory receiving provision-<session>.log. Empty disables the file sink.
	Dir string
	// SessionID tags every line.
	SessionID string
	// Verbose mirrors the log to Console in human-readable form and lowers the level to debug.
	Verbose bool
	// Console receives the mirrored log when Verbose is set. Defaults to os.Stderr.
	Console io.Writer
}

// Session is an open session log.
type Session struct {
	zerolog.Logger
	path string
	file *os.File
}

// Open creates the log directory and file and returns a logger writing to it.
func Open(opts Options) (*Session, error) {
	var writers []io.Writer
	s := &Session{}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf(messages.LogCreateDirFailedFmt, opts.Dir, err)
		}
		s.path = filepath.Join(opts.Dir, "provision-"+opts.SessionID+".log")
		file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf(messages.LogOpenFailedFmt, s.path, err)
		}
		s.file = file
		writers = append(writers, file)
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen})
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	s.Logger = zerolog.New(out).Level(level).With().Timestamp().Str(FieldSession, opts.SessionID).Logger()
	return s, nil
}

// Nop returns a session that discards everything.
func Nop() *Session {
	return &Session{Logger: zerolog.Nop()}
}

// Path returns the log file path, or "" when no file sink is configured.
func (s *Session) Path() string {
	return s.path
}

// Close flushes and closes the log file.
func (s *Session) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
