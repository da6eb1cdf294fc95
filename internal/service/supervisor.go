// Package service keeps the companion API service running under a process supervisor
// and, optionally, reachable through a public tunnel.
package service

import (
	"context"
	"io"
)

// ProcessSpec describes the supervised service process.
type ProcessSpec struct {
	// Name is the logical name registered with the supervisor.
	Name string
	// Dir is the service checkout.
	Dir string
	// Script and Args start the service from Dir.
	Script string
	Args   string
	Port   int
	// UploadDir is the staging directory passed to the service.
	UploadDir string
	// Env holds extra process environment.
	Env map[string]string
}

// ProcessInfo is the supervisor's view of a registered process.
type ProcessInfo struct {
	Name   string
	PID    int
	Status string
}

// Supervisor manages long-running named processes.
type Supervisor interface {
	// Lookup returns the registered process with name, or nil when there is none.
	Lookup(ctx context.Context, name string) (*ProcessInfo, error)
	Start(ctx context.Context, spec ProcessSpec, out io.Writer) error
	// Save persists the process table so processes survive a reboot.
	Save(ctx context.Context, out io.Writer) error
	Delete(ctx context.Context, name string) error
}
