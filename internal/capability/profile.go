// Package capability inspects the host once and produces the immutable profile every
// later provisioning step branches on.
package capability

import (
	"fmt"
)

// OSFamily identifies the host operating system family.
type OSFamily string

const (
	// OSLinux hosts may carry an NVIDIA accelerator.
	OSLinux OSFamily = "linux"
	// OSDarwin hosts always take the CPU path.
	OSDarwin OSFamily = "darwin"
)

// InstallPath is the dependency installation branch chosen for the host.
type InstallPath string

const (
	PathCUDA12 InstallPath = "cuda12"
	PathCUDA11 InstallPath = "cuda11"
	PathCPU    InstallPath = "cpu"
)

// AllPaths lists every install path.
var AllPaths = []InstallPath{PathCUDA12, PathCUDA11, PathCPU}

// Version is a major.minor pair. The zero value means absent.
type Version struct {
	Major int
	Minor int
}

// IsZero reports whether the version is absent.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

func (v Version) String() string {
	if v.IsZero() {
		return "absent"
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Profile is the detected description of the host. It is computed once by Detect and
// never mutated.
type Profile struct {
	OS   OSFamily
	Arch string
	// Platform is a human-readable distribution name and version, when known.
	Platform string

	// Interpreter is the full reported interpreter version, e.g. "3.11.4".
	Interpreter string
	// InterpreterPath is the resolved interpreter executable.
	InterpreterPath string

	// DriverPresent reports a working accelerator driver.
	DriverPresent bool
	// DriverVersion is the reported driver version, when present.
	DriverVersion string
	// Accelerator is the accelerator toolkit version, zero when absent.
	Accelerator Version

	path InstallPath
}

// InstallPath returns the installation branch selected for the profile.
func (p Profile) InstallPath() InstallPath {
	if p.path == "" {
		return SelectPath(p.Accelerator)
	}
	return p.path
}

// HasAccelerator reports whether the CUDA install paths apply.
func (p Profile) HasAccelerator() bool {
	return p.InstallPath() != PathCPU
}

// SelectPath is the single place the install path partition is decided:
// toolkit major >= 12 selects cuda12, exactly 11 selects cuda11, anything else
// (absent or older) selects cpu.
func SelectPath(accel Version) InstallPath {
	switch {
	case accel.Major >= 12:
		return PathCUDA12
	case accel.Major == 11:
		return PathCUDA11
	default:
		return PathCPU
	}
}
