package capability

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

var (
	// ErrUnsupportedOS is returned on hosts outside the linux and darwin families.
	ErrUnsupportedOS = errors.New("unsupported operating system")
	// ErrUnsupportedInterpreter is returned when the interpreter is missing or out of bounds.
	ErrUnsupportedInterpreter = errors.New("unsupported interpreter")
	// ErrBrokenDriver is returned when the accelerator driver program exists but fails.
	ErrBrokenDriver = errors.New("broken accelerator driver")
)

// InterpreterConstraint is the supported interpreter range: 3.9 through 3.12 inclusive.
const InterpreterConstraint = ">= 3.9.0, < 3.13.0"

const (
	driverProgram  = "nvidia-smi"
	toolkitProgram = "nvcc"
)

var (
	interpreterVersionRE = regexp.MustCompile(`Python\s+((\d+\.\d+(?:\.\d+)?)(?:[a-z]+\d*)?)`)
	driverCUDARE         = regexp.MustCompile(`CUDA Version:\s*(\d+)\.(\d+)`)
	driverVersionRE      = regexp.MustCompile(`Driver Version:\s*([0-9.]+)`)
	toolkitReleaseRE     = regexp.MustCompile(`release\s+(\d+)\.(\d+)`)
)

// Detector produces a Profile from read-only host probes.
type Detector struct {
	sys         System
	interpreter string
	bounds      *semver.Constraints
}

// NewDetector returns a detector that probes interpreter (e.g. "python3").
func NewDetector(sys System, interpreter string) *Detector {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &Detector{
		sys:         sys,
		interpreter: interpreter,
		bounds:      interpreterBounds,
	}
}

var interpreterBounds = func() *semver.Constraints {
	c, err := semver.NewConstraint(InterpreterConstraint)
	if err != nil {
		panic(err)
	}
	return c
}()

// Detect probes the host. It has no side effects beyond running version queries.
func (d *Detector) Detect(ctx context.Context) (Profile, error) {
	var p Profile
	switch OSFamily(d.sys.GOOS()) {
	case OSLinux:
		p.OS = OSLinux
	case OSDarwin:
		p.OS = OSDarwin
	default:
		return Profile{}, fmt.Errorf(messages.CapabilityUnsupportedOSFmt, ErrUnsupportedOS, d.sys.GOOS())
	}
	p.Arch = d.sys.GOARCH()
	if info, err := d.sys.HostInfo(ctx); err == nil && info != nil {
		p.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	}

	if err := d.detectInterpreter(ctx, &p); err != nil {
		return Profile{}, err
	}

	if p.OS == OSLinux {
		if err := d.detectAccelerator(ctx, &p); err != nil {
			return Profile{}, err
		}
	}
	p.path = SelectPath(p.Accelerator)
	return p, nil
}

func (d *Detector) detectInterpreter(ctx context.Context, p *Profile) error {
	path, err := d.sys.LookPath(d.interpreter)
	if err != nil {
		return fmt.Errorf(messages.CapabilityInterpreterMissingFmt, ErrUnsupportedInterpreter, d.interpreter)
	}
	out, err := d.sys.Output(ctx, path, "--version")
	if err != nil {
		return fmt.Errorf(messages.CapabilityInterpreterProbeFmt, ErrUnsupportedInterpreter, d.interpreter, err)
	}
	raw, release, err := ParseInterpreterVersion(string(out))
	if err != nil {
		return fmt.Errorf(messages.CapabilityInterpreterProbeFmt, ErrUnsupportedInterpreter, d.interpreter, err)
	}
	// Bounds apply to the release series, so 3.12.0rc1 counts as 3.12.0.
	version, err := semver.NewVersion(release)
	if err != nil {
		return fmt.Errorf(messages.CapabilityInterpreterProbeFmt, ErrUnsupportedInterpreter, d.interpreter, err)
	}
	if !d.bounds.Check(version) {
		return fmt.Errorf(messages.CapabilityInterpreterOutOfBoundsFmt, ErrUnsupportedInterpreter, raw, InterpreterConstraint)
	}
	p.Interpreter = raw
	p.InterpreterPath = path
	return nil
}

func (d *Detector) detectAccelerator(ctx context.Context, p *Profile) error {
	driver, err := d.sys.LookPath(driverProgram)
	if err != nil {
		// No driver at all is the normal CPU-only case.
		return nil
	}
	out, err := d.sys.Output(ctx, driver)
	if err != nil {
		return fmt.Errorf(messages.CapabilityBrokenDriverFmt, ErrBrokenDriver, driverProgram, err)
	}
	p.DriverPresent = true
	if m := driverVersionRE.FindStringSubmatch(string(out)); m != nil {
		p.DriverVersion = m[1]
	}
	if v, ok := parseMajorMinor(driverCUDARE, string(out)); ok {
		p.Accelerator = v
	}

	// An installed toolkit reports the version packages will actually build against.
	if nvcc, err := d.sys.LookPath(toolkitProgram); err == nil {
		if out, err := d.sys.Output(ctx, nvcc, "--version"); err == nil {
			if v, ok := parseMajorMinor(toolkitReleaseRE, string(out)); ok {
				p.Accelerator = v
			}
		}
	}
	return nil
}

// ParseInterpreterVersion extracts the version from `python --version` output. full
// keeps a pre-release suffix such as "rc1"; release is the numeric part alone.
func ParseInterpreterVersion(output string) (full string, release string, err error) {
	m := interpreterVersionRE.FindStringSubmatch(output)
	if m == nil {
		return "", "", fmt.Errorf(messages.CapabilityInterpreterUnparsableFmt, strings.TrimSpace(output))
	}
	return m[1], m[2], nil
}

func parseMajorMinor(re *regexp.Regexp, output string) (Version, bool) {
	m := re.FindStringSubmatch(output)
	if m == nil {
		return Version{}, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, false
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, false
	}
	return Version{Major: major, Minor: minor}, true
}
