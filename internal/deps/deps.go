// Package deps installs an ordered list of package specifications, trying each
// spec's fallback sources in order when the primary source fails.
package deps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

// ErrRequiredPackage is returned when a required spec fails on every source.
var ErrRequiredPackage = errors.New("required package could not be installed")

// Source is one way to install a package: requirement strings installed together
// from an optional package index.
type Source struct {
	Requirements []string
	IndexURL     string
}

// Args returns the pip install arguments for the source.
func (s Source) Args() []string {
	args := append([]string{"install"}, s.Requirements...)
	if s.IndexURL != "" {
		args = append(args, "--index-url", s.IndexURL)
	}
	return args
}

func (s Source) String() string {
	label := strings.Join(s.Requirements, " ")
	if s.IndexURL != "" {
		label += " (" + s.IndexURL + ")"
	}
	return label
}

// PackageSpec is one entry of the install list.
type PackageSpec struct {
	Name string
	// Version is the pinned constraint of the primary source, e.g. "==3.1.1" or "<2.0".
	Version   string
	Primary   Source
	Fallbacks []Source
	Required  bool
}

// Sources returns the primary source followed by the fallbacks.
func (p PackageSpec) Sources() []Source {
	return append([]Source{p.Primary}, p.Fallbacks...)
}

// PipFunc runs pip with args inside the target environment.
type PipFunc func(ctx context.Context, out io.Writer, args ...string) error

// PackageResult records how one spec was installed.
type PackageResult struct {
	Name     string
	Required bool
	// SourceIndex is 0 for the primary source and i for fallback i. -1 when every source failed.
	SourceIndex int
	// Errs holds the error of every failed attempt, in attempt order.
	Errs []error
}

// Installed reports whether any source succeeded.
func (r PackageResult) Installed() bool {
	return r.SourceIndex >= 0
}

// Report lists the result of every attempted spec in install order.
type Report struct {
	Results []PackageResult
}

// OptionalFailures returns the optional specs that failed on every source.
func (r Report) OptionalFailures() []PackageResult {
	var out []PackageResult
	for _, res := range r.Results {
		if !res.Installed() && !res.Required {
			out = append(out, res)
		}
	}
	return out
}

// Installer installs specs strictly sequentially.
type Installer struct {
	pip PipFunc
	log zerolog.Logger
}

// NewInstaller returns an installer using pip.
func NewInstaller(pip PipFunc, log zerolog.Logger) *Installer {
	return &Installer{pip: pip, log: log}
}

// InstallAll installs specs in the given order. Later specs may depend on earlier
// ones, so nothing runs concurrently. A required spec that fails on every source stops
// the run with ErrRequiredPackage; an optional one is reported and skipped.
func (i *Installer) InstallAll(ctx context.Context, specs []PackageSpec, out io.Writer) (Report, error) {
	if out == nil {
		out = io.Discard
	}
	var report Report
	for _, spec := range specs {
		res, err := i.install(ctx, spec, out)
		report.Results = append(report.Results, res)
		if err != nil {
			return report, err
		}
		if res.Installed() {
			continue
		}
		joined := errors.Join(res.Errs...)
		if spec.Required {
			i.log.Error().Err(joined).Str("package", spec.Name).Msg("required package failed on every source")
			return report, fmt.Errorf(messages.DepsRequiredFailedFmt, ErrRequiredPackage, spec.Name, joined)
		}
		i.log.Warn().Err(joined).Str("package", spec.Name).Msg("optional package skipped")
		_, _ = fmt.Fprintf(out, messages.DepsOptionalSkippedFmt, spec.Name)
	}
	return report, nil
}

func (i *Installer) install(ctx context.Context, spec PackageSpec, out io.Writer) (PackageResult, error) {
	res := PackageResult{Name: spec.Name, Required: spec.Required, SourceIndex: -1}
	for idx, src := range spec.Sources() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if idx > 0 {
			_, _ = fmt.Fprintf(out, messages.DepsTryingFallbackFmt, spec.Name, src)
		}
		err := i.pip(ctx, out, src.Args()...)
		if err == nil {
			res.SourceIndex = idx
			i.log.Info().Str("package", spec.Name).Int("source", idx).Msg("package installed")
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.Errs = append(res.Errs, fmt.Errorf(messages.DepsSourceFailedFmt, src, err))
		i.log.Warn().Err(err).Str("package", spec.Name).Int("source", idx).Msg("package source failed")
	}
	return res, nil
}
