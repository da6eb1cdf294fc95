// Package manifest holds the embedded, data-driven list of packages installed into
// the transcription environment.
package manifest

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/deps"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

// GroupAdvanced marks optional advanced components skipped by --skip-advanced.
const GroupAdvanced = "advanced"

//go:embed packages.toml
var embedded []byte

// Alternate is one installable form of a package.
type Alternate struct {
	Name     string   `toml:"name"`
	Version  string   `toml:"version"`
	With     []string `toml:"with"`
	IndexURL string   `toml:"index_url"`
}

func (a Alternate) source() deps.Source {
	return deps.Source{
		Requirements: append([]string{a.Name + a.Version}, a.With...),
		IndexURL:     a.IndexURL,
	}
}

// Package is one manifest entry.
type Package struct {
	Name      string      `toml:"name"`
	Version   string      `toml:"version"`
	With      []string    `toml:"with"`
	IndexURL  string      `toml:"index_url"`
	Required  bool        `toml:"required"`
	Paths     []string    `toml:"paths"`
	Group     string      `toml:"group"`
	Fallbacks []Alternate `toml:"fallback"`
}

// Manifest is the ordered package list.
type Manifest struct {
	Packages []Package `toml:"package"`
}

// Load parses the embedded manifest.
func Load() (*Manifest, error) {
	return Parse(embedded)
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf(messages.ManifestDecodeFailedFmt, err)
	}
	for i, pkg := range m.Packages {
		if strings.TrimSpace(pkg.Name) == "" {
			return nil, fmt.Errorf(messages.ManifestMissingNameFmt, i)
		}
		for _, p := range pkg.Paths {
			if !slices.Contains(capability.AllPaths, capability.InstallPath(p)) {
				return nil, fmt.Errorf(messages.ManifestUnknownPathFmt, pkg.Name, p)
			}
		}
		for j, fb := range pkg.Fallbacks {
			if strings.TrimSpace(fb.Name) == "" {
				return nil, fmt.Errorf(messages.ManifestFallbackMissingNameFmt, pkg.Name, j)
			}
		}
	}
	return &m, nil
}

// Select returns the specs for path in manifest order, dropping the advanced group
// when skipAdvanced is set.
func (m *Manifest) Select(path capability.InstallPath, skipAdvanced bool) []deps.PackageSpec {
	var specs []deps.PackageSpec
	for _, pkg := range m.Packages {
		if len(pkg.Paths) > 0 && !slices.Contains(pkg.Paths, string(path)) {
			continue
		}
		if skipAdvanced && pkg.Group == GroupAdvanced {
			continue
		}
		spec := deps.PackageSpec{
			Name:     pkg.Name,
			Version:  pkg.Version,
			Primary:  Alternate{Name: pkg.Name, Version: pkg.Version, With: pkg.With, IndexURL: pkg.IndexURL}.source(),
			Required: pkg.Required,
		}
		for _, fb := range pkg.Fallbacks {
			spec.Fallbacks = append(spec.Fallbacks, fb.source())
		}
		specs = append(specs, spec)
	}
	return specs
}

// Digest fingerprints a selected spec list, so a state file can tell whether an
// environment already holds exactly these packages.
func Digest(specs []deps.PackageSpec) string {
	h := sha256.New()
	for _, s := range specs {
		_, _ = fmt.Fprintf(h, "%s|%t|%s\n", s.Name, s.Required, s.Primary)
		for _, fb := range s.Fallbacks {
			_, _ = fmt.Fprintf(h, "  %s\n", fb)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
