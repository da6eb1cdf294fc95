package config

import "path/filepath"

// Paths holds the files the provisioner expects inside a source checkout.
type Paths struct {
	SourceDir   string
	EntryPoint  string
	ConfigPath  string
	EnvPath     string
	ServiceDir  string
	VenvDir     string
	SampleAudio string
}

// DefaultPaths returns the default layout for a source checkout at sourceDir.
func DefaultPaths(sourceDir string) Paths {
	return Paths{
		SourceDir:   sourceDir,
		EntryPoint:  filepath.Join(sourceDir, EntryPointName),
		ConfigPath:  filepath.Join(sourceDir, ConfigFileName),
		EnvPath:     filepath.Join(sourceDir, ".env"),
		ServiceDir:  filepath.Join(sourceDir, "api"),
		VenvDir:     filepath.Join(sourceDir, "venv"),
		SampleAudio: filepath.Join(sourceDir, "samples", "sample.wav"),
	}
}
