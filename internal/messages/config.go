package messages

// Config messages for session resolution and precondition checks.
const (
	ConfigBindFlagsFmt      = "bind flags: %w"
	ConfigInvalidEnvFileFmt = "invalid env file %s: %w"
	ConfigInvalidConfigFmt  = "invalid config file %s: %w"
	ConfigResolvePathFmt    = "resolve %s: %w"

	ConfigInvalidPortFmt        = "%w: port %d is outside 1-65535"
	ConfigInvalidEnvManagerFmt  = "%w: env manager %q is not venv or conda"
	ConfigRequiredFieldFmt      = "%w: %s is required"
	ConfigCondaNameFmt          = "%w: conda environment %q must be a name, not a path"
	ConfigPathNotAbsoluteFmt    = "%w: %s must resolve to an absolute path, got %q"
	ConfigCommandNameFmt        = "%w: command name %q must not contain a path separator"
	ConfigInvalidStepTimeoutFmt = "%w: step timeout %s must not be negative"

	ConfigNotADirectoryFmt     = "%s is not a directory"
	ConfigMissingToolFmt       = "%w: %s not found on PATH"
	ConfigBinDirNotWritableFmt = "%w: %s: %v"
)
