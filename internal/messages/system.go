package messages

// Capability detection messages.
const (
	CapabilityUnsupportedOSFmt          = "%w: %s"
	CapabilityInterpreterMissingFmt     = "%w: %s not found on PATH"
	CapabilityInterpreterProbeFmt       = "%w: probe %s: %w"
	CapabilityInterpreterOutOfBoundsFmt = "%w: python %s does not satisfy %s"
	CapabilityInterpreterUnparsableFmt  = "cannot parse interpreter version from %q"
	CapabilityBrokenDriverFmt           = "%w: %s: %w"
)

// Environment manager messages.
const (
	EnvUnknownKindFmt     = "unknown environment manager %q"
	EnvResolveLocationFmt = "resolve environment location %s: %w"
	EnvCreateFailedFmt    = "create environment %s: %w"
	EnvRemoveFailedFmt    = "remove environment %s: %w"
	EnvCondaListFailedFmt = "list conda environments: %w"
	EnvCondaNotFoundFmt   = "conda environment %q not found"
)

// Dependency installation and manifest messages.
const (
	DepsRequiredFailedFmt  = "%w: %s: %w"
	DepsOptionalSkippedFmt = "    optional package %s could not be installed; continuing\n"
	DepsTryingFallbackFmt  = "    %s: trying fallback %s\n"
	DepsSourceFailedFmt    = "%s: %w"

	ManifestDecodeFailedFmt        = "decode dependency manifest: %w"
	ManifestMissingNameFmt         = "dependency manifest entry %d has no name"
	ManifestUnknownPathFmt         = "package %s names unknown install path %q"
	ManifestFallbackMissingNameFmt = "package %s fallback %d has no name"
)

// Launcher script messages.
const (
	LaunchersPathsMustBeAbsoluteFmt = "launcher paths must be absolute, got %q and %q"
	LaunchersPathMustBeAbsoluteFmt  = "launcher path must be absolute, got %q"
	LaunchersRenderFailedFmt        = "render %s: %w"
	LaunchersCreateDirFailedFmt     = "create directory %s: %w"
	LaunchersWriteFailedFmt         = "write %s: %w"
	LaunchersReadFailedFmt          = "read %s: %w"
	LaunchersRemoveFailedFmt        = "remove %s: %w"
)

// Service and tunnel messages.
const (
	ServiceSupervisorListFailedFmt = "list pm2 processes: %w"
	ServiceEcosystemWriteFailedFmt = "write pm2 ecosystem file for %s: %w"
	ServiceStartFailedFmt          = "start %s under pm2: %w"
	ServiceSaveFailedFmt           = "save pm2 process list: %w"
	ServiceDeleteFailedFmt         = "delete %s from pm2: %w"
	ServiceNotRegisteredFmt        = "%s is not registered with pm2 after start"
	ServiceAlreadyRunningFmt       = "    %s is already %s under pm2; leaving it untouched\n"
	ServiceEnvWriteFailedFmt       = "write service env %s: %w"
	ServiceEnvReadFailedFmt        = "read service env %s: %w"
	ServiceHTTPStatusFmt           = "GET %s returned status %d"
	ServiceHealthFailedFmt         = "service on port %d is not answering: %w"

	TunnelUnsupportedOSFmt    = "no cloudflared build for %s"
	TunnelInstallFailedFmt    = "install cloudflared: %w"
	TunnelTokenWriteFailedFmt = "write tunnel token: %w"
	TunnelStartFailedFmt      = "start cloudflared: %w"
	TunnelStatusFailedFmt     = "read tunnel hostname: %w"
	TunnelNoHostname          = "tunnel did not report a hostname"
)

// Subprocess messages.
const (
	ProcessBinaryRequired   = "process: binary is required"
	ProcessExitedFmt        = "%s exited with code %d"
	ProcessKilledFmt        = "process: %s killed by context: %w"
	ProcessRunFailedFmt     = "process: run %s: %w"
	ProcessOpenLogFmt       = "process: open log %s: %w"
	ProcessStartFailedFmt   = "process: start %s: %w"
	ProcessReleaseFailedFmt = "process: release %s: %w"
)

// Session log messages.
const (
	LogCreateDirFailedFmt = "create log dir %s: %w"
	LogOpenFailedFmt      = "open log file %s: %w"
)

// Atomic file write messages.
const (
	FsutilCreateTempFmt = "create temp file: %w"
	FsutilWriteTempFmt  = "write temp file: %w"
	FsutilSyncTempFmt   = "sync temp file: %w"
	FsutilCloseTempFmt  = "close temp file: %w"
	FsutilChmodTempFmt  = "chmod temp file: %w"
	FsutilRenameTempFmt = "rename temp file: %w"
)
