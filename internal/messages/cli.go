// Package messages holds every user-facing string the provisioner prints.
package messages

// CLI messages for commands and flags.
const (
	// RootUse is the CLI command name.
	RootUse   = "whisper-provision"
	RootShort = "Provision the WhisperX transcription CLI and its HTTP service on this host"
	RootLong  = `whisper-provision installs the WhisperX transcription toolchain on this host.

It detects the operating system, interpreter and GPU accelerator, creates an isolated
Python environment, installs the matching dependency set, writes a system-wide
wrapper command, then installs and starts the HTTP service under pm2 with an
optional Cloudflare tunnel. Re-running is safe: finished steps are skipped.
An interrupt or a failed critical step rolls back what this run changed.`

	VersionTemplate = "{{.Version}}\n"
	// VersionFmt formats version, commit and build date.
	VersionFmt    = "%s (commit %s, built %s)"
	VersionUse    = "version"
	VersionShort  = "Print the provisioner and installed CLI versions"
	VersionCLIFmt = "wrapper CLI version %s\n"

	InstallStartFmt    = "Provisioning session %s\n"
	InstallInterrupted = "Interrupted; completed steps were rolled back."
	InstallFailedFmt   = "Provisioning failed: %v\nSee the session log at %s\n"
	InstallLogPathFmt  = "Session log: %s\n"

	UninstallUse           = "uninstall"
	UninstallShort         = "Remove the wrapper command, the service, the tunnel and the Python environment"
	UninstallYesFlag       = "Remove without asking for confirmation"
	UninstallRequiresYes   = "uninstall needs confirmation; re-run with --yes when no terminal is attached"
	UninstallConfirmFmt    = "Remove the %s command, the %s service and its Python environment?"
	UninstallAborted       = "Uninstall cancelled; nothing was removed."
	UninstallIncompleteFmt = "uninstall incomplete: %w"
	UninstallDone          = "Uninstall complete."
	UninstallRemovedFmt    = "removed %s\n"
	UninstallFailedFmt     = "could not remove %s: %v\n"
	UninstallTunnelTarget  = "tunnel agent"

	PromptHFToken          = "Hugging Face token for speaker diarization (leave empty to skip)"
	PromptTunnelToken      = "Cloudflare tunnel token for a public URL (leave empty to skip)"
	PromptCancelled        = "prompt cancelled"
	PromptRequiresTerminal = "prompt requires an interactive terminal"
	PromptFailedFmt        = "prompt failed: %w"
)

// Flag usage strings.
const (
	FlagVerbose        = "Stream subprocess output and debug logs to the console"
	FlagServiceOnly    = "Skip the CLI stage and only install the HTTP service"
	FlagForce          = "Redo steps that are already complete"
	FlagSkipAdvanced   = "Skip optional advanced packages"
	FlagNoPrompt       = "Never prompt; missing credentials disable their features"
	FlagConda          = "Use a conda environment (same as --env-manager conda)"
	FlagEnvManager     = "Python environment manager: venv or conda"
	FlagEnvLocation    = "Virtual environment directory, or conda environment name"
	FlagInterpreter    = "Python interpreter used to create the environment"
	FlagHFToken        = "Hugging Face token (also HF_TOKEN)"
	FlagTunnelToken    = "Cloudflare tunnel token (also CLOUDFLARE_TUNNEL_TOKEN)"
	FlagTunnelHostname = "Public hostname routed to the service by the tunnel"
	FlagPort           = "HTTP service port"
	FlagSourceDir      = "Source checkout holding whisperx_cli.py (default: current directory)"
	FlagBinDir         = "Directory receiving the system-wide commands"
	FlagCommandName    = "Name of the installed wrapper command"
	FlagServiceName    = "pm2 process name of the HTTP service"
	FlagServiceDir     = "HTTP service directory (default: <source-dir>/api)"
	FlagUploadDir      = "Upload directory used by the service (default: <service-dir>/uploads)"
	FlagSampleAudio    = "Audio file used by the transcription smoke test"
	FlagStateDir       = "Directory for logs, generated files and install state"
	FlagStepTimeout    = "Per-step time limit, 0 for none"
)
