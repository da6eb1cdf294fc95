package config

import (
	"github.com/spf13/pflag"

	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

// Setting keys. Flags use the same names; environment variables are WHISPERX_ plus
// the key upper-cased with dashes replaced by underscores.
const (
	KeyVerbose        = "verbose"
	KeyServiceOnly    = "service-only"
	KeyForce          = "force"
	KeySkipAdvanced   = "skip-advanced"
	KeyNoPrompt       = "no-prompt"
	KeyConda          = "conda"
	KeyEnvManager     = "env-manager"
	KeyEnvLocation    = "env-location"
	KeyInterpreter    = "interpreter"
	KeyHFToken        = "hf-token"
	KeyTunnelToken    = "tunnel-token"
	KeyTunnelHostname = "tunnel-hostname"
	KeyPort           = "port"
	KeySourceDir      = "source-dir"
	KeyBinDir         = "bin-dir"
	KeyCommandName    = "command-name"
	KeyServiceName    = "service-name"
	KeyServiceDir     = "service-dir"
	KeyUploadDir      = "upload-dir"
	KeySampleAudio    = "sample-audio"
	KeyStateDir       = "state-dir"
	KeyStepTimeout    = "step-timeout"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "WHISPERX"

// Conventional credential variables honored besides the WHISPERX_ names.
const (
	EnvHFToken     = "HF_TOKEN"
	EnvTunnelToken = "CLOUDFLARE_TUNNEL_TOKEN"
)

// BindFlags declares every session flag on fs. Path defaults that depend on the
// source directory are left empty and resolved in Load.
func BindFlags(fs *pflag.FlagSet) {
	fs.BoolP(KeyVerbose, "v", false, messages.FlagVerbose)
	fs.Bool(KeyServiceOnly, false, messages.FlagServiceOnly)
	fs.BoolP(KeyForce, "f", false, messages.FlagForce)
	fs.Bool(KeySkipAdvanced, false, messages.FlagSkipAdvanced)
	fs.Bool(KeyNoPrompt, false, messages.FlagNoPrompt)
	fs.Bool(KeyConda, false, messages.FlagConda)
	fs.String(KeyEnvManager, string(envmgr.KindVenv), messages.FlagEnvManager)
	fs.String(KeyEnvLocation, "", messages.FlagEnvLocation)
	fs.String(KeyInterpreter, DefaultInterpreter, messages.FlagInterpreter)
	fs.String(KeyHFToken, "", messages.FlagHFToken)
	fs.String(KeyTunnelToken, "", messages.FlagTunnelToken)
	fs.String(KeyTunnelHostname, "", messages.FlagTunnelHostname)
	fs.IntP(KeyPort, "p", DefaultPort, messages.FlagPort)
	fs.String(KeySourceDir, "", messages.FlagSourceDir)
	fs.String(KeyBinDir, DefaultBinDir, messages.FlagBinDir)
	fs.String(KeyCommandName, DefaultCommandName, messages.FlagCommandName)
	fs.String(KeyServiceName, DefaultServiceName, messages.FlagServiceName)
	fs.String(KeyServiceDir, "", messages.FlagServiceDir)
	fs.String(KeyUploadDir, "", messages.FlagUploadDir)
	fs.String(KeySampleAudio, "", messages.FlagSampleAudio)
	fs.String(KeyStateDir, DefaultStateDir, messages.FlagStateDir)
	fs.Duration(KeyStepTimeout, 0, messages.FlagStepTimeout)
}
