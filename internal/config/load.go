package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/prompt"
)

// LoadOptions controls session resolution.
type LoadOptions struct {
	// Flags is the flag set declared by BindFlags.
	Flags *pflag.FlagSet
	// UI asks for credentials missing from flags, environment and config file.
	// Nil disables prompting.
	UI prompt.UI
	// Interactive reports whether UI may be used.
	Interactive bool
	// Getwd defaults to os.Getwd and supplies the default source directory.
	Getwd func() (string, error)
}

// Load resolves the session. Precedence is flag, then environment, then the config
// file in the source directory, then defaults. A .env in the source directory feeds
// the environment without overriding variables already set. Credentials still
// missing afterwards are prompted for when interactive; an empty answer disables
// the feature.
func Load(opts LoadOptions) (*Session, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyHFToken, EnvPrefix+"_HF_TOKEN", EnvHFToken); err != nil {
		return nil, err
	}
	if err := v.BindEnv(KeyTunnelToken, EnvPrefix+"_TUNNEL_TOKEN", EnvTunnelToken); err != nil {
		return nil, err
	}
	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return nil, fmt.Errorf(messages.ConfigBindFlagsFmt, err)
		}
	}

	sourceDir, err := resolveSourceDir(v, opts.Getwd)
	if err != nil {
		return nil, err
	}
	paths := DefaultPaths(sourceDir)

	if err := godotenv.Load(paths.EnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(messages.ConfigInvalidEnvFileFmt, paths.EnvPath, err)
	}
	if _, err := os.Stat(paths.ConfigPath); err == nil {
		v.SetConfigFile(paths.ConfigPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf(messages.ConfigInvalidConfigFmt, paths.ConfigPath, err)
		}
	}

	values := Values{
		SessionID:      uuid.NewString(),
		Verbose:        v.GetBool(KeyVerbose),
		ServiceOnly:    v.GetBool(KeyServiceOnly),
		Force:          v.GetBool(KeyForce),
		SkipAdvanced:   v.GetBool(KeySkipAdvanced),
		NoPrompt:       v.GetBool(KeyNoPrompt),
		EnvKind:        envmgr.Kind(strings.ToLower(strings.TrimSpace(v.GetString(KeyEnvManager)))),
		Interpreter:    v.GetString(KeyInterpreter),
		HFToken:        strings.TrimSpace(v.GetString(KeyHFToken)),
		TunnelToken:    strings.TrimSpace(v.GetString(KeyTunnelToken)),
		TunnelHostname: strings.TrimSpace(v.GetString(KeyTunnelHostname)),
		Port:           v.GetInt(KeyPort),
		SourceDir:      sourceDir,
		CommandName:    v.GetString(KeyCommandName),
		ServiceName:    v.GetString(KeyServiceName),
		StepTimeout:    v.GetDuration(KeyStepTimeout),
	}
	if values.EnvKind == "" {
		values.EnvKind = envmgr.KindVenv
	}
	if v.GetBool(KeyConda) {
		values.EnvKind = envmgr.KindConda
	}
	if values.Interpreter == "" {
		values.Interpreter = DefaultInterpreter
	}
	if values.Port == 0 {
		values.Port = DefaultPort
	}
	if values.CommandName == "" {
		values.CommandName = DefaultCommandName
	}
	if values.ServiceName == "" {
		values.ServiceName = DefaultServiceName
	}

	if values.BinDir, err = pathSetting(v, KeyBinDir, DefaultBinDir, sourceDir); err != nil {
		return nil, err
	}
	if values.StateDir, err = pathSetting(v, KeyStateDir, DefaultStateDir, sourceDir); err != nil {
		return nil, err
	}
	if values.ServiceDir, err = pathSetting(v, KeyServiceDir, paths.ServiceDir, sourceDir); err != nil {
		return nil, err
	}
	if values.UploadDir, err = pathSetting(v, KeyUploadDir, filepath.Join(values.ServiceDir, "uploads"), sourceDir); err != nil {
		return nil, err
	}
	if values.SampleAudio, err = pathSetting(v, KeySampleAudio, paths.SampleAudio, sourceDir); err != nil {
		return nil, err
	}
	values.EnvLocation = strings.TrimSpace(v.GetString(KeyEnvLocation))
	switch {
	case values.EnvKind == envmgr.KindConda && values.EnvLocation == "":
		values.EnvLocation = DefaultCondaEnv
	case values.EnvKind != envmgr.KindConda:
		if values.EnvLocation, err = pathSetting(v, KeyEnvLocation, paths.VenvDir, sourceDir); err != nil {
			return nil, err
		}
	}

	if err := promptCredentials(&values, opts); err != nil {
		return nil, err
	}
	return NewSession(values)
}

func resolveSourceDir(v *viper.Viper, getwd func() (string, error)) (string, error) {
	raw := strings.TrimSpace(v.GetString(KeySourceDir))
	if raw == "" {
		if getwd == nil {
			getwd = os.Getwd
		}
		wd, err := getwd()
		if err != nil {
			return "", fmt.Errorf(messages.ConfigResolvePathFmt, KeySourceDir, err)
		}
		raw = wd
	}
	return absPath(raw, "")
}

// pathSetting returns the setting for key, or def, expanded and made absolute
// against base.
func pathSetting(v *viper.Viper, key string, def string, base string) (string, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = def
	}
	path, err := absPath(raw, base)
	if err != nil {
		return "", fmt.Errorf(messages.ConfigResolvePathFmt, key, err)
	}
	return path, nil
}

func absPath(raw string, base string) (string, error) {
	expanded, err := homedir.Expand(raw)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	if base != "" {
		return filepath.Join(base, expanded), nil
	}
	return filepath.Abs(expanded)
}

func promptCredentials(values *Values, opts LoadOptions) error {
	if opts.UI == nil || !opts.Interactive || values.NoPrompt {
		return nil
	}
	if values.HFToken == "" {
		if err := opts.UI.SecretInput(messages.PromptHFToken, &values.HFToken); err != nil {
			return err
		}
		values.HFToken = strings.TrimSpace(values.HFToken)
	}
	if values.TunnelToken == "" {
		if err := opts.UI.SecretInput(messages.PromptTunnelToken, &values.TunnelToken); err != nil {
			return err
		}
		values.TunnelToken = strings.TrimSpace(values.TunnelToken)
	}
	return nil
}
