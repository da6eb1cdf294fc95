package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

// ErrConfigValidation wraps every session validation failure.
var ErrConfigValidation = errors.New("config validation failed")

// Validate checks values for internal consistency.
func Validate(v Values) error {
	if v.Port < 1 || v.Port > 65535 {
		return fmt.Errorf(messages.ConfigInvalidPortFmt, ErrConfigValidation, v.Port)
	}
	switch v.EnvKind {
	case envmgr.KindVenv, envmgr.KindConda:
	default:
		return fmt.Errorf(messages.ConfigInvalidEnvManagerFmt, ErrConfigValidation, v.EnvKind)
	}
	if strings.TrimSpace(v.EnvLocation) == "" {
		return fmt.Errorf(messages.ConfigRequiredFieldFmt, ErrConfigValidation, KeyEnvLocation)
	}
	if v.EnvKind == envmgr.KindConda && strings.ContainsRune(v.EnvLocation, filepath.Separator) {
		return fmt.Errorf(messages.ConfigCondaNameFmt, ErrConfigValidation, v.EnvLocation)
	}
	for key, path := range map[string]string{
		KeySourceDir:  v.SourceDir,
		KeyBinDir:     v.BinDir,
		KeyServiceDir: v.ServiceDir,
		KeyUploadDir:  v.UploadDir,
		KeyStateDir:   v.StateDir,
	} {
		if !filepath.IsAbs(path) {
			return fmt.Errorf(messages.ConfigPathNotAbsoluteFmt, ErrConfigValidation, key, path)
		}
	}
	for key, value := range map[string]string{
		KeyServiceName: v.ServiceName,
		KeyCommandName: v.CommandName,
		KeyInterpreter: v.Interpreter,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf(messages.ConfigRequiredFieldFmt, ErrConfigValidation, key)
		}
	}
	if strings.ContainsRune(v.CommandName, '/') {
		return fmt.Errorf(messages.ConfigCommandNameFmt, ErrConfigValidation, v.CommandName)
	}
	if v.StepTimeout < 0 {
		return fmt.Errorf(messages.ConfigInvalidStepTimeoutFmt, ErrConfigValidation, v.StepTimeout)
	}
	if v.SessionID == "" {
		return fmt.Errorf(messages.ConfigRequiredFieldFmt, ErrConfigValidation, "session id")
	}
	return nil
}
