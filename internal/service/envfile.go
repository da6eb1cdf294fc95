package service

import (
	"fmt"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

// EnvFile is the service's .env contents.
type EnvFile struct {
	Port       int
	UploadDir  string
	WhisperCLI string
	HFToken    string
}

// Values returns the file as key/value pairs. An empty token is omitted.
func (e EnvFile) Values() map[string]string {
	values := map[string]string{
		"PORT":         strconv.Itoa(e.Port),
		"UPLOAD_DIR":   e.UploadDir,
		"WHISPERX_CLI": e.WhisperCLI,
	}
	if e.HFToken != "" {
		values["HF_TOKEN"] = e.HFToken
	}
	return values
}

// WriteEnvFile writes e to path with owner-only permissions.
func WriteEnvFile(path string, e EnvFile) error {
	content, err := godotenv.Marshal(e.Values())
	if err != nil {
		return fmt.Errorf(messages.ServiceEnvWriteFailedFmt, path, err)
	}
	if err := fsutil.WriteFileAtomic(path, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf(messages.ServiceEnvWriteFailedFmt, path, err)
	}
	return nil
}

// ReadEnvFile reads a service .env file.
func ReadEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf(messages.ServiceEnvReadFailedFmt, path, err)
	}
	return values, nil
}
