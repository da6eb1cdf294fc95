package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

// HTTPOptions tunes the retrying HTTP client.
type HTTPOptions struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// DefaultHTTPOptions is used by the health probe and tunnel status lookups.
var DefaultHTTPOptions = HTTPOptions{
	RetryMax:     5,
	RetryWaitMin: 500 * time.Millisecond,
	RetryWaitMax: 4 * time.Second,
	Timeout:      10 * time.Second,
}

// NewHTTPClient returns a retrying client that logs retries to log.
func NewHTTPClient(opts HTTPOptions, log zerolog.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = opts.RetryWaitMin
	client.RetryWaitMax = opts.RetryWaitMax
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = leveledLogger{log: log}
	return client
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{}) { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Trace().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{}) { l.log.Warn().Fields(kv).Msg(msg) }

// Get fetches url and returns the body of a 2xx response.
func Get(ctx context.Context, client *retryablehttp.Client, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf(messages.ServiceHTTPStatusFmt, url, resp.StatusCode)
	}
	return body, nil
}

// HealthURL is the service health endpoint for port.
func HealthURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/health", port)
}

// Probe checks the service health endpoint, retrying while the service boots.
func Probe(ctx context.Context, client *retryablehttp.Client, port int) error {
	if _, err := Get(ctx, client, HealthURL(port)); err != nil {
		return fmt.Errorf(messages.ServiceHealthFailedFmt, port, err)
	}
	return nil
}
