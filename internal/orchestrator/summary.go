package orchestrator

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/rollback"
	"github.com/conn-castle/whisper-provision/internal/service"
	"github.com/conn-castle/whisper-provision/internal/step"
)

// Summary is the record of a finished session.
type Summary struct {
	SessionID string
	Profile   capability.Profile
	// Results holds every step run, in order.
	Results []step.Result
	// Warnings lists soft failures and skipped optional packages.
	Warnings     []string
	Wrapper      string
	UpdateScript string
	Service      *service.ServiceProcess
	TunnelURL    string
	// Rollback is set when the session aborted.
	Rollback *rollback.Report
	Err      error
}

// Count returns how many results had outcome.
func (s *Summary) Count(outcome step.Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Print renders the summary for the console.
func (s *Summary) Print(out io.Writer) {
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, messages.SummaryHeader)
	_, _ = fmt.Fprintf(out, messages.SummaryStepsFmt, s.Count(step.Succeeded), s.Count(step.Skipped), s.Count(step.SoftFailed))
	_, _ = fmt.Fprintf(out, messages.SummaryInstallPathFmt, s.Profile.InstallPath())
	if s.Wrapper != "" {
		_, _ = fmt.Fprintf(out, messages.SummaryWrapperFmt, s.Wrapper)
	}
	if s.UpdateScript != "" {
		_, _ = fmt.Fprintf(out, messages.SummaryUpdateScriptFmt, s.UpdateScript)
	}
	if s.Service != nil {
		state := messages.SummaryServiceStarted
		if s.Service.AlreadyRunning {
			state = messages.SummaryServiceUntouched
		}
		_, _ = fmt.Fprintf(out, messages.SummaryServiceFmt, s.Service.Name, s.Service.Port, state)
	}
	if s.TunnelURL != "" {
		_, _ = fmt.Fprintf(out, messages.SummaryTunnelFmt, s.TunnelURL)
	}
	if len(s.Warnings) == 0 {
		_, _ = fmt.Fprintln(out, color.New(color.FgGreen).Sprint(messages.SummaryNoWarnings))
		return
	}
	warn := color.New(color.FgYellow)
	_, _ = fmt.Fprintf(out, messages.SummaryWarningsFmt, len(s.Warnings))
	for _, w := range s.Warnings {
		_, _ = fmt.Fprintf(out, "  %s %s\n", warn.Sprint("!"), w)
	}
}
