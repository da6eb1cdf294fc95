package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conn-castle/whisper-provision/internal/doctor"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   messages.DoctorUse,
		Short: messages.DoctorShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			session, err := loadSession(cmd, nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, messages.DoctorHealthCheckFmt, session.SourceDir())

			deps := newDoctorDeps(session)
			var results []doctor.Result
			results = append(results, doctor.CheckCapabilities(ctx, deps.Detector)...)
			results = append(results, doctor.CheckTools(session, deps.Tools)...)
			results = append(results, doctor.CheckResources(ctx, session, deps.Resources)...)
			results = append(results, doctor.CheckInstallation(ctx, session, deps.Env, deps.Supervisor)...)

			for _, r := range results {
				printResult(out, r)
			}
			if doctor.HasFailure(results) {
				_, _ = fmt.Fprintln(out, color.RedString(messages.DoctorFailureSummary))
				return &SilentExitError{Code: 1}
			}
			_, _ = fmt.Fprintln(out, color.GreenString(messages.DoctorSuccessSummary))
			return nil
		},
	}
}

func printResult(out io.Writer, r doctor.Result) {
	var status string
	switch r.Status {
	case doctor.StatusOK:
		status = color.GreenString(messages.DoctorStatusOKLabel)
	case doctor.StatusWarn:
		status = color.YellowString(messages.DoctorStatusWarnLabel)
	case doctor.StatusFail:
		status = color.RedString(messages.DoctorStatusFailLabel)
	}

	_, _ = fmt.Fprintf(out, messages.DoctorResultLineFmt, status, r.CheckName, r.Message)
	if r.Recommendation != "" {
		for i, line := range strings.Split(r.Recommendation, "\n") {
			if i == 0 {
				_, _ = fmt.Fprintf(out, "%s%s\n", messages.DoctorRecommendationPrefix, line)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s%s\n", strings.Repeat(" ", len(messages.DoctorRecommendationPrefix)), line)
		}
	}
}
