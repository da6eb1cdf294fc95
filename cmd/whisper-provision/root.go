package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conn-castle/whisper-provision/internal/config"
	"github.com/conn-castle/whisper-provision/internal/logging"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/orchestrator"
	"github.com/conn-castle/whisper-provision/internal/prompt"
)

// operatorUI is the prompt surface plus the terminal check that gates it.
type operatorUI interface {
	prompt.UI
	Interactive() bool
}

var newUI = func() operatorUI { return prompt.NewHuhUI() }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           messages.RootUse,
		Short:         messages.RootShort,
		Long:          messages.RootLong,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		_, _ = fmt.Fprintln(c.ErrOrStderr(), c.UsageString())
		return err
	})
	config.BindFlags(cmd.PersistentFlags())
	cmd.AddCommand(newDoctorCmd(), newUninstallCmd(), newVersionCmd())
	return cmd
}

// loadSession resolves the session for cmd. Prompts run only when ui is non-nil and
// the terminal is interactive.
func loadSession(cmd *cobra.Command, ui operatorUI) (*config.Session, error) {
	opts := config.LoadOptions{Flags: cmd.Flags()}
	if ui != nil {
		opts.UI = ui
		opts.Interactive = ui.Interactive()
	}
	return config.Load(opts)
}

func openLog(cmd *cobra.Command, s *config.Session) (*logging.Session, error) {
	return logging.Open(logging.Options{
		Dir:       s.LogDir(),
		SessionID: s.ID(),
		Verbose:   s.Verbose(),
		Console:   cmd.ErrOrStderr(),
	})
}

func runInstall(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	session, err := loadSession(cmd, newUI())
	if err != nil {
		if errors.Is(err, prompt.ErrCancelled) {
			return &SilentExitError{Code: 1}
		}
		return err
	}
	log, err := openLog(cmd, session)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	deps, err := newInstallDeps(session, log.Logger)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, messages.InstallStartFmt, session.ID())
	_, err = orchestrator.New(session, deps, out, log.Logger).Run(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), messages.InstallInterrupted)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), messages.InstallFailedFmt, err, log.Path())
		return &SilentExitError{Code: 1}
	}
	_, _ = fmt.Fprintf(out, messages.InstallLogPathFmt, log.Path())
	return nil
}
