package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/orchestrator"
	"github.com/conn-castle/whisper-provision/internal/prompt"
)

func newUninstallCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   messages.UninstallUse,
		Short: messages.UninstallShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			session, err := loadSession(cmd, nil)
			if err != nil {
				return err
			}
			if !yes {
				ui := newUI()
				if !ui.Interactive() {
					return errors.New(messages.UninstallRequiresYes)
				}
				confirmed := false
				if err := ui.Confirm(fmt.Sprintf(messages.UninstallConfirmFmt, session.CommandName(), session.ServiceName()), &confirmed); err != nil {
					if errors.Is(err, prompt.ErrCancelled) {
						return &SilentExitError{Code: 1}
					}
					return err
				}
				if !confirmed {
					_, _ = fmt.Fprintln(out, messages.UninstallAborted)
					return nil
				}
			}

			log, err := openLog(cmd, session)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()
			if err := orchestrator.Uninstall(ctx, session, newUninstallDeps(session, log.Logger), out, log.Logger); err != nil {
				return fmt.Errorf(messages.UninstallIncompleteFmt, err)
			}
			_, _ = fmt.Fprintln(out, messages.UninstallDone)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, messages.UninstallYesFlag)
	return cmd
}
