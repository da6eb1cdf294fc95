package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conn-castle/whisper-provision/internal/launchers"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   messages.VersionUse,
		Short: messages.VersionShort,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), messages.VersionCLIFmt, launchers.CLIVersion)
		},
	}
}
