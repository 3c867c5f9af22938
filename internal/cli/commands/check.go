package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/svlang/slang-harness/internal/cli/ui"
)

// NewCheckCommand creates the check command: a smoke test that spawns the
// server, completes the initialize handshake, and shuts it down again.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Spawn the server and verify the initialize handshake",
		RunE: func(cmd *cobra.Command, args []string) error {
			spinner := ui.NewSpinner(cmd.ErrOrStderr(), "waiting for server handshake")
			spinner.Start()
			session, _, err := acquireSession(cmd)
			spinner.Stop()
			if err != nil {
				return err
			}
			defer session.Release()

			okColor := color.New(color.FgGreen, color.Bold)
			valueColor := color.New(color.FgWhite)

			okColor.Fprint(cmd.OutOrStdout(), "handshake ok")
			if info := session.InitializeResult().ServerInfo; info != nil {
				valueColor.Fprintf(cmd.OutOrStdout(), " (%s %s, pid %d)",
					info.Name, info.Version, session.Process().PID())
			}
			valueColor.Fprintln(cmd.OutOrStdout())

			return nil
		},
	}
}
