package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/svlang/slang-harness/internal/cli/ui"
)

// NewDiagCommand creates the diag command: open a file on the server and
// print the diagnostics it publishes.
func NewDiagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diag <file>",
		Short: "Open a file and print the server's diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			text, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			session, cfg, err := acquireSession(cmd)
			if err != nil {
				return err
			}
			defer session.Release()

			client, err := session.Client()
			if err != nil {
				return err
			}

			// Register before didOpen: the publication may race the wait
			// otherwise.
			wait := client.ExpectNotification(protocol.MethodTextDocumentPublishDiagnostics)

			ctx, cancel := context.WithTimeout(cmd.Context(), waitTimeout(cfg))
			defer cancel()

			if _, err := client.OpenDocument(ctx, uri.File(path), string(text)); err != nil {
				return err
			}

			raw, err := wait.Await(ctx)
			if err != nil {
				return err
			}
			var params protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(raw, &params); err != nil {
				return fmt.Errorf("malformed publishDiagnostics: %w", err)
			}

			printDiagnostics(cmd, params)
			return nil
		},
	}
}

func printDiagnostics(cmd *cobra.Command, params protocol.PublishDiagnosticsParams) {
	out := cmd.OutOrStdout()

	if len(params.Diagnostics) == 0 {
		color.New(color.FgGreen).Fprintf(out, "%s: no diagnostics\n", params.URI)
		return
	}

	table := ui.NewTable(out, "LINE", "COL", "SEVERITY", "MESSAGE")
	for _, d := range params.Diagnostics {
		c, label := severityStyle(d.Severity)
		table.AddColoredRow(c,
			fmt.Sprintf("%d", d.Range.Start.Line+1),
			fmt.Sprintf("%d", d.Range.Start.Character+1),
			label,
			d.Message)
	}

	fmt.Fprintln(out, params.URI)
	table.Render()
}

func severityStyle(s protocol.DiagnosticSeverity) (*color.Color, string) {
	switch s {
	case protocol.DiagnosticSeverityWarning:
		return color.New(color.FgYellow), "warning"
	case protocol.DiagnosticSeverityInformation:
		return color.New(color.FgCyan), "info"
	case protocol.DiagnosticSeverityHint:
		return color.New(color.FgWhite), "hint"
	default:
		return color.New(color.FgRed), "error"
	}
}
