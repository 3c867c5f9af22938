package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// NewSymbolsCommand creates the symbols command: open a file and print the
// server's document symbol tree.
func NewSymbolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <file>",
		Short: "Open a file and print its document symbol tree",
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

			ctx, cancel := context.WithTimeout(cmd.Context(), waitTimeout(cfg))
			defer cancel()

			docURI := uri.File(path)
			if _, err := client.OpenDocument(ctx, docURI, string(text)); err != nil {
				return err
			}

			symbols, err := client.DocumentSymbols(ctx, docURI)
			if err != nil {
				return err
			}

			printSymbols(cmd.OutOrStdout(), symbols, 0)
			return nil
		},
	}
}

func printSymbols(out io.Writer, symbols []protocol.DocumentSymbol, depth int) {
	nameColor := color.New(color.FgWhite, color.Bold)
	kindColor := color.New(color.FgCyan)

	for _, sym := range symbols {
		nameColor.Fprintf(out, "%s%s", strings.Repeat("  ", depth), sym.Name)
		kindColor.Fprintf(out, " [%v]\n", sym.Kind)
		printSymbols(out, sym.Children, depth+1)
	}
}
