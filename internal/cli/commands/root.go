// Package commands implements the slang-harness command line interface.
package commands

import (
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/svlang/slang-harness/internal/cli/config"
	"github.com/svlang/slang-harness/internal/harness"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "slang-harness",
		Short: "Black-box test harness for the slang language server",
		Long: color.CyanString(`slang-harness - drive a slang language server as a subprocess

The harness spawns the server, speaks LSP over its standard streams, and
correlates asynchronously arriving notifications with expectations. It is
the same machinery the system tests use, exposed for interactive runs.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("binary", "", "slang server binary (default from config)")
	rootCmd.PersistentFlags().Bool("rr", false, "run server under `rr record`")
	rootCmd.PersistentFlags().Int("gdb", 0, "wait the given number of seconds after launch for gdb to attach")
	rootCmd.PersistentFlags().String("workspace", "", "workspace root for initialize")
	rootCmd.PersistentFlags().Int("timeout", 0, "per-wait timeout in seconds (default from config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log harness and server chatter")

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewDiagCommand())
	rootCmd.AddCommand(NewSymbolsCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Print("slang-harness version: ")
			valueColor.Println(Version)

			titleColor.Print("Git commit: ")
			valueColor.Println(GitCommit)

			titleColor.Print("Build date: ")
			valueColor.Println(BuildDate)

			titleColor.Print("Go version: ")
			valueColor.Println(goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig merges the configuration file with command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if binary, _ := flags.GetString("binary"); binary != "" {
		cfg.Binary = binary
	}
	if rr, _ := flags.GetBool("rr"); rr {
		cfg.Record = true
	}
	if gdb, _ := flags.GetInt("gdb"); gdb > 0 {
		cfg.DebugWaitSeconds = gdb
	}
	if workspace, _ := flags.GetString("workspace"); workspace != "" {
		cfg.Workspace = workspace
	}
	if timeout, _ := flags.GetInt("timeout"); timeout > 0 {
		cfg.TimeoutSeconds = timeout
	}

	return cfg, nil
}

// newLogger builds the harness logger. Quiet by default; verbose switches to
// development output so server stderr chatter becomes visible.
func newLogger(cmd *cobra.Command) *zap.Logger {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

// acquireSession starts the server and completes the handshake using the
// merged configuration.
func acquireSession(cmd *cobra.Command) (*harness.Session, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	session, err := harness.Acquire(cmd.Context(), harness.Config{
		Binary:           cfg.Binary,
		Record:           cfg.Record,
		DebugWait:        cfg.DebugWait(),
		WorkspaceRoot:    cfg.Workspace,
		HandshakeTimeout: cfg.Timeout(),
		Logger:           newLogger(cmd),
	})
	if err != nil {
		return nil, nil, err
	}
	return session, cfg, nil
}

// waitTimeout returns a sane per-wait timeout even if config validation was
// bypassed.
func waitTimeout(cfg *config.Config) time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return cfg.Timeout()
}
