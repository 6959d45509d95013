// Package cli implements the ayni command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coomunity/ayni/internal/app/economy"
	"github.com/coomunity/ayni/internal/daemon"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigPath string
	Home       string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the ayni CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ayni",
		Short: "Ayni - reciprocity scoring and revenue distribution",
		Long: `Ayni scores community members by how they give and receive, keeps a
double-entry ledger of Ünits, and splits revenue pools exactly, with bonuses
for members who keep the exchange in balance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Home == "" {
				opts.Home = daemon.Home()
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default <home>/config.toml)")
	cmd.PersistentFlags().StringVar(&opts.Home, "home", "", "home directory (default $AYNI_HOME or ~/.ayni)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewActorCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewEventCommand(opts))
	cmd.AddCommand(NewLeaderboardCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewGrantCommand(opts))
	cmd.AddCommand(NewReverseCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewDistributeCommand(opts))
	cmd.AddCommand(NewDistributionCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// ─── Shared plumbing ────────────────────────────────────────────────────────

func (o *RootOptions) loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig(o.ConfigPath, o.Home)
	if err != nil {
		return daemon.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

func (o *RootOptions) openDaemon(cmd *cobra.Command) (*daemon.Daemon, daemon.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, daemon.Config{}, err
	}
	log := cfg.NewLogger(cmd.ErrOrStderr(), o.Verbose)
	d, err := daemon.Open(cfg, log)
	if err != nil {
		return nil, daemon.Config{}, WrapExitError(ExitFailure, "open store", err)
	}
	return d, cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// withService opens the store, runs fn and maps its error to an exit code.
func (o *RootOptions) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error) error {
	d, _, err := o.openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	return exitErrorFor(fn(cmd.Context(), d.Service(), o.formatter(cmd)))
}
