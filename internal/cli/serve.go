package cli

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coomunity/ayni/internal/daemon"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API and live activity feed until interrupted.

The listen address comes from [api] in config.toml, AYNI_API_HOST and
AYNI_API_PORT, or --addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --addr", err)
				}
				if cfg.API.Port, err = strconv.Atoi(port); err != nil {
					return WrapExitError(ExitCommandError, "invalid --addr", err)
				}
				cfg.API.Host = host
				if err := cfg.Validate(); err != nil {
					return WrapExitError(ExitCommandError, "invalid --addr", err)
				}
			}

			d, err := daemon.Open(cfg, cfg.NewLogger(cmd.ErrOrStderr(), opts.Verbose))
			if err != nil {
				return WrapExitError(ExitFailure, "open store", err)
			}
			defer d.Close()
			if err := d.Run(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "serve", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address host:port (overrides config)")
	return cmd
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			var encodeErr error
			err = opts.formatter(cmd).Success(cfg, func(w io.Writer) {
				encodeErr = cfg.Encode(w)
			})
			if err == nil {
				err = encodeErr
			}
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("print config %s", opts.Home), err)
			}
			return nil
		},
	})
	return cmd
}
