package cli

import (
	"context"
	"errors"

	"github.com/BrennanVollmar/vplm/internal/app"
	"github.com/BrennanVollmar/vplm/internal/config"
	"github.com/BrennanVollmar/vplm/internal/relay"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/BrennanVollmar/vplm/internal/remote/memremote"
	"github.com/BrennanVollmar/vplm/internal/remote/pgremote"
	"github.com/spf13/cobra"
)

var errNoRelaySecret = errors.New("relay_secret is not set")

// openRelayBackend picks the relay storage. Swapped in tests.
var openRelayBackend = func(ctx context.Context, cfg *config.Config) (remote.Client, error) {
	if cfg.RelayBackend == config.RemotePostgres {
		return pgremote.Open(ctx, cfg.RemoteDSN)
	}
	return memremote.NewClient(), nil
}

func (r *runner) tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token [token]",
		Short: "Save the access token used for the gRPC remote",
		Long: `Save the access token sent to the gRPC remote. Without an argument the
token is read from the terminal without echo, or from stdin when piped.
An access_token in the config file takes precedence over the saved one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				var err error
				if token, err = GetSecret(r.in, "Access token:", r.out); err != nil {
					return err
				}
			}
			if token == "" {
				return errors.New("empty token")
			}
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.SaveToken(ctx, token)
			})
		},
	}
}

func (r *runner) relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a sync relay other devices can use as their gRPC remote",
		Long: `Serve the remote table protocol on --relay-addr. Rows are kept in memory
or, with --relay-backend postgres, in the database given by --remote-dsn.

With relay_secret set, every call except ping needs a device token minted
by "relay token".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if r.cfg.RelaySecret == "" {
				r.logger.Warn(ctx, "relay_secret is not set, accepting unauthenticated calls")
			}
			backend, err := openRelayBackend(ctx, r.cfg)
			if err != nil {
				return err
			}
			defer backend.Close()
			return relay.NewServer(r.cfg.RelayAddr, r.logger, backend, r.cfg.RelaySecret).Run(ctx)
		},
	}

	token := &cobra.Command{
		Use:   "token <device>",
		Short: "Mint a device token signed with relay_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.cfg.RelaySecret == "" {
				return errNoRelaySecret
			}
			t, err := relay.GenerateToken(args[0], []byte(r.cfg.RelaySecret), r.cfg.TokenTTL)
			if err != nil {
				return err
			}
			r.printf("%s\n", t)
			return nil
		},
	}

	cmd.AddCommand(token)
	return cmd
}
