package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service"
	"github.com/ifuryst/cadence/pkg/clock"
)

func newTOTPSecretCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "totp-secret",
		Short: "Generate a TOTP secret for auth.totp_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTOTPSecret(cmd.OutOrStdout(), service.NewAuthService(zap.NewNop(), clock.System(), ""), account)
		},
	}
	cmd.Flags().StringVar(&account, "account", "admin", "account name shown in the authenticator app")

	return cmd
}

func writeTOTPSecret(w io.Writer, auth *service.AuthService, account string) error {
	key, err := auth.GenerateSecret(account)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "secret: %s\n", key.Secret())
	fmt.Fprintf(w, "url:    %s\n", key.URL())
	fmt.Fprintln(w, "Set auth.totp_secret (or the env var it references) to the secret.")
	return nil
}
