package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/spf13/cobra"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage PPMI portal credentials",
	}

	cmd.AddCommand(newAuthSetCmd(app), newAuthRemoveCmd(app), newAuthVerifyCmd(app))

	return cmd
}

func newAuthSetCmd(app *app) *cobra.Command {
	var login string
	var password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the portal login and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passwordStdin {
				if password != "" {
					return errors.New("--password and --password-stdin are mutually exclusive")
				}
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			if err := app.credentials.Save(cmd.Context(), domain.Credentials{Login: strings.TrimSpace(login), Password: password}); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "credentials stored for %s\n", strings.TrimSpace(login))
			return err
		},
	}

	cmd.Flags().StringVar(&login, "login", "", "Portal login (e-mail)")
	cmd.Flags().StringVar(&password, "password", "", "Portal password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("login")

	return cmd
}

func newAuthRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the stored portal credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.credentials.Remove(cmd.Context())
		},
	}
}

func newAuthVerifyCmd(app *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Log into the portal with the stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := app.credentials.Load(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := app.newService(cmd.Context(), "")
			if err != nil {
				return err
			}

			_, err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Logging in...", quiet, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, svc.VerifyLogin(ctx)
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "login ok for %s\n", creds.Login)
			return err
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not show progress")

	return cmd
}
