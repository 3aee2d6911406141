package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcogenualdo/sso-relay/internal/auth"
)

func newLoginCmd() *cobra.Command {
	var req auth.AuthorizeRequest

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print the resulting grant",
		Long: `Open the provider's authorization page, wait for the redirect and print
the grant as JSON on stdout.

Examples:
  sso-relay login
  sso-relay login --scope openid --scope email --prompt login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cmd.Context(), configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var grant *auth.Grant
			err = a.withServer(ctx, func(ctx context.Context) error {
				var err error
				grant, err = a.client.Authorize(ctx, req)
				return err
			})
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), grant)
		},
	}

	cmd.Flags().StringSliceVar(&req.Scopes, "scope", nil, "scopes to request instead of the configured ones")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "prompt parameter, e.g. login or consent")
	cmd.Flags().StringVar(&req.LoginHint, "login-hint", "", "login_hint parameter")
	cmd.Flags().StringToStringVar(&req.AdditionalParameters, "param", nil, "extra authorization request parameters (key=value)")
	cmd.Flags().DurationVar(&req.Timeout, "timeout", 0, "how long to wait for the redirect (default from config)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	var req auth.LogoutRequest

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the provider session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cmd.Context(), configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if req.PostLogoutRedirectURL == "" {
				req.PostLogoutRedirectURL = a.cfg.Flow.PostLogoutRedirectURL
			}

			var result *auth.EndSessionResult
			err = a.withServer(ctx, func(ctx context.Context) error {
				var err error
				result, err = a.client.Logout(ctx, req)
				return err
			})
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&req.IDToken, "id-token", "", "ID token to send as id_token_hint")
	cmd.Flags().StringVar(&req.PostLogoutRedirectURL, "post-logout-redirect-url", "", "post-logout redirect, one of the configured redirect URLs (default flow.post_logout_redirect_url)")
	cmd.Flags().DurationVar(&req.Timeout, "timeout", 0, "how long to wait for the redirect (default from config)")

	return cmd
}

func newRevokeCmd() *cobra.Command {
	var req auth.RevokeRequest

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an access or refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			a, err := newApp(cmd.Context(), configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.client.Revoke(ctx, req)
		},
	}

	cmd.Flags().StringVar(&req.Token, "token", "", "token to revoke")
	cmd.Flags().StringVar(&req.TokenTypeHint, "token-type-hint", "", "access_token or refresh_token")
	cmd.Flags().BoolVar(&req.SendClientID, "send-client-id", true, "send client_id in the request body")
	cmd.Flags().BoolVar(&req.IncludeBasicAuth, "basic-auth", false, "authenticate with the client secret")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}
