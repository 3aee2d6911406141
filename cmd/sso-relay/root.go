package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marcogenualdo/sso-relay/internal/flow"
)

const (
	ExitCodeSuccess    = 0
	ExitCodeError      = 1
	ExitCodeNotHandled = 2
	ExitCodeAuthFailed = 3
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sso-relay",
		Short: "Run browser-based OAuth, OIDC and SAML sign-in from the command line",
		Long: `sso-relay opens the identity provider's sign-in page in an external
user-agent, waits for the redirect on a loopback listener and prints the
resulting grant as JSON.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "sso-relay version %s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to configuration file")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newRevokeCmd(),
		newDeliverCmd(),
		newVersionCmd(),
	)

	return root
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps flow failures to exit codes scripts can branch on.
func getExitCode(err error) int {
	var notHandled *notHandledError
	if errors.As(err, &notHandled) {
		return ExitCodeNotHandled
	}

	var serverErr *flow.ServerError
	if errors.As(err, &serverErr) || errors.Is(err, flow.ErrTimeout) || errors.Is(err, flow.ErrCancelled) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "sso-relay", "config.yaml")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sso-relay",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sso-relay version %s\n", version)
		},
	}
}
