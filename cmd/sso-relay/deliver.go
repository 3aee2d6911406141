package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcogenualdo/sso-relay/internal/host"
)

type notHandledError struct{}

func (e *notHandledError) Error() string {
	return "redirect was not handled by a pending flow"
}

// newDeliverCmd is what the OS runs for a custom-scheme redirect: it hands
// the URI to the instance that started the flow.
func newDeliverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "deliver <uri>",
		Short: "Forward a redirect URI to the running sso-relay instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			handled, err := host.NewForwarder(cfg.ServerURL(), timeout).Forward(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !handled {
				logger.Warn("redirect not handled")
				return &notHandledError{}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "redirect delivered")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the running instance")

	return cmd
}
