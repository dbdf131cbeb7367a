package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd(configFile *string) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the catalog authorization",
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "user to authorize (defaults to auth.user_id)")

	userID := func(a *app) string {
		if user != "" {
			return user
		}
		return a.cfg.Auth.UserID
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "url",
			Short: "Print an authorization URL",
			Long: "Print an authorization URL. The pending request is kept in the configured storage, " +
				"so with the memory driver the callback must reach a daemon started by this same process.",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := loadApp(cmd.Context(), *configFile)
				if err != nil {
					return err
				}
				defer a.Close()

				req, err := a.flow.AuthorizationRequest(cmd.Context(), userID(a))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), req.URL)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the user holds a usable session",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := loadApp(cmd.Context(), *configFile)
				if err != nil {
					return err
				}
				defer a.Close()

				st, err := a.flow.Status(cmd.Context(), userID(a))
				if err != nil {
					return err
				}
				switch {
				case st.Authenticated:
					fmt.Fprintf(cmd.OutOrStdout(), "authenticated until %s\n", st.ExpiresAt.Format("2006-01-02 15:04"))
				case st.Expired:
					fmt.Fprintln(cmd.OutOrStdout(), "session expired, run `companion auth url` to reconnect")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "not connected, run `companion auth url` to connect")
				}
				return nil
			},
		},
	)
	return cmd
}
