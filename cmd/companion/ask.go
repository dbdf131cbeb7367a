package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nadzzz/companion/internal/message"
)

func newAskCmd(configFile *string) *cobra.Command {
	var (
		smart  bool
		asJSON bool
		user   string
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Route one message in-process and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.router.Handle(cmd.Context(), &message.Message{
				Source:      "cli",
				UserID:      user,
				Text:        strings.Join(args, " "),
				Instruction: message.Instruction{Smart: smart, ResponseMode: message.ResponseModeText},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reply)
			}
			fmt.Fprintln(out, reply.Response)
			return nil
		},
	}
	cmd.Flags().BoolVar(&smart, "smart", false, "let the language model classify messages no rule matches")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full reply as JSON")
	cmd.Flags().StringVar(&user, "user", "", "user whose catalog session is used")
	return cmd
}
