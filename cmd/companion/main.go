// Companion is a desktop anime companion daemon. It answers chat messages,
// executes list commands against the user's MyAnimeList account, and speaks
// its replies.
//
// Usage:
//
//	companion serve [--config /path/to/companion.yaml]
//	companion ask "add Frieren to my list"
//	companion auth url
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "companion",
		Short:        "Anime companion daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/companion.yaml)")

	root.AddCommand(
		newServeCmd(&configFile),
		newAskCmd(&configFile),
		newAuthCmd(&configFile),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "companion %s\n", version)
			},
		},
	)
	return root
}
