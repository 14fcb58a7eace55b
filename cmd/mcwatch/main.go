// mcwatch watches Minecraft servers over the server list ping protocol and
// reports when they come online, go offline, or players join and leave.
//
// Events are journaled to SQLite, served over a REST API and a websocket
// stream, posted to Discord and published to MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/energizer-project/mcwatch/internal/api"
)

const (
	AppName    = "mcwatch"
	AppVersion = "1.0.0"
	Banner     = `
                              _       _
  _ __ ___   _____      ____ _| |_ ___| |__
 | '_ ' _ \ / __\ \ /\ / / _' | __/ __| '_ \
 | | | | | | (__ \ V  V / (_| | || (__| | | |
 |_| |_| |_|\___| \_/\_/ \__,_|\__\___|_| |_|  v%s
 Minecraft server watcher
`
)

func main() {
	api.Version = AppVersion

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mcwatch",
		Short:         "Watch Minecraft servers and report status changes",
		Long:          "mcwatch probes Minecraft servers with the server list ping protocol and turns successive results into online/offline and player join/leave events.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newPingCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), AppVersion)
			return err
		},
	}
}
