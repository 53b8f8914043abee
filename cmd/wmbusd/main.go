// Command wmbusd receives wM-Bus telegrams from CUL and raw serial dongles.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// DefaultConfigPath is used when neither --config nor WMBUS_CONFIG is set.
const DefaultConfigPath = "/etc/wmbusd/wmbusd.toml"

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wmbusd",
		Short:         "wM-Bus dongle receiver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if !cmd.Flags().Changed("config") {
				if p, ok := os.LookupEnv("WMBUS_CONFIG"); ok {
					configPath = p
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "configuration file (.toml, .yaml)")

	root.AddCommand(
		newRunCmd(),
		newDetectCmd(),
		newPortsCmd(),
		newConsoleCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wmbusd:", err)
		os.Exit(1)
	}
}
