// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "japroxy",
	Short: "JAProxy - passive traffic observer for Jedi Academy servers",
	Long: `JAProxy attaches to a network interface, filters for a single game
server endpoint, and decodes the IPv4/UDP framing of every packet exchanged
with that server. Payloads are handed to per-direction handlers so the client
and server protocol state can be reconstructed downstream.

Capture backends: libpcap (default), Linux AF_PACKET, and pcap replay files.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional, flags override file values)")
}
