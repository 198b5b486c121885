package cmd

import (
	"fmt"

	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List interfaces available for capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := pcap.FindAllDevs()
		if err != nil {
			return fmt.Errorf("failed to enumerate devices: %w", err)
		}

		for _, dev := range devices {
			fmt.Printf("%s", dev.Name)
			if dev.Description != "" {
				fmt.Printf("  (%s)", dev.Description)
			}
			fmt.Println()
			for _, addr := range dev.Addresses {
				fmt.Printf("    %s\n", addr.IP)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
