package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "potrack",
	Short: "Purchase-order tracking service",
	Long:  `potrack tracks manufacturing purchase orders through departmental progress, deliveries and issues, and keeps connected clients in sync in realtime`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
