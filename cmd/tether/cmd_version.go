package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Tether %s - EC2 attachment inventory\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
