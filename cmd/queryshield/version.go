package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show QueryShield version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("QueryShield %s (%s)\n", Version, build)
	},
}
