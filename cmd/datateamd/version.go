package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tshapedconsultant/datateam/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the datateamd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("datateamd", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
