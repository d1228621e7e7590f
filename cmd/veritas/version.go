package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veritas/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the veritas version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("veritas version %s\n", version.Get())
	},
}
