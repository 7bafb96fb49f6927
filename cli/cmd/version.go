package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version information",
	Long:  `Display the version, commit hash, and build date of ocrload.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ocrload %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", BuildDate)
	},
}
