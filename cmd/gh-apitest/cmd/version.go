package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rneatherway/gh-apitest/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "gh-apitest %s (%s)\n", version.Version(), version.Commit())
		return nil
	},
}
