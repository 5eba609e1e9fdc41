package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxfilter/cli/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version, commit hash, and build date of fluxfilter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := getFormatter(cmd)
		if f.Format != output.FormatTable {
			return f.Print(map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_date": BuildDate,
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "fluxfilter %s\n", Version)
		fmt.Fprintf(out, "Commit: %s\n", Commit)
		fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
		return nil
	},
}
