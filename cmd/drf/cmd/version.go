package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本和可用能力",
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, err := loadPackage(cmd.Context(), "")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "digital_rf %s\n", pkg.Version())
		for _, name := range pkg.Capabilities() {
			fmt.Fprintf(out, "  %s\n", name)
		}
		for group, reason := range pkg.Skipped() {
			fmt.Fprintf(out, "  (%s 不可用: %v)\n", group, reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
