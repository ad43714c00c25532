package cmd

import (
	"fmt"

	"digital_rf/pkg/digitalrf"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [dir...]",
	Short: "列出目录中的 Digital RF 文件",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := listOptions(cmd)
		if err != nil {
			return err
		}
		pkg, err := loadPackage(cmd.Context(), digitalrf.ModuleLsDRF)
		if err != nil {
			return err
		}
		for _, dir := range args {
			paths, err := pkg.LsDRF(dir, opts)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
		}
		return nil
	},
}

func init() {
	addFilterFlags(lsCmd)
	rootCmd.AddCommand(lsCmd)
}
