package cmd

import (
	"digital_rf/pkg/digitalrf"

	"github.com/spf13/cobra"
)

// addFilterFlags 为命令添加文件筛选参数，未指定的参数沿用配置文件中的 watch 部分。
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("kind", nil, "包含的文件类型: drf, dmd, properties (默认全部)")
	cmd.Flags().String("start", "", "文件时间下限 (RFC3339)")
	cmd.Flags().String("end", "", "文件时间上限 (RFC3339)")
	cmd.Flags().StringSlice("include", nil, "只包含匹配这些 glob 的文件")
	cmd.Flags().StringSlice("exclude", nil, "排除匹配这些 glob 的文件")
}

func listOptions(cmd *cobra.Command) (digitalrf.ListOptions, error) {
	w := cfg.Watch
	flags := cmd.Flags()
	if flags.Changed("kind") {
		w.Kinds, _ = flags.GetStringSlice("kind")
	}
	if flags.Changed("start") {
		w.Start, _ = flags.GetString("start")
	}
	if flags.Changed("end") {
		w.End, _ = flags.GetString("end")
	}
	if flags.Changed("include") {
		w.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		w.Exclude, _ = flags.GetStringSlice("exclude")
	}
	return w.ListOptions()
}
