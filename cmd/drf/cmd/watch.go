package cmd

import (
	"fmt"
	"time"

	"digital_rf/pkg/digitalrf"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "监听目录并输出 Digital RF 文件事件",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := listOptions(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		pkg, err := loadPackage(ctx, digitalrf.ModuleWatchdog)
		if err != nil {
			return err
		}
		w, err := pkg.Watch(args[0], opts)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Start(ctx); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-w.Errors():
				log.WithError(err).Warn("目录监听出错")
			case ev, ok := <-w.Events():
				if !ok {
					return nil
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", ev.Time.Format(time.RFC3339Nano), ev.Op, ev.Path)
			}
		}
	},
}

func init() {
	addFilterFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
