package cmd

import (
	"digital_rf/internal/config"
	dbredis "digital_rf/internal/database/redis"
	"digital_rf/internal/mirror"
	"digital_rf/pkg/digitalrf"

	"github.com/spf13/cobra"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror [source] [dest]",
	Short: "把 Digital RF 目录复制或移动到其他目录或对象存储",
	Long: `mirror 先同步源目录中已有的文件，然后持续跟随新写入的文件。
属性文件总是被复制。sink 为 minio 时 dest 可以省略，文件上传到配置中的存储桶。`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mc := cfg.Mirror
		if len(args) > 0 {
			mc.Source = args[0]
		}
		if len(args) > 1 {
			mc.Dest = args[1]
		}
		flags := cmd.Flags()
		if flags.Changed("method") {
			mc.Method, _ = flags.GetString("method")
		}
		if flags.Changed("sink") {
			mc.Sink, _ = flags.GetString("sink")
		}
		if flags.Changed("prefix") {
			mc.Prefix, _ = flags.GetString("prefix")
		}
		if flags.Changed("ignore-existing") {
			mc.IgnoreExisting, _ = flags.GetBool("ignore-existing")
		}
		if flags.Changed("settle") {
			mc.Settle, _ = flags.GetString("settle")
		}
		if flags.Changed("state") {
			mc.State, _ = flags.GetString("state")
		}
		once, _ := flags.GetBool("once")

		method, err := mirror.ParseMethod(mc.Method)
		if err != nil {
			return err
		}
		settle, err := config.ParseDuration(mc.Settle)
		if err != nil {
			return err
		}
		opts, err := listOptions(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		pkg, err := loadPackage(ctx, digitalrf.ModuleMirror)
		if err != nil {
			return err
		}
		sink, err := newSink(ctx, mc)
		if err != nil {
			return err
		}
		state, err := newState(ctx, mc)
		if err != nil {
			return err
		}
		defer dbredis.Close()
		pub, err := newPublisher(ctx)
		if err != nil {
			return err
		}
		defer pub.Close()

		m, err := pkg.Mirror(mirror.Options{
			Source:         mc.Source,
			Method:         method,
			IgnoreExisting: mc.IgnoreExisting,
			List:           opts,
			Settle:         settle,
		}, sink, state, pub)
		if err != nil {
			return err
		}
		if once {
			return m.Sync(ctx)
		}
		return m.Run(ctx)
	},
}

func init() {
	f := mirrorCmd.Flags()
	f.String("method", "copy", "镜像方式: copy 或 move")
	f.String("sink", "local", "镜像目标类型: local 或 minio")
	f.String("prefix", "", "对象存储中的键前缀")
	f.Bool("ignore-existing", false, "不处理启动前已存在的文件")
	f.String("settle", "500ms", "文件最后一次变化后等待多久再传输")
	f.String("state", "memory", "已镜像文件状态存储: memory, redis 或 none")
	f.Bool("once", false, "只同步一次已有文件，不持续跟随")
	addFilterFlags(mirrorCmd)
	rootCmd.AddCommand(mirrorCmd)
}
