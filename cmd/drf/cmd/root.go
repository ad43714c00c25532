package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"digital_rf/internal/config"
	"digital_rf/pkg/digitalrf"
	"digital_rf/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// 由 PersistentPreRunE 初始化，供子命令使用
	cfg *config.AppConfig
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "drf",
	Short: "Digital RF 数据目录工具",
	Long: `drf 用于管理 Digital RF 数据目录: 列出文件、监听变化、镜像到其他存储、
以环形缓冲区方式限制磁盘占用，以及提供状态 HTTP 服务。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}
		if logLevel != "" {
			cfg.Logger.Level = logLevel
		}
		logger.Init(logger.ParseLevel(cfg.Logger.Level))
		log = logger.New(cfg.App.Name).WithField("command", cmd.Name())
		return nil
	},
}

// Execute 执行根命令，由 main.main() 调用。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML 配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")
}

// signalContext 返回在收到 SIGINT / SIGTERM 时取消的 context。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadPackage 加载工具包并要求 name 能力可用。
func loadPackage(ctx context.Context, name string) (*digitalrf.Package, error) {
	pkg, err := digitalrf.Load(ctx, digitalrf.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if name != "" && !pkg.Has(name) {
		reason := pkg.Skipped()[digitalrf.GroupWatchdog]
		return nil, fmt.Errorf("%s 不可用: %v", name, reason)
	}
	return pkg, nil
}
