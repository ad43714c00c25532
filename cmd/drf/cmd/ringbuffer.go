package cmd

import (
	"fmt"
	"math"
	"strings"

	"digital_rf/internal/config"
	"digital_rf/internal/ringbuffer"
	"digital_rf/pkg/digitalrf"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var ringbufferCmd = &cobra.Command{
	Use:   "ringbuffer [dir]",
	Short: "按文件数、字节数或时长限制 Digital RF 目录的大小",
	Long: `ringbuffer 对每个通道分别应用限制，超出时从最旧的文件开始删除。
--size 为负数 (例如 -10GB) 时表示文件系统上至少保留这么多剩余空间。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := cfg.RingBuffer
		if len(args) > 0 {
			rc.Dir = args[0]
		}
		flags := cmd.Flags()
		if flags.Changed("count") {
			rc.Count, _ = flags.GetInt("count")
		}
		if flags.Changed("size") {
			rc.Size, _ = flags.GetString("size")
		}
		if flags.Changed("duration") {
			rc.Duration, _ = flags.GetString("duration")
		}
		if flags.Changed("dry-run") {
			rc.DryRun, _ = flags.GetBool("dry-run")
		}
		once, _ := flags.GetBool("once")

		size, err := parseSize(rc.Size)
		if err != nil {
			return err
		}
		duration, err := config.ParseDuration(rc.Duration)
		if err != nil {
			return err
		}
		opts, err := listOptions(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		pkg, err := loadPackage(ctx, digitalrf.ModuleRingBuffer)
		if err != nil {
			return err
		}
		pub, err := newPublisher(ctx)
		if err != nil {
			return err
		}
		defer pub.Close()

		rb, err := pkg.RingBuffer(ringbuffer.Options{
			Dir:      rc.Dir,
			Count:    rc.Count,
			Size:     size,
			Duration: duration,
			List:     opts,
			DryRun:   rc.DryRun,
		}, pub)
		if err != nil {
			return err
		}
		if once {
			return rb.Scan(ctx)
		}
		return rb.Run(ctx)
	},
}

// parseSize 解析 "10GB"、"512MiB" 这类字节数，允许前导负号。空字符串返回 0。
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	n, err := humanize.ParseBytes(strings.TrimPrefix(s, "-"))
	if err != nil {
		return 0, fmt.Errorf("无效的大小 '%s': %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("大小 '%s' 超出范围", s)
	}
	if neg {
		return -int64(n), nil
	}
	return int64(n), nil
}

func init() {
	f := ringbufferCmd.Flags()
	f.Int("count", 0, "每个通道保留的最大文件数")
	f.String("size", "", "每个通道保留的最大字节数，负数表示需要保留的剩余空间")
	f.String("duration", "", "每个通道保留的时长，例如 1h")
	f.Bool("dry-run", false, "只输出将要删除的文件")
	f.Bool("once", false, "只执行一次，不持续跟随")
	addFilterFlags(ringbufferCmd)
	rootCmd.AddCommand(ringbufferCmd)
}
