package cmd

import (
	"context"

	"digital_rf/internal/api"
	dbkafka "digital_rf/internal/database/kafka"
	dbminio "digital_rf/internal/database/minio"
	dbredis "digital_rf/internal/database/redis"
	"digital_rf/pkg/ratelimiter"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动状态 HTTP 服务 (版本、能力、通道、指标)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cfg.Server
		flags := cmd.Flags()
		if flags.Changed("addr") {
			sc.Address, _ = flags.GetString("addr")
		}
		if flags.Changed("data-dir") {
			sc.DataDir, _ = flags.GetString("data-dir")
		}

		ctx, cancel := signalContext()
		defer cancel()
		pkg, err := loadPackage(ctx, "")
		if err != nil {
			return err
		}
		h := api.NewHandler(pkg, sc.DataDir)
		if sc.RateLimit > 0 {
			h.SetRateLimiter(ratelimiter.NewTokenBucket(sc.RateLimit, sc.Burst))
		}
		if err := addHealthChecks(ctx, h); err != nil {
			return err
		}
		defer dbredis.Close()
		srv := api.NewServer(sc.Address, h, log)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "监听地址")
	serveCmd.Flags().String("data-dir", "", "对外暴露的数据根目录")
	rootCmd.AddCommand(serveCmd)
}

// addHealthChecks 为配置中出现的外部依赖注册健康检查。
func addHealthChecks(ctx context.Context, h *api.Handler) error {
	dbs := cfg.Databases
	if dbs.Redis.Address != "" {
		if _, err := dbredis.GetClient(ctx, &dbs.Redis, log); err != nil {
			return err
		}
		h.AddCheck("redis", dbredis.HealthCheck)
	}
	if dbs.MinIO.Endpoint != "" {
		if _, err := dbminio.GetClient(ctx, &dbs.MinIO, log); err != nil {
			return err
		}
		h.AddCheck("minio", dbminio.HealthCheck)
	}
	if len(dbs.Kafka.Brokers) > 0 {
		client, err := dbkafka.GetClient(ctx, &dbs.Kafka, log)
		if err != nil {
			return err
		}
		h.AddCheck("kafka", client.HealthCheck)
	}
	return nil
}
