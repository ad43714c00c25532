package minio

import (
	"context"
	"fmt"
	"sync"

	"digital_rf/internal/config"
	"digital_rf/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 MinIO 客户端实例。
// 首次调用时会确认镜像目标存储桶存在，不存在则创建。
func GetClient(ctx context.Context, cfg *config.MinIOConfig, log *logger.Logger) (*minio.Client, error) {
	once.Do(func() {
		client, initErr = connect(ctx, cfg)
		if initErr == nil && log != nil {
			log.WithField("endpoint", cfg.Endpoint).WithField("bucket", cfg.Bucket).Info("成功连接到 MinIO")
		}
	})
	return client, initErr
}

func connect(ctx context.Context, cfg *config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("未配置 MinIO endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("未配置 MinIO bucket")
	}
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建 MinIO 客户端: %w", err)
	}

	exists, err := c.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化健康检查失败: %w", err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建存储桶 '%s' 失败: %w", cfg.Bucket, err)
		}
	}
	return c, nil
}

// HealthCheck 检查 MinIO 连接的健康状况。
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MinIO 客户端未初始化")
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("MinIO 健康检查失败: %w", err)
	}
	return nil
}
