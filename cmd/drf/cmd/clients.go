package cmd

import (
	"context"
	"fmt"

	"digital_rf/internal/config"
	dbkafka "digital_rf/internal/database/kafka"
	dbminio "digital_rf/internal/database/minio"
	dbredis "digital_rf/internal/database/redis"
	"digital_rf/internal/events"
	"digital_rf/internal/mirror"
	"digital_rf/pkg/circuitbreaker"
)

// newPublisher 在配置了 Kafka brokers 时返回 Kafka 事件发布器，否则不发布事件。
func newPublisher(ctx context.Context) (events.Publisher, error) {
	if len(cfg.Databases.Kafka.Brokers) == 0 {
		return events.Nop{}, nil
	}
	client, err := dbkafka.GetClient(ctx, &cfg.Databases.Kafka, log)
	if err != nil {
		return nil, err
	}
	return events.NewKafkaPublisher(client), nil
}

// newSink 根据配置创建镜像目标。
func newSink(ctx context.Context, mc config.MirrorConfig) (mirror.Sink, error) {
	switch mc.Sink {
	case "local":
		return mirror.NewLocalSink(mc.Dest)
	case "minio":
		client, err := dbminio.GetClient(ctx, &cfg.Databases.MinIO, log)
		if err != nil {
			return nil, err
		}
		var breaker *circuitbreaker.Breaker
		if cb := cfg.CircuitBreaker; cb.Enabled {
			timeout, err := config.ParseDuration(cb.Timeout)
			if err != nil {
				return nil, err
			}
			breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, timeout)
		}
		return mirror.NewMinIOSink(client, cfg.Databases.MinIO.Bucket, mc.Prefix, breaker), nil
	default:
		return nil, fmt.Errorf("未知的镜像目标类型 %q (可选: local, minio)", mc.Sink)
	}
}

// newState 根据配置创建镜像状态存储。
func newState(ctx context.Context, mc config.MirrorConfig) (mirror.State, error) {
	switch mc.State {
	case "memory":
		return mirror.NewMemoryState(mc.StateCapacity)
	case "redis":
		client, err := dbredis.GetClient(ctx, &cfg.Databases.Redis, log)
		if err != nil {
			return nil, err
		}
		return mirror.NewRedisState(client, cfg.Databases.Redis.KeyPrefix, 0), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的镜像状态存储 %q (可选: memory, redis, none)", mc.State)
	}
}
