package mirror

import (
	"context"
	"fmt"
	"os"
	"time"

	"digital_rf/internal/metrics"
	"digital_rf/pkg/util"

	"github.com/djherbis/times"
	"github.com/go-redis/redis/v8"
)

// Fingerprint 标识文件的一个版本。大小或修改时间变化都视为新版本。
type Fingerprint struct {
	Size    int64
	ModTime time.Time
}

// String 返回用于存储的紧凑表示。
func (f Fingerprint) String() string {
	return fmt.Sprintf("%d:%d", f.Size, f.ModTime.UnixNano())
}

// Stat 读取文件的 Fingerprint。
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: info.Size(), ModTime: times.Get(info).ModTime()}, nil
}

// State 记录已经镜像过的文件版本，用于跳过未变化的文件。实现必须可以并发调用。
type State interface {
	// Seen 报告 rel 的 fp 版本是否已经镜像过。
	Seen(ctx context.Context, rel string, fp Fingerprint) (bool, error)
	// Mark 记录 rel 的 fp 版本已经镜像。
	Mark(ctx context.Context, rel string, fp Fingerprint) error
}

// MemoryState 是基于 LRU 缓存的进程内状态，容量满时淘汰最久未使用的记录。
type MemoryState struct {
	cache *util.LRUCache[string, string]
}

// NewMemoryState 创建最多保存 capacity 条记录的 MemoryState。
func NewMemoryState(capacity int) (*MemoryState, error) {
	cache, err := util.NewLRU[string, string](util.CacheConfig{Capacity: capacity}, nil)
	if err != nil {
		return nil, err
	}
	return &MemoryState{cache: cache}, nil
}

func (s *MemoryState) Seen(_ context.Context, rel string, fp Fingerprint) (bool, error) {
	v, ok := s.cache.Get(rel)
	return ok && v == fp.String(), nil
}

func (s *MemoryState) Mark(_ context.Context, rel string, fp Fingerprint) error {
	s.cache.Put(rel, fp.String(), 1)
	metrics.MirrorStateEntries.Set(float64(s.cache.Len()))
	return nil
}


// kv 是 redis.Client 中被用到的部分。
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisState 把镜像状态保存在 Redis 中，多个镜像进程可以共享。
type RedisState struct {
	client kv
	prefix string
	ttl    time.Duration
}

// NewRedisState 创建 RedisState。ttl 为 0 时记录永不过期。
func NewRedisState(client *redis.Client, prefix string, ttl time.Duration) *RedisState {
	return &RedisState{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisState) Seen(ctx context.Context, rel string, fp Fingerprint) (bool, error) {
	v, err := s.client.Get(ctx, s.prefix+rel).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("读取镜像状态失败: %w", err)
	}
	return v == fp.String(), nil
}

func (s *RedisState) Mark(ctx context.Context, rel string, fp Fingerprint) error {
	if err := s.client.Set(ctx, s.prefix+rel, fp.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("写入镜像状态失败: %w", err)
	}
	return nil
}
