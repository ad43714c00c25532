// Package events 定义镜像与环形缓冲区对外发布的文件事件。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dbkafka "digital_rf/internal/database/kafka"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Kind 是文件事件的类型。
type Kind string

const (
	KindMirrored Kind = "mirrored" // 文件已复制或移动到镜像目标
	KindExpired  Kind = "expired"  // 文件被环形缓冲区删除
)

// Event 描述一次文件级别的操作结果。
type Event struct {
	ID     string    `json:"id"`
	Kind   Kind      `json:"kind"`
	Path   string    `json:"path"`
	Target string    `json:"target,omitempty"`
	Size   int64     `json:"size"`
	Time   time.Time `json:"time"`
	DryRun bool      `json:"dry_run,omitempty"`
}

// New 创建一个带有唯一 ID 和当前时间的事件。
func New(kind Kind, path string, size int64) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Path: path, Size: size, Time: time.Now().UTC()}
}

// Publisher 发布文件事件。实现必须可以并发调用。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop 是丢弃所有事件的 Publisher。
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder 在内存中保存发布过的事件，用于测试和状态接口。
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events 返回已记录事件的副本。
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// messageWriter 是 kafka.Writer 中被用到的部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 将事件序列化为 JSON 并写入 Kafka，消息键为文件路径。
type KafkaPublisher struct {
	writer messageWriter
	closer func() error
}

// NewKafkaPublisher 使用已初始化的 Kafka 客户端创建发布器，关闭发布器时一并关闭客户端。
func NewKafkaPublisher(client *dbkafka.Client) *KafkaPublisher {
	return &KafkaPublisher{writer: client.Writer, closer: client.Close}
}

// Publish 发送一条事件。
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化文件事件失败: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Path),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("写入 Kafka 消息失败: %w", err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *KafkaPublisher) Close() error {
	if p.closer != nil {
		return p.closer()
	}
	return p.writer.Close()
}
