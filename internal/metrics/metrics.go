// Package metrics 定义进程内的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 是本进程使用的指标注册表，不使用全局默认注册表以便测试隔离。
var Registry = prometheus.NewRegistry()

var (
	// WatchEvents 统计通过筛选的文件事件，按事件类型区分。
	WatchEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drf",
		Subsystem: "watchdog",
		Name:      "events_total",
		Help:      "Number of Digital RF file events emitted by the watcher.",
	}, []string{"op"})

	// MirrorFiles 统计镜像的文件数，按方式 (copy/move) 和结果区分。
	MirrorFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drf",
		Subsystem: "mirror",
		Name:      "files_total",
		Help:      "Number of files transferred by the mirror.",
	}, []string{"method", "result"})

	// MirrorBytes 统计成功镜像的字节数。
	MirrorBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "drf",
		Subsystem: "mirror",
		Name:      "bytes_total",
		Help:      "Number of bytes transferred by the mirror.",
	})

	// MirrorStateEntries 是进程内镜像状态中保存的记录数。
	MirrorStateEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "drf",
		Subsystem: "mirror",
		Name:      "state_entries",
		Help:      "Number of file fingerprints held by the in-memory mirror state.",
	})

	// RingBufferDeletedFiles 统计环形缓冲区删除的文件数。
	RingBufferDeletedFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "drf",
		Subsystem: "ringbuffer",
		Name:      "deleted_files_total",
		Help:      "Number of files expired by the ring buffer.",
	})

	// RingBufferDeletedBytes 统计环形缓冲区删除的字节数。
	RingBufferDeletedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "drf",
		Subsystem: "ringbuffer",
		Name:      "deleted_bytes_total",
		Help:      "Number of bytes expired by the ring buffer.",
	})

	// RingBufferTracked 是环形缓冲区当前跟踪的文件数和字节数。
	RingBufferTracked = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "drf",
		Subsystem: "ringbuffer",
		Name:      "tracked",
		Help:      "Files and bytes currently tracked by the ring buffer.",
	}, []string{"unit"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		WatchEvents,
		MirrorFiles,
		MirrorBytes,
		MirrorStateEntries,
		RingBufferDeletedFiles,
		RingBufferDeletedBytes,
		RingBufferTracked,
	)
}

// Handler 返回暴露 Registry 中全部指标的 HTTP 处理器。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
