// Package ringbuffer 把 Digital RF 目录维持在给定的文件数、字节数或时长以内，
// 超出限制时从每个通道最旧的文件开始删除。
package ringbuffer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"digital_rf/internal/events"
	"digital_rf/internal/layout"
	"digital_rf/internal/metrics"
	"digital_rf/internal/watchdog"
	"digital_rf/pkg/logger"
)

// Options 定义环形缓冲区的限制，至少要设置一个。
type Options struct {
	Dir string
	// Count 是每个通道保留的最大文件数，0 表示不限制。
	Count int
	// Size 为正数时是每个通道保留的最大字节数；
	// 为负数时表示文件系统上至少要保留 -Size 字节的剩余空间；0 表示不限制。
	Size int64
	// Duration 只保留时间不早于 (通道最新文件时间 - Duration) 的文件，0 表示不限制。
	Duration time.Duration
	List     watchdog.ListOptions
	// DryRun 为 true 时只记录将要删除的文件。
	DryRun bool
}

type file struct {
	path string
	ms   uint64
	size int64
}

func less(a, b file) bool {
	if a.ms != b.ms {
		return a.ms < b.ms
	}
	return a.path < b.path
}

// group 是一个通道内按时间排序的文件队列。
type group struct {
	files []file
	size  int64
}

func (g *group) find(path string, ms uint64) (int, bool) {
	f := file{path: path, ms: ms}
	i := sort.Search(len(g.files), func(i int) bool { return !less(g.files[i], f) })
	return i, i < len(g.files) && g.files[i].path == path
}

// RingBuffer 跟踪目录中的数据文件并按限制删除最旧的文件。
type RingBuffer struct {
	opts Options
	pub  events.Publisher
	log  *logger.Logger

	// freeSpace 可在测试中替换
	freeSpace func(string) (uint64, error)

	mu     sync.Mutex
	groups map[string]*group
	// DryRun 模式下已 "删除" 但仍留在磁盘上的文件及其大小，freed 是它们的总和
	dryExpired map[string]int64
	freed      uint64
}

// New 创建环形缓冲区。pub 可以为 nil。
func New(opts Options, pub events.Publisher, log *logger.Logger) (*RingBuffer, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("未指定环形缓冲区目录")
	}
	if opts.Count < 0 {
		return nil, fmt.Errorf("文件数限制不能为负数: %d", opts.Count)
	}
	if opts.Duration < 0 {
		return nil, fmt.Errorf("时长限制不能为负数: %s", opts.Duration)
	}
	if opts.Count == 0 && opts.Size == 0 && opts.Duration == 0 {
		return nil, fmt.Errorf("必须至少设置 count、size、duration 中的一个限制")
	}
	abs, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	opts.Dir = abs
	// 属性文件永远不会被删除，也不需要跟踪
	opts.List.IncludeProperties = false
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RingBuffer{
		opts:      opts,
		pub:       pub,
		log:       log.WithComponent("ringbuffer").WithField("dir", abs).WithField("dry_run", opts.DryRun),
		freeSpace: freeSpace,
		groups:     make(map[string]*group),
		dryExpired: make(map[string]int64),
	}, nil
}

// channelOf 返回数据文件所属的通道目录 (子目录的上一级)。
func channelOf(path string) string {
	return filepath.Dir(filepath.Dir(path))
}

// Scan 跟踪目录中已有的全部数据文件，然后执行一次 Expire。
func (rb *RingBuffer) Scan(ctx context.Context) error {
	files, err := watchdog.ListFiles(rb.opts.Dir, rb.opts.List)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, f := range files {
		if _, err := rb.Add(f.Path); err != nil {
			rb.log.WithField("path", f.Path).WithError(err).Warn("跟踪文件失败")
		}
	}
	_, err = rb.Expire(ctx)
	return err
}

// Add 开始跟踪 path，已跟踪时更新其大小。返回是否为新文件。
// 不是 .drf / .dmd 数据文件的路径被忽略。
func (rb *RingBuffer) Add(path string) (bool, error) {
	kind, ms := layout.Classify(path)
	if kind != layout.KindRF && kind != layout.KindMetadata {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if _, ok := rb.dryExpired[path]; ok {
		// dry run 中已处理过的文件不再重复跟踪
		return false, nil
	}
	key := channelOf(path)
	g, ok := rb.groups[key]
	if !ok {
		g = &group{}
		rb.groups[key] = g
	}
	i, found := g.find(path, ms)
	if found {
		g.size += info.Size() - g.files[i].size
		g.files[i].size = info.Size()
		rb.updateGauges()
		return false, nil
	}
	g.files = append(g.files, file{})
	copy(g.files[i+1:], g.files[i:])
	g.files[i] = file{path: path, ms: ms, size: info.Size()}
	g.size += info.Size()
	rb.updateGauges()
	return true, nil
}

// Remove 停止跟踪 path (例如文件已被其他进程删除)。
func (rb *RingBuffer) Remove(path string) bool {
	_, ms := layout.Classify(path)
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if size, ok := rb.dryExpired[path]; ok {
		// 文件真正消失，释放的空间已体现在剩余空间中
		delete(rb.dryExpired, path)
		rb.freed -= uint64(size)
		return true
	}
	key := channelOf(path)
	g, ok := rb.groups[key]
	if !ok {
		return false
	}
	i, found := g.find(path, ms)
	if !found {
		return false
	}
	rb.dropAt(key, g, i)
	rb.updateGauges()
	return true
}

// Stats 返回当前跟踪的文件数和字节数。
func (rb *RingBuffer) Stats() (files int, bytes int64) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for _, g := range rb.groups {
		files += len(g.files)
		bytes += g.size
	}
	return files, bytes
}

// Expire 对每个通道应用限制，删除超出限制的最旧文件，返回删除的文件数。
func (rb *RingBuffer) Expire(ctx context.Context) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	keys := make([]string, 0, len(rb.groups))
	for k := range rb.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	deleted := 0
	var errs []error
	for _, key := range keys {
		g := rb.groups[key]
		for len(g.files) > 0 && rb.overLimit(g) {
			if err := ctx.Err(); err != nil {
				return deleted, err
			}
			if err := rb.expire(ctx, key, g, 0); err != nil {
				errs = append(errs, err)
				break
			}
			deleted++
		}
	}

	if rb.opts.Size < 0 {
		n, err := rb.expireForFreeSpace(ctx, uint64(-rb.opts.Size))
		deleted += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	rb.updateGauges()
	return deleted, errors.Join(errs...)
}

// overLimit 报告通道是否超出 Count / Size / Duration 限制。调用方需持有锁。
func (rb *RingBuffer) overLimit(g *group) bool {
	if rb.opts.Count > 0 && len(g.files) > rb.opts.Count {
		return true
	}
	if rb.opts.Size > 0 && g.size > rb.opts.Size {
		return true
	}
	if rb.opts.Duration > 0 {
		newest := g.files[len(g.files)-1].ms
		window := uint64(rb.opts.Duration.Milliseconds())
		if newest > window && g.files[0].ms < newest-window {
			return true
		}
	}
	return false
}

// expireForFreeSpace 在剩余空间不足时跨通道删除全局最旧的文件。调用方需持有锁。
func (rb *RingBuffer) expireForFreeSpace(ctx context.Context, want uint64) (int, error) {
	deleted := 0
	for {
		free, err := rb.freeSpace(rb.opts.Dir)
		if err != nil {
			return deleted, fmt.Errorf("查询剩余空间失败: %w", err)
		}
		if free+rb.freed >= want {
			return deleted, nil
		}

		var oldestKey string
		var oldest *group
		for key, g := range rb.groups {
			if len(g.files) == 0 {
				continue
			}
			if oldest == nil || less(g.files[0], oldest.files[0]) {
				oldestKey, oldest = key, g
			}
		}
		if oldest == nil {
			rb.log.WithField("free", free).WithField("want", want).Warn("已无可删除的文件，剩余空间仍然不足")
			return deleted, nil
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := rb.expire(ctx, oldestKey, oldest, 0); err != nil {
			return deleted, err
		}
		deleted++
	}
}

// expire 删除通道中下标为 i 的文件。调用方需持有锁。
func (rb *RingBuffer) expire(ctx context.Context, key string, g *group, i int) error {
	f := g.files[i]
	log := rb.log.WithField("path", f.path).WithField("size", f.size)
	if rb.opts.DryRun {
		log.Info("将删除文件 (dry run)")
		rb.dryExpired[f.path] = f.size
		rb.freed += uint64(f.size)
	} else {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除 '%s' 失败: %w", f.path, err)
		}
		log.Debug("文件已删除")
		rb.removeEmptyDir(filepath.Dir(f.path), key)
	}
	rb.dropAt(key, g, i)

	metrics.RingBufferDeletedFiles.Inc()
	metrics.RingBufferDeletedBytes.Add(float64(f.size))
	ev := events.New(events.KindExpired, f.path, f.size)
	ev.DryRun = rb.opts.DryRun
	if err := rb.pub.Publish(ctx, ev); err != nil {
		log.WithError(err).Warn("发布删除事件失败")
	}
	return nil
}

// removeEmptyDir 删除已经变空的子目录，通道目录本身保留。
func (rb *RingBuffer) removeEmptyDir(dir, channel string) {
	if dir == channel || dir == rb.opts.Dir {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err == nil {
		rb.log.WithField("subdir", dir).Debug("已删除空子目录")
	}
}

func (rb *RingBuffer) dropAt(key string, g *group, i int) {
	g.size -= g.files[i].size
	g.files = append(g.files[:i], g.files[i+1:]...)
	if len(g.files) == 0 {
		delete(rb.groups, key)
	}
}

func (rb *RingBuffer) updateGauges() {
	var n int
	var size int64
	for _, g := range rb.groups {
		n += len(g.files)
		size += g.size
	}
	metrics.RingBufferTracked.WithLabelValues("files").Set(float64(n))
	metrics.RingBufferTracked.WithLabelValues("bytes").Set(float64(size))
}

// Run 扫描已有文件，然后跟随目录变化持续维持限制，直到 ctx 被取消。
func (rb *RingBuffer) Run(ctx context.Context) error {
	w, err := watchdog.NewWatcher(rb.opts.Dir, rb.opts.List, rb.log)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Start(ctx); err != nil {
		return err
	}
	if err := rb.Scan(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		rb.log.WithError(err).Error("扫描已有文件时出现错误")
	}
	rb.log.Info("开始跟随目录变化")

	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			rb.log.WithError(err).Warn("目录监听出错")
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			switch ev.Op {
			case watchdog.Create, watchdog.Write:
				if _, err := rb.Add(ev.Path); err != nil {
					if !os.IsNotExist(err) {
						rb.log.WithField("path", ev.Path).WithError(err).Warn("跟踪文件失败")
					}
					continue
				}
				if _, err := rb.Expire(ctx); err != nil {
					rb.log.WithError(err).Error("删除过期文件失败")
				}
			case watchdog.Remove, watchdog.Rename:
				rb.Remove(ev.Path)
			}
		}
	}
}
