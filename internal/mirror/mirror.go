// Package mirror 把一个 Digital RF 目录树中的文件复制或移动到另一个目标，
// 并持续跟随新写入的文件。
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"digital_rf/internal/events"
	"digital_rf/internal/layout"
	"digital_rf/internal/metrics"
	"digital_rf/internal/watchdog"
	"digital_rf/pkg/logger"
)

// Method 是镜像方式。
type Method string

const (
	Copy Method = "copy"
	Move Method = "move"
)

// ParseMethod 解析镜像方式，大小写敏感。
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case Copy, Move:
		return Method(s), nil
	default:
		return "", fmt.Errorf("未知的镜像方式 %q (可选: copy, move)", s)
	}
}

// Options 定义一次镜像任务。
type Options struct {
	Source         string
	Method         Method
	IgnoreExisting bool // 为 true 时不处理启动前已存在的文件
	List           watchdog.ListOptions
	Settle         time.Duration // 文件最后一次变化后等待多久再传输
}

// Mirror 是一个镜像任务。
type Mirror struct {
	opts  Options
	sink  Sink
	state State
	pub   events.Publisher
	log   *logger.Logger
}

// New 创建镜像任务。state 和 pub 可以为 nil。
func New(opts Options, sink Sink, state State, pub events.Publisher, log *logger.Logger) (*Mirror, error) {
	if opts.Source == "" {
		return nil, fmt.Errorf("未指定镜像源目录")
	}
	if sink == nil {
		return nil, fmt.Errorf("未指定镜像目标")
	}
	if opts.Method == "" {
		opts.Method = Copy
	}
	if _, err := ParseMethod(string(opts.Method)); err != nil {
		return nil, err
	}
	if opts.Settle < 0 {
		return nil, fmt.Errorf("等待时间不能为负数: %s", opts.Settle)
	}
	abs, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, err
	}
	opts.Source = abs
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Mirror{
		opts:  opts,
		sink:  sink,
		state: state,
		pub:   pub,
		log: log.WithComponent("mirror").
			WithField("source", abs).
			WithField("sink", sink.String()).
			WithField("method", string(opts.Method)),
	}, nil
}

// Sync 传输源目录中当前所有符合筛选规则的文件，属性文件最先传输。
// 单个文件失败不会中止同步，所有失败合并后返回。
func (m *Mirror) Sync(ctx context.Context) error {
	files, err := watchdog.ListFiles(m.opts.Source, m.opts.List)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Kind.IsProperties() && !files[j].Kind.IsProperties()
	})

	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Transfer(ctx, f.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Transfer 传输单个文件。文件版本已镜像过时直接返回。
// 属性文件总是复制而不移动，因为写入端仍然需要它们。
func (m *Mirror) Transfer(ctx context.Context, path string) error {
	rel, err := filepath.Rel(m.opts.Source, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("'%s' 不在镜像源目录中", path)
	}
	rel = filepath.ToSlash(rel)
	kind, _ := layout.Classify(path)
	method := m.opts.Method
	if kind.IsProperties() {
		method = Copy
	}
	log := m.log.WithField("path", rel)

	fp, err := Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// 在等待期间被删除或已被其他进程移走
			log.Debug("文件已不存在，跳过")
			return nil
		}
		return err
	}
	if m.state != nil {
		seen, err := m.state.Seen(ctx, rel, fp)
		if err != nil {
			log.WithError(err).Warn("查询镜像状态失败，继续传输")
		} else if seen {
			metrics.MirrorFiles.WithLabelValues(string(method), "skipped").Inc()
			return nil
		}
	}

	if err := m.sink.Put(ctx, rel, path); err != nil {
		metrics.MirrorFiles.WithLabelValues(string(method), "error").Inc()
		return fmt.Errorf("镜像 '%s' 失败: %w", rel, err)
	}
	if method == Move {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("移动 '%s' 后删除源文件失败: %w", rel, err)
		}
	}
	if m.state != nil {
		if err := m.state.Mark(ctx, rel, fp); err != nil {
			log.WithError(err).Warn("记录镜像状态失败")
		}
	}

	metrics.MirrorFiles.WithLabelValues(string(method), "ok").Inc()
	metrics.MirrorBytes.Add(float64(fp.Size))
	ev := events.New(events.KindMirrored, rel, fp.Size)
	ev.Target = m.sink.String()
	if err := m.pub.Publish(ctx, ev); err != nil {
		log.WithError(err).Warn("发布镜像事件失败")
	}
	log.WithField("size", fp.Size).Debug("文件已镜像")
	return nil
}

// Run 先同步已有文件 (除非 IgnoreExisting)，然后跟随目录变化持续镜像，直到 ctx 被取消。
func (m *Mirror) Run(ctx context.Context) error {
	w, err := watchdog.NewWatcher(m.opts.Source, m.opts.List, m.log)
	if err != nil {
		return err
	}
	defer w.Close()
	// 先开始监听再同步，同步期间的新文件不会被遗漏
	if err := w.Start(ctx); err != nil {
		return err
	}
	if !m.opts.IgnoreExisting {
		if err := m.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.log.WithError(err).Error("同步已有文件时出现错误")
		}
	}
	m.log.Info("开始跟随目录变化")
	return m.follow(ctx, w.Events(), w.Errors())
}

// follow 对事件做去抖: 文件在 Settle 时间内没有新的变化才会被传输。
func (m *Mirror) follow(ctx context.Context, evs <-chan watchdog.Event, errs <-chan error) error {
	tick := m.opts.Settle / 2
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	flush := func(now time.Time) {
		due := make([]string, 0, len(pending))
		for path, at := range pending {
			if !now.Before(at) {
				due = append(due, path)
			}
		}
		sort.Strings(due)
		for _, path := range due {
			delete(pending, path)
			if err := m.Transfer(ctx, path); err != nil {
				m.log.WithError(err).Error("镜像文件失败")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.log.WithError(err).Warn("目录监听出错")
		case ev, ok := <-evs:
			if !ok {
				return nil
			}
			switch ev.Op {
			case watchdog.Create, watchdog.Write:
				pending[ev.Path] = ev.Time.Add(m.opts.Settle)
			case watchdog.Remove, watchdog.Rename:
				delete(pending, ev.Path)
			}
			if m.opts.Settle == 0 {
				flush(time.Now())
			}
		case now := <-ticker.C:
			flush(now)
		}
	}
}
