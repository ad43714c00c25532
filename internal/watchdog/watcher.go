package watchdog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"digital_rf/internal/layout"
	"digital_rf/internal/metrics"
	"digital_rf/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Op 是文件事件类型。
type Op int

const (
	Create Op = iota + 1
	Write
	Remove
	Rename
)

// String 返回事件类型名称。
func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Write:
		return "write"
	case Remove:
		return "remove"
	case Rename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event 是经过筛选的 Digital RF 文件事件。
type Event struct {
	Op   Op
	Path string
	Kind layout.Kind
	Ms   uint64
	Time time.Time
}

// Watcher 递归监听一个目录树，只输出通过筛选的 Digital RF 文件事件。
// 根目录不存在时会先监听最近的已存在上级目录，直到根目录被创建。
type Watcher struct {
	root   string
	filter *Filter
	fsw    *fsnotify.Watcher
	log    *logger.Logger

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	anchor  string // 根目录尚不存在时正在监听的上级目录
	started bool   // 事件循环已启动，events 由循环负责关闭
	closed  bool
}

// NewWatcher 创建监听 root 的 Watcher，需要调用 Start 后才会产生事件。
func NewWatcher(root string, opts ListOptions, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	filter, err := NewFilter(abs, opts)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件系统监听器失败: %w", err)
	}
	return &Watcher{
		root:   abs,
		filter: filter,
		fsw:    fsw,
		log:    log.WithComponent("watchdog").WithField("root", abs),
		events: make(chan Event, 256),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}, nil
}

// Root 返回监听的根目录 (绝对路径)。
func (w *Watcher) Root() string { return w.root }

// Events 返回事件通道，Watcher 关闭后该通道会被关闭。
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors 返回底层监听器的错误通道。
func (w *Watcher) Errors() <-chan error { return w.errors }

// Start 注册监听并启动事件循环。ctx 取消或调用 Close 后循环退出。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return fmt.Errorf("watcher 已关闭")
	case w.started:
		w.mu.Unlock()
		return fmt.Errorf("watcher 已经启动")
	}
	w.mu.Unlock()

	if err := w.arm(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watcher 已关闭")
	}
	w.started = true
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Close 停止监听并等待事件循环退出。
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	started := w.started
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	if !started {
		// 事件循环从未运行，由这里关闭事件通道
		close(w.events)
	}
	return err
}

// arm 在根目录存在时递归注册，否则监听最近的已存在上级目录。
func (w *Watcher) arm(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err == nil && info.IsDir() {
		w.mu.Lock()
		anchor := w.anchor
		w.anchor = ""
		w.mu.Unlock()
		if anchor != "" {
			_ = w.fsw.Remove(anchor)
			// 上级目录期间根目录刚被创建，补发其中已有文件的事件
			return w.addTree(ctx, w.root, true)
		}
		return w.addTree(ctx, w.root, false)
	}
	if err == nil {
		return fmt.Errorf("'%s' 不是目录", w.root)
	}

	parent := w.root
	for {
		next := filepath.Dir(parent)
		if next == parent {
			return fmt.Errorf("找不到 '%s' 的已存在上级目录", w.root)
		}
		parent = next
		if info, err := os.Stat(parent); err == nil && info.IsDir() {
			break
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.anchor == parent {
		return nil
	}
	if w.anchor != "" {
		_ = w.fsw.Remove(w.anchor)
	}
	if err := w.fsw.Add(parent); err != nil {
		return fmt.Errorf("监听上级目录 '%s' 失败: %w", parent, err)
	}
	w.anchor = parent
	w.log.WithField("anchor", parent).Debug("根目录不存在，等待其被创建")
	return nil
}

// addTree 递归注册目录监听，emit 为 true 时为已存在的文件补发 Create 事件。
func (w *Watcher) addTree(ctx context.Context, dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("监听目录 '%s' 失败: %w", path, err)
			}
			return nil
		}
		if emit {
			w.emit(ctx, Create, path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.log.WithError(err).Warn("监听错误通道已满，丢弃错误")
			}
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	w.mu.Lock()
	anchor := w.anchor
	w.mu.Unlock()

	if anchor != "" {
		// 仍在等待根目录出现，只关心通往根目录路径上的变化
		if ev.Has(fsnotify.Create) && isAncestorOrSelf(ev.Name, w.root) {
			if err := w.arm(ctx); err != nil {
				w.reportError(err)
			}
		}
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.addTree(ctx, ev.Name, true); err != nil {
				w.reportError(err)
			}
			return
		}
		w.emit(ctx, Create, ev.Name)
	case ev.Has(fsnotify.Write):
		w.emit(ctx, Write, ev.Name)
	case ev.Has(fsnotify.Remove):
		if ev.Name == w.root {
			// 根目录被删除，重新等待其出现
			if err := w.arm(ctx); err != nil {
				w.reportError(err)
			}
			return
		}
		w.emit(ctx, Remove, ev.Name)
	case ev.Has(fsnotify.Rename):
		w.emit(ctx, Rename, ev.Name)
	}
}

func (w *Watcher) emit(ctx context.Context, op Op, path string) {
	ok, kind, ms := w.filter.Match(path)
	if !ok {
		return
	}
	metrics.WatchEvents.WithLabelValues(op.String()).Inc()
	select {
	case w.events <- Event{Op: op, Path: path, Kind: kind, Ms: ms, Time: time.Now()}:
	case <-ctx.Done():
	case <-w.done:
	}
}

func (w *Watcher) reportError(err error) {
	select {
	case w.errors <- err:
	default:
		w.log.WithError(err).Warn("监听错误通道已满，丢弃错误")
	}
}

func isAncestorOrSelf(path, target string) bool {
	if path == target {
		return true
	}
	return strings.HasPrefix(target, path+string(filepath.Separator))
}

// Probe 检查当前平台能否创建文件系统监听器。
func Probe() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	return fsw.Close()
}
