// Package digitalrf 是 Digital RF 工具包的入口。
//
// RF 通道存储和 Digital Metadata 总是可用。目录监听 (watchdog)、镜像 (mirror)、
// 环形缓冲区 (ringbuffer) 和文件列举 (lsdrf) 组成一个可选能力组，
// 只有在运行时依赖可用时才会整体启用:
//
//	pkg, err := digitalrf.Load(ctx)
//	if err != nil {
//		return err
//	}
//	if pkg.Has(digitalrf.ModuleMirror) {
//		m, err := pkg.Mirror(opts, sink, nil, nil)
//		...
//	}
package digitalrf

import (
	"context"
	"errors"
	"fmt"

	"digital_rf/internal/capability"
	"digital_rf/internal/drf"
	"digital_rf/internal/events"
	"digital_rf/internal/metadata"
	"digital_rf/internal/mirror"
	"digital_rf/internal/ringbuffer"
	"digital_rf/internal/watchdog"
	"digital_rf/pkg/logger"
)

// 能力名称。
const (
	ModuleMetadata   = "digital_metadata"
	ModuleRF         = "digital_rf"
	ModuleWatchdog   = "watchdog_drf"
	ModuleMirror     = "mirror"
	ModuleRingBuffer = "ringbuffer"
	ModuleLsDRF      = "lsdrf"

	// GroupWatchdog 是依赖目录监听的可选能力组。
	GroupWatchdog = "watchdog"
)

// ErrUnavailable 表示运行时依赖不可用，探测函数用它表示可以容忍的失败。
var ErrUnavailable = capability.ErrUnavailable

// ErrNotLoaded 表示请求的能力没有被加载。
var ErrNotLoaded = errors.New("digitalrf: capability not loaded")

// ProbeFunc 检查某个能力的运行时依赖。
type ProbeFunc func(ctx context.Context) error

type options struct {
	probes map[string]ProbeFunc
	log    *logger.Logger
}

// Option 配置 Load。
type Option func(*options)

// WithProbe 替换名为 name 的能力的探测函数。
func WithProbe(name string, probe ProbeFunc) Option {
	return func(o *options) { o.probes[name] = probe }
}

// WithLogger 设置加载过程和各能力使用的日志记录器。
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

func defaultProbes() map[string]ProbeFunc {
	return map[string]ProbeFunc{
		ModuleMetadata: func(context.Context) error { return metadata.Probe() },
		ModuleRF:       func(context.Context) error { return drf.Probe() },
		ModuleWatchdog: func(context.Context) error {
			if err := watchdog.Probe(); err != nil {
				return fmt.Errorf("文件系统监听不可用: %v: %w", err, ErrUnavailable)
			}
			return nil
		},
		ModuleMirror:     nil,
		ModuleRingBuffer: nil,
		ModuleLsDRF:      nil,
	}
}

// Package 是加载完成的工具包，记录哪些能力可用。
type Package struct {
	registry *capability.Registry
	log      *logger.Logger
}

// Load 初始化全部能力。必需能力失败时返回错误；
// 可选能力组因依赖不可用而失败时整组被跳过，其他错误同样返回。
func Load(ctx context.Context, opts ...Option) (*Package, error) {
	o := options{probes: defaultProbes(), log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	module := func(name string, required bool) capability.Module {
		m := capability.Module{Name: name, Required: required}
		if !required {
			m.Group = GroupWatchdog
		}
		if probe := o.probes[name]; probe != nil {
			m.Init = probe
		}
		return m
	}

	registry, err := capability.Load(ctx, o.log,
		module(ModuleMetadata, true),
		module(ModuleRF, true),
		module(ModuleWatchdog, false),
		module(ModuleMirror, false),
		module(ModuleRingBuffer, false),
		module(ModuleLsDRF, false),
	)
	if err != nil {
		return nil, err
	}
	o.log.WithField("capabilities", registry.Names()).Debug("Digital RF 加载完成")
	return &Package{registry: registry, log: o.log}, nil
}

// Version 返回库版本。
func (p *Package) Version() string { return Version }

// Has 报告名为 name 的能力是否可用。
func (p *Package) Has(name string) bool { return p.registry.Has(name) }

// Capabilities 返回全部可用能力的名称 (已排序)。
func (p *Package) Capabilities() []string { return p.registry.Names() }

// Skipped 返回被跳过的可选能力组及原因。
func (p *Package) Skipped() map[string]error { return p.registry.Skipped() }

func (p *Package) require(name string) error {
	if !p.registry.Has(name) {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	return nil
}

// LsDRF 递归列出 root 下符合筛选规则的 Digital RF 文件。
func (p *Package) LsDRF(root string, opts ListOptions) ([]string, error) {
	if err := p.require(ModuleLsDRF); err != nil {
		return nil, err
	}
	return watchdog.ListDRF(root, opts)
}

// Watch 创建监听 root 的 Watcher，调用方负责 Start 和 Close。
func (p *Package) Watch(root string, opts ListOptions) (*watchdog.Watcher, error) {
	if err := p.require(ModuleWatchdog); err != nil {
		return nil, err
	}
	return watchdog.NewWatcher(root, opts, p.log)
}

// Mirror 创建镜像任务。state 和 pub 可以为 nil。
func (p *Package) Mirror(opts mirror.Options, sink mirror.Sink, state mirror.State, pub events.Publisher) (*mirror.Mirror, error) {
	if err := p.require(ModuleMirror); err != nil {
		return nil, err
	}
	return mirror.New(opts, sink, state, pub, p.log)
}

// RingBuffer 创建环形缓冲区。pub 可以为 nil。
func (p *Package) RingBuffer(opts ringbuffer.Options, pub events.Publisher) (*ringbuffer.RingBuffer, error) {
	if err := p.require(ModuleRingBuffer); err != nil {
		return nil, err
	}
	return ringbuffer.New(opts, pub, p.log)
}
