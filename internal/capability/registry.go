// Package capability 实现启动时的能力注册表。
// 必需模块初始化失败会中止加载；可选模块按组进行尽力初始化，
// 组内任一成员因依赖不可用而失败时整组都不注册，不会暴露部分能力。
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"digital_rf/pkg/logger"
)

// ErrUnavailable 是唯一可被容忍的初始化错误类别，表示某个运行时依赖不可用。
// 可选模块的 Init 应使用 fmt.Errorf("...: %w", ErrUnavailable) 包装该错误。
var ErrUnavailable = errors.New("capability: dependency unavailable")

// Module 描述一个可注册的能力。
type Module struct {
	Name     string                          // 唯一名称
	Group    string                          // 可选模块所属的组，同组模块同进同退
	Required bool                            // 是否为必需模块
	Init     func(ctx context.Context) error // 初始化/探测函数，可以为 nil
}

// Registry 记录加载成功的能力。加载完成后只读，可并发查询。
type Registry struct {
	modules map[string]Module
	skipped map[string]error
	mutex   sync.RWMutex
}

// Load 按声明顺序初始化全部必需模块，然后按组初始化可选模块。
//
// 返回值:
//
//	*Registry: 加载成功的能力注册表。
//	error: 必需模块初始化失败，或可选模块返回了 ErrUnavailable 以外的错误。
func Load(ctx context.Context, log *logger.Logger, modules ...Module) (*Registry, error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{
		modules: make(map[string]Module),
		skipped: make(map[string]error),
	}

	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("重复的模块名称 %q", m.Name)
		}
		seen[m.Name] = struct{}{}
		if !m.Required && m.Group == "" {
			return nil, fmt.Errorf("可选模块 %q 未指定组", m.Name)
		}
	}

	// 1. 必需模块: 任何错误都直接返回
	for _, m := range modules {
		if !m.Required {
			continue
		}
		if err := initModule(ctx, m); err != nil {
			return nil, fmt.Errorf("必需模块 %q 初始化失败: %w", m.Name, err)
		}
		r.modules[m.Name] = m
	}

	// 2. 可选模块: 按组首次出现的顺序处理
	var groups []string
	members := make(map[string][]Module)
	for _, m := range modules {
		if m.Required {
			continue
		}
		if _, ok := members[m.Group]; !ok {
			groups = append(groups, m.Group)
		}
		members[m.Group] = append(members[m.Group], m)
	}

	for _, g := range groups {
		err := initGroup(ctx, members[g])
		switch {
		case err == nil:
			for _, m := range members[g] {
				r.modules[m.Name] = m
			}
		case errors.Is(err, ErrUnavailable):
			r.skipped[g] = err
			log.WithField("group", g).WithError(err).Warn("可选能力组不可用，已跳过")
		default:
			return nil, fmt.Errorf("可选能力组 %q 初始化失败: %w", g, err)
		}
	}
	return r, nil
}

func initGroup(ctx context.Context, group []Module) error {
	for _, m := range group {
		if err := initModule(ctx, m); err != nil {
			return fmt.Errorf("模块 %q: %w", m.Name, err)
		}
	}
	return nil
}

func initModule(ctx context.Context, m Module) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Init == nil {
		return nil
	}
	return m.Init(ctx)
}

// Has 报告名为 name 的能力是否已注册。
func (r *Registry) Has(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.modules[name]
	return ok
}

// Names 返回所有已注册能力的名称 (已排序)。
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Skipped 返回因依赖不可用而被跳过的组及其原因。
func (r *Registry) Skipped() map[string]error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make(map[string]error, len(r.skipped))
	for g, err := range r.skipped {
		out[g] = err
	}
	return out
}
