package watchdog

import (
	"fmt"
	"path/filepath"
	"time"

	"digital_rf/internal/layout"

	"github.com/gobwas/glob"
)

// ListOptions 定义了筛选 Digital RF 文件的规则。
type ListOptions struct {
	IncludeDRF        bool      // 包含 rf@*.drf 数据文件
	IncludeDMD        bool      // 包含 *@*.dmd 元数据文件
	IncludeProperties bool      // 包含 drf_properties / dmd_properties 文件
	Start             time.Time // 文件时间下限 (含)，零值表示不限制
	End               time.Time // 文件时间上限 (含)，零值表示不限制
	Include           []string  // 相对路径或文件名需匹配其中之一，为空表示不限制
	Exclude           []string  // 相对路径或文件名匹配其中之一即排除
}

// DefaultListOptions 返回包含全部类型、不限时间的筛选规则。
func DefaultListOptions() ListOptions {
	return ListOptions{IncludeDRF: true, IncludeDMD: true, IncludeProperties: true}
}

// Filter 是编译后的 ListOptions。
type Filter struct {
	root    string
	opts    ListOptions
	include []glob.Glob
	exclude []glob.Glob
}

// NewFilter 编译筛选规则，root 用于计算 glob 匹配时的相对路径。
func NewFilter(root string, opts ListOptions) (*Filter, error) {
	f := &Filter{root: root, opts: opts}
	var err error
	if f.include, err = compileAll(opts.Include); err != nil {
		return nil, err
	}
	if f.exclude, err = compileAll(opts.Exclude); err != nil {
		return nil, err
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		return nil, fmt.Errorf("结束时间 %s 早于起始时间 %s", opts.End, opts.Start)
	}
	return f, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("无效的 glob 模式 %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Match 报告 path 是否通过筛选，同时返回文件类型与文件时间 (Unix 毫秒)。
func (f *Filter) Match(path string) (bool, layout.Kind, uint64) {
	kind, ms := layout.Classify(path)
	switch kind {
	case layout.KindRF:
		if !f.opts.IncludeDRF {
			return false, kind, ms
		}
	case layout.KindMetadata:
		if !f.opts.IncludeDMD {
			return false, kind, ms
		}
	case layout.KindRFProperties, layout.KindMetadataProperties:
		if !f.opts.IncludeProperties {
			return false, kind, ms
		}
	default:
		return false, kind, ms
	}

	// 属性文件不受时间窗口限制
	if !kind.IsProperties() {
		t := time.UnixMilli(int64(ms))
		if !f.opts.Start.IsZero() && t.Before(f.opts.Start) {
			return false, kind, ms
		}
		if !f.opts.End.IsZero() && t.After(f.opts.End) {
			return false, kind, ms
		}
	}

	rel := filepath.ToSlash(path)
	if r, err := filepath.Rel(f.root, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	base := filepath.Base(path)
	if len(f.include) > 0 && !anyMatch(f.include, rel, base) {
		return false, kind, ms
	}
	if anyMatch(f.exclude, rel, base) {
		return false, kind, ms
	}
	return true, kind, ms
}

func anyMatch(globs []glob.Glob, rel, base string) bool {
	for _, g := range globs {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

// ParseFileTime 从 rf@S.MMM.drf 或 *@S.dmd 文件名中解析文件时间。
// 属性文件和其它文件返回 false。
func ParseFileTime(name string) (time.Time, bool) {
	kind, ms := layout.Classify(name)
	if kind != layout.KindRF && kind != layout.KindMetadata {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}
