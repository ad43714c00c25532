package watchdog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"digital_rf/internal/layout"
)

// File 是 ListDRF 返回的一个条目。
type File struct {
	Path string
	Kind layout.Kind
	Ms   uint64 // 文件名中的时间 (Unix 毫秒)，属性文件为 0
}

// ListDRF 递归列出 root 下所有符合筛选规则的 Digital RF 文件路径。
// 结果按目录、(属性文件优先) 文件时间、文件名排序。
func ListDRF(root string, opts ListOptions) ([]string, error) {
	files, err := ListFiles(root, opts)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// ListFiles 与 ListDRF 相同，但同时返回每个文件的类型和时间。
func ListFiles(root string, opts ListOptions) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("无法访问 '%s': %w", root, err)
	}
	filter, err := NewFilter(root, opts)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if ok, kind, ms := filter.Match(root); ok {
			return []File{{Path: root, Kind: kind, Ms: ms}}, nil
		}
		return nil, nil
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// 遍历过程中目录被删除 (例如环形缓冲区正在清理) 时跳过
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, kind, ms := filter.Match(path); ok {
			files = append(files, File{Path: path, Kind: kind, Ms: ms})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortFiles(files)
	return files, nil
}

// SortFiles 按 (目录, 属性文件优先, 时间, 文件名) 排序。
func SortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		da, db := filepath.Dir(a.Path), filepath.Dir(b.Path)
		if da != db {
			return da < db
		}
		if pa, pb := a.Kind.IsProperties(), b.Kind.IsProperties(); pa != pb {
			return pa
		}
		if a.Ms != b.Ms {
			return a.Ms < b.Ms
		}
		return a.Path < b.Path
	})
}
