package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
)

// Writer 向元数据目录追加记录。
type Writer struct {
	dir   string
	props Properties

	mu       sync.Mutex
	last     uint64
	haveLast bool
}

// NewWriter 在 dir 中创建 (或续写) 元数据目录。
// props.Fields 可以为空，此时字段集合由第一条记录决定。
func NewWriter(dir string, props Properties) (*Writer, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建元数据目录 '%s' 失败: %w", dir, err)
	}

	existing, err := readProperties(dir)
	switch {
	case err == nil:
		if !existing.compatible(props) {
			return nil, fmt.Errorf("%w: %s", ErrPropertiesMismatch, dir)
		}
		props = existing
	case errors.Is(err, os.ErrNotExist):
		if props.Fields != nil {
			props.Fields = append([]string(nil), props.Fields...)
		}
		if err := writeProperties(dir, props); err != nil {
			return nil, fmt.Errorf("写入元数据属性失败: %w", err)
		}
	default:
		return nil, err
	}

	w := &Writer{dir: dir, props: props}
	if latest, err := readLatest(dir, props); err == nil {
		w.last, w.haveLast = latest.Sample, true
	} else if !errors.Is(err, ErrNoData) {
		return nil, err
	}
	return w, nil
}

// Properties 返回当前属性。
func (w *Writer) Properties() Properties {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.props
}

// Write 写入一条记录。
func (w *Writer) Write(sample uint64, fields map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(sample, fields)
}

// WriteMany 按顺序写入多条记录，samples 与 records 必须等长。
func (w *Writer) WriteMany(samples []uint64, records []map[string]interface{}) error {
	if len(samples) != len(records) {
		return fmt.Errorf("samples (%d) 与 records (%d) 长度不一致", len(samples), len(records))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range samples {
		if err := w.write(samples[i], records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) write(sample uint64, fields map[string]interface{}) error {
	if w.haveLast && sample <= w.last {
		return fmt.Errorf("%w: %d <= %d", ErrOutOfOrder, sample, w.last)
	}
	keys := sortedKeys(fields)
	if len(keys) == 0 {
		return fmt.Errorf("%w: 记录不能为空", ErrFieldMismatch)
	}
	first := len(w.props.Fields) == 0
	if !first && !reflect.DeepEqual(keys, w.props.Fields) {
		return fmt.Errorf("%w: 期望 %v，得到 %v", ErrFieldMismatch, w.props.Fields, keys)
	}

	line, err := json.Marshal(Record{Sample: sample, Fields: fields})
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}
	if first {
		// 第一条成功序列化的记录决定字段集合
		props := w.props
		props.Fields = keys
		if err := writeProperties(w.dir, props); err != nil {
			return fmt.Errorf("更新元数据属性失败: %w", err)
		}
		w.props = props
	}
	path := filepath.Join(w.dir, w.props.filePath(sample))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开元数据文件 '%s' 失败: %w", path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("写入元数据文件 '%s' 失败: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	w.last, w.haveLast = sample, true
	return nil
}
