package drf

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Writer 向单个 RF 通道目录写入样本。
// 样本按全局索引寻址，数据会自动切分到对应的子目录和文件中。
type Writer struct {
	dir   string
	props Properties
	enc   *zstd.Encoder

	mu     sync.Mutex
	next   uint64 // 下一个允许写入的样本索引
	closed bool
}

// NewWriter 在 dir 中创建 (或续写) 一个 RF 通道，start 为第一个样本的全局索引。
// 目录中已存在属性文件时，属性必须一致，且写入位置会从已有数据之后开始。
func NewWriter(dir string, props Properties, start uint64) (*Writer, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建通道目录 '%s' 失败: %w", dir, err)
	}
	props, err := loadOrCreateProperties(dir, props)
	if err != nil {
		return nil, err
	}

	w := &Writer{dir: dir, props: props, next: start}
	// 续写时不能覆盖已有数据
	if err := w.resume(); err != nil {
		return nil, err
	}
	if props.CompressionLevel > 0 {
		w.enc, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(props.CompressionLevel)),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("创建 zstd 编码器失败: %w", err)
		}
	}
	return w, nil
}

// resume 修复最后一个数据文件末尾不完整的数据块，并把写入位置移到已有数据之后。
func (w *Writer) resume() error {
	files, err := listFiles(w.dir, w.props)
	if err != nil {
		return fmt.Errorf("列出通道 '%s' 的数据文件失败: %w", w.dir, err)
	}
	if len(files) > 0 {
		if _, err := repairTail(files[len(files)-1].path); err != nil {
			return err
		}
	}
	_, last, err := channelBounds(w.dir, w.props)
	switch {
	case err == nil:
		if last+1 > w.next {
			w.next = last + 1
		}
	case errors.Is(err, ErrNoData):
	default:
		return fmt.Errorf("读取通道 '%s' 已有数据失败: %w", w.dir, err)
	}
	return nil
}

// Properties 返回通道属性 (包含 UUID 等写入时补全的字段)。
func (w *Writer) Properties() Properties {
	return w.props
}

// NextIndex 返回下一次连续写入的样本索引。
func (w *Writer) NextIndex() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next
}

// Write 从 NextIndex 开始连续写入样本。
func (w *Writer) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeAt(w.next, data)
}

// WriteBlocks 写入带缺口的数据。
// globalIdx[i] 是第 i 个数据块的全局样本索引，blockIdx[i] 是该数据块在 data 中的起始样本偏移，
// blockIdx[0] 必须为 0，两者都必须严格递增，且每个数据块不能与下一个重叠。
func (w *Writer) WriteBlocks(data []byte, globalIdx, blockIdx []uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ss := uint64(w.props.SampleSize())
	if uint64(len(data))%ss != 0 {
		return ErrSampleSize
	}
	total := uint64(len(data)) / ss
	if len(globalIdx) == 0 || len(globalIdx) != len(blockIdx) || blockIdx[0] != 0 {
		return fmt.Errorf("%w: 需要等长且非空的索引数组，且 blockIdx[0] 为 0", ErrBlocks)
	}
	for i := 1; i < len(blockIdx); i++ {
		if blockIdx[i] <= blockIdx[i-1] || blockIdx[i] > total {
			return fmt.Errorf("%w: blockIdx[%d]=%d", ErrBlocks, i, blockIdx[i])
		}
		if globalIdx[i] < globalIdx[i-1]+(blockIdx[i]-blockIdx[i-1]) {
			return fmt.Errorf("%w: globalIdx[%d]=%d 与前一个数据块重叠", ErrBlocks, i, globalIdx[i])
		}
	}

	for i := range blockIdx {
		end := total
		if i+1 < len(blockIdx) {
			end = blockIdx[i+1]
		}
		if err := w.writeAt(globalIdx[i], data[blockIdx[i]*ss:end*ss]); err != nil {
			return err
		}
	}
	return nil
}

// writeAt 写入从 start 开始的连续样本，调用方需持有锁。
func (w *Writer) writeAt(start uint64, data []byte) error {
	if w.closed {
		return ErrClosed
	}
	ss := uint64(w.props.SampleSize())
	if uint64(len(data))%ss != 0 {
		return ErrSampleSize
	}
	if start < w.next {
		return fmt.Errorf("%w: 写入位置 %d 早于 %d", ErrOverlap, start, w.next)
	}

	remaining := uint64(len(data)) / ss
	for remaining > 0 {
		k := w.props.fileIndex(start)
		n := w.props.fileStartSample(k+1) - start
		if n > remaining {
			n = remaining
		}
		if n > math.MaxUint32 {
			n = math.MaxUint32
		}
		buf := encodeChunk(w.enc, w.props.Checksum, start, int(n), data[:n*ss])
		if err := w.appendFile(w.props.filePath(k), buf); err != nil {
			return err
		}
		data = data[n*ss:]
		start += n
		remaining -= n
		w.next = start
	}
	return nil
}

func (w *Writer) appendFile(rel string, buf []byte) error {
	path := filepath.Join(w.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建子目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开数据文件 '%s' 失败: %w", path, err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("写入数据文件 '%s' 失败: %w", path, err)
	}
	return f.Close()
}

// Close 释放编码器资源，之后的写入都会返回 ErrClosed。
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.enc != nil {
		return w.enc.Close()
	}
	return nil
}
