package drf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"digital_rf/internal/layout"
)

// Block 描述一段连续的样本区间。
type Block struct {
	Start uint64 `json:"start"`
	Len   uint64 `json:"len"`
}

// End 返回区间末尾之后的第一个样本索引。
func (b Block) End() uint64 { return b.Start + b.Len }

// Segment 是一段连续样本及其原始字节。
type Segment struct {
	Start uint64
	Data  []byte
}

// Reader 读取某个顶层目录下的全部 RF 通道。
type Reader struct {
	top string
}

// NewReader 创建读取 top 目录的 Reader，top 必须是已存在的目录。
func NewReader(top string) (*Reader, error) {
	info, err := os.Stat(top)
	if err != nil {
		return nil, fmt.Errorf("无法访问目录 '%s': %w", top, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("'%s' 不是目录", top)
	}
	return &Reader{top: top}, nil
}

// Channels 返回 top 下所有包含 drf_properties.yaml 的目录 (相对路径，已排序)。
// top 本身就是通道时返回 "."。
func (r *Reader) Channels() ([]string, error) {
	var channels []string
	err := filepath.WalkDir(r.top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != layout.RFPropertiesFile {
			return nil
		}
		rel, err := filepath.Rel(r.top, filepath.Dir(path))
		if err != nil {
			return err
		}
		channels = append(channels, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(channels)
	return channels, nil
}

func (r *Reader) channelDir(channel string) (string, Properties, error) {
	dir := filepath.Join(r.top, channel)
	props, err := readProperties(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", props, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return dir, props, err
}

// Properties 返回通道属性。
func (r *Reader) Properties(channel string) (Properties, error) {
	_, props, err := r.channelDir(channel)
	return props, err
}

// Bounds 返回通道中第一个和最后一个样本的索引 (闭区间)。
func (r *Reader) Bounds(channel string) (first, last uint64, err error) {
	dir, props, err := r.channelDir(channel)
	if err != nil {
		return 0, 0, err
	}
	return channelBounds(dir, props)
}

// ContinuousBlocks 返回 [start, end) 区间内的连续数据块，相邻块会被合并。
func (r *Reader) ContinuousBlocks(channel string, start, end uint64) ([]Block, error) {
	dir, props, err := r.channelDir(channel)
	if err != nil {
		return nil, err
	}
	chunks, err := chunksInRange(dir, props, start, end)
	if err != nil {
		return nil, err
	}
	var blocks []Block
	for _, cf := range chunks {
		lo, hi := clip(cf.c.start, cf.c.end(), start, end)
		if n := len(blocks); n > 0 && blocks[n-1].End() == lo {
			blocks[n-1].Len += hi - lo
			continue
		}
		blocks = append(blocks, Block{Start: lo, Len: hi - lo})
	}
	return blocks, nil
}

// Read 读取 [start, end) 区间内的全部样本，相邻数据会被合并为同一个 Segment。
func (r *Reader) Read(channel string, start, end uint64) ([]Segment, error) {
	dir, props, err := r.channelDir(channel)
	if err != nil {
		return nil, err
	}
	chunks, err := chunksInRange(dir, props, start, end)
	if err != nil {
		return nil, err
	}
	ss := uint64(props.SampleSize())
	var segments []Segment
	for _, cf := range chunks {
		data, err := cf.c.decode(cf.path, int(ss))
		if err != nil {
			return nil, err
		}
		lo, hi := clip(cf.c.start, cf.c.end(), start, end)
		data = data[(lo-cf.c.start)*ss : (hi-cf.c.start)*ss]
		if n := len(segments); n > 0 && segments[n-1].Start+uint64(len(segments[n-1].Data))/ss == lo {
			segments[n-1].Data = append(segments[n-1].Data, data...)
			continue
		}
		segments = append(segments, Segment{Start: lo, Data: append([]byte(nil), data...)})
	}
	return segments, nil
}

// ReadVector 读取从 start 开始的 n 个连续样本，区间内存在缺口时返回 ErrGap。
// n 为 0 时返回空切片。
func (r *Reader) ReadVector(channel string, start, n uint64) ([]byte, error) {
	if n == 0 {
		if _, _, err := r.channelDir(channel); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}
	segments, err := r.Read(channel, start, start+n)
	if err != nil {
		return nil, err
	}
	props, err := r.Properties(channel)
	if err != nil {
		return nil, err
	}
	ss := uint64(props.SampleSize())
	if len(segments) != 1 || segments[0].Start != start || uint64(len(segments[0].Data)) != n*ss {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrGap, start, start+n)
	}
	return segments[0].Data, nil
}

type dataFile struct {
	k    uint64 // 文件序号
	path string
}

type fileChunk struct {
	path string
	c    chunk
}

// listFiles 返回通道中全部数据文件，按时间排序。
func listFiles(dir string, props Properties) ([]dataFile, error) {
	subdirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []dataFile
	for _, sd := range subdirs {
		if !sd.IsDir() {
			continue
		}
		if _, err := layout.ParseSubdir(sd.Name()); err != nil {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dir, sd.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			kind, ms := layout.Classify(e.Name())
			if kind != layout.KindRF || e.IsDir() {
				continue
			}
			files = append(files, dataFile{
				k:    ms / props.FileCadenceMillisecs,
				path: filepath.Join(dir, sd.Name(), e.Name()),
			})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].k < files[j].k })
	return files, nil
}

// chunksInRange 返回与 [start, end) 相交的全部数据块，按起始索引排序。
func chunksInRange(dir string, props Properties, start, end uint64) ([]fileChunk, error) {
	if end <= start {
		return nil, nil
	}
	files, err := listFiles(dir, props)
	if err != nil {
		return nil, err
	}
	var out []fileChunk
	for _, f := range files {
		if props.fileStartSample(f.k+1) <= start || props.fileStartSample(f.k) >= end {
			continue
		}
		chunks, err := readChunks(f.path)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			if c.end() > start && c.start < end {
				out = append(out, fileChunk{path: f.path, c: c})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].c.start < out[j].c.start })
	return out, nil
}

func channelBounds(dir string, props Properties) (uint64, uint64, error) {
	files, err := listFiles(dir, props)
	if err != nil {
		return 0, 0, err
	}
	var (
		first, last uint64
		found       bool
	)
	// 首尾文件可能只包含空负载，逐个向内查找
	for _, f := range files {
		chunks, err := readChunks(f.path)
		if err != nil {
			return 0, 0, err
		}
		if len(chunks) > 0 {
			first, found = chunks[0].start, true
			break
		}
	}
	if !found {
		return 0, 0, ErrNoData
	}
	for i := len(files) - 1; i >= 0; i-- {
		chunks, err := readChunks(files[i].path)
		if err != nil {
			return 0, 0, err
		}
		if len(chunks) > 0 {
			last = chunks[len(chunks)-1].end() - 1
			break
		}
	}
	return first, last, nil
}

func clip(lo, hi, start, end uint64) (uint64, uint64) {
	if lo < start {
		lo = start
	}
	if hi > end {
		hi = end
	}
	return lo, hi
}
