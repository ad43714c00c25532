package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Reader 读取一个元数据目录。
type Reader struct {
	dir   string
	props Properties
}

// NewReader 打开 dir 中的元数据目录。
func NewReader(dir string) (*Reader, error) {
	props, err := readProperties(dir)
	if err != nil {
		return nil, fmt.Errorf("打开元数据目录 '%s' 失败: %w", dir, err)
	}
	return &Reader{dir: dir, props: props}, nil
}

// Properties 返回元数据属性。
func (r *Reader) Properties() Properties { return r.props }

// Fields 返回字段名列表。
func (r *Reader) Fields() []string {
	return append([]string(nil), r.props.Fields...)
}

// Bounds 返回第一条和最后一条记录的样本索引。
func (r *Reader) Bounds() (first, last uint64, err error) {
	files, err := listFiles(r.dir, r.props)
	if err != nil {
		return 0, 0, err
	}
	found := false
	for _, f := range files {
		records, err := readFile(f.path, nil)
		if err != nil {
			return 0, 0, err
		}
		if len(records) > 0 {
			first, found = records[0].Sample, true
			break
		}
	}
	if !found {
		return 0, 0, ErrNoData
	}
	latest, err := readLatest(r.dir, r.props)
	if err != nil {
		return 0, 0, err
	}
	return first, latest.Sample, nil
}

// Read 返回 [start, end) 区间内的记录，按样本索引排序。
// 指定 columns 时只返回这些字段。
func (r *Reader) Read(start, end uint64, columns ...string) ([]Record, error) {
	if end <= start {
		return nil, nil
	}
	files, err := listFiles(r.dir, r.props)
	if err != nil {
		return nil, err
	}
	var out []Record
	for i, f := range files {
		// 文件只可能包含 [本文件起始, 下一个文件起始) 内的样本
		if r.props.fileFirstSample(f.sec) >= end {
			break
		}
		if i+1 < len(files) && r.props.fileFirstSample(files[i+1].sec) <= start {
			continue
		}
		records, err := readFile(f.path, columns)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.Sample >= start && rec.Sample < end {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// ReadLatest 返回最后一条记录。
func (r *Reader) ReadLatest(columns ...string) (Record, error) {
	rec, err := readLatest(r.dir, r.props)
	if err != nil {
		return Record{}, err
	}
	return project(rec, columns), nil
}

func readLatest(dir string, props Properties) (Record, error) {
	files, err := listFiles(dir, props)
	if err != nil {
		return Record{}, err
	}
	for i := len(files) - 1; i >= 0; i-- {
		records, err := readFile(files[i].path, nil)
		if err != nil {
			return Record{}, err
		}
		if len(records) > 0 {
			return records[len(records)-1], nil
		}
	}
	return Record{}, ErrNoData
}

// readFile 解析一个 JSON Lines 文件；末尾未写完的半行会被忽略。
func readFile(path string, columns []string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	var pendingErr error
	for scanner.Scan() {
		lineNo++
		if pendingErr != nil {
			// 损坏的行后面还有数据，说明不是写入中途被截断
			return nil, pendingErr
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			pendingErr = fmt.Errorf("解析 '%s' 第 %d 行失败: %w", path, lineNo, err)
			continue
		}
		records = append(records, project(rec, columns))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func project(rec Record, columns []string) Record {
	if len(columns) == 0 {
		return rec
	}
	fields := make(map[string]interface{}, len(columns))
	for _, c := range columns {
		if v, ok := rec.Fields[c]; ok {
			fields[c] = v
		}
	}
	return Record{Sample: rec.Sample, Fields: fields}
}
