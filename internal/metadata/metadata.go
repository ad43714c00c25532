// Package metadata 实现 Digital Metadata: 按样本索引存储的键值记录，
// 与 RF 数据使用相同的子目录/文件周期布局，文件内容为 JSON Lines。
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"digital_rf/internal/layout"
	"digital_rf/internal/version"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidProperties 表示元数据属性不合法。
	ErrInvalidProperties = errors.New("metadata: invalid properties")
	// ErrPropertiesMismatch 表示目录中已有的属性与写入方给出的不一致。
	ErrPropertiesMismatch = errors.New("metadata: existing properties do not match")
	// ErrOutOfOrder 表示样本索引没有严格递增。
	ErrOutOfOrder = errors.New("metadata: sample index must be strictly increasing")
	// ErrFieldMismatch 表示记录的字段集合与属性中声明的不一致。
	ErrFieldMismatch = errors.New("metadata: record fields do not match")
	// ErrNoData 表示没有任何记录。
	ErrNoData = errors.New("metadata: no data")
)

// Properties 描述一个元数据目录，持久化为 dmd_properties.yaml。
type Properties struct {
	SubdirCadenceSecs     uint64   `yaml:"subdir_cadence_secs"`      // 每个子目录覆盖的秒数
	FileCadenceSecs       uint64   `yaml:"file_cadence_secs"`        // 每个文件覆盖的秒数
	SampleRateNumerator   uint64   `yaml:"sample_rate_numerator"`    // 采样率分子
	SampleRateDenominator uint64   `yaml:"sample_rate_denominator"`  // 采样率分母
	FileName              string   `yaml:"file_name"`                // 文件名前缀
	Fields                []string `yaml:"fields"`                   // 字段名 (已排序)，首次写入时确定
	Version               string   `yaml:"digital_metadata_version"` // 写入时的库版本
}

// Validate 检查属性是否自洽。
func (p Properties) Validate() error {
	if p.SampleRateNumerator == 0 || p.SampleRateDenominator == 0 {
		return fmt.Errorf("%w: 采样率分子和分母必须大于 0", ErrInvalidProperties)
	}
	if p.SubdirCadenceSecs == 0 || p.FileCadenceSecs == 0 {
		return fmt.Errorf("%w: 子目录和文件周期必须大于 0", ErrInvalidProperties)
	}
	if p.SubdirCadenceSecs%p.FileCadenceSecs != 0 {
		return fmt.Errorf("%w: subdir_cadence_secs 必须是 file_cadence_secs 的整数倍", ErrInvalidProperties)
	}
	if p.FileName == "" {
		return fmt.Errorf("%w: file_name 不能为空", ErrInvalidProperties)
	}
	return nil
}

// fileStartSec 返回包含样本 sample 的文件的起始秒。
func (p Properties) fileStartSec(sample uint64) uint64 {
	sec := layout.MulDiv(sample, p.SampleRateDenominator, p.SampleRateNumerator)
	return (sec / p.FileCadenceSecs) * p.FileCadenceSecs
}

// filePath 返回包含样本 sample 的文件相对路径。
func (p Properties) filePath(sample uint64) string {
	sec := p.fileStartSec(sample)
	return filepath.Join(layout.SubdirName(sec, p.SubdirCadenceSecs), layout.MetadataFileName(p.FileName, sec))
}

// fileFirstSample 返回起始于 sec 的文件中可能包含的第一个样本索引。
func (p Properties) fileFirstSample(sec uint64) uint64 {
	return layout.MulDivCeil(sec, p.SampleRateNumerator, p.SampleRateDenominator)
}

func (p Properties) compatible(o Properties) bool {
	if len(o.Fields) > 0 && len(p.Fields) > 0 && !reflect.DeepEqual(p.Fields, o.Fields) {
		return false
	}
	p.Fields, o.Fields = nil, nil
	p.Version, o.Version = "", ""
	return reflect.DeepEqual(p, o)
}

// Record 是一条元数据记录。
type Record struct {
	Sample uint64                 `json:"sample"`
	Fields map[string]interface{} `json:"fields"`
}

func readProperties(dir string) (Properties, error) {
	var props Properties
	raw, err := os.ReadFile(filepath.Join(dir, layout.MetadataPropertiesFile))
	if err != nil {
		return props, err
	}
	if err := yaml.Unmarshal(raw, &props); err != nil {
		return props, fmt.Errorf("解析 %s 失败: %w", layout.MetadataPropertiesFile, err)
	}
	return props, props.Validate()
}

func writeProperties(dir string, props Properties) error {
	props.Version = version.Version
	raw, err := yaml.Marshal(props)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+layout.MetadataPropertiesFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, layout.MetadataPropertiesFile))
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type dataFile struct {
	sec  uint64
	path string
}

// listFiles 返回目录中全部元数据文件，按时间排序。
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
			if kind != layout.KindMetadata || e.IsDir() {
				continue
			}
			if e.Name() != layout.MetadataFileName(props.FileName, ms/1000) {
				continue
			}
			files = append(files, dataFile{sec: ms / 1000, path: filepath.Join(dir, sd.Name(), e.Name())})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].sec < files[j].sec })
	return files, nil
}

// Probe 检查元数据文件使用的编码可以正常往返。
func Probe() error {
	raw, err := json.Marshal(Record{Sample: 1, Fields: map[string]interface{}{"probe": true}})
	if err != nil {
		return err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	if _, err := yaml.Marshal(Properties{}); err != nil {
		return err
	}
	return nil
}
