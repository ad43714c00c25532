package drf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"digital_rf/internal/layout"
	"digital_rf/internal/version"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// 支持的采样数据类型及其单个分量的字节数。
var dtypeSizes = map[string]int{
	"int8":    1,
	"int16":   2,
	"int32":   4,
	"int64":   8,
	"float32": 4,
	"float64": 8,
}

// Properties 描述了一个 RF 通道的静态属性，持久化为 drf_properties.yaml。
type Properties struct {
	SampleRateNumerator   uint64 `yaml:"sample_rate_numerator"`   // 采样率分子
	SampleRateDenominator uint64 `yaml:"sample_rate_denominator"` // 采样率分母
	SubdirCadenceSecs     uint64 `yaml:"subdir_cadence_secs"`     // 每个子目录覆盖的秒数
	FileCadenceMillisecs  uint64 `yaml:"file_cadence_millisecs"`  // 每个文件覆盖的毫秒数
	DType                 string `yaml:"dtype"`                   // 样本分量类型，例如 "int16"
	IsComplex             bool   `yaml:"is_complex"`              // 是否为复数 (I/Q) 数据
	NumSubchannels        int    `yaml:"num_subchannels"`         // 子通道数量
	CompressionLevel      int    `yaml:"compression_level"`       // 0 表示不压缩，1-9 使用 zstd
	Checksum              bool   `yaml:"checksum"`                // 是否为每个数据块写入 CRC32
	UUID                  string `yaml:"uuid_str"`                // 通道唯一标识
	Epoch                 string `yaml:"epoch"`                   // 样本索引的零点
	Version               string `yaml:"digital_rf_version"`      // 写入时的库版本
}

// DefaultProperties 返回常用的默认属性: 1 小时子目录，1 秒文件，复数 int16 单通道。
func DefaultProperties(rateNumerator, rateDenominator uint64) Properties {
	return Properties{
		SampleRateNumerator:   rateNumerator,
		SampleRateDenominator: rateDenominator,
		SubdirCadenceSecs:     3600,
		FileCadenceMillisecs:  1000,
		DType:                 "int16",
		IsComplex:             true,
		NumSubchannels:        1,
	}
}

// Validate 检查属性是否自洽。
func (p Properties) Validate() error {
	if p.SampleRateNumerator == 0 || p.SampleRateDenominator == 0 {
		return fmt.Errorf("%w: 采样率分子和分母必须大于 0", ErrInvalidProperties)
	}
	if p.SubdirCadenceSecs == 0 || p.FileCadenceMillisecs == 0 {
		return fmt.Errorf("%w: 子目录和文件周期必须大于 0", ErrInvalidProperties)
	}
	if (p.SubdirCadenceSecs*1000)%p.FileCadenceMillisecs != 0 {
		return fmt.Errorf("%w: subdir_cadence_secs*1000 (%d) 必须是 file_cadence_millisecs (%d) 的整数倍",
			ErrInvalidProperties, p.SubdirCadenceSecs*1000, p.FileCadenceMillisecs)
	}
	if _, ok := dtypeSizes[p.DType]; !ok {
		return fmt.Errorf("%w: 不支持的 dtype %q", ErrInvalidProperties, p.DType)
	}
	if p.NumSubchannels < 1 {
		return fmt.Errorf("%w: num_subchannels 必须至少为 1", ErrInvalidProperties)
	}
	if p.CompressionLevel < 0 || p.CompressionLevel > 9 {
		return fmt.Errorf("%w: compression_level 必须在 0-9 之间", ErrInvalidProperties)
	}
	return nil
}

// SampleSize 返回一个样本 (所有子通道) 占用的字节数。
func (p Properties) SampleSize() int {
	n := dtypeSizes[p.DType] * p.NumSubchannels
	if p.IsComplex {
		n *= 2
	}
	return n
}

// fileIndex 返回包含样本 sample 的文件序号 (文件起始毫秒 / 文件周期)。
func (p Properties) fileIndex(sample uint64) uint64 {
	return layout.MulDiv(sample, 1000*p.SampleRateDenominator, p.SampleRateNumerator*p.FileCadenceMillisecs)
}

// fileStartSample 返回第 k 个文件中的第一个样本索引。
func (p Properties) fileStartSample(k uint64) uint64 {
	return layout.MulDivCeil(k*p.FileCadenceMillisecs, p.SampleRateNumerator, 1000*p.SampleRateDenominator)
}

// filePath 返回第 k 个文件相对于通道目录的路径。
func (p Properties) filePath(k uint64) string {
	startMs := k * p.FileCadenceMillisecs
	return filepath.Join(layout.SubdirName(startMs/1000, p.SubdirCadenceSecs), layout.RFFileName(startMs))
}

// SampleTime 返回样本索引对应的 Unix 时间 (秒, 纳秒)。
func (p Properties) SampleTime(sample uint64) (sec int64, nsec int64) {
	s, rem := layout.MulDivRem(sample, p.SampleRateDenominator, p.SampleRateNumerator)
	return int64(s), int64(layout.MulDiv(rem, 1e9, p.SampleRateNumerator))
}

// SampleAt 返回不早于时间 t 的第一个样本索引，早于 Unix 纪元的时间对应样本 0。
func (p Properties) SampleAt(t time.Time) uint64 {
	if t.Before(time.Unix(0, 0)) {
		return 0
	}
	ns := uint64(t.Unix())*1e9 + uint64(t.Nanosecond())
	return layout.MulDivCeil(ns, p.SampleRateNumerator, 1e9*p.SampleRateDenominator)
}

// compatible 判断续写时已存在的属性与新属性是否一致。
// UUID、epoch 与版本号不参与比较。
func (p Properties) compatible(o Properties) bool {
	p.UUID, o.UUID = "", ""
	p.Version, o.Version = "", ""
	p.Epoch, o.Epoch = "", ""
	return p == o
}

func readProperties(dir string) (Properties, error) {
	var props Properties
	raw, err := os.ReadFile(filepath.Join(dir, layout.RFPropertiesFile))
	if err != nil {
		return props, err
	}
	if err := yaml.Unmarshal(raw, &props); err != nil {
		return props, fmt.Errorf("解析 %s 失败: %w", layout.RFPropertiesFile, err)
	}
	return props, props.Validate()
}

func writeProperties(dir string, props Properties) error {
	raw, err := yaml.Marshal(props)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+layout.RFPropertiesFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, layout.RFPropertiesFile))
}

// loadOrCreateProperties 在目录中已有属性文件时校验其一致性，否则写入新的属性文件。
func loadOrCreateProperties(dir string, props Properties) (Properties, error) {
	existing, err := readProperties(dir)
	switch {
	case err == nil:
		if !existing.compatible(props) {
			return Properties{}, fmt.Errorf("%w: %s", ErrPropertiesMismatch, dir)
		}
		return existing, nil
	case !errors.Is(err, os.ErrNotExist):
		return Properties{}, err
	}

	if props.UUID == "" {
		props.UUID = uuid.NewString()
	}
	props.Epoch = "1970-01-01T00:00:00Z"
	props.Version = version.Version
	if err := writeProperties(dir, props); err != nil {
		return Properties{}, fmt.Errorf("写入 %s 失败: %w", layout.RFPropertiesFile, err)
	}
	return props, nil
}
