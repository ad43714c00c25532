// Package layout 定义了 Digital RF 与 Digital Metadata 在磁盘上的目录/文件命名规则。
// 数据通道目录下按时间切分子目录，子目录内再按文件周期切分数据文件:
//
//	<channel>/drf_properties.yaml
//	<channel>/2024-01-02T03-04-00/rf@1704164640.000.drf
//	<metadata>/dmd_properties.yaml
//	<metadata>/2024-01-02T03-04-00/metadata@1704164640.dmd
package layout

import (
	"fmt"
	"math/bits"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// RFPropertiesFile 是 RF 通道的属性文件名。
	RFPropertiesFile = "drf_properties.yaml"
	// MetadataPropertiesFile 是元数据通道的属性文件名。
	MetadataPropertiesFile = "dmd_properties.yaml"
	// RFPrefix 是 RF 数据文件的名称前缀。
	RFPrefix = "rf"
	// RFExt 是 RF 数据文件的扩展名。
	RFExt = ".drf"
	// MetadataExt 是元数据文件的扩展名。
	MetadataExt = ".dmd"

	subdirFormat = "2006-01-02T15-04-05"
)

// Kind 标识一个文件在 Digital RF 目录树中的角色。
type Kind int

const (
	KindOther Kind = iota
	KindRF
	KindMetadata
	KindRFProperties
	KindMetadataProperties
)

// String 返回 Kind 的可读名称。
func (k Kind) String() string {
	switch k {
	case KindRF:
		return "drf"
	case KindMetadata:
		return "dmd"
	case KindRFProperties:
		return "drf_properties"
	case KindMetadataProperties:
		return "dmd_properties"
	default:
		return "other"
	}
}

// IsProperties 报告该类型是否为属性文件。
func (k Kind) IsProperties() bool {
	return k == KindRFProperties || k == KindMetadataProperties
}

// SubdirName 返回包含 sec 时刻数据的子目录名称。
func SubdirName(sec, cadenceSecs uint64) string {
	start := (sec / cadenceSecs) * cadenceSecs
	return time.Unix(int64(start), 0).UTC().Format(subdirFormat)
}

// ParseSubdir 解析子目录名称，返回对应的 UTC 时间。
func ParseSubdir(name string) (time.Time, error) {
	return time.ParseInLocation(subdirFormat, name, time.UTC)
}

// RFFileName 返回起始于 startMs (Unix 毫秒) 的 RF 文件名。
func RFFileName(startMs uint64) string {
	return fmt.Sprintf("%s@%d.%03d%s", RFPrefix, startMs/1000, startMs%1000, RFExt)
}

// MetadataFileName 返回起始于 startSec 的元数据文件名。
func MetadataFileName(prefix string, startSec uint64) string {
	return fmt.Sprintf("%s@%d%s", prefix, startSec, MetadataExt)
}

// Classify 根据文件名判断其类型，并在数据文件时返回文件起始时间 (Unix 毫秒)。
func Classify(name string) (Kind, uint64) {
	base := filepath.Base(name)
	switch base {
	case RFPropertiesFile:
		return KindRFProperties, 0
	case MetadataPropertiesFile:
		return KindMetadataProperties, 0
	}
	at := strings.LastIndexByte(base, '@')
	if at <= 0 {
		return KindOther, 0
	}
	stamp := base[at+1:]
	switch {
	case base[:at] == RFPrefix && strings.HasSuffix(stamp, RFExt):
		stamp = strings.TrimSuffix(stamp, RFExt)
		dot := strings.IndexByte(stamp, '.')
		if dot < 0 || len(stamp)-dot-1 != 3 {
			return KindOther, 0
		}
		sec, err := strconv.ParseUint(stamp[:dot], 10, 64)
		if err != nil {
			return KindOther, 0
		}
		ms, err := strconv.ParseUint(stamp[dot+1:], 10, 64)
		if err != nil {
			return KindOther, 0
		}
		return KindRF, sec*1000 + ms
	case strings.HasSuffix(stamp, MetadataExt):
		sec, err := strconv.ParseUint(strings.TrimSuffix(stamp, MetadataExt), 10, 64)
		if err != nil {
			return KindOther, 0
		}
		return KindMetadata, sec * 1000
	}
	return KindOther, 0
}

// MulDiv 计算 floor(a*b/c)，中间结果使用 128 位避免溢出。
// 结果超出 uint64 时会 panic，调用方需保证量纲合理。
func MulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// MulDivRem 计算 a*b 除以 c 的商和余数。
func MulDivRem(a, b, c uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(a, b)
	return bits.Div64(hi, lo, c)
}

// MulDivCeil 计算 ceil(a*b/c)。
func MulDivCeil(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, r := bits.Div64(hi, lo, c)
	if r != 0 {
		q++
	}
	return q
}
