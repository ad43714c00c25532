package digitalrf

import (
	"digital_rf/internal/drf"
	"digital_rf/internal/metadata"
	"digital_rf/internal/version"
	"digital_rf/internal/watchdog"
)

// Version 是库版本。
const Version = version.Version

// Digital RF 通道存储。
type (
	Properties = drf.Properties
	Writer     = drf.Writer
	Reader     = drf.Reader
	Block      = drf.Block
	Segment    = drf.Segment
)

var (
	ErrInvalidProperties  = drf.ErrInvalidProperties
	ErrPropertiesMismatch = drf.ErrPropertiesMismatch
	ErrSampleSize         = drf.ErrSampleSize
	ErrOverlap            = drf.ErrOverlap
	ErrBlocks             = drf.ErrBlocks
	ErrCorrupt            = drf.ErrCorrupt
	ErrNoData             = drf.ErrNoData
	ErrGap                = drf.ErrGap
	ErrUnknownChannel     = drf.ErrUnknownChannel
	ErrClosed             = drf.ErrClosed
)

// DefaultProperties 返回给定采样率的常用通道属性。
func DefaultProperties(rateNumerator, rateDenominator uint64) Properties {
	return drf.DefaultProperties(rateNumerator, rateDenominator)
}

// NewWriter 在 dir 中创建 (或续写) 一个 RF 通道，start 是第一个样本的全局索引。
func NewWriter(dir string, props Properties, start uint64) (*Writer, error) {
	return drf.NewWriter(dir, props, start)
}

// NewReader 打开包含一个或多个通道的顶层目录。
func NewReader(top string) (*Reader, error) {
	return drf.NewReader(top)
}

// Digital Metadata。
type (
	MetadataProperties = metadata.Properties
	MetadataWriter     = metadata.Writer
	MetadataReader     = metadata.Reader
	MetadataRecord     = metadata.Record
)

var (
	ErrMetadataInvalidProperties  = metadata.ErrInvalidProperties
	ErrMetadataPropertiesMismatch = metadata.ErrPropertiesMismatch
	ErrMetadataOutOfOrder         = metadata.ErrOutOfOrder
	ErrMetadataFieldMismatch      = metadata.ErrFieldMismatch
	ErrMetadataNoData             = metadata.ErrNoData
)

// NewMetadataWriter 在 dir 中创建 (或续写) 元数据目录。
func NewMetadataWriter(dir string, props MetadataProperties) (*MetadataWriter, error) {
	return metadata.NewWriter(dir, props)
}

// NewMetadataReader 打开元数据目录。
func NewMetadataReader(dir string) (*MetadataReader, error) {
	return metadata.NewReader(dir)
}

// ListOptions 是 LsDRF 和 Watch 使用的文件筛选规则。
type ListOptions = watchdog.ListOptions

// DefaultListOptions 返回包含全部文件类型、不限时间的筛选规则。
func DefaultListOptions() ListOptions {
	return watchdog.DefaultListOptions()
}
