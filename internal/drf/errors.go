package drf

import "errors"

var (
	// ErrInvalidProperties 表示通道属性不合法。
	ErrInvalidProperties = errors.New("drf: invalid channel properties")
	// ErrPropertiesMismatch 表示目录中已有的属性与写入方给出的属性不一致。
	ErrPropertiesMismatch = errors.New("drf: existing channel properties do not match")
	// ErrSampleSize 表示写入的字节数不是单个样本大小的整数倍。
	ErrSampleSize = errors.New("drf: data length is not a multiple of the sample size")
	// ErrOverlap 表示写入位置早于通道中已写入的最后一个样本。
	ErrOverlap = errors.New("drf: write overlaps previously written samples")
	// ErrBlocks 表示分块写入的索引参数不合法。
	ErrBlocks = errors.New("drf: invalid block indices")
	// ErrCorrupt 表示数据文件损坏。
	ErrCorrupt = errors.New("drf: corrupt data file")
	// ErrNoData 表示通道中没有任何数据。
	ErrNoData = errors.New("drf: no data")
	// ErrGap 表示请求的连续区间中存在数据缺口。
	ErrGap = errors.New("drf: requested range is not continuous")
	// ErrUnknownChannel 表示通道不存在。
	ErrUnknownChannel = errors.New("drf: unknown channel")
	// ErrClosed 表示 Writer 已关闭。
	ErrClosed = errors.New("drf: writer is closed")
)
