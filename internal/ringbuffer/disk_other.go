//go:build !unix

package ringbuffer

import "errors"

func freeSpace(string) (uint64, error) {
	return 0, errors.New("ringbuffer: 当前平台不支持查询磁盘剩余空间")
}
