package drf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// .drf 文件由若干个数据块顺序拼接而成，追加写入即追加一个数据块。
// 块头 (小端):
//
//	magic "DRFC" | flags u8 | global_start u64 | nsamples u32 | payload_len u32 | crc32 u32
const (
	chunkHeaderSize = 25

	flagZstd  byte = 1 << 0
	flagCRC32 byte = 1 << 1
)

var chunkMagic = [4]byte{'D', 'R', 'F', 'C'}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

// sharedDecoder 返回进程内共享的 zstd 解码器，DecodeAll 可并发调用。
func sharedDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil)
	})
	return decoder, decoderErr
}

// chunk 是解析后的数据块头，payload 指向文件内容中的原始负载。
type chunk struct {
	start    uint64
	nsamples uint64
	flags    byte
	crc      uint32
	payload  []byte
}

func (c chunk) end() uint64 { return c.start + c.nsamples }

// encodeChunk 按照通道属性编码一个数据块。
func encodeChunk(enc *zstd.Encoder, checksum bool, start uint64, nsamples int, data []byte) []byte {
	var flags byte
	payload := data
	if enc != nil {
		flags |= flagZstd
		payload = enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	var sum uint32
	if checksum {
		flags |= flagCRC32
		sum = crc32.ChecksumIEEE(data)
	}

	buf := make([]byte, chunkHeaderSize, chunkHeaderSize+len(payload))
	copy(buf[0:4], chunkMagic[:])
	buf[4] = flags
	binary.LittleEndian.PutUint64(buf[5:13], start)
	binary.LittleEndian.PutUint32(buf[13:17], uint32(nsamples))
	binary.LittleEndian.PutUint32(buf[17:21], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[21:25], sum)
	return append(buf, payload...)
}

// errTornTail 表示文件末尾的数据块没有写完整，通常是写入过程中进程被中断。
var errTornTail = errors.New("末尾数据块不完整")

// readChunks 读取并解析一个 .drf 文件中的全部数据块头。
func readChunks(path string) ([]chunk, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	chunks, _, err := parseChunks(path, raw)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// parseChunks 解析 raw 中的数据块，同时返回最后一个完整数据块之后的偏移。
// 末尾数据块被截断时错误同时包装 ErrCorrupt 和 errTornTail。
func parseChunks(path string, raw []byte) ([]chunk, int, error) {
	var chunks []chunk
	off := 0
	for off < len(raw) {
		if len(raw)-off < chunkHeaderSize {
			return chunks, off, fmt.Errorf("%w: %s: 偏移 %d 处块头被截断: %w", ErrCorrupt, path, off, errTornTail)
		}
		hdr := raw[off : off+chunkHeaderSize]
		if !bytes.Equal(hdr[0:4], chunkMagic[:]) {
			return chunks, off, fmt.Errorf("%w: %s: 偏移 %d 处 magic 错误", ErrCorrupt, path, off)
		}
		c := chunk{
			flags:    hdr[4],
			start:    binary.LittleEndian.Uint64(hdr[5:13]),
			nsamples: uint64(binary.LittleEndian.Uint32(hdr[13:17])),
			crc:      binary.LittleEndian.Uint32(hdr[21:25]),
		}
		plen := int(binary.LittleEndian.Uint32(hdr[17:21]))
		body := off + chunkHeaderSize
		if len(raw)-body < plen {
			return chunks, off, fmt.Errorf("%w: %s: 偏移 %d 处负载被截断: %w", ErrCorrupt, path, body, errTornTail)
		}
		c.payload = raw[body : body+plen]
		off = body + plen
		chunks = append(chunks, c)
	}
	return chunks, off, nil
}

// repairTail 把文件截断到最后一个完整数据块的末尾，返回截掉的字节数。
// 文件中间出现的损坏不会被修复。
func repairTail(path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	_, good, err := parseChunks(path, raw)
	if err == nil {
		return 0, nil
	}
	if !errors.Is(err, errTornTail) {
		return 0, err
	}
	if err := os.Truncate(path, int64(good)); err != nil {
		return 0, fmt.Errorf("截断数据文件 '%s' 失败: %w", path, err)
	}
	return int64(len(raw) - good), nil
}

// decode 返回数据块解压并校验后的样本字节。
func (c chunk) decode(path string, sampleSize int) ([]byte, error) {
	data := c.payload
	if c.flags&flagZstd != 0 {
		dec, err := sharedDecoder()
		if err != nil {
			return nil, err
		}
		data, err = dec.DecodeAll(c.payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: 解压失败: %v", ErrCorrupt, path, err)
		}
	}
	if c.flags&flagCRC32 != 0 && crc32.ChecksumIEEE(data) != c.crc {
		return nil, fmt.Errorf("%w: %s: 样本 %d 处 CRC 校验失败", ErrCorrupt, path, c.start)
	}
	if uint64(len(data)) != c.nsamples*uint64(sampleSize) {
		return nil, fmt.Errorf("%w: %s: 样本 %d 处长度不符", ErrCorrupt, path, c.start)
	}
	return data, nil
}

// Probe 检查编解码器在当前进程中是否可用。
func Probe() error {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	defer enc.Close()
	_, err = sharedDecoder()
	return err
}
