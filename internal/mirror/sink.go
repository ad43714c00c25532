package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"digital_rf/pkg/circuitbreaker"

	"github.com/minio/minio-go/v7"
)

// Sink 是镜像的写入目标。rel 是相对于源目录、以 '/' 分隔的路径。
type Sink interface {
	Put(ctx context.Context, rel, src string) error
	String() string
}

// LocalSink 把文件写入另一个本地目录，保持相对路径不变。
// 先写入同目录下的临时文件，再重命名为最终文件名，读者不会看到写了一半的文件。
type LocalSink struct {
	Root string
}

// NewLocalSink 创建写入 root 的 LocalSink，root 不存在时会被创建。
func NewLocalSink(root string) (*LocalSink, error) {
	if root == "" {
		return nil, fmt.Errorf("未指定镜像目标目录")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建镜像目标目录 '%s' 失败: %w", root, err)
	}
	return &LocalSink{Root: root}, nil
}

func (s *LocalSink) String() string { return "local:" + s.Root }

// Put 复制 src 到 Root/rel，并保留权限位和修改时间。
func (s *LocalSink) Put(ctx context.Context, rel, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return fmt.Errorf("复制 '%s' 失败: %w", src, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return err
	}
	ok = true
	return nil
}

// objectPutter 是 minio.Client 中被用到的部分。
type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOSink 把文件上传到对象存储，对象键为 Prefix + rel。
// 上传经过熔断器，目标连续失败时快速返回 circuitbreaker.ErrCircuitOpen。
type MinIOSink struct {
	client  objectPutter
	bucket  string
	prefix  string
	breaker *circuitbreaker.Breaker
}

// NewMinIOSink 创建 MinIOSink。breaker 为 nil 时不启用熔断。
func NewMinIOSink(client *minio.Client, bucket, prefix string, breaker *circuitbreaker.Breaker) *MinIOSink {
	return &MinIOSink{client: client, bucket: bucket, prefix: prefix, breaker: breaker}
}

func (s *MinIOSink) String() string { return "minio:" + s.bucket + "/" + s.prefix }

// Key 返回 rel 对应的对象键。
func (s *MinIOSink) Key(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

// Put 上传 src。
func (s *MinIOSink) Put(ctx context.Context, rel, src string) error {
	upload := func() error {
		_, err := s.client.FPutObject(ctx, s.bucket, s.Key(rel), src, minio.PutObjectOptions{
			ContentType: contentType(rel),
		})
		if err != nil {
			return fmt.Errorf("上传 '%s' 到存储桶 '%s' 失败: %w", rel, s.bucket, err)
		}
		return nil
	}
	if s.breaker == nil {
		return upload()
	}
	return s.breaker.Execute(upload)
}

func contentType(rel string) string {
	switch path.Ext(rel) {
	case ".yaml":
		return "application/yaml"
	case ".dmd":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
