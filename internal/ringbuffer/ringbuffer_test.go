package ringbuffer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"digital_rf/internal/events"
	"digital_rf/internal/layout"
	"digital_rf/internal/watchdog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeChannel 在 root/name 下创建 n 个 1 秒间隔、每个 size 字节的 RF 文件，
// 每 10 秒一个子目录。
func makeChannel(t *testing.T, root, name string, n int, size int) []string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, layout.RFPropertiesFile), []byte("p"), 0o644))
	var paths []string
	for i := 0; i < n; i++ {
		sec := uint64(1704067200 + i)
		sub := filepath.Join(dir, layout.SubdirName(sec, 10))
		require.NoError(t, os.MkdirAll(sub, 0o755))
		p := filepath.Join(sub, layout.RFFileName(sec*1000))
		require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("x", size)), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func newRB(t *testing.T, opts Options) *RingBuffer {
	t.Helper()
	opts.List = watchdog.DefaultListOptions()
	rb, err := New(opts, nil, nil)
	require.NoError(t, err)
	return rb
}

func TestCountLimitPerChannel(t *testing.T) {
	root := t.TempDir()
	a := makeChannel(t, root, "a", 15, 1)
	b := makeChannel(t, root, "b", 3, 1)

	rb := newRB(t, Options{Dir: root, Count: 5})
	require.NoError(t, rb.Scan(context.Background()))

	for _, p := range a[:10] {
		assert.NoFileExists(t, p)
	}
	for _, p := range a[10:] {
		assert.FileExists(t, p)
	}
	for _, p := range b {
		assert.FileExists(t, p)
	}
	// 属性文件保留，变空的子目录被删除
	assert.FileExists(t, filepath.Join(root, "a", layout.RFPropertiesFile))
	assert.NoDirExists(t, filepath.Dir(a[0]))
	assert.DirExists(t, filepath.Dir(a[14]))

	files, bytes := rb.Stats()
	assert.Equal(t, 8, files)
	assert.Equal(t, int64(8), bytes)
}

func TestSizeLimit(t *testing.T) {
	root := t.TempDir()
	paths := makeChannel(t, root, "a", 6, 100)
	rb := newRB(t, Options{Dir: root, Size: 250})
	require.NoError(t, rb.Scan(context.Background()))

	for _, p := range paths[:4] {
		assert.NoFileExists(t, p)
	}
	assert.FileExists(t, paths[4])
	assert.FileExists(t, paths[5])
}

func TestDurationLimit(t *testing.T) {
	root := t.TempDir()
	paths := makeChannel(t, root, "a", 10, 1)
	rb := newRB(t, Options{Dir: root, Duration: 3 * time.Second})
	require.NoError(t, rb.Scan(context.Background()))

	// 最新文件在 +9s，保留 +6s 及之后的文件
	for i, p := range paths {
		if i < 6 {
			assert.NoFileExists(t, p, i)
		} else {
			assert.FileExists(t, p, i)
		}
	}
}

func TestFreeSpaceLimitDryRun(t *testing.T) {
	root := t.TempDir()
	a := makeChannel(t, root, "a", 3, 100)
	b := makeChannel(t, root, "b", 3, 100)

	rec := &events.Recorder{}
	rb, err := New(Options{Dir: root, Size: -1000, DryRun: true, List: watchdog.DefaultListOptions()}, rec, nil)
	require.NoError(t, err)
	rb.freeSpace = func(string) (uint64, error) { return 750, nil }

	require.NoError(t, rb.Scan(context.Background()))

	// 需要再释放 250 字节: 删除全局最旧的三个文件 (a0, b0, a1)
	evs := rec.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, a[0], evs[0].Path)
	assert.Equal(t, b[0], evs[1].Path)
	assert.Equal(t, a[1], evs[2].Path)
	for _, ev := range evs {
		assert.True(t, ev.DryRun)
		assert.Equal(t, events.KindExpired, ev.Kind)
	}
	// dry run 不真正删除
	for _, p := range append(a, b...) {
		assert.FileExists(t, p)
	}
}

func TestDryRunExpiresOnce(t *testing.T) {
	root := t.TempDir()
	paths := makeChannel(t, root, "a", 4, 10)

	rec := &events.Recorder{}
	rb, err := New(Options{Dir: root, Count: 2, DryRun: true, List: watchdog.DefaultListOptions()}, rec, nil)
	require.NoError(t, err)
	require.NoError(t, rb.Scan(context.Background()))
	require.Len(t, rec.Events(), 2)

	// 写入事件再次出现时不会重复删除
	for _, p := range paths[:2] {
		added, err := rb.Add(p)
		require.NoError(t, err)
		assert.False(t, added)
	}
	n, err := rb.Expire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, rb.Scan(context.Background()))
	assert.Len(t, rec.Events(), 2)
	assert.Equal(t, uint64(20), rb.freed)

	// 文件真正被删除后不再计入假装释放的空间
	require.NoError(t, os.Remove(paths[0]))
	assert.True(t, rb.Remove(paths[0]))
	assert.Equal(t, uint64(10), rb.freed)
	files, _ := rb.Stats()
	assert.Equal(t, 2, files)
}

func TestFreeSpaceError(t *testing.T) {
	root := t.TempDir()
	makeChannel(t, root, "a", 2, 1)
	rb := newRB(t, Options{Dir: root, Size: -1})
	rb.freeSpace = func(string) (uint64, error) { return 0, fmt.Errorf("statfs failed") }
	assert.Error(t, rb.Scan(context.Background()))
}

func TestAddRemove(t *testing.T) {
	root := t.TempDir()
	paths := makeChannel(t, root, "a", 2, 10)
	rb := newRB(t, Options{Dir: root, Count: 10})

	added, err := rb.Add(paths[1])
	require.NoError(t, err)
	assert.True(t, added)
	added, err = rb.Add(paths[1])
	require.NoError(t, err)
	assert.False(t, added)

	// 属性文件不被跟踪
	added, err = rb.Add(filepath.Join(root, "a", layout.RFPropertiesFile))
	require.NoError(t, err)
	assert.False(t, added)

	_, err = rb.Add(filepath.Join(root, "a", "missing", "rf@1.000.drf"))
	assert.Error(t, err)

	assert.True(t, rb.Remove(paths[1]))
	assert.False(t, rb.Remove(paths[1]))
	files, _ := rb.Stats()
	assert.Equal(t, 0, files)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Dir: "x"}, nil, nil)
	assert.Error(t, err)
	_, err = New(Options{Count: 1}, nil, nil)
	assert.Error(t, err)
	_, err = New(Options{Dir: "x", Count: -1}, nil, nil)
	assert.Error(t, err)
}

func TestRunExpiresNewFiles(t *testing.T) {
	root := t.TempDir()
	paths := makeChannel(t, root, "a", 2, 1)
	rb := newRB(t, Options{Dir: root, Count: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rb.Run(ctx) }()

	require.Eventually(t, func() bool {
		files, _ := rb.Stats()
		return files == 2
	}, 5*time.Second, 10*time.Millisecond)

	sec := uint64(1704067200 + 2)
	p := filepath.Join(root, "a", layout.SubdirName(sec, 10), layout.RFFileName(sec*1000))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(paths[0])
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
	assert.FileExists(t, p)

	cancel()
	assert.NoError(t, <-done)
}
