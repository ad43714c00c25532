package watchdog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"digital_rf/internal/layout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

// buildTree 创建一个包含 RF 通道和元数据通道的目录树。
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	touch(t, filepath.Join(root, "ch0", layout.RFPropertiesFile))
	touch(t, filepath.Join(root, "ch0", "2024-01-01T00-00-00", "rf@1704067202.000.drf"))
	touch(t, filepath.Join(root, "ch0", "2024-01-01T00-00-00", "rf@1704067200.000.drf"))
	touch(t, filepath.Join(root, "ch0", "2024-01-01T00-00-00", "rf@1704067201.000.drf"))
	touch(t, filepath.Join(root, "ch0", "2024-01-01T00-00-00", "notes.txt"))
	touch(t, filepath.Join(root, "meta", layout.MetadataPropertiesFile))
	touch(t, filepath.Join(root, "meta", "2024-01-01T00-00-00", "meta@1704067200.dmd"))
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestListDRFSorted(t *testing.T) {
	root := buildTree(t)
	paths, err := ListDRF(root, DefaultListOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ch0/drf_properties.yaml",
		"ch0/2024-01-01T00-00-00/rf@1704067200.000.drf",
		"ch0/2024-01-01T00-00-00/rf@1704067201.000.drf",
		"ch0/2024-01-01T00-00-00/rf@1704067202.000.drf",
		"meta/dmd_properties.yaml",
		"meta/2024-01-01T00-00-00/meta@1704067200.dmd",
	}, rel(t, root, paths))
}

func TestListDRFFilters(t *testing.T) {
	root := buildTree(t)

	opts := DefaultListOptions()
	opts.IncludeDMD = false
	opts.IncludeProperties = false
	paths, err := ListDRF(root, opts)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	opts = DefaultListOptions()
	opts.Start = time.Unix(1704067201, 0)
	opts.End = time.Unix(1704067201, 0)
	paths, err = ListDRF(root, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ch0/drf_properties.yaml",
		"ch0/2024-01-01T00-00-00/rf@1704067201.000.drf",
		"meta/dmd_properties.yaml",
	}, rel(t, root, paths))

	opts = DefaultListOptions()
	opts.Include = []string{"meta/**"}
	paths, err = ListDRF(root, opts)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	opts = DefaultListOptions()
	opts.Exclude = []string{"rf@*"}
	paths, err = ListDRF(root, opts)
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}

func TestListDRFSingleFileAndErrors(t *testing.T) {
	root := buildTree(t)
	file := filepath.Join(root, "ch0", "2024-01-01T00-00-00", "rf@1704067200.000.drf")
	paths, err := ListDRF(file, DefaultListOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{file}, paths)

	_, err = ListDRF(filepath.Join(root, "missing"), DefaultListOptions())
	assert.Error(t, err)

	opts := DefaultListOptions()
	opts.Include = []string{"[unterminated"}
	_, err = ListDRF(root, opts)
	assert.Error(t, err)

	opts = DefaultListOptions()
	opts.Start = time.Unix(10, 0)
	opts.End = time.Unix(5, 0)
	_, err = NewFilter(root, opts)
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	assert.NoError(t, Probe())
}

// waitFor 从事件通道中读取，直到出现满足 match 的事件。
func waitFor(t *testing.T, w *Watcher, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "事件通道被意外关闭")
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("等待事件超时")
		}
	}
}

func TestWatcherNewFiles(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, DefaultListOptions(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	// 新建的子目录及其中的文件都应被发现
	rf := filepath.Join(root, "ch0", "2024-01-01T00-00-00", "rf@1704067200.000.drf")
	touch(t, rf)
	touch(t, filepath.Join(root, "ch0", "ignored.txt"))

	ev := waitFor(t, w, func(ev Event) bool { return ev.Path == rf })
	assert.Equal(t, layout.KindRF, ev.Kind)
	assert.Equal(t, uint64(1704067200000), ev.Ms)

	require.NoError(t, os.Remove(rf))
	ev = waitFor(t, w, func(ev Event) bool { return ev.Path == rf && ev.Op == Remove })
	assert.Equal(t, "remove", ev.Op.String())
}

func TestWatcherRootCreatedLater(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "later", "data")
	w, err := NewWatcher(root, DefaultListOptions(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	require.NoError(t, os.MkdirAll(root, 0o755))
	prop := filepath.Join(root, "ch0", layout.RFPropertiesFile)

	// 根目录出现后可能需要一次补扫，这里反复写入直到收到事件
	require.Eventually(t, func() bool {
		touch(t, prop)
		select {
		case ev := <-w.Events():
			return ev.Path == prop
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherCloseClosesEvents(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), DefaultListOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestWatcherCloseWithoutStart(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), DefaultListOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close 后事件通道没有关闭")
	}
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcherStartFailureThenClose(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	touch(t, file)
	w, err := NewWatcher(file, DefaultListOptions(), nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Start 失败后 Close 没有关闭事件通道")
	}
}

func TestWatcherStartTwice(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), DefaultListOptions(), nil)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
}

func TestParseFileTime(t *testing.T) {
	ts, ok := ParseFileTime("/x/ch0/2024-01-01T00-00-00/rf@1704067200.250.drf")
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1704067200250).UTC(), ts)

	ts, ok = ParseFileTime("meta@1704067200.dmd")
	require.True(t, ok)
	assert.Equal(t, int64(1704067200), ts.Unix())

	_, ok = ParseFileTime(layout.RFPropertiesFile)
	assert.False(t, ok)
	_, ok = ParseFileTime("notes.txt")
	assert.False(t, ok)
}
