package digitalrf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"digital_rf/internal/mirror"
	"digital_rf/internal/ringbuffer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var optional = []string{ModuleWatchdog, ModuleMirror, ModuleRingBuffer, ModuleLsDRF}

func TestLoadAllDependenciesPresent(t *testing.T) {
	pkg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Version, pkg.Version())
	for _, name := range append([]string{ModuleMetadata, ModuleRF}, optional...) {
		assert.True(t, pkg.Has(name), name)
	}
	assert.Empty(t, pkg.Skipped())

	root := t.TempDir()
	w, err := NewWriter(filepath.Join(root, "ch0"), DefaultProperties(100, 1), 0)
	require.NoError(t, err)
	require.NoError(t, w.Write(make([]byte, 4*100)))
	require.NoError(t, w.Close())

	paths, err := pkg.LsDRF(root, DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	watcher, err := pkg.Watch(root, DefaultListOptions())
	require.NoError(t, err)
	require.NoError(t, watcher.Close())
}

func TestLoadOptionalDependencyAbsent(t *testing.T) {
	missing := func(context.Context) error {
		return fmt.Errorf("inotify: %w", ErrUnavailable)
	}
	pkg, err := Load(context.Background(), WithProbe(ModuleWatchdog, missing))
	require.NoError(t, err)

	assert.Equal(t, Version, pkg.Version())
	assert.Equal(t, []string{ModuleMetadata, ModuleRF}, pkg.Capabilities())
	for _, name := range optional {
		assert.False(t, pkg.Has(name), name)
	}
	assert.ErrorIs(t, pkg.Skipped()[GroupWatchdog], ErrUnavailable)

	// 必需能力仍然可以使用
	dir := t.TempDir()
	_, err = NewMetadataWriter(filepath.Join(dir, "meta"), MetadataProperties{
		SubdirCadenceSecs: 3600, FileCadenceSecs: 1,
		SampleRateNumerator: 1, SampleRateDenominator: 1, FileName: "meta",
	})
	require.NoError(t, err)

	_, err = pkg.LsDRF(dir, DefaultListOptions())
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = pkg.Watch(dir, DefaultListOptions())
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = pkg.Mirror(mirror.Options{Source: dir}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = pkg.RingBuffer(ringbuffer.Options{Dir: dir, Count: 1}, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadOptionalMemberFailureHidesWholeGroup(t *testing.T) {
	pkg, err := Load(context.Background(), WithProbe(ModuleRingBuffer, func(context.Context) error {
		return fmt.Errorf("statfs: %w", ErrUnavailable)
	}))
	require.NoError(t, err)
	for _, name := range optional {
		assert.False(t, pkg.Has(name), name)
	}
}

func TestLoadRequiredFailurePropagates(t *testing.T) {
	boom := errors.New("zstd codec missing")
	_, err := Load(context.Background(), WithProbe(ModuleRF, func(context.Context) error { return boom }))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// 必需能力的 ErrUnavailable 也不会被容忍
	_, err = Load(context.Background(), WithProbe(ModuleMetadata, func(context.Context) error {
		return fmt.Errorf("json: %w", ErrUnavailable)
	}))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLoadOptionalOtherErrorPropagates(t *testing.T) {
	boom := errors.New("permission denied")
	_, err := Load(context.Background(), WithProbe(ModuleWatchdog, func(context.Context) error { return boom }))
	assert.ErrorIs(t, err, boom)
}

func TestPackageMirrorAndRingBuffer(t *testing.T) {
	pkg, err := Load(context.Background())
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "ch0"), 0o755))
	sink, err := mirror.NewLocalSink(t.TempDir())
	require.NoError(t, err)
	_, err = pkg.Mirror(mirror.Options{Source: src}, sink, nil, nil)
	require.NoError(t, err)

	_, err = pkg.RingBuffer(ringbuffer.Options{Dir: src, Count: 10, List: DefaultListOptions()}, nil)
	require.NoError(t, err)
}
