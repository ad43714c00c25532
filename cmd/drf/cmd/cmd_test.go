package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"digital_rf/pkg/digitalrf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"":       0,
		"100":    100,
		"1kB":    1000,
		"2KiB":   2048,
		"-10GB":  -10 * 1000 * 1000 * 1000,
		" 1 MB ": 1000 * 1000,
	}
	for in, want := range cases {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseSize("lots")
	assert.Error(t, err)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLsCommand(t *testing.T) {
	dir := t.TempDir()
	w, err := digitalrf.NewWriter(filepath.Join(dir, "ch0"), digitalrf.DefaultProperties(10, 1), 0)
	require.NoError(t, err)
	require.NoError(t, w.Write(make([]byte, 4*25)))
	require.NoError(t, w.Close())

	out, err := run(t, "ls", "--log-level", "error", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[0], "drf_properties.yaml"))

	out, err = run(t, "ls", "--log-level", "error", "--kind", "properties", dir)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestRingBufferOnceCommand(t *testing.T) {
	dir := t.TempDir()
	w, err := digitalrf.NewWriter(filepath.Join(dir, "ch0"), digitalrf.DefaultProperties(10, 1), 0)
	require.NoError(t, err)
	require.NoError(t, w.Write(make([]byte, 4*50)))
	require.NoError(t, w.Close())

	_, err = run(t, "ringbuffer", "--log-level", "error", "--once", "--count", "2", dir)
	require.NoError(t, err)

	paths, err := (func() ([]string, error) {
		pkg, err := digitalrf.Load(context.Background())
		if err != nil {
			return nil, err
		}
		return pkg.LsDRF(dir, digitalrf.ListOptions{IncludeDRF: true})
	})()
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestMirrorOnceCommand(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	w, err := digitalrf.NewWriter(filepath.Join(src, "ch0"), digitalrf.DefaultProperties(10, 1), 0)
	require.NoError(t, err)
	require.NoError(t, w.Write(make([]byte, 4*10)))
	require.NoError(t, w.Close())

	_, err = run(t, "mirror", "--log-level", "error", "--once", src, dst)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "ch0", "drf_properties.yaml"))
	assert.NoError(t, err)
}
