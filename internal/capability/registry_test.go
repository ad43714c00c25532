package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func unavailable(context.Context) error {
	return fmt.Errorf("inotify: %w", ErrUnavailable)
}

func TestLoadAllPresent(t *testing.T) {
	var order []string
	track := func(name string) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	r, err := Load(context.Background(), nil,
		Module{Name: "opt", Group: "g", Init: track("opt")},
		Module{Name: "a", Required: true, Init: track("a")},
		Module{Name: "b", Required: true, Init: track("b")},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "opt"}, order)
	assert.Equal(t, []string{"a", "b", "opt"}, r.Names())
	assert.True(t, r.Has("opt"))
	assert.Empty(t, r.Skipped())
}

func TestOptionalGroupIsAllOrNothing(t *testing.T) {
	r, err := Load(context.Background(), nil,
		Module{Name: "core", Required: true, Init: ok},
		Module{Name: "first", Group: "watch", Init: ok},
		Module{Name: "second", Group: "watch", Init: unavailable},
		Module{Name: "third", Group: "watch", Init: ok},
		Module{Name: "other", Group: "extra", Init: ok},
	)
	require.NoError(t, err)

	assert.True(t, r.Has("core"))
	assert.True(t, r.Has("other"))
	for _, name := range []string{"first", "second", "third"} {
		assert.False(t, r.Has(name), name)
	}
	require.Contains(t, r.Skipped(), "watch")
	assert.ErrorIs(t, r.Skipped()["watch"], ErrUnavailable)
}

func TestRequiredFailurePropagates(t *testing.T) {
	boom := errors.New("codec missing")
	_, err := Load(context.Background(), nil,
		Module{Name: "core", Required: true, Init: func(context.Context) error { return boom }},
		Module{Name: "opt", Group: "g", Init: ok},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, `必需模块 "core" 初始化失败: codec missing`, err.Error())

	// 必需模块即使返回 ErrUnavailable 也不会被容忍
	_, err = Load(context.Background(), nil, Module{Name: "core", Required: true, Init: unavailable})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOptionalOtherErrorPropagates(t *testing.T) {
	boom := errors.New("bad config")
	_, err := Load(context.Background(), nil,
		Module{Name: "opt", Group: "g", Init: func(context.Context) error { return boom }},
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, `可选能力组 "g" 初始化失败: 模块 "opt": bad config`, err.Error())
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(), nil,
		Module{Name: "a", Required: true},
		Module{Name: "a", Required: true},
	)
	assert.Error(t, err)

	_, err = Load(context.Background(), nil, Module{Name: "loose"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, nil, Module{Name: "a", Required: true})
	assert.ErrorIs(t, err, context.Canceled)
}
