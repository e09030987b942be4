package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	var parent int64 = 7
	tests := []struct {
		name string
		op   string
		args []any
		want string
	}{
		{"no args", "projects", nil, "projects"},
		{"search is normalised", "projects", []any{"  Backend ", 20}, "projects|backend|20"},
		{"nil pointer", "count", []any{(*int64)(nil)}, "count|-"},
		{"pointer value", "count", []any{&parent}, "count|7"},
		{"nil", "envs", []any{nil, 3}, "envs|-|3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.op, tt.args...))
		})
	}
}

func TestGetSet(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 42, time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestExpiredEntryIsEvictedOnRead(t *testing.T) {
	c := New()
	c.Set("a", "x", 10*time.Millisecond)
	assert.Equal(t, 1, c.Len())

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSetNonPositiveTTLDeletes(t *testing.T) {
	c := New()
	c.Set("a", "x", time.Minute)

	c.Set("a", "y", 0)
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("b", "z", -time.Second)
	assert.Equal(t, 0, c.Len())
}

func TestPurge(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoad(t *testing.T) {
	c := New()
	var calls atomic.Int32
	load := func(context.Context) (int, error) {
		calls.Add(1)
		return 5, nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(context.Background(), c, "count|1", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := New()
	var calls atomic.Int32
	boom := errors.New("boom")
	load := func(context.Context) (int, error) {
		calls.Add(1)
		return 0, boom
	}

	_, err := GetOrLoad(context.Background(), c, "k", time.Minute, load)
	assert.ErrorIs(t, err, boom)
	_, err = GetOrLoad(context.Background(), c, "k", time.Minute, load)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoadDisabledTTLAlwaysLoads(t *testing.T) {
	c := New()
	var calls atomic.Int32
	load := func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	for i := 0; i < 2; i++ {
		_, err := GetOrLoad(context.Background(), c, "k", 0, load)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrLoadCollapsesConcurrentMisses(t *testing.T) {
	c := New()
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrLoad(context.Background(), c, "k", time.Minute, load)
			assert.NoError(t, err)
			assert.Equal(t, 1, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoadSurvivesFirstCallerCancel(t *testing.T) {
	c := New()
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := GetOrLoad(first, c, "k", time.Minute, load)
		firstErr <- err
	}()
	<-started

	second := make(chan int, 1)
	go func() {
		v, err := GetOrLoad(context.Background(), c, "k", time.Minute, load)
		assert.NoError(t, err)
		second <- v
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case v := <-second:
		assert.Equal(t, 7, v)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}
