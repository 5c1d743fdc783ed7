package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) *Queue {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewWithClient(client, "test")
	t.Cleanup(func() { q.Close() })

	return q
}

func TestWorker_ExecutesJob(t *testing.T) {
	q := setupTestQueue(t)

	var mu sync.Mutex
	var got [][]string

	w := NewWorker(q, 2)
	w.Register("echo", func(ctx context.Context, args []string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, args)
		return nil
	})
	w.Start()
	defer w.Stop()

	require.NoError(t, q.Enqueue(context.Background(), "echo", "hello", "world"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello", "world"}, got[0])
}

func TestWorker_MultipleJobs(t *testing.T) {
	q := setupTestQueue(t)

	var mu sync.Mutex
	seen := make(map[string]bool)

	w := NewWorker(q, 4)
	w.Register("mark", func(ctx context.Context, args []string) error {
		mu.Lock()
		defer mu.Unlock()
		seen[args[0]] = true
		return nil
	})
	w.Start()
	defer w.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "mark", "a"))
	require.NoError(t, q.Enqueue(ctx, "mark", "b"))
	require.NoError(t, q.Enqueue(ctx, "mark", "c"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWorker_SurvivesPanic(t *testing.T) {
	q := setupTestQueue(t)

	done := make(chan struct{})

	w := NewWorker(q, 1)
	w.Register("boom", func(ctx context.Context, args []string) error {
		panic("boom")
	})
	w.Register("ok", func(ctx context.Context, args []string) error {
		close(done)
		return nil
	})
	w.Start()
	defer w.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "boom"))
	require.NoError(t, q.Enqueue(ctx, "ok"))

	// panic 的任务不应拖垮 worker，后续任务照常执行
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker 在任务 panic 后停止了消费")
	}
}

func TestWorker_IgnoresUnknownJob(t *testing.T) {
	q := setupTestQueue(t)

	done := make(chan struct{})

	w := NewWorker(q, 1)
	w.Register("known", func(ctx context.Context, args []string) error {
		close(done)
		return nil
	})
	w.Start()
	defer w.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "unknown"))
	require.NoError(t, q.Enqueue(ctx, "known"))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("未注册任务不应阻塞后续任务")
	}
}

func TestWorker_StopWaitsForInflight(t *testing.T) {
	q := setupTestQueue(t)

	started := make(chan struct{})
	var finished bool
	var mu sync.Mutex

	w := NewWorker(q, 1)
	w.Register("slow", func(ctx context.Context, args []string) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
		return nil
	})
	w.Start()

	require.NoError(t, q.Enqueue(context.Background(), "slow"))
	<-started

	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished, "Stop 应等待进行中的任务结束")
}
