package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	e "github.com/fansqz/auto-debugger/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	queue := NewQueue[int]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, queue.Push(i*100+j))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1000, queue.Len())

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		item, ok := queue.Pop(context.Background())
		require.True(t, ok)
		seen[item] = true
	}
	assert.Len(t, seen, 1000)

	// 空队列上的Pop在ctx结束时返回
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := queue.Pop(ctx)
	assert.False(t, ok)

	// 关闭后剩余元素依然可以取出
	require.NoError(t, queue.Push(7))
	queue.Close()
	assert.ErrorIs(t, queue.Push(8), e.ErrEventQueueClosed)
	item, ok := queue.Pop(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 7, item)
	_, ok = queue.Pop(context.Background())
	assert.False(t, ok)
}

func TestQueuePopWakesUp(t *testing.T) {
	queue := NewQueue[string]()
	result := make(chan string, 1)
	go func() {
		item, _ := queue.Pop(context.Background())
		result <- item
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, queue.Push("hello"))
	select {
	case item := <-result:
		assert.Equal(t, "hello", item)
	case <-time.After(time.Second):
		t.Fatal("pop not woken up")
	}
}

func TestStatusManagerWaitFor(t *testing.T) {
	manager := NewStatusManager()
	assert.True(t, manager.Is(Init))
	go func() {
		time.Sleep(10 * time.Millisecond)
		manager.Set(Running)
		manager.Set(Stopped)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, manager.WaitFor(ctx, Stopped, Finish))
	assert.Equal(t, Stopped, manager.Get())

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, manager.WaitFor(ctx2, Finish), context.DeadlineExceeded)
}

func TestTimeoutManager(t *testing.T) {
	manager := NewTimeoutManager()
	fired := make(chan struct{}, 1)
	manager.Start(context.Background(), 30*time.Millisecond, func() { fired <- struct{}{} })
	// 重置会推迟超时
	time.Sleep(20 * time.Millisecond)
	manager.Reset()
	select {
	case <-fired:
		t.Fatal("fired too early")
	case <-time.After(15 * time.Millisecond):
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout not fired")
	}

	// 取消后不会触发
	manager.Start(context.Background(), 20*time.Millisecond, func() { fired <- struct{}{} })
	manager.Cancel()
	select {
	case <-fired:
		t.Fatal("fired after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}
