package utils

import (
	"context"
	"sync"

	e "github.com/fansqz/auto-debugger/error"
)

// Queue 无界队列，支持多个生产者，Pop阻塞直到有元素、队列关闭或者ctx结束
// Push 永远不会阻塞，适合在回调中投递事件
type Queue[T any] struct {
	lock   sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		signal: make(chan struct{}, 1),
	}
}

// Push 入队，队列关闭后返回错误
func (q *Queue[T]) Push(item T) error {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return e.ErrEventQueueClosed
	}
	q.items = append(q.items, item)
	q.lock.Unlock()
	// 唤醒消费者
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pop 出队，队列关闭并且为空时返回false
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		q.lock.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.lock.Unlock()
			return item, true
		}
		closed := q.closed
		q.lock.Unlock()
		if closed {
			return zero, false
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return zero, false
		}
	}
}

func (q *Queue[T]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.items)
}

// Close 关闭队列，已经入队的元素依然可以被取出
func (q *Queue[T]) Close() {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return
	}
	q.closed = true
	q.lock.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
