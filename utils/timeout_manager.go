package utils

import (
	"context"
	"sync"
	"time"

	"github.com/fansqz/auto-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
)

// TimeoutManager 一个计时器
// 如果在timeout时间内没有执行reset命令，就会执行fun函数
type TimeoutManager struct {
	lock          sync.Mutex
	timer         *time.Timer
	timeout       time.Duration
	resetChannel  chan struct{}
	cancelChannel chan struct{}
	running       bool
	fun           func()

	// generation 每次Start加一，区分过期的计时协程
	generation int
}

// NewTimeoutManager 创建一个新的计时器实例
func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{}
}

// Start 开始计时
// 在timeout时间内没有执行reset命令，就会执行fun函数。重复调用会先取消上一次计时
func (t *TimeoutManager) Start(ctx context.Context, timeout time.Duration, option func()) {
	t.Cancel()
	if timeout <= 0 {
		return
	}
	t.lock.Lock()
	t.timer = time.NewTimer(timeout)
	t.timeout = timeout
	t.fun = option
	t.resetChannel = make(chan struct{}, 1)
	t.cancelChannel = make(chan struct{}, 1)
	t.running = true
	t.generation++
	generation := t.generation
	timer, resetChannel, cancelChannel := t.timer, t.resetChannel, t.cancelChannel
	t.lock.Unlock()

	gosync.Go(ctx, func(ctx context.Context) {
		for {
			select {
			case <-timer.C:
				logrus.Infof("[TimeoutManager] Timer expired, performing action")
				t.lock.Lock()
				if t.generation != generation {
					t.lock.Unlock()
					return
				}
				t.running = false
				t.lock.Unlock()
				option()
				return
			case <-resetChannel:
				timer.Reset(timeout)
			case <-cancelChannel:
				logrus.Debugf("[TimeoutManager] cancel")
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	})
}

// Reset 重置计时器，计时器未运行时什么都不做
func (t *TimeoutManager) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.running {
		return
	}
	select {
	case t.resetChannel <- struct{}{}:
	default:
	}
}

// Cancel 取消计时
func (t *TimeoutManager) Cancel() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.running {
		return
	}
	t.running = false
	select {
	case t.cancelChannel <- struct{}{}:
	default:
	}
}
