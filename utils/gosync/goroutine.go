package gosync

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Go 封装的go协程工具，会兜住panic，但是目前只能传递ctx
func Go(ctx context.Context, task func(ctx context.Context)) {
	go func(ctx context.Context, f func(ctx context.Context)) {
		defer func() {
			// 在每个协程内部接收该协程自身抛出来的 panic
			if err := recover(); err != nil {
				logrus.Errorf("[gosync] goroutine panic: %v\n%s", err, debug.Stack())
			}
		}()

		f(ctx)

	}(ctx, task)
}

// Safe 同步执行f并兜住panic，返回是否发生了panic
func Safe(f func()) (panicked bool) {
	defer func() {
		if err := recover(); err != nil {
			logrus.Errorf("[gosync] recovered panic: %v\n%s", err, debug.Stack())
			panicked = true
		}
	}()
	f()
	return false
}
