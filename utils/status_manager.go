package utils

import (
	"context"
	"sync"
)

// EngineStatus 被调试程序的运行状态
type EngineStatus string

const (
	// Init 调试初始化状态
	Init EngineStatus = "init"
	// Stopped 用户程序暂停
	Stopped EngineStatus = "stopped"
	// Running 用户程序运行中
	Running EngineStatus = "running"
	// Finish 调试结束状态
	Finish EngineStatus = "finish"
)

// StatusManager 记录执行引擎的状态，并支持等待某个状态出现
type StatusManager struct {
	lock    sync.RWMutex
	status  EngineStatus
	changed chan struct{}
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status:  Init,
		changed: make(chan struct{}),
	}
}

func (s *StatusManager) Set(status EngineStatus) {
	defer s.lock.Unlock()
	s.lock.Lock()
	if s.status == status {
		return
	}
	s.status = status
	// 唤醒所有等待者
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *StatusManager) Get() EngineStatus {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...EngineStatus) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}

// WaitFor 阻塞直到状态变为statusList中的某一个，或者ctx结束
func (s *StatusManager) WaitFor(ctx context.Context, statusList ...EngineStatus) error {
	for {
		s.lock.RLock()
		current := s.status
		changed := s.changed
		s.lock.RUnlock()
		for _, status := range statusList {
			if current == status {
				return nil
			}
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
