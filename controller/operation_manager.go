package controller

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/fansqz/auto-debugger/constants"
	"github.com/sirupsen/logrus"
)

// OperationManager
// 管理当前操作以及状态机的状态，同一时刻最多只有一个操作
type OperationManager struct {
	// stateLock 保护当前状态和当前操作
	stateLock        sync.Mutex
	currentState     constants.DebuggerState
	currentOperation Operation

	// operationResults 操作id -> *OperationResult
	operationResults sync.Map
	operationID      atomic.Int64

	// retention 保留的结束结果数量，0表示不限制
	retention int
	// finished 按结束顺序记录的操作id，超出retention时淘汰最早的结果
	finished *linkedlistqueue.Queue
}

func NewOperationManager(retention int) *OperationManager {
	return &OperationManager{
		currentState: constants.StateIdle,
		retention:    retention,
		finished:     linkedlistqueue.New(),
	}
}

func (m *OperationManager) CurrentState() constants.DebuggerState {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	return m.currentState
}

func (m *OperationManager) CurrentOperation() Operation {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	return m.currentOperation
}

func (m *OperationManager) IsIdle() bool {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	return m.currentState == constants.StateIdle
}

// StartOperation 开始一个操作，只有在空闲状态才能成功
func (m *OperationManager) StartOperation(operation Operation, state constants.DebuggerState) bool {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if m.currentState != constants.StateIdle {
		return false
	}
	m.currentOperation = operation
	m.currentState = state
	m.operationResults.Store(operation.GetID(), &OperationResult{
		OperationID: operation.GetID(),
		Status:      constants.OperationInProgress,
		Message:     fmt.Sprintf("Started operation %s", operation.GetID()),
	})
	logrus.Infof("[OperationManager] StartOperation %s, state = %s", operation.GetID(), state)
	return true
}

// CompleteOperation 结束操作并回到空闲状态
// 每个操作的结果只会被终态覆盖一次，已经结束的操作返回false
func (m *OperationManager) CompleteOperation(result *OperationResult) bool {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if old, ok := m.operationResults.Load(result.OperationID); ok && old.(*OperationResult).IsTerminal() {
		logrus.Warnf("[OperationManager] CompleteOperation %s already completed", result.OperationID)
		return false
	}
	if m.currentOperation == nil || m.currentOperation.GetID() == result.OperationID {
		m.currentOperation = nil
		m.currentState = constants.StateIdle
	}
	completedAt := currentTimeMillis()
	answer := *result
	answer.CompletedAt = &completedAt
	m.operationResults.Store(result.OperationID, &answer)
	m.retain(result.OperationID)
	logrus.Infof("[OperationManager] CompleteOperation %s, status = %s, message = %s", result.OperationID, result.Status, result.Message)
	return true
}

// retain 淘汰超出保留数量的结果，需要持有stateLock
func (m *OperationManager) retain(operationID string) {
	if m.retention <= 0 {
		return
	}
	m.finished.Enqueue(operationID)
	for m.finished.Size() > m.retention {
		oldest, ok := m.finished.Dequeue()
		if !ok {
			return
		}
		m.operationResults.Delete(oldest.(string))
		logrus.Debugf("[OperationManager] evicted result of %s", oldest)
	}
}

// UpdateState 操作内部的状态切换
func (m *OperationManager) UpdateState(state constants.DebuggerState) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	logrus.Debugf("[OperationManager] UpdateState %s -> %s", m.currentState, state)
	m.currentState = state
}

// StoreOperationResult 直接写入结果
func (m *OperationManager) StoreOperationResult(result *OperationResult) {
	m.operationResults.Store(result.OperationID, result)
}

// GenerateOperationID 生成 prefix_N 形式的id，id不会重复使用
func (m *OperationManager) GenerateOperationID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, m.operationID.Add(1))
}

func (m *OperationManager) GetOperationResult(operationID string) (*OperationResult, bool) {
	value, ok := m.operationResults.Load(operationID)
	if !ok {
		return nil, false
	}
	return value.(*OperationResult), true
}
