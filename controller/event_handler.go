package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	"github.com/fansqz/auto-debugger/metrics"
	"github.com/fansqz/auto-debugger/utils"
	"github.com/fansqz/auto-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	unknownLocation = "unknown location"
	// idleTimeoutMessage 操作长时间没有收到事件
	idleTimeoutMessage = "timed out waiting for debugger event"
)

// CompletionCallback 操作结束后的回调
type CompletionCallback func(result *OperationResult)

// DebuggerEventHandler
// 根据当前状态处理调试事件，决定继续执行、单步或者结束操作
// 事件进入无界队列，由唯一的消费协程按顺序处理
type DebuggerEventHandler struct {
	operationManager  *OperationManager
	breakpointManager *BreakpointManager
	evaluator         *ExpressionEvaluator
	engine            debugger.ExecutionEngine

	queue *utils.Queue[DebuggerEvent]
	// watchdog 操作在idleTimeout内没有收到事件时注入超时错误
	watchdog    *utils.TimeoutManager
	idleTimeout time.Duration
	// limiter 控制编排器发出单步请求的速率
	limiter       *rate.Limiter
	engineTimeout time.Duration

	// transition 串行化操作的开始和结束，避免上一个操作的清理影响下一个操作
	transition *sync.Mutex
	onComplete atomic.Pointer[CompletionCallback]

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

func NewDebuggerEventHandler(
	operationManager *OperationManager,
	breakpointManager *BreakpointManager,
	evaluator *ExpressionEvaluator,
	engine debugger.ExecutionEngine,
	options *Options,
) *DebuggerEventHandler {
	limit := rate.Inf
	if options.StepsPerSecond > 0 {
		limit = rate.Limit(options.StepsPerSecond)
	}
	burst := int(options.StepsPerSecond)
	if burst < 1 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DebuggerEventHandler{
		operationManager:  operationManager,
		breakpointManager: breakpointManager,
		evaluator:         evaluator,
		engine:            engine,
		queue:             utils.NewQueue[DebuggerEvent](),
		watchdog:          utils.NewTimeoutManager(),
		idleTimeout:       options.OperationIdleTimeout,
		limiter:           rate.NewLimiter(limit, burst),
		engineTimeout:     options.EngineTimeout,
		transition:        &sync.Mutex{},
		ctx:               ctx,
		cancel:            cancel,
		done:              make(chan struct{}),
	}
}

// Start 启动事件处理协程
func (h *DebuggerEventHandler) Start() {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	gosync.Go(h.ctx, func(ctx context.Context) {
		defer close(h.done)
		h.processDebuggerEvents(ctx)
	})
}

// SetCompletionCallback 设置操作结束的回调
func (h *DebuggerEventHandler) SetCompletionCallback(callback CompletionCallback) {
	if callback == nil {
		h.onComplete.Store(nil)
		return
	}
	h.onComplete.Store(&callback)
}

// NotifyDebuggerEvent 注入调试事件，不会阻塞
func (h *DebuggerEventHandler) NotifyDebuggerEvent(event DebuggerEvent) {
	if event == nil {
		return
	}
	if err := h.queue.Push(event); err != nil {
		logrus.Warnf("[DebuggerEventHandler] drop event %s, err = %v", event.EventName(), err)
	}
}

func (h *DebuggerEventHandler) processDebuggerEvents(ctx context.Context) {
	for {
		event, ok := h.queue.Pop(ctx)
		if !ok {
			logrus.Infof("[DebuggerEventHandler] event loop exited")
			return
		}
		h.watchdog.Reset()
		panicked := gosync.Safe(func() {
			h.handleDebuggerEvent(ctx, event)
		})
		if panicked {
			logrus.Errorf("[DebuggerEventHandler] Error processing debugger event %s", event.EventName())
		}
		metrics.RecordEventProcessed(event.EventName())
	}
}

func (h *DebuggerEventHandler) handleDebuggerEvent(ctx context.Context, event DebuggerEvent) {
	if errEvent, ok := event.(*ErrorOccurred); ok && errEvent.operationID != "" {
		operation := h.operationManager.CurrentOperation()
		if operation == nil || operation.GetID() != errEvent.operationID {
			logrus.Debugf("[DebuggerEventHandler] ignore stale error of %s: %s", errEvent.operationID, errEvent.Error)
			return
		}
	}
	state := h.operationManager.CurrentState()
	logrus.Debugf("[DebuggerEventHandler] handle %s in state %s", event.EventName(), state)
	switch state {
	case constants.StateTracingFunction:
		h.handleTracingFunctionEvent(ctx, event)
	case constants.StateFindingValueChange:
		h.handleFindingValueChangeEvent(ctx, event)
	case constants.StateSteppingThrough:
		h.handleSteppingThroughEvent(ctx, event)
	case constants.StatePaused:
		h.handlePausedEvent(ctx, event)
	case constants.StateIdle:
		h.handleIdleEvent(event)
	case constants.StateWaitingForCondition:
		h.handleWaitingForConditionEvent(ctx, event)
	}
}

func (h *DebuggerEventHandler) handleTracingFunctionEvent(ctx context.Context, event DebuggerEvent) {
	operation, ok := h.operationManager.CurrentOperation().(*TraceFunctionCalls)
	if !ok {
		return
	}
	switch ev := event.(type) {
	case *BreakpointHit:
		if h.breakpointManager.IsControllerBreakpoint(ev.Breakpoint) {
			logrus.Infof("[DebuggerEventHandler] Controller breakpoint hit at %s during function tracing", ev.Location)
			return
		}
		logrus.Warnf("[DebuggerEventHandler] Hit non-controller breakpoint at %s, continuing execution...", ev.Location)
		if err := h.continueExecution(ctx); err != nil {
			logrus.Warnf("[DebuggerEventHandler] continue after non-controller breakpoint fail, err = %v", err)
			h.operationManager.UpdateState(constants.StatePaused)
		}

	case *FunctionEntered:
		if !operation.matches(ev.FunctionName) {
			return
		}
		h.traceEntry(ctx, operation, ev)
		if operation.CaptureReturn && !operation.exitBreakpointsSet {
			h.breakpointManager.SetBreakpointForFunctionExit(ctx, operation.FunctionName)
			operation.exitBreakpointsSet = true
		}
		finished := !operation.CaptureReturn && len(operation.CollectedTraces) >= operation.MaxCalls
		if operation.CaptureReturn && ev.Exit != nil {
			finished = h.traceExit(ctx, operation, ev.Exit)
		}
		h.continueTracing(ctx, operation, finished)

	case *FunctionExited:
		if !operation.matches(ev.FunctionName) {
			return
		}
		h.continueTracing(ctx, operation, h.traceExit(ctx, operation, ev))

	case *ErrorOccurred:
		h.completeTracingOperation(ctx, operation, constants.OperationFailed, fmt.Sprintf("Error occurred: %s", ev.Error))

	default:
		logrus.Debugf("[DebuggerEventHandler] ignore %s while tracing function", event.EventName())
	}
}

// traceEntry 记录一次调用，达到上限后只计数
func (h *DebuggerEventHandler) traceEntry(ctx context.Context, operation *TraceFunctionCalls, event *FunctionEntered) {
	if len(operation.CollectedTraces) >= operation.MaxCalls {
		operation.untracedCalls++
		return
	}
	arguments := make(map[string]string)
	if operation.CaptureArgs {
		for name, value := range event.Args {
			arguments[name] = value
		}
	}
	operation.CollectedTraces = append(operation.CollectedTraces, &FunctionTraceData{
		CallNumber:    operation.CurrentCallCount + 1,
		FunctionName:  event.FunctionName,
		EntryLocation: h.locationOf(ctx, event.Location),
		Arguments:     arguments,
		Timestamp:     currentTimeMillis(),
	})
	operation.CurrentCallCount++
}

// traceExit 把出口信息填到最近一次未返回的调用，返回操作是否可以结束
// 未记录的调用按栈的顺序先返回
func (h *DebuggerEventHandler) traceExit(ctx context.Context, operation *TraceFunctionCalls, event *FunctionExited) bool {
	if operation.untracedCalls > 0 {
		operation.untracedCalls--
		return false
	}
	if trace := operation.lastOpenTrace(); trace != nil {
		location := h.locationOf(ctx, event.Location)
		if operation.CaptureReturn {
			trace.ReturnValue = event.ReturnValue
		}
		trace.ExitLocation = &location
	}
	return len(operation.CollectedTraces) >= operation.MaxCalls
}

// continueTracing 结束操作或者继续执行到下一个编排器断点
func (h *DebuggerEventHandler) continueTracing(ctx context.Context, operation *TraceFunctionCalls, finished bool) {
	if finished {
		h.completeTracingOperation(ctx, operation, constants.OperationCompleted, tracedMessage(operation))
		return
	}
	if err := h.continueExecution(ctx); err != nil {
		h.completeTracingOperation(ctx, operation, constants.OperationFailed, fmt.Sprintf("Error during execution: %v", err))
	}
}

func tracedMessage(operation *TraceFunctionCalls) string {
	return fmt.Sprintf("Traced %d calls to %s", len(operation.CollectedTraces), operation.FunctionName)
}

func (h *DebuggerEventHandler) handleFindingValueChangeEvent(ctx context.Context, event DebuggerEvent) {
	operation, ok := h.operationManager.CurrentOperation().(*FindValueChange)
	if !ok {
		return
	}
	switch ev := event.(type) {
	case *StepCompleted:
		operation.CurrentSteps++
		if value := h.evaluator.GetCurrentVariableValue(ctx, operation.VariableName); value != nil {
			if h.recordValue(ctx, operation, *value, ev.Location) {
				return
			}
		}
		if operation.CurrentSteps >= operation.MaxSteps {
			h.completeValueChangeOperation(ctx, operation, constants.OperationCompleted, "Max steps reached without finding expected value")
			return
		}
		if err := h.stepOver(ctx); err != nil {
			logrus.Errorf("[DebuggerEventHandler] Failed to continue stepping, err = %v", err)
			h.completeValueChangeOperation(ctx, operation, constants.OperationFailed, fmt.Sprintf("Error during stepping: %v", err))
		}

	case *VariableChanged:
		if ev.Name != operation.VariableName || ev.NewValue == nil {
			return
		}
		h.recordValue(ctx, operation, *ev.NewValue, "")

	case *ErrorOccurred:
		h.completeValueChangeOperation(ctx, operation, constants.OperationFailed, fmt.Sprintf("Error occurred: %s", ev.Error))

	default:
		logrus.Debugf("[DebuggerEventHandler] ignore %s while finding value change", event.EventName())
	}
}

// recordValue 值发生变化时记录快照，找到期望值时结束操作并返回true
func (h *DebuggerEventHandler) recordValue(ctx context.Context, operation *FindValueChange, value string, location string) bool {
	if last := operation.lastValue(); last != nil && *last == value {
		return false
	}
	operation.ValueHistory = append(operation.ValueHistory, &ValueSnapshotData{
		StepNumber:   operation.CurrentSteps,
		Location:     h.locationOf(ctx, location),
		VariableName: operation.VariableName,
		Value:        value,
		Timestamp:    currentTimeMillis(),
	})
	logrus.Infof("[DebuggerEventHandler] variable %s changed to %s at step %d", operation.VariableName, value, operation.CurrentSteps)
	if operation.ExpectedValue != nil && value == *operation.ExpectedValue {
		h.completeValueChangeOperation(ctx, operation, constants.OperationCompleted, "Found expected value")
		return true
	}
	return false
}

func (h *DebuggerEventHandler) handleSteppingThroughEvent(ctx context.Context, event DebuggerEvent) {
	operation, ok := h.operationManager.CurrentOperation().(*StepUntilCondition)
	if !ok {
		return
	}
	switch ev := event.(type) {
	case *StepCompleted:
		operation.CurrentSteps++
		conditionMet := h.evaluator.EvaluateCondition(ctx, operation.Condition)
		if conditionMet {
			h.completeStepUntilConditionOperation(ctx, operation, true, constants.OperationCompleted, "Condition met", ev.Location)
		} else if operation.CurrentSteps >= operation.MaxSteps {
			h.completeStepUntilConditionOperation(ctx, operation, false, constants.OperationCompleted, "Max steps reached without meeting condition", ev.Location)
		} else if err := h.stepOver(ctx); err != nil {
			logrus.Errorf("[DebuggerEventHandler] Failed to continue stepping, err = %v", err)
			h.completeStepUntilConditionOperation(ctx, operation, false, constants.OperationFailed, fmt.Sprintf("Error during stepping: %v", err), ev.Location)
		}

	case *ErrorOccurred:
		h.completeStepUntilConditionOperation(ctx, operation, false, constants.OperationFailed, fmt.Sprintf("Error occurred: %s", ev.Error), "")

	default:
		logrus.Debugf("[DebuggerEventHandler] ignore %s while stepping through", event.EventName())
	}
}

func (h *DebuggerEventHandler) handlePausedEvent(ctx context.Context, event DebuggerEvent) {
	switch ev := event.(type) {
	case *BreakpointHit:
		logrus.Infof("[DebuggerEventHandler] Breakpoint hit at %s", ev.Location)
	case *ExecutionContinued:
		if operation := h.operationManager.CurrentOperation(); operation != nil {
			h.operationManager.UpdateState(stateOf(operation))
		}
	case *ErrorOccurred:
		if operation := h.operationManager.CurrentOperation(); operation != nil {
			h.completeOperation(ctx, operation, constants.OperationFailed, fmt.Sprintf("Error occurred: %s", ev.Error),
				newResultData(operation, false, h.currentLocation(ctx)))
		}
	default:
		logrus.Debugf("[DebuggerEventHandler] Ignoring event %s while paused", event.EventName())
	}
}

func (h *DebuggerEventHandler) handleIdleEvent(event DebuggerEvent) {
	switch ev := event.(type) {
	case *ErrorOccurred:
		logrus.Warnf("[DebuggerEventHandler] Unexpected error while idle: %s", ev.Error)
	default:
		logrus.Debugf("[DebuggerEventHandler] Ignoring event %s while idle", event.EventName())
	}
}

func (h *DebuggerEventHandler) handleWaitingForConditionEvent(ctx context.Context, event DebuggerEvent) {
	var (
		status  constants.OperationStatus
		message string
	)
	switch ev := event.(type) {
	case *OperationCompleted:
		logrus.Infof("[DebuggerEventHandler] Operation %s completed while waiting", ev.OperationID)
		status, message = constants.OperationCompleted, fmt.Sprintf("Operation %s completed", ev.OperationID)
	case *ErrorOccurred:
		logrus.Errorf("[DebuggerEventHandler] Error while waiting for condition: %s", ev.Error)
		status, message = constants.OperationFailed, fmt.Sprintf("Error occurred: %s", ev.Error)
	default:
		logrus.Debugf("[DebuggerEventHandler] Event %s received while waiting for condition", event.EventName())
		return
	}
	operation := h.operationManager.CurrentOperation()
	if operation == nil {
		h.operationManager.UpdateState(constants.StateIdle)
		return
	}
	h.completeOperation(ctx, operation, status, message, newResultData(operation, false, h.currentLocation(ctx)))
}

func (h *DebuggerEventHandler) completeTracingOperation(ctx context.Context, operation *TraceFunctionCalls,
	status constants.OperationStatus, message string) {
	h.completeOperation(ctx, operation, status, message, newResultData(operation, false, ""))
}

func (h *DebuggerEventHandler) completeValueChangeOperation(ctx context.Context, operation *FindValueChange,
	status constants.OperationStatus, message string) {
	h.completeOperation(ctx, operation, status, message, newResultData(operation, false, ""))
}

func (h *DebuggerEventHandler) completeStepUntilConditionOperation(ctx context.Context, operation *StepUntilCondition,
	conditionMet bool, status constants.OperationStatus, message string, location string) {
	h.completeOperation(ctx, operation, status, message, newResultData(operation, conditionMet, h.locationOf(ctx, location)))
}

// completeOperation 结束操作，清理编排器断点并恢复用户断点
// 完成回调在释放transition锁之后执行
func (h *DebuggerEventHandler) completeOperation(ctx context.Context, operation Operation,
	status constants.OperationStatus, message string, data OperationResultData) {
	result := func() *OperationResult {
		h.transition.Lock()
		defer h.transition.Unlock()
		return h.completeLocked(ctx, operation, status, message, data)
	}()
	h.notifyCompletion(result)
}

// completeLocked 需要持有transition锁，返回保存的结果，操作已经结束时返回nil
// 调用方释放锁之后需要调用notifyCompletion
func (h *DebuggerEventHandler) completeLocked(ctx context.Context, operation Operation,
	status constants.OperationStatus, message string, data OperationResultData) *OperationResult {
	result := &OperationResult{
		OperationID: operation.GetID(),
		Status:      status,
		Data:        data,
		Message:     message,
	}
	if !h.operationManager.CompleteOperation(result) {
		return nil
	}
	h.breakpointManager.CleanupControllerBreakpoints(ctx)
	h.breakpointManager.RestoreUserBreakpoints(ctx)
	h.watchdog.Cancel()
	duration := time.Since(time.UnixMilli(operation.GetRequestedAt()))
	metrics.RecordOperationCompleted(operation.Kind(), string(status), duration)
	stored, ok := h.operationManager.GetOperationResult(operation.GetID())
	if !ok {
		return nil
	}
	return stored
}

// notifyCompletion 把结束的操作交给完成回调，result为nil时忽略
func (h *DebuggerEventHandler) notifyCompletion(result *OperationResult) {
	if result == nil {
		return
	}
	if callback := h.onComplete.Load(); callback != nil {
		(*callback)(result)
	}
}

// startWatchdog 操作开始时启动超时检测
func (h *DebuggerEventHandler) startWatchdog(operationID string) {
	h.watchdog.Start(h.ctx, h.idleTimeout, func() {
		logrus.Warnf("[DebuggerEventHandler] operation %s %s", operationID, idleTimeoutMessage)
		h.NotifyDebuggerEvent(&ErrorOccurred{Error: idleTimeoutMessage, operationID: operationID})
	})
}

// stepOver 编排器发出的单步请求，受速率限制
func (h *DebuggerEventHandler) stepOver(ctx context.Context) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.engineTimeout)
	defer cancel()
	if err := h.engine.StepOver(ctx); err != nil {
		metrics.RecordEngineError("step_over")
		return err
	}
	return nil
}

func (h *DebuggerEventHandler) continueExecution(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.engineTimeout)
	defer cancel()
	if err := h.engine.Continue(ctx); err != nil {
		metrics.RecordEngineError("continue")
		return err
	}
	return nil
}

// locationOf 事件中带有位置时直接使用，否则查询当前位置
func (h *DebuggerEventHandler) locationOf(ctx context.Context, location string) string {
	if location != "" {
		return location
	}
	return h.currentLocation(ctx)
}

// currentLocation 栈顶的位置，格式为 file:line
func (h *DebuggerEventHandler) currentLocation(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, h.engineTimeout)
	defer cancel()
	frame, err := h.engine.GetFrameAt(ctx, 0)
	if err != nil || frame == nil {
		logrus.Warnf("[DebuggerEventHandler] Failed to get current location, err = %v", err)
		return unknownLocation
	}
	return frame.Location()
}

// Dispose 停止事件处理
func (h *DebuggerEventHandler) Dispose() {
	h.watchdog.Cancel()
	h.queue.Close()
	h.cancel()
	if h.started.Load() {
		<-h.done
	}
}
