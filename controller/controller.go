package controller

import (
	"context"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	"github.com/sirupsen/logrus"
)

// Options 编排器的配置
type Options struct {
	// EngineTimeout 单步、继续、断点等引擎调用的超时时间
	EngineTimeout time.Duration
	// EvaluateTimeout 表达式计算的超时时间
	EvaluateTimeout time.Duration
	// OperationIdleTimeout 操作在该时间内没有收到事件则失败
	OperationIdleTimeout time.Duration
	// StepsPerSecond 单步速率，0表示不限制
	StepsPerSecond float64
	// ResultRetention 保留的结果数量，0表示不限制
	ResultRetention int
}

func DefaultOptions() *Options {
	return &Options{
		EngineTimeout:        5 * time.Second,
		EvaluateTimeout:      5 * time.Second,
		OperationIdleTimeout: 30 * time.Second,
		StepsPerSecond:       50,
	}
}

// Controller
// 有状态的调试编排器，组合操作管理、断点管理、表达式计算、事件处理和命令处理
type Controller struct {
	engine            debugger.ExecutionEngine
	operationManager  *OperationManager
	breakpointManager *BreakpointManager
	evaluator         *ExpressionEvaluator
	eventHandler      *DebuggerEventHandler
	eventListener     *EventListener
	commandHandler    *CommandHandler
}

// NewController 创建编排器并启动事件处理协程
// 执行引擎启动时需要使用 Controller.Callback 作为回调
func NewController(engine debugger.ExecutionEngine, index *dutils.SourceIndex, options *Options) *Controller {
	if options == nil {
		options = DefaultOptions()
	}
	if index == nil {
		index = dutils.NewSourceIndex()
	}
	operationManager := NewOperationManager(options.ResultRetention)
	breakpointManager := NewBreakpointManager(engine, index, options.EngineTimeout)
	evaluator := NewExpressionEvaluator(engine, options.EvaluateTimeout)
	eventHandler := NewDebuggerEventHandler(operationManager, breakpointManager, evaluator, engine, options)
	eventListener := NewEventListener(breakpointManager, evaluator, engine, eventHandler, options.EngineTimeout)
	commandHandler := NewCommandHandler(operationManager, breakpointManager, evaluator, eventHandler, engine, options.EngineTimeout)
	eventHandler.Start()
	return &Controller{
		engine:            engine,
		operationManager:  operationManager,
		breakpointManager: breakpointManager,
		evaluator:         evaluator,
		eventHandler:      eventHandler,
		eventListener:     eventListener,
		commandHandler:    commandHandler,
	}
}

// Callback 执行引擎的事件回调
func (c *Controller) Callback() debugger.NotificationCallback {
	return c.eventListener.OnNotification
}

// SetNotificationForward 引擎的原始事件会转发给forward
func (c *Controller) SetNotificationForward(forward debugger.NotificationCallback) {
	c.eventListener.SetForward(forward)
}

// SetCompletionCallback 操作结束时回调
func (c *Controller) SetCompletionCallback(callback CompletionCallback) {
	c.eventHandler.SetCompletionCallback(callback)
}

// ExecuteCommand 执行命令
func (c *Controller) ExecuteCommand(ctx context.Context, command string, params Params) *ApiResponse {
	return c.commandHandler.ExecuteCommand(ctx, command, params)
}

// NotifyEvent 直接注入调试事件
func (c *Controller) NotifyEvent(event DebuggerEvent) {
	c.eventHandler.NotifyDebuggerEvent(event)
}

func (c *Controller) CurrentState() constants.DebuggerState {
	return c.operationManager.CurrentState()
}

func (c *Controller) GetOperationResult(operationID string) (*OperationResult, bool) {
	return c.operationManager.GetOperationResult(operationID)
}

// Close 停止事件处理，正在进行的操作以失败结束
func (c *Controller) Close(ctx context.Context) {
	logrus.Infof("[Controller] Close")
	c.eventHandler.Dispose()
	if operation := c.operationManager.CurrentOperation(); operation != nil {
		c.eventHandler.completeOperation(ctx, operation, constants.OperationFailed, "Error occurred: controller closed",
			newResultData(operation, false, unknownLocation))
	}
}
