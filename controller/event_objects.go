package controller

import (
	"github.com/fansqz/auto-debugger/debugger"
)

// DebuggerEvent 驱动状态机的事件，只有以下几种实现
type DebuggerEvent interface {
	EventName() string
	isDebuggerEvent()
}

// BreakpointHit 程序停在了断点上，Breakpoint为空表示无法确定是哪个断点
type BreakpointHit struct {
	Location   string
	Frame      *debugger.StackFrame
	Breakpoint *debugger.Breakpoint
}

// StepCompleted 单步完成
type StepCompleted struct {
	Location string
}

// FunctionEntered 进入了函数，Location为空时处理器会向引擎查询当前位置
type FunctionEntered struct {
	FunctionName string
	Args         map[string]string
	Location     string
	// Exit 函数在入口行就返回时不为空，没有单独的出口事件
	Exit *FunctionExited
}

// FunctionExited 即将从函数返回
type FunctionExited struct {
	FunctionName string
	ReturnValue  *string
	Location     string
}

type VariableChanged struct {
	Name     string
	OldValue *string
	NewValue *string
}

// ExecutionContinued 程序恢复运行
type ExecutionContinued struct{}

type OperationCompleted struct {
	OperationID string
}

// ErrorOccurred 调试过程中出现错误
type ErrorOccurred struct {
	Error string

	// operationID 不为空时只对该操作生效，用于超时事件
	operationID string
}

func (*BreakpointHit) EventName() string      { return "BreakpointHit" }
func (*StepCompleted) EventName() string      { return "StepCompleted" }
func (*FunctionEntered) EventName() string    { return "FunctionEntered" }
func (*FunctionExited) EventName() string     { return "FunctionExited" }
func (*VariableChanged) EventName() string    { return "VariableChanged" }
func (*ExecutionContinued) EventName() string { return "ExecutionContinued" }
func (*OperationCompleted) EventName() string { return "OperationCompleted" }
func (*ErrorOccurred) EventName() string      { return "ErrorOccurred" }

func (*BreakpointHit) isDebuggerEvent()      {}
func (*StepCompleted) isDebuggerEvent()      {}
func (*FunctionEntered) isDebuggerEvent()    {}
func (*FunctionExited) isDebuggerEvent()     {}
func (*VariableChanged) isDebuggerEvent()    {}
func (*ExecutionContinued) isDebuggerEvent() {}
func (*OperationCompleted) isDebuggerEvent() {}
func (*ErrorOccurred) isDebuggerEvent()      {}
