package debugger

import (
	"context"

	"github.com/fansqz/auto-debugger/constants"
)

// NotificationCallback 引擎产生事件时的回调，参数为debug_objects中定义的各种Event
type NotificationCallback func(interface{})

// ExecutionEngine
// 执行引擎，对底层调试器的一层封装，编排器只通过该接口操作被调试程序
// 所有方法都需要保证并发安全，阻塞操作都需要尊重ctx的超时
type ExecutionEngine interface {
	// Start 启动调试会话，callback用来异步接收停止、继续、退出等事件
	Start(ctx context.Context, option *StartOption) error
	// StepOver 下一步，不会进入函数内部
	StepOver(ctx context.Context) error
	// StepInto 下一步，会进入函数内部
	StepInto(ctx context.Context) error
	// StepOut 单步退出
	StepOut(ctx context.Context) error
	// Continue 忽略继续执行
	Continue(ctx context.Context) error
	// SetBreakpoint 添加断点，返回引擎中的断点（带有id）
	SetBreakpoint(ctx context.Context, breakpoint *Breakpoint) (*Breakpoint, error)
	// RemoveBreakpoint 移除断点
	RemoveBreakpoint(ctx context.Context, id string) error
	// SetBreakpointEnabled 启用或禁用断点，禁用的断点依然保留在引擎中
	SetBreakpointEnabled(ctx context.Context, id string, enabled bool) error
	// GetAllBreakpoints 获取引擎中的所有断点
	GetAllBreakpoints(ctx context.Context) ([]*Breakpoint, error)
	// GetBreakpointTypes 某个位置可以设置的断点类型
	GetBreakpointTypes(ctx context.Context, file string, line int) ([]constants.BreakpointType, error)
	// GetFrameAt 获取某一层栈帧，0为栈顶
	GetFrameAt(ctx context.Context, depth int) (*StackFrame, error)
	// GetCallStack 获取调用栈
	GetCallStack(ctx context.Context, maxDepth int) ([]*StackFrame, error)
	// GetFrameVariables 获取某个栈帧中的变量
	GetFrameVariables(ctx context.Context, frameID string, maxDepth int) (map[string]*Variable, error)
	// Evaluate 在某个栈帧中计算表达式
	Evaluate(ctx context.Context, expression string, frameIndex int) (*Variable, error)
	// IsSessionActive 调试会话是否存活
	IsSessionActive() bool
	// IsPaused 被调试程序是否处于暂停状态
	IsPaused() bool
	// Terminate 终止调试
	Terminate(ctx context.Context) error
}
