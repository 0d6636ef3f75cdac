package constants

type DebugMessageType string

const (
	ResponseMessage DebugMessageType = "response"
	EventMessage    DebugMessageType = "event"
)

// DebuggerState 编排器当前所处的状态，同一时刻只有一个状态成立
type DebuggerState string

const (
	// StateIdle 空闲状态，也是唯一可以开始新操作的状态
	StateIdle DebuggerState = "IDLE"
	// StateTracingFunction 正在跟踪函数调用
	StateTracingFunction DebuggerState = "TRACING_FUNCTION"
	// StateFindingValueChange 正在单步查找变量变化
	StateFindingValueChange DebuggerState = "FINDING_VALUE_CHANGE"
	// StateSteppingThrough 正在单步直到条件满足
	StateSteppingThrough DebuggerState = "STEPPING_THROUGH"
	// StatePaused 操作进行中，但程序被无关断点暂停
	StatePaused DebuggerState = "PAUSED"
	// StateWaitingForCondition 等待外部条件
	StateWaitingForCondition DebuggerState = "WAITING_FOR_CONDITION"
)

// OperationStatus 操作结果的状态
type OperationStatus string

const (
	OperationInProgress OperationStatus = "in_progress"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
)

// CommandType 对外暴露的命令
type CommandType string

const (
	// TraceFunctionCalls 跟踪某个函数的N次调用
	TraceFunctionCalls CommandType = "trace_function_calls"
	// FindValueChange 单步执行直到变量发生变化
	FindValueChange CommandType = "find_value_change"
	// StepUntilCondition 单步执行直到条件成立
	StepUntilCondition CommandType = "step_until_condition"
	// GetOperationStatus 查询操作结果
	GetOperationStatus CommandType = "get_operation_status"
	// EvaluateExpression 在当前栈帧计算表达式
	EvaluateExpression CommandType = "evaluate_expression"
	GetState           CommandType = "get_state"
	GetFrame           CommandType = "get_frame"
	GetCallStack       CommandType = "get_call_stack"
	GetVariables       CommandType = "get_variables"
	SetBreakpoint      CommandType = "set_breakpoint"
)

// 操作id前缀
const (
	TraceOperationPrefix      = "trace"
	FindChangeOperationPrefix = "find_change"
	StepUntilOperationPrefix  = "step_until"
)

// RequestType tcp协议中的请求类型
type RequestType string

const (
	// CommandRequest 执行一个命令
	CommandRequest RequestType = "command"
	// PingRequest 心跳
	PingRequest RequestType = "ping"
)

type DebugEventType string

const (
	BreakpointEvent         DebugEventType = "breakpoint"
	OutputEvent             DebugEventType = "output"
	StoppedEvent            DebugEventType = "stopped"
	ContinuedEvent          DebugEventType = "continued"
	ExitedEvent             DebugEventType = "exited"
	TerminatedEvent         DebugEventType = "terminated"
	OperationCompletedEvent DebugEventType = "operationCompleted"
)

// BreakpointReasonType 断点改变类型
type BreakpointReasonType string

const (
	ChangeType  BreakpointReasonType = "change"
	NewType     BreakpointReasonType = "new"
	RemovedType BreakpointReasonType = "removed"
)

// StoppedReasonType 程序停止类型
type StoppedReasonType string

const (
	BreakpointStopped StoppedReasonType = "breakpoint"
	StepStopped       StoppedReasonType = "step"
	EntryStopped      StoppedReasonType = "entry"
	PauseStopped      StoppedReasonType = "pause"
	ExceptionStopped  StoppedReasonType = "exception"
)

// StepType 单步调试类型
type StepType string

const (
	StepIn   StepType = "stepIn"
	StepOut  StepType = "stepOut"
	StepOver StepType = "stepOver"
)

// BreakpointType 断点类型，由引擎告知某一行可以设置哪些类型
type BreakpointType string

const (
	LineBreakpoint     BreakpointType = "line"
	FunctionBreakpoint BreakpointType = "function"
)

// EngineType 执行引擎类型
type EngineType string

const (
	// DapEngine 通过Debug Adapter Protocol连接真实的调试器
	DapEngine EngineType = "dap"
	// ReplayEngine 回放yaml脚本描述的执行过程
	ReplayEngine EngineType = "replay"
)
