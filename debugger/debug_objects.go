package debugger

import (
	"fmt"

	"github.com/fansqz/auto-debugger/constants"
)

// StartOption 启动调试的参数
type StartOption struct {
	// Breakpoints 启动时设置的用户断点
	Breakpoints []*Breakpoint
	// StopOnEntry 是否在入口处暂停
	StopOnEntry bool
	// Callback 事件回调
	Callback NotificationCallback
}

// Breakpoint 表示断点
// ID 是引擎分配的不透明标识，编排器只通过ID识别断点
type Breakpoint struct {
	ID        string                   `json:"id"`
	File      string                   `json:"file"`
	Line      int                      `json:"line"`
	Condition string                   `json:"condition,omitempty"`
	Type      constants.BreakpointType `json:"type"`
	Enabled   bool                     `json:"enabled"`
	Verified  bool                     `json:"verified"`
}

func NewBreakpoint(file string, line int) *Breakpoint {
	return &Breakpoint{
		File:    file,
		Line:    line,
		Type:    constants.LineBreakpoint,
		Enabled: true,
	}
}

// Location 断点位置，格式为file:line
func (b *Breakpoint) Location() string {
	return fmt.Sprintf("%s:%d", b.File, b.Line)
}

func (b *Breakpoint) Clone() *Breakpoint {
	answer := *b
	return &answer
}

// StackFrame 栈帧
type StackFrame struct {
	ID   string `json:"id"`   // 栈帧id
	Name string `json:"name"` // 函数名称
	Path string `json:"path"` // 文件路径
	Line int    `json:"line"`
}

// Location 栈帧位置，格式为file:line
func (s *StackFrame) Location() string {
	return fmt.Sprintf("%s:%d", s.Path, s.Line)
}

// Variable 变量
type Variable struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value *string `json:"value"`
	// 变量引用，相同引用表示同一个对象，用于循环检测
	Reference string `json:"reference"`
	// Children 已加载的子元素，数组元素或结构体字段
	Children []*Variable `json:"children,omitempty"`
	// IsArray 是否为数组、切片等有序集合
	IsArray bool `json:"isArray"`
	// ChildrenNumber 子元素数量，可能大于len(Children)
	ChildrenNumber int `json:"childrenNumber"`
}

func NewVariable(name string, typ string, value string) *Variable {
	return &Variable{
		Name:  name,
		Type:  typ,
		Value: &value,
	}
}

// StringValue 变量的值，nil返回"null"
func (v *Variable) StringValue() string {
	if v == nil || v.Value == nil {
		return "null"
	}
	return *v.Value
}

// BreakpointEvent 断点事件
// 该event指示有关断点的某些信息已更改。
type BreakpointEvent struct {
	Reason      constants.BreakpointReasonType
	Breakpoints []*Breakpoint
}

func NewBreakpointEvent(reason constants.BreakpointReasonType, breakpoints []*Breakpoint) *BreakpointEvent {
	return &BreakpointEvent{
		Reason:      reason,
		Breakpoints: breakpoints,
	}
}

// OutputEvent
// 用户程序输出
type OutputEvent struct {
	Output string // 输出内容
}

func NewOutputEvent(output string) *OutputEvent {
	return &OutputEvent{
		Output: output,
	}
}

// StoppedEvent
// 该event表明，由于某些原因，被调试进程的执行已经停止。
// 这可能是由先前设置的断点、完成的步进请求、执行调试器语句等引起的。
type StoppedEvent struct {
	Reason constants.StoppedReasonType // 停止执行的原因
	File   string                      // 当前停止在哪个文件
	Line   int                         // 停止在某行
	// BreakpointIDs 命中的断点
	BreakpointIDs []string
}

func NewStoppedEvent(reason constants.StoppedReasonType, file string, line int, breakpointIDs ...string) *StoppedEvent {
	return &StoppedEvent{
		Reason:        reason,
		File:          file,
		Line:          line,
		BreakpointIDs: breakpointIDs,
	}
}

// ContinuedEvent
// 该event表明debug的执行已经继续。
type ContinuedEvent struct {
}

func NewContinuedEvent() *ContinuedEvent {
	return &ContinuedEvent{}
}

// ExitedEvent
// 该event表明被调试对象已经退出并返回exit code。但是并不意味着调试会话结束
type ExitedEvent struct {
	ExitCode int
	Message  string
}

func NewExitedEvent(code int, message string) *ExitedEvent {
	return &ExitedEvent{
		ExitCode: code,
		Message:  message,
	}
}

// TerminatedEvent 调试会话结束
type TerminatedEvent struct {
}

func NewTerminatedEvent() *TerminatedEvent {
	return &TerminatedEvent{}
}
