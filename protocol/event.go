package protocol

import (
	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
)

// BreakpointEvent 断点事件
// 该event指示有关断点的某些信息已更改。
type BreakpointEvent struct {
	Type        string                         `json:"type"`
	Event       constants.DebugEventType       `json:"event"`
	Reason      constants.BreakpointReasonType `json:"reason"`
	Breakpoints []*debugger.Breakpoint         `json:"breakpoints"`
}

// OutputEvent
// 该事件表明目标已经产生了一些输出。
type OutputEvent struct {
	Type   string                   `json:"type"`
	Event  constants.DebugEventType `json:"event"`
	Output string                   `json:"output"` // 输出内容
}

// StoppedEvent
// 该event表明，由于某些原因，被调试进程的执行已经停止。
type StoppedEvent struct {
	Type          string                      `json:"type"`
	Event         constants.DebugEventType    `json:"event"`
	Reason        constants.StoppedReasonType `json:"reason"` // 停止执行的原因
	File          string                      `json:"file"`
	Line          int                         `json:"line"` // 停止在某行
	BreakpointIDs []string                    `json:"breakpointIds,omitempty"`
}

// ContinuedEvent
// 该event表明debug的执行已经继续。
type ContinuedEvent struct {
	Type  string                   `json:"type"`
	Event constants.DebugEventType `json:"event"`
}

// ExitedEvent
// 该event表明被调试对象已经退出并返回exit code。
type ExitedEvent struct {
	Type     string                   `json:"type"`
	Event    constants.DebugEventType `json:"event"`
	ExitCode int                      `json:"exitCode"`
	Message  string                   `json:"message"`
}

// TerminatedEvent
// 调试会话结束
type TerminatedEvent struct {
	Type  string                   `json:"type"`
	Event constants.DebugEventType `json:"event"`
}

// OperationCompletedEvent 编排操作结束，Result为操作的最终结果
type OperationCompletedEvent struct {
	Type   string                   `json:"type"`
	Event  constants.DebugEventType `json:"event"`
	Result interface{}              `json:"result"`
}

const eventMessageType = string(constants.EventMessage)

// NewEvent 将执行引擎的通知转换为推送给客户端的事件，不认识的通知返回false
func NewEvent(notification interface{}) (interface{}, bool) {
	switch n := notification.(type) {
	case *debugger.BreakpointEvent:
		return &BreakpointEvent{
			Type:        eventMessageType,
			Event:       constants.BreakpointEvent,
			Reason:      n.Reason,
			Breakpoints: n.Breakpoints,
		}, true
	case *debugger.OutputEvent:
		return &OutputEvent{Type: eventMessageType, Event: constants.OutputEvent, Output: n.Output}, true
	case *debugger.StoppedEvent:
		return &StoppedEvent{
			Type:          eventMessageType,
			Event:         constants.StoppedEvent,
			Reason:        n.Reason,
			File:          n.File,
			Line:          n.Line,
			BreakpointIDs: n.BreakpointIDs,
		}, true
	case *debugger.ContinuedEvent:
		return &ContinuedEvent{Type: eventMessageType, Event: constants.ContinuedEvent}, true
	case *debugger.ExitedEvent:
		return &ExitedEvent{
			Type:     eventMessageType,
			Event:    constants.ExitedEvent,
			ExitCode: n.ExitCode,
			Message:  n.Message,
		}, true
	case *debugger.TerminatedEvent:
		return &TerminatedEvent{Type: eventMessageType, Event: constants.TerminatedEvent}, true
	}
	return nil, false
}

func NewOperationCompletedEvent(result interface{}) *OperationCompletedEvent {
	return &OperationCompletedEvent{
		Type:   eventMessageType,
		Event:  constants.OperationCompletedEvent,
		Result: result,
	}
}
