package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	"github.com/sirupsen/logrus"
)

// argumentDepth 读取函数参数时的加载深度
const argumentDepth = 1

// EventListener
// 将执行引擎的通知转换为DebuggerEvent，再交给事件处理器
// 通知在引擎的回调协程中同步处理，此时程序仍处于暂停状态，可以读取参数和返回值
type EventListener struct {
	breakpointManager *BreakpointManager
	evaluator         *ExpressionEvaluator
	engine            debugger.ExecutionEngine
	handler           *DebuggerEventHandler
	timeout           time.Duration

	lock    sync.RWMutex
	forward debugger.NotificationCallback
}

func NewEventListener(breakpointManager *BreakpointManager, evaluator *ExpressionEvaluator,
	engine debugger.ExecutionEngine, handler *DebuggerEventHandler, timeout time.Duration) *EventListener {
	return &EventListener{
		breakpointManager: breakpointManager,
		evaluator:         evaluator,
		engine:            engine,
		handler:           handler,
		timeout:           timeout,
	}
}

// SetForward 引擎的原始通知会同时转发给该回调
func (l *EventListener) SetForward(forward debugger.NotificationCallback) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.forward = forward
}

// OnNotification 执行引擎的回调
func (l *EventListener) OnNotification(event interface{}) {
	l.lock.RLock()
	forward := l.forward
	l.lock.RUnlock()
	if forward != nil {
		forward(event)
	}

	ctx := context.Background()
	switch ev := event.(type) {
	case *debugger.StoppedEvent:
		l.onStopped(ctx, ev)
	case *debugger.ContinuedEvent:
		l.handler.NotifyDebuggerEvent(&ExecutionContinued{})
	case *debugger.ExitedEvent:
		message := ev.Message
		if message == "" {
			message = fmt.Sprintf("Process exited with code %d", ev.ExitCode)
		}
		l.handler.NotifyDebuggerEvent(&ErrorOccurred{Error: message})
	case *debugger.TerminatedEvent:
		l.handler.NotifyDebuggerEvent(&ErrorOccurred{Error: "debug session terminated"})
	case *debugger.OutputEvent:
		logrus.Debugf("[EventListener] output: %s", ev.Output)
	case *debugger.BreakpointEvent:
		logrus.Debugf("[EventListener] breakpoint %s, count = %d", ev.Reason, len(ev.Breakpoints))
	default:
		logrus.Debugf("[EventListener] ignore notification %T", event)
	}
}

func (l *EventListener) onStopped(ctx context.Context, event *debugger.StoppedEvent) {
	location := ""
	if event.File != "" {
		location = fmt.Sprintf("%s:%d", event.File, event.Line)
	}
	logrus.Infof("[EventListener] stopped at %s, reason = %s", location, event.Reason)
	switch event.Reason {
	case constants.StepStopped:
		l.handler.NotifyDebuggerEvent(&StepCompleted{Location: location})
	case constants.BreakpointStopped:
		l.onBreakpointStopped(ctx, event, location)
	case constants.ExceptionStopped:
		l.handler.NotifyDebuggerEvent(&ErrorOccurred{Error: fmt.Sprintf("exception at %s", location)})
	default:
		logrus.Debugf("[EventListener] ignore stop reason %s", event.Reason)
	}
}

// onBreakpointStopped 命中断点，编排器断点会进一步转换为函数进入和退出事件
func (l *EventListener) onBreakpointStopped(ctx context.Context, event *debugger.StoppedEvent, location string) {
	points := l.breakpointManager.ControllerPointsAt(event.BreakpointIDs, event.File, event.Line)

	var breakpoint *debugger.Breakpoint
	if len(points) != 0 {
		breakpoint = points[0].Breakpoint
	} else if len(event.BreakpointIDs) != 0 {
		breakpoint = &debugger.Breakpoint{ID: event.BreakpointIDs[0], File: event.File, Line: event.Line}
	}
	l.handler.NotifyDebuggerEvent(&BreakpointHit{
		Location:   location,
		Frame:      l.topFrame(ctx),
		Breakpoint: breakpoint,
	})

	var entry, exit *ControllerPoint
	for _, point := range points {
		if point.Function == nil {
			continue
		}
		if point.IsEntry() && entry == nil {
			entry = point
		}
		if !point.IsEntry() && exit == nil {
			exit = point
		}
	}
	if entry != nil {
		entered := &FunctionEntered{
			FunctionName: entry.FunctionName,
			Args:         l.arguments(ctx),
			Location:     location,
		}
		// 返回表达式在该行执行前计算，此时参数已经可以读取
		if point := entry.Function.EntryReturn(); point != nil {
			entered.Exit = &FunctionExited{
				FunctionName: entry.FunctionName,
				ReturnValue:  l.returnValue(ctx, point),
				Location:     location,
			}
		}
		l.handler.NotifyDebuggerEvent(entered)
		return
	}
	if exit != nil {
		l.handler.NotifyDebuggerEvent(&FunctionExited{
			FunctionName: exit.FunctionName,
			ReturnValue:  l.returnValue(ctx, exit.Exit),
			Location:     location,
		})
	}
}

func (l *EventListener) topFrame(ctx context.Context) *debugger.StackFrame {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	frame, err := l.engine.GetFrameAt(ctx, 0)
	if err != nil {
		logrus.Debugf("[EventListener] get top frame fail, err = %v", err)
		return nil
	}
	return frame
}

// arguments 读取栈顶的变量作为函数参数
func (l *EventListener) arguments(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	answer := make(map[string]string)
	variables, err := l.engine.GetFrameVariables(ctx, "0", argumentDepth)
	if err != nil {
		logrus.Warnf("[EventListener] read arguments fail, err = %v", err)
		return answer
	}
	for name, variable := range variables {
		value := dutils.FlattenValue(dutils.SerializeVariable(variable))
		if value == nil {
			answer[name] = "null"
			continue
		}
		answer[name] = *value
	}
	return answer
}

// returnValue 在return所在行计算返回表达式
func (l *EventListener) returnValue(ctx context.Context, exit *dutils.ReturnPoint) *string {
	if exit == nil || exit.Expression == "" {
		return nil
	}
	value, err := l.evaluator.EvaluateExpression(ctx, exit.Expression, 0)
	if err != nil || value == nil {
		logrus.Warnf("[EventListener] evaluate return expression %s fail, err = %v", exit.Expression, err)
		return nil
	}
	return dutils.FlattenValue(value)
}
