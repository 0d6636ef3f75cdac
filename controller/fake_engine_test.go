package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	e "github.com/fansqz/auto-debugger/error"
)

// fakeEngine 手写的执行引擎，单步后把行号加一并异步发送停止事件
type fakeEngine struct {
	lock        sync.Mutex
	callback    debugger.NotificationCallback
	events      chan interface{}
	done        chan struct{}
	breakpoints []*debugger.Breakpoint
	nextID      int

	paused bool
	active bool
	file   string
	line   int

	variables   map[string]*debugger.Variable
	evaluations map[string]*debugger.Variable

	// onStep 每次单步后在锁内调用，可以修改变量
	onStep func(f *fakeEngine, count int)
	// silent 为true时单步和继续不发送任何事件
	silent bool

	stepCount     int
	continueCount int
	stepErr       error
	continueErr   error
	enableErr     map[string]error
	enableCalls   []string
	removeCalls   []string
}

func newFakeEngine() *fakeEngine {
	f := &fakeEngine{
		events:      make(chan interface{}, 1024),
		done:        make(chan struct{}),
		paused:      true,
		active:      true,
		file:        "main.go",
		line:        1,
		variables:   make(map[string]*debugger.Variable),
		evaluations: make(map[string]*debugger.Variable),
		enableErr:   make(map[string]error),
	}
	go f.dispatch()
	return f
}

func (f *fakeEngine) dispatch() {
	for {
		select {
		case event := <-f.events:
			f.lock.Lock()
			callback := f.callback
			f.lock.Unlock()
			if callback != nil {
				callback(event)
			}
		case <-f.done:
			return
		}
	}
}

func (f *fakeEngine) close() {
	close(f.done)
}

// userBreakpoint 直接在引擎中添加一个用户断点
func (f *fakeEngine) userBreakpoint(line int, enabled bool) *debugger.Breakpoint {
	f.lock.Lock()
	defer f.lock.Unlock()
	breakpoint := debugger.NewBreakpoint("main.go", line)
	breakpoint.Enabled = enabled
	f.nextID++
	breakpoint.ID = fmt.Sprintf("bp%d", f.nextID)
	f.breakpoints = append(f.breakpoints, breakpoint)
	return breakpoint.Clone()
}

func (f *fakeEngine) setVariable(name string, value string) {
	f.variables[name] = debugger.NewVariable(name, "int", value)
}

func (f *fakeEngine) setEvaluation(expression string, value string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.evaluations[expression] = debugger.NewVariable(expression, "bool", value)
}

func (f *fakeEngine) counts() (int, int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.stepCount, f.continueCount
}

func (f *fakeEngine) breakpointByID(id string) *debugger.Breakpoint {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, breakpoint := range f.breakpoints {
		if breakpoint.ID == id {
			return breakpoint.Clone()
		}
	}
	return nil
}

func (f *fakeEngine) breakpointCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.breakpoints)
}

func (f *fakeEngine) emit(event interface{}) {
	f.events <- event
}

func (f *fakeEngine) Start(ctx context.Context, option *debugger.StartOption) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.callback = option.Callback
	return nil
}

func (f *fakeEngine) StepOver(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.stepErr != nil {
		return f.stepErr
	}
	f.stepCount++
	f.line++
	if f.onStep != nil {
		f.onStep(f, f.stepCount)
	}
	if !f.silent {
		f.emit(debugger.NewStoppedEvent(constants.StepStopped, f.file, f.line))
	}
	return nil
}

func (f *fakeEngine) StepInto(ctx context.Context) error {
	return f.StepOver(ctx)
}

func (f *fakeEngine) StepOut(ctx context.Context) error {
	return f.StepOver(ctx)
}

func (f *fakeEngine) Continue(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.continueErr != nil {
		return f.continueErr
	}
	f.continueCount++
	return nil
}

func (f *fakeEngine) SetBreakpoint(ctx context.Context, breakpoint *debugger.Breakpoint) (*debugger.Breakpoint, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	answer := breakpoint.Clone()
	f.nextID++
	answer.ID = fmt.Sprintf("bp%d", f.nextID)
	answer.Verified = true
	f.breakpoints = append(f.breakpoints, answer)
	return answer.Clone(), nil
}

func (f *fakeEngine) RemoveBreakpoint(ctx context.Context, id string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.removeCalls = append(f.removeCalls, id)
	for i, breakpoint := range f.breakpoints {
		if breakpoint.ID == id {
			f.breakpoints = append(f.breakpoints[:i], f.breakpoints[i+1:]...)
			return nil
		}
	}
	return e.ErrBreakpointNotFound
}

func (f *fakeEngine) SetBreakpointEnabled(ctx context.Context, id string, enabled bool) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.enableCalls = append(f.enableCalls, fmt.Sprintf("%s=%v", id, enabled))
	if err := f.enableErr[id]; err != nil {
		return err
	}
	for _, breakpoint := range f.breakpoints {
		if breakpoint.ID == id {
			breakpoint.Enabled = enabled
			return nil
		}
	}
	return e.ErrBreakpointNotFound
}

func (f *fakeEngine) GetAllBreakpoints(ctx context.Context) ([]*debugger.Breakpoint, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	answer := make([]*debugger.Breakpoint, 0, len(f.breakpoints))
	for _, breakpoint := range f.breakpoints {
		answer = append(answer, breakpoint.Clone())
	}
	return answer, nil
}

// GetBreakpointTypes 第100行之后的位置不能设置断点
func (f *fakeEngine) GetBreakpointTypes(ctx context.Context, file string, line int) ([]constants.BreakpointType, error) {
	if line > 100 {
		return nil, nil
	}
	return []constants.BreakpointType{constants.FunctionBreakpoint, constants.LineBreakpoint}, nil
}

func (f *fakeEngine) GetFrameAt(ctx context.Context, depth int) (*debugger.StackFrame, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if depth != 0 {
		return nil, e.ErrFrameNotFound
	}
	return &debugger.StackFrame{ID: "0", Name: "main", Path: f.file, Line: f.line}, nil
}

func (f *fakeEngine) GetCallStack(ctx context.Context, maxDepth int) ([]*debugger.StackFrame, error) {
	frame, err := f.GetFrameAt(ctx, 0)
	if err != nil {
		return nil, err
	}
	return []*debugger.StackFrame{frame}, nil
}

func (f *fakeEngine) GetFrameVariables(ctx context.Context, frameID string, maxDepth int) (map[string]*debugger.Variable, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if frameID != "0" {
		return nil, e.ErrFrameNotFound
	}
	answer := make(map[string]*debugger.Variable, len(f.variables))
	for name, variable := range f.variables {
		answer[name] = variable
	}
	return answer, nil
}

func (f *fakeEngine) Evaluate(ctx context.Context, expression string, frameIndex int) (*debugger.Variable, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if variable, ok := f.evaluations[expression]; ok {
		return variable, nil
	}
	if variable, ok := f.variables[expression]; ok {
		return variable, nil
	}
	return nil, fmt.Errorf("cannot evaluate %s", expression)
}

func (f *fakeEngine) IsSessionActive() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.active
}

func (f *fakeEngine) IsPaused() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.paused
}

func (f *fakeEngine) Terminate(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.active = false
	return nil
}
