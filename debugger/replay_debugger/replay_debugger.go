package replay_debugger

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/expr-lang/expr"
	"github.com/fansqz/auto-debugger/constants"
	. "github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/fansqz/auto-debugger/utils"
	"github.com/fansqz/auto-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
)

// defaultVariableDepth 变量默认加载深度
const defaultVariableDepth = 3

// ReplayDebugger
// 回放执行引擎，按照脚本记录的执行轨迹模拟单步、断点、变量查看等调试能力
// 所有事件通过单独的协程按顺序回调
type ReplayDebugger struct {
	lock sync.Mutex

	script *Script

	// 事件产生时，触发该回调
	callback NotificationCallback

	// statusManager 调试的状态管理
	statusManager *utils.StatusManager

	// pc 当前停留在第几步
	pc int

	// breakpoints 断点id -> *Breakpoint，保持插入顺序
	breakpoints *linkedhashmap.Map

	events chan interface{}
	done   <-chan struct{}
	cancel context.CancelFunc
}

func NewReplayDebugger(script *Script) *ReplayDebugger {
	return &ReplayDebugger{
		script:        script,
		statusManager: utils.NewStatusManager(),
		breakpoints:   linkedhashmap.New(),
		events:        make(chan interface{}, 256),
	}
}

func (r *ReplayDebugger) Start(ctx context.Context, option *StartOption) error {
	logrus.Infof("[ReplayDebugger] Start, script = %s, steps = %d", r.script.Name, len(r.script.Steps))
	if option == nil {
		option = &StartOption{}
	}
	r.lock.Lock()
	if !r.statusManager.Is(utils.Init) {
		r.lock.Unlock()
		return e.ErrDebuggerIsClosed
	}
	r.callback = option.Callback
	dispatchCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = dispatchCtx.Done()
	gosync.Go(dispatchCtx, r.dispatch)

	for _, bp := range r.script.Breakpoints {
		breakpoint := NewBreakpoint(bp.File, bp.Line)
		breakpoint.Condition = bp.Condition
		if bp.Enabled != nil {
			breakpoint.Enabled = *bp.Enabled
		}
		r.addBreakpoint(breakpoint)
	}
	for _, bp := range option.Breakpoints {
		r.addBreakpoint(bp.Clone())
	}

	r.pc = 0
	if option.StopOnEntry {
		r.statusManager.Set(utils.Stopped)
		step := r.script.Steps[0]
		r.lock.Unlock()
		r.emit(NewStoppedEvent(constants.EntryStopped, step.File, step.Line))
		return nil
	}
	// 第一步本身命中断点时直接停在第一步
	if ids := r.hitBreakpoints(&r.script.Steps[0]); len(ids) > 0 {
		r.statusManager.Set(utils.Stopped)
		step := r.script.Steps[0]
		r.lock.Unlock()
		r.emit(NewStoppedEvent(constants.BreakpointStopped, step.File, step.Line, ids...))
		return nil
	}
	events := r.run("")
	r.lock.Unlock()
	r.emit(events...)
	return nil
}

// dispatch 按顺序回调事件
func (r *ReplayDebugger) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// 结束前把剩余的事件发送完
			for {
				select {
				case event := <-r.events:
					r.notify(event)
				default:
					return
				}
			}
		case event := <-r.events:
			r.notify(event)
		}
	}
}

func (r *ReplayDebugger) notify(event interface{}) {
	if r.callback != nil {
		r.callback(event)
	}
}

// emit 将事件交给dispatch协程，调试未启动时丢弃事件
func (r *ReplayDebugger) emit(events ...interface{}) {
	if r.done == nil {
		return
	}
	for _, event := range events {
		select {
		case r.events <- event:
		case <-r.done:
			return
		}
	}
}

func (r *ReplayDebugger) StepOver(ctx context.Context) error {
	logrus.Debugf("[ReplayDebugger] StepOver")
	return r.step(constants.StepOver)
}

func (r *ReplayDebugger) StepInto(ctx context.Context) error {
	logrus.Debugf("[ReplayDebugger] StepInto")
	return r.step(constants.StepIn)
}

func (r *ReplayDebugger) StepOut(ctx context.Context) error {
	logrus.Debugf("[ReplayDebugger] StepOut")
	return r.step(constants.StepOut)
}

func (r *ReplayDebugger) Continue(ctx context.Context) error {
	logrus.Debugf("[ReplayDebugger] Continue")
	return r.step("")
}

func (r *ReplayDebugger) step(stepType constants.StepType) error {
	r.lock.Lock()
	if !r.statusManager.Is(utils.Stopped) {
		r.lock.Unlock()
		if r.statusManager.Is(utils.Finish) {
			return e.ErrSessionNotActive
		}
		return e.ErrProgramIsRunning
	}
	events := []interface{}{NewContinuedEvent()}
	events = append(events, r.run(stepType)...)
	r.lock.Unlock()
	r.emit(events...)
	return nil
}

// run 从当前位置向后执行，直到单步完成、命中断点或者程序结束，需要持有锁
// stepType为空表示continue
func (r *ReplayDebugger) run(stepType constants.StepType) []interface{} {
	steps := r.script.Steps
	depth := steps[r.pc].Depth()
	for i := r.pc + 1; i < len(steps); i++ {
		step := &steps[i]
		if isStepTarget(stepType, depth, step.Depth()) {
			r.pc = i
			r.statusManager.Set(utils.Stopped)
			return []interface{}{NewStoppedEvent(constants.StepStopped, step.File, step.Line)}
		}
		if ids := r.hitBreakpoints(step); len(ids) > 0 {
			r.pc = i
			r.statusManager.Set(utils.Stopped)
			return []interface{}{NewStoppedEvent(constants.BreakpointStopped, step.File, step.Line, ids...)}
		}
	}
	r.pc = len(steps) - 1
	r.statusManager.Set(utils.Finish)
	logrus.Infof("[ReplayDebugger] program exited, code = %d", r.script.ExitCode)
	return []interface{}{
		NewExitedEvent(r.script.ExitCode, fmt.Sprintf("Process exited with code %d", r.script.ExitCode)),
		NewTerminatedEvent(),
	}
}

func isStepTarget(stepType constants.StepType, depth int, nextDepth int) bool {
	switch stepType {
	case constants.StepIn:
		return true
	case constants.StepOver:
		return nextDepth <= depth
	case constants.StepOut:
		return nextDepth < depth
	}
	return false
}

// hitBreakpoints 某一步命中的断点，需要持有锁
func (r *ReplayDebugger) hitBreakpoints(step *Step) []string {
	var ids []string
	it := r.breakpoints.Iterator()
	for it.Next() {
		bp := it.Value().(*Breakpoint)
		if !bp.Enabled || bp.Line != step.Line || !dutils.SameFile(bp.File, step.File) {
			continue
		}
		if bp.Condition != "" && !r.conditionHolds(bp.Condition, step) {
			continue
		}
		ids = append(ids, bp.ID)
	}
	return ids
}

func (r *ReplayDebugger) conditionHolds(condition string, step *Step) bool {
	env := step.Variables
	if env == nil {
		env = map[string]interface{}{}
	}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		// 条件无法编译时按照命中处理
		logrus.Warnf("[ReplayDebugger] compile condition %q fail, err = %v", condition, err)
		return true
	}
	output, err := expr.Run(program, env)
	if err != nil {
		logrus.Warnf("[ReplayDebugger] run condition %q fail, err = %v", condition, err)
		return true
	}
	result, _ := output.(bool)
	return result
}

func (r *ReplayDebugger) addBreakpoint(breakpoint *Breakpoint) *Breakpoint {
	breakpoint.ID = utils.GetShortID()
	if breakpoint.Type == "" {
		breakpoint.Type = constants.LineBreakpoint
	}
	breakpoint.Verified = true
	r.breakpoints.Put(breakpoint.ID, breakpoint)
	return breakpoint
}

func (r *ReplayDebugger) SetBreakpoint(ctx context.Context, breakpoint *Breakpoint) (*Breakpoint, error) {
	if breakpoint == nil || breakpoint.File == "" || breakpoint.Line <= 0 {
		return nil, e.ErrBreakpointTypeNotValid
	}
	r.lock.Lock()
	if r.statusManager.Is(utils.Finish) {
		r.lock.Unlock()
		return nil, e.ErrSessionNotActive
	}
	bp := r.addBreakpoint(breakpoint.Clone())
	answer := bp.Clone()
	r.lock.Unlock()
	logrus.Debugf("[ReplayDebugger] SetBreakpoint %s at %s", answer.ID, answer.Location())
	r.emit(NewBreakpointEvent(constants.NewType, []*Breakpoint{answer.Clone()}))
	return answer, nil
}

func (r *ReplayDebugger) RemoveBreakpoint(ctx context.Context, id string) error {
	r.lock.Lock()
	value, ok := r.breakpoints.Get(id)
	if !ok {
		r.lock.Unlock()
		return e.ErrBreakpointNotFound
	}
	r.breakpoints.Remove(id)
	r.lock.Unlock()
	r.emit(NewBreakpointEvent(constants.RemovedType, []*Breakpoint{value.(*Breakpoint).Clone()}))
	return nil
}

func (r *ReplayDebugger) SetBreakpointEnabled(ctx context.Context, id string, enabled bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	value, ok := r.breakpoints.Get(id)
	if !ok {
		return e.ErrBreakpointNotFound
	}
	value.(*Breakpoint).Enabled = enabled
	return nil
}

func (r *ReplayDebugger) GetAllBreakpoints(ctx context.Context) ([]*Breakpoint, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	answer := make([]*Breakpoint, 0, r.breakpoints.Size())
	it := r.breakpoints.Iterator()
	for it.Next() {
		answer = append(answer, it.Value().(*Breakpoint).Clone())
	}
	return answer, nil
}

func (r *ReplayDebugger) GetBreakpointTypes(ctx context.Context, file string, line int) ([]constants.BreakpointType, error) {
	if line <= 0 {
		return []constants.BreakpointType{}, nil
	}
	return []constants.BreakpointType{constants.LineBreakpoint}, nil
}

// frame 获取当前步的第depth层栈帧，需要持有锁
func (r *ReplayDebugger) frame(depth int) (*StackFrame, map[string]interface{}, error) {
	if r.statusManager.Is(utils.Init, utils.Finish) {
		return nil, nil, e.ErrSessionNotActive
	}
	step := &r.script.Steps[r.pc]
	if depth == 0 {
		return &StackFrame{ID: "0", Name: step.Function, Path: step.File, Line: step.Line}, step.Variables, nil
	}
	if depth < 0 || depth > len(step.Stack) {
		return nil, nil, e.ErrFrameNotFound
	}
	caller := step.Stack[depth-1]
	return &StackFrame{ID: strconv.Itoa(depth), Name: caller.Function, Path: caller.File, Line: caller.Line}, caller.Variables, nil
}

func (r *ReplayDebugger) GetFrameAt(ctx context.Context, depth int) (*StackFrame, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	frame, _, err := r.frame(depth)
	return frame, err
}

func (r *ReplayDebugger) GetCallStack(ctx context.Context, maxDepth int) ([]*StackFrame, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.statusManager.Is(utils.Init, utils.Finish) {
		return nil, e.ErrSessionNotActive
	}
	count := r.script.Steps[r.pc].Depth() + 1
	if maxDepth > 0 && maxDepth < count {
		count = maxDepth
	}
	answer := make([]*StackFrame, 0, count)
	for i := 0; i < count; i++ {
		frame, _, err := r.frame(i)
		if err != nil {
			return nil, err
		}
		answer = append(answer, frame)
	}
	return answer, nil
}

func (r *ReplayDebugger) GetFrameVariables(ctx context.Context, frameID string, maxDepth int) (map[string]*Variable, error) {
	depth, err := strconv.Atoi(frameID)
	if err != nil {
		return nil, e.ErrFrameNotFound
	}
	if maxDepth <= 0 {
		maxDepth = defaultVariableDepth
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	_, variables, err := r.frame(depth)
	if err != nil {
		return nil, err
	}
	return toVariables(variables, maxDepth), nil
}

// Evaluate 优先使用脚本中录制的结果，否则使用expr在栈帧变量上计算
func (r *ReplayDebugger) Evaluate(ctx context.Context, expression string, frameIndex int) (*Variable, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.statusManager.Is(utils.Stopped) {
		return nil, e.ErrProgramIsRunning
	}
	_, variables, err := r.frame(frameIndex)
	if err != nil {
		return nil, err
	}
	if frameIndex == 0 {
		if value, ok := r.script.Steps[r.pc].Evaluations[expression]; ok {
			return toVariable(expression, value, 0, defaultVariableDepth), nil
		}
	}
	if variables == nil {
		variables = map[string]interface{}{}
	}
	program, err := expr.Compile(expression, expr.Env(variables))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrEvaluateNotSupported, err)
	}
	output, err := expr.Run(program, variables)
	if err != nil {
		return nil, err
	}
	return toVariable(expression, output, 0, defaultVariableDepth), nil
}

func (r *ReplayDebugger) IsSessionActive() bool {
	return r.statusManager.Is(utils.Stopped, utils.Running)
}

func (r *ReplayDebugger) IsPaused() bool {
	return r.statusManager.Is(utils.Stopped)
}

// WaitForStop 等待程序停止或者结束
func (r *ReplayDebugger) WaitForStop(ctx context.Context) error {
	return r.statusManager.WaitFor(ctx, utils.Stopped, utils.Finish)
}

func (r *ReplayDebugger) Terminate(ctx context.Context) error {
	logrus.Infof("[ReplayDebugger] Terminate")
	r.lock.Lock()
	if r.statusManager.Is(utils.Finish) {
		r.lock.Unlock()
		r.stopDispatch()
		return nil
	}
	r.statusManager.Set(utils.Finish)
	r.lock.Unlock()
	r.emit(NewTerminatedEvent())
	r.stopDispatch()
	return nil
}

func (r *ReplayDebugger) stopDispatch() {
	if r.cancel != nil {
		r.cancel()
	}
}
