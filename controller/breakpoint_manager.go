package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	"github.com/fansqz/auto-debugger/metrics"
	"github.com/sirupsen/logrus"
)

// ControllerPoint 编排器设置的断点对应的函数入口或者出口
type ControllerPoint struct {
	Breakpoint *debugger.Breakpoint
	// FunctionName 设置断点时使用的函数名
	FunctionName string
	Function     *dutils.FunctionInfo
	// Exit 为空表示函数入口
	Exit *dutils.ReturnPoint
}

func (p *ControllerPoint) IsEntry() bool {
	return p.Exit == nil
}

// BreakpointManager
// 区分编排器断点和用户断点，操作期间禁用用户断点并在结束后恢复
// 只有BreakpointManager会修改断点的启用状态
type BreakpointManager struct {
	engine  debugger.ExecutionEngine
	index   *dutils.SourceIndex
	timeout time.Duration

	lock sync.Mutex
	// controllerBreakpoints 编排器创建的断点id
	controllerBreakpoints *hashset.Set
	// controllerPoints 断点id -> *ControllerPoint
	controllerPoints map[string]*ControllerPoint
	// disabledUserBreakpoints 被禁用的用户断点id -> 原本的启用状态，保持插入顺序
	disabledUserBreakpoints *linkedhashmap.Map
}

func NewBreakpointManager(engine debugger.ExecutionEngine, index *dutils.SourceIndex, timeout time.Duration) *BreakpointManager {
	return &BreakpointManager{
		engine:                  engine,
		index:                   index,
		timeout:                 timeout,
		controllerBreakpoints:   hashset.New(),
		controllerPoints:        make(map[string]*ControllerPoint),
		disabledUserBreakpoints: linkedhashmap.New(),
	}
}

// DisableAllUserBreakpoints 禁用所有用户断点，并记录原本的状态
// 已经记录过的断点会被跳过，重复调用不会覆盖原本的状态
func (b *BreakpointManager) DisableAllUserBreakpoints(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	breakpoints, err := b.engine.GetAllBreakpoints(callCtx)
	cancel()
	if err != nil {
		logrus.Errorf("[BreakpointManager] DisableAllUserBreakpoints fail, err = %v", err)
		metrics.RecordEngineError("get_all_breakpoints")
		return
	}
	disabled := 0
	for _, breakpoint := range breakpoints {
		if !b.trackForDisable(breakpoint) {
			continue
		}
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		err = b.engine.SetBreakpointEnabled(callCtx, breakpoint.ID, false)
		cancel()
		if err != nil {
			logrus.Warnf("[BreakpointManager] disable user breakpoint %s at %s fail, err = %v", breakpoint.ID, breakpoint.Location(), err)
			metrics.RecordEngineError("set_breakpoint_enabled")
			b.lock.Lock()
			b.disabledUserBreakpoints.Remove(breakpoint.ID)
			b.lock.Unlock()
			continue
		}
		logrus.Debugf("[BreakpointManager] disabled user breakpoint %s at %s", breakpoint.ID, breakpoint.Location())
		disabled++
	}
	logrus.Infof("[BreakpointManager] Disabled %d user breakpoints", disabled)
}

// trackForDisable 判断断点是否需要禁用，需要时记录原本的状态
func (b *BreakpointManager) trackForDisable(breakpoint *debugger.Breakpoint) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.controllerBreakpoints.Contains(breakpoint.ID) || !breakpoint.Enabled {
		return false
	}
	if _, ok := b.disabledUserBreakpoints.Get(breakpoint.ID); ok {
		return false
	}
	b.disabledUserBreakpoints.Put(breakpoint.ID, breakpoint.Enabled)
	return true
}

// RestoreUserBreakpoints 按禁用的顺序恢复用户断点，单个失败不影响其他断点
func (b *BreakpointManager) RestoreUserBreakpoints(ctx context.Context) {
	b.lock.Lock()
	ids := make([]string, 0, b.disabledUserBreakpoints.Size())
	states := make([]bool, 0, b.disabledUserBreakpoints.Size())
	it := b.disabledUserBreakpoints.Iterator()
	for it.Next() {
		ids = append(ids, it.Key().(string))
		states = append(states, it.Value().(bool))
	}
	b.disabledUserBreakpoints.Clear()
	b.lock.Unlock()

	for i, id := range ids {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err := b.engine.SetBreakpointEnabled(callCtx, id, states[i])
		cancel()
		if err != nil {
			logrus.Warnf("[BreakpointManager] restore user breakpoint %s fail, err = %v", id, err)
			metrics.RecordEngineError("set_breakpoint_enabled")
			continue
		}
		logrus.Debugf("[BreakpointManager] restored user breakpoint %s to enabled = %v", id, states[i])
	}
	logrus.Infof("[BreakpointManager] Restored %d user breakpoints", len(ids))
}

// DisabledUserBreakpoints 当前被禁用的用户断点id
func (b *BreakpointManager) DisabledUserBreakpoints() []string {
	b.lock.Lock()
	defer b.lock.Unlock()
	answer := make([]string, 0, b.disabledUserBreakpoints.Size())
	for _, key := range b.disabledUserBreakpoints.Keys() {
		answer = append(answer, key.(string))
	}
	return answer
}

// AddControllerBreakpoint 登记编排器创建的断点
func (b *BreakpointManager) AddControllerBreakpoint(breakpoint *debugger.Breakpoint) {
	b.addControllerPoint(&ControllerPoint{Breakpoint: breakpoint})
}

func (b *BreakpointManager) addControllerPoint(point *ControllerPoint) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.controllerBreakpoints.Add(point.Breakpoint.ID)
	b.controllerPoints[point.Breakpoint.ID] = point
}

func (b *BreakpointManager) IsControllerBreakpoint(breakpoint *debugger.Breakpoint) bool {
	if breakpoint == nil {
		return false
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.controllerBreakpoints.Contains(breakpoint.ID)
}

// ControllerBreakpointCount 编排器断点的数量
func (b *BreakpointManager) ControllerBreakpointCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.controllerBreakpoints.Size()
}

// ControllerPointsAt 根据命中的断点id找到编排器断点，引擎没有给出id时按位置匹配
func (b *BreakpointManager) ControllerPointsAt(ids []string, file string, line int) []*ControllerPoint {
	b.lock.Lock()
	defer b.lock.Unlock()
	answer := make([]*ControllerPoint, 0)
	for _, id := range ids {
		if point, ok := b.controllerPoints[id]; ok {
			answer = append(answer, point)
		}
	}
	if len(ids) != 0 {
		return answer
	}
	for _, point := range b.controllerPoints {
		if point.Breakpoint.Line == line && dutils.SameFile(point.Breakpoint.File, file) {
			answer = append(answer, point)
		}
	}
	return answer
}

// EntryFunctionAt 位于该位置的函数入口断点
func (b *BreakpointManager) EntryFunctionAt(file string, line int) *ControllerPoint {
	for _, point := range b.ControllerPointsAt(nil, file, line) {
		if point.IsEntry() && point.Function != nil {
			return point
		}
	}
	return nil
}

// ExitPointAt 位于该位置的函数出口断点
func (b *BreakpointManager) ExitPointAt(file string, line int) *ControllerPoint {
	for _, point := range b.ControllerPointsAt(nil, file, line) {
		if !point.IsEntry() {
			return point
		}
	}
	return nil
}

// SetBreakpointForFunction 在函数的入口设置断点，同名的函数都会被设置
func (b *BreakpointManager) SetBreakpointForFunction(ctx context.Context, functionName string) []*debugger.Breakpoint {
	functions := b.index.LookupFunction(functionName)
	answer := make([]*debugger.Breakpoint, 0, len(functions))
	for _, function := range functions {
		breakpoint, err := b.setControllerBreakpoint(ctx, function.File, function.EntryLine)
		if err != nil {
			logrus.Warnf("[BreakpointManager] set entry breakpoint for %s at %s:%d fail, err = %v",
				functionName, function.File, function.EntryLine, err)
			continue
		}
		b.addControllerPoint(&ControllerPoint{
			Breakpoint:   breakpoint,
			FunctionName: functionName,
			Function:     function,
		})
		answer = append(answer, breakpoint)
		logrus.Debugf("[BreakpointManager] set entry breakpoint for function '%s' at %s", functionName, breakpoint.Location())
	}
	logrus.Infof("[BreakpointManager] Set %d breakpoints for function: %s", len(answer), functionName)
	return answer
}

// SetBreakpointForFunctionExit 在函数的每个return处设置断点
// 函数没有返回值或者没有显式的return时，在右花括号处设置断点
// 和入口断点同一行的出口不会设置，由入口断点一起处理，见 FunctionInfo.EntryReturn
func (b *BreakpointManager) SetBreakpointForFunctionExit(ctx context.Context, functionName string) []*debugger.Breakpoint {
	functions := b.index.LookupFunction(functionName)
	answer := make([]*debugger.Breakpoint, 0)
	for _, function := range functions {
		lines := map[int]bool{function.EntryLine: true}
		for _, exit := range function.ExitPoints() {
			if lines[exit.Line] {
				continue
			}
			lines[exit.Line] = true
			breakpoint, err := b.setControllerBreakpoint(ctx, function.File, exit.Line)
			if err != nil {
				logrus.Warnf("[BreakpointManager] set exit breakpoint for %s at %s:%d fail, err = %v",
					functionName, function.File, exit.Line, err)
				continue
			}
			exit := exit
			b.addControllerPoint(&ControllerPoint{
				Breakpoint:   breakpoint,
				FunctionName: functionName,
				Function:     function,
				Exit:         &exit,
			})
			answer = append(answer, breakpoint)
			logrus.Debugf("[BreakpointManager] set exit breakpoint for function '%s' at %s", functionName, breakpoint.Location())
		}
	}
	logrus.Infof("[BreakpointManager] Set %d exit breakpoints for function: %s", len(answer), functionName)
	return answer
}

// setControllerBreakpoint 在某一行设置断点，优先选择行断点
func (b *BreakpointManager) setControllerBreakpoint(ctx context.Context, file string, line int) (*debugger.Breakpoint, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	types, err := b.engine.GetBreakpointTypes(callCtx, file, line)
	if err != nil {
		metrics.RecordEngineError("get_breakpoint_types")
		return nil, err
	}
	breakpointType, ok := selectBreakpointType(types)
	if !ok {
		return nil, fmt.Errorf("no valid breakpoint type at %s:%d", file, line)
	}
	breakpoint := debugger.NewBreakpoint(file, line)
	breakpoint.Type = breakpointType
	answer, err := b.engine.SetBreakpoint(callCtx, breakpoint)
	if err != nil {
		metrics.RecordEngineError("set_breakpoint")
		return nil, err
	}
	return answer, nil
}

func selectBreakpointType(types []constants.BreakpointType) (constants.BreakpointType, bool) {
	for _, t := range types {
		if t == constants.LineBreakpoint {
			return t, true
		}
	}
	if len(types) == 0 {
		return "", false
	}
	return types[0], true
}

// SetUserBreakpoint 设置一个用户断点，用户断点不会被登记为编排器断点
func (b *BreakpointManager) SetUserBreakpoint(ctx context.Context, file string, line int, condition string) (*debugger.Breakpoint, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	breakpoint := debugger.NewBreakpoint(file, line)
	breakpoint.Condition = condition
	answer, err := b.engine.SetBreakpoint(callCtx, breakpoint)
	if err != nil {
		metrics.RecordEngineError("set_breakpoint")
		return nil, err
	}
	logrus.Infof("[BreakpointManager] SetUserBreakpoint %s at %s", answer.ID, answer.Location())
	return answer, nil
}

// CleanupControllerBreakpoints 删除所有编排器断点，单个失败不影响其他断点
func (b *BreakpointManager) CleanupControllerBreakpoints(ctx context.Context) {
	b.lock.Lock()
	ids := make([]string, 0, b.controllerBreakpoints.Size())
	for _, value := range b.controllerBreakpoints.Values() {
		ids = append(ids, value.(string))
	}
	b.controllerBreakpoints.Clear()
	b.controllerPoints = make(map[string]*ControllerPoint)
	b.lock.Unlock()

	for _, id := range ids {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err := b.engine.RemoveBreakpoint(callCtx, id)
		cancel()
		if err != nil {
			logrus.Warnf("[BreakpointManager] remove controller breakpoint %s fail, err = %v", id, err)
			metrics.RecordEngineError("remove_breakpoint")
			continue
		}
		logrus.Debugf("[BreakpointManager] removed controller breakpoint %s", id)
	}
	logrus.Infof("[BreakpointManager] Cleaned up %d controller breakpoints", len(ids))
}
