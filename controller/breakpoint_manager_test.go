package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addSource = `package main

func add(a, b int) int {
	c := a + b
	return c
}

func main() {
	x := 1
	y := add(x, 2)
	y = add(y, 3)
	println(x, y)
}
`

func newAddIndex(t *testing.T) *dutils.SourceIndex {
	index := dutils.NewSourceIndex()
	require.NoError(t, index.IndexFile(context.Background(), "main.go", []byte(addSource)))
	return index
}

func TestBreakpointManager_DisableAndRestore(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	first := engine.userBreakpoint(10, true)
	second := engine.userBreakpoint(11, false)
	third := engine.userBreakpoint(12, true)
	manager := NewBreakpointManager(engine, dutils.NewSourceIndex(), time.Second)
	ctx := context.Background()

	manager.DisableAllUserBreakpoints(ctx)
	assert.Equal(t, []string{first.ID, third.ID}, manager.DisabledUserBreakpoints())
	assert.False(t, engine.breakpointByID(first.ID).Enabled)
	assert.False(t, engine.breakpointByID(second.ID).Enabled)
	assert.False(t, engine.breakpointByID(third.ID).Enabled)

	// 重复禁用不会覆盖原本的状态
	manager.DisableAllUserBreakpoints(ctx)
	assert.Equal(t, []string{first.ID, third.ID}, manager.DisabledUserBreakpoints())

	manager.RestoreUserBreakpoints(ctx)
	assert.Empty(t, manager.DisabledUserBreakpoints())
	assert.True(t, engine.breakpointByID(first.ID).Enabled)
	assert.False(t, engine.breakpointByID(second.ID).Enabled)
	assert.True(t, engine.breakpointByID(third.ID).Enabled)
	assert.Equal(t, []string{
		first.ID + "=false", third.ID + "=false",
		first.ID + "=true", third.ID + "=true",
	}, engine.enableCalls)
}

func TestBreakpointManager_RestoreFailureContinues(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	first := engine.userBreakpoint(10, true)
	second := engine.userBreakpoint(11, true)
	manager := NewBreakpointManager(engine, dutils.NewSourceIndex(), time.Second)
	ctx := context.Background()

	manager.DisableAllUserBreakpoints(ctx)
	engine.lock.Lock()
	engine.enableErr[first.ID] = errors.New("gone")
	engine.lock.Unlock()

	manager.RestoreUserBreakpoints(ctx)
	assert.Empty(t, manager.DisabledUserBreakpoints())
	assert.False(t, engine.breakpointByID(first.ID).Enabled)
	assert.True(t, engine.breakpointByID(second.ID).Enabled)
}

func TestBreakpointManager_DisableFailureNotTracked(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	first := engine.userBreakpoint(10, true)
	second := engine.userBreakpoint(11, true)
	engine.enableErr[first.ID] = errors.New("refused")
	manager := NewBreakpointManager(engine, dutils.NewSourceIndex(), time.Second)

	manager.DisableAllUserBreakpoints(context.Background())
	assert.Equal(t, []string{second.ID}, manager.DisabledUserBreakpoints())
}

func TestBreakpointManager_SetBreakpointForFunction(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	manager := NewBreakpointManager(engine, newAddIndex(t), time.Second)
	ctx := context.Background()

	breakpoints := manager.SetBreakpointForFunction(ctx, "add")
	require.Len(t, breakpoints, 1)
	assert.Equal(t, "main.go", breakpoints[0].File)
	assert.Equal(t, 4, breakpoints[0].Line)
	assert.Equal(t, constants.LineBreakpoint, breakpoints[0].Type)
	assert.True(t, manager.IsControllerBreakpoint(breakpoints[0]))
	assert.Equal(t, 1, manager.ControllerBreakpointCount())

	entry := manager.EntryFunctionAt("main.go", 4)
	require.NotNil(t, entry)
	assert.Equal(t, "add", entry.FunctionName)
	assert.True(t, entry.IsEntry())

	assert.Empty(t, manager.SetBreakpointForFunction(ctx, "missing"))
	assert.Equal(t, 1, manager.ControllerBreakpointCount())
}

func TestBreakpointManager_SetBreakpointForFunctionExit(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	manager := NewBreakpointManager(engine, newAddIndex(t), time.Second)

	breakpoints := manager.SetBreakpointForFunctionExit(context.Background(), "add")
	require.Len(t, breakpoints, 1)
	assert.Equal(t, 5, breakpoints[0].Line)

	exit := manager.ExitPointAt("main.go", 5)
	require.NotNil(t, exit)
	require.NotNil(t, exit.Exit)
	assert.Equal(t, "c", exit.Exit.Expression)
	assert.False(t, exit.IsEntry())

	points := manager.ControllerPointsAt([]string{breakpoints[0].ID}, "", 0)
	require.Len(t, points, 1)
	assert.Equal(t, exit, points[0])
}

func TestBreakpointManager_UserBreakpointIsNotController(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	manager := NewBreakpointManager(engine, dutils.NewSourceIndex(), time.Second)

	breakpoint, err := manager.SetUserBreakpoint(context.Background(), "main.go", 10, "x > 1")
	require.NoError(t, err)
	assert.Equal(t, "x > 1", breakpoint.Condition)
	assert.False(t, manager.IsControllerBreakpoint(breakpoint))
	assert.False(t, manager.IsControllerBreakpoint(nil))
}

func TestBreakpointManager_Cleanup(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	user := engine.userBreakpoint(10, true)
	manager := NewBreakpointManager(engine, newAddIndex(t), time.Second)
	ctx := context.Background()

	manager.SetBreakpointForFunction(ctx, "add")
	manager.SetBreakpointForFunctionExit(ctx, "add")
	manager.AddControllerBreakpoint(&debugger.Breakpoint{ID: "stale"})
	require.Equal(t, 3, manager.ControllerBreakpointCount())

	manager.CleanupControllerBreakpoints(ctx)
	assert.Equal(t, 0, manager.ControllerBreakpointCount())
	assert.Len(t, engine.removeCalls, 3)
	assert.Equal(t, 1, engine.breakpointCount())
	assert.NotNil(t, engine.breakpointByID(user.ID))
}

func TestSelectBreakpointType(t *testing.T) {
	tests := []struct {
		name  string
		types []constants.BreakpointType
		want  constants.BreakpointType
		ok    bool
	}{
		{"prefer line", []constants.BreakpointType{constants.FunctionBreakpoint, constants.LineBreakpoint}, constants.LineBreakpoint, true},
		{"first otherwise", []constants.BreakpointType{constants.FunctionBreakpoint}, constants.FunctionBreakpoint, true},
		{"none", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectBreakpointType(tt.types)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBreakpointManager_NoValidType(t *testing.T) {
	engine := newFakeEngine()
	defer engine.close()
	manager := NewBreakpointManager(engine, dutils.NewSourceIndex(), time.Second)

	_, err := manager.setControllerBreakpoint(context.Background(), "main.go", 200)
	assert.Error(t, err)
	assert.Equal(t, 0, engine.breakpointCount())
}
