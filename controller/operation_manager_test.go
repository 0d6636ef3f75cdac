package controller

import (
	"sync"
	"testing"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationManager_GenerateOperationID(t *testing.T) {
	manager := NewOperationManager(0)
	assert.Equal(t, "trace_1", manager.GenerateOperationID(constants.TraceOperationPrefix))
	assert.Equal(t, "find_change_2", manager.GenerateOperationID(constants.FindChangeOperationPrefix))
	assert.Equal(t, "step_until_3", manager.GenerateOperationID(constants.StepUntilOperationPrefix))

	ids := sync.Map{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := manager.GenerateOperationID("trace")
			_, loaded := ids.LoadOrStore(id, true)
			assert.False(t, loaded, "duplicate id %s", id)
		}()
	}
	wg.Wait()
}

func TestOperationManager_StartOperation(t *testing.T) {
	manager := NewOperationManager(0)
	assert.True(t, manager.IsIdle())
	assert.Nil(t, manager.CurrentOperation())

	first := NewStepUntilCondition("step_until_1", "x > 1", 5)
	require.True(t, manager.StartOperation(first, constants.StateSteppingThrough))
	assert.Equal(t, constants.StateSteppingThrough, manager.CurrentState())
	assert.Equal(t, first, manager.CurrentOperation())

	result, ok := manager.GetOperationResult("step_until_1")
	require.True(t, ok)
	assert.Equal(t, constants.OperationInProgress, result.Status)
	assert.Equal(t, "Started operation step_until_1", result.Message)
	assert.Nil(t, result.CompletedAt)

	second := NewFindValueChange("find_change_2", "x", nil, 5)
	assert.False(t, manager.StartOperation(second, constants.StateFindingValueChange))
	assert.Equal(t, first, manager.CurrentOperation())
	_, ok = manager.GetOperationResult("find_change_2")
	assert.False(t, ok)
}

func TestOperationManager_CompleteOperation(t *testing.T) {
	manager := NewOperationManager(0)
	operation := NewStepUntilCondition("step_until_1", "x > 1", 5)
	require.True(t, manager.StartOperation(operation, constants.StateSteppingThrough))

	assert.True(t, manager.CompleteOperation(&OperationResult{
		OperationID: "step_until_1",
		Status:      constants.OperationCompleted,
		Message:     "Condition met",
	}))
	assert.True(t, manager.IsIdle())
	assert.Nil(t, manager.CurrentOperation())

	result, ok := manager.GetOperationResult("step_until_1")
	require.True(t, ok)
	assert.Equal(t, constants.OperationCompleted, result.Status)
	require.NotNil(t, result.CompletedAt)

	// 终态只会写入一次
	assert.False(t, manager.CompleteOperation(&OperationResult{
		OperationID: "step_until_1",
		Status:      constants.OperationFailed,
		Message:     "Error occurred: late",
	}))
	result, _ = manager.GetOperationResult("step_until_1")
	assert.Equal(t, constants.OperationCompleted, result.Status)
	assert.Equal(t, "Condition met", result.Message)
}

func TestOperationManager_CompleteOtherOperation(t *testing.T) {
	manager := NewOperationManager(0)
	current := NewStepUntilCondition("step_until_2", "x > 1", 5)
	require.True(t, manager.StartOperation(current, constants.StateSteppingThrough))

	// 结束一个不是当前操作的id不会清空当前操作
	assert.True(t, manager.CompleteOperation(&OperationResult{
		OperationID: "step_until_1",
		Status:      constants.OperationFailed,
	}))
	assert.Equal(t, current, manager.CurrentOperation())
	assert.Equal(t, constants.StateSteppingThrough, manager.CurrentState())
}

func TestOperationManager_UpdateState(t *testing.T) {
	manager := NewOperationManager(0)
	operation := NewTraceFunctionCalls("trace_1", "add", 2, true, true)
	require.True(t, manager.StartOperation(operation, constants.StateTracingFunction))
	manager.UpdateState(constants.StatePaused)
	assert.Equal(t, constants.StatePaused, manager.CurrentState())
	assert.False(t, manager.IsIdle())
	manager.UpdateState(stateOf(operation))
	assert.Equal(t, constants.StateTracingFunction, manager.CurrentState())
}

func TestOperationManager_Retention(t *testing.T) {
	manager := NewOperationManager(2)
	for _, id := range []string{"step_until_1", "step_until_2", "step_until_3"} {
		require.True(t, manager.StartOperation(NewStepUntilCondition(id, "true", 1), constants.StateSteppingThrough))
		require.True(t, manager.CompleteOperation(&OperationResult{OperationID: id, Status: constants.OperationCompleted}))
	}
	_, ok := manager.GetOperationResult("step_until_1")
	assert.False(t, ok)
	_, ok = manager.GetOperationResult("step_until_2")
	assert.True(t, ok)
	_, ok = manager.GetOperationResult("step_until_3")
	assert.True(t, ok)
}

func TestOperationManager_GetOperationResultMissing(t *testing.T) {
	manager := NewOperationManager(0)
	result, ok := manager.GetOperationResult("trace_42")
	assert.False(t, ok)
	assert.Nil(t, result)
}
