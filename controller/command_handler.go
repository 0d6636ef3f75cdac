package controller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/fansqz/auto-debugger/metrics"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxCalls          = 10
	defaultFindMaxSteps      = 100
	defaultStepUntilMaxSteps = 50
	defaultCallStackDepth    = 10
	defaultVariableDepth     = 3
)

// CommandHandler
// 校验命令参数，并按统一的流程启动操作
type CommandHandler struct {
	operationManager  *OperationManager
	breakpointManager *BreakpointManager
	evaluator         *ExpressionEvaluator
	eventHandler      *DebuggerEventHandler
	engine            debugger.ExecutionEngine
	timeout           time.Duration
	// transition 和事件处理器共享，保证操作的开始和结束不会交叉
	transition *sync.Mutex
}

func NewCommandHandler(operationManager *OperationManager, breakpointManager *BreakpointManager,
	evaluator *ExpressionEvaluator, eventHandler *DebuggerEventHandler, engine debugger.ExecutionEngine,
	timeout time.Duration) *CommandHandler {
	return &CommandHandler{
		operationManager:  operationManager,
		breakpointManager: breakpointManager,
		evaluator:         evaluator,
		eventHandler:      eventHandler,
		engine:            engine,
		timeout:           timeout,
		transition:        eventHandler.transition,
	}
}

// ExecuteCommand 执行命令，命令名大小写不敏感
func (c *CommandHandler) ExecuteCommand(ctx context.Context, command string, params Params) *ApiResponse {
	if params == nil {
		params = Params{}
	}
	name := constants.CommandType(strings.ToLower(strings.TrimSpace(command)))
	logrus.Infof("[CommandHandler] ExecuteCommand %s", name)
	switch name {
	case constants.TraceFunctionCalls:
		return c.startTraceFunctionCalls(ctx, params)
	case constants.FindValueChange:
		return c.startFindValueChange(ctx, params)
	case constants.StepUntilCondition:
		return c.startStepUntilCondition(ctx, params)
	case constants.GetOperationStatus:
		return c.getOperationStatus(params)
	case constants.EvaluateExpression:
		return c.evaluateExpression(ctx, params)
	case constants.GetState:
		return c.getState()
	case constants.GetFrame:
		return c.getFrame(ctx, params)
	case constants.GetCallStack:
		return c.getCallStack(ctx, params)
	case constants.GetVariables:
		return c.getVariables(ctx, params)
	case constants.SetBreakpoint:
		return c.setBreakpoint(ctx, params)
	}
	return NewErrorResponse(fmt.Sprintf("%s: %s", e.ErrUnknownCommand.Error(), command))
}

// startNewOperation 启动操作的统一流程
// 1. 检查是否空闲 2. 禁用用户断点 3. 生成id并开始操作 4. 执行启动动作，失败时结束操作并恢复断点
func (c *CommandHandler) startNewOperation(
	ctx context.Context,
	prefix string,
	state constants.DebuggerState,
	create func(ctx context.Context, operationID string) Operation,
	kickoff func(ctx context.Context, operation Operation) error,
	message string,
) *ApiResponse {
	if busy := c.busyResponse(); busy != nil {
		return busy
	}

	// 启动失败时的完成回调要在释放锁之后执行，所以先注册
	var failed *OperationResult
	defer func() {
		c.eventHandler.notifyCompletion(failed)
	}()
	c.transition.Lock()
	defer c.transition.Unlock()

	// 等锁期间可能有其他操作已经开始，不能动它禁用的断点
	if busy := c.busyResponse(); busy != nil {
		return busy
	}

	c.breakpointManager.DisableAllUserBreakpoints(ctx)

	operationID := c.operationManager.GenerateOperationID(prefix)
	operation := create(ctx, operationID)
	if !c.operationManager.StartOperation(operation, state) {
		c.breakpointManager.RestoreUserBreakpoints(ctx)
		return NewErrorResponse(e.ErrControllerNotIdle.Error())
	}
	metrics.RecordOperationStarted(operation.Kind())
	c.eventHandler.startWatchdog(operationID)

	if err := kickoff(ctx, operation); err != nil {
		logrus.Errorf("[CommandHandler] start operation %s fail, err = %v", operationID, err)
		failMessage := fmt.Sprintf("Failed to start operation: %v", err)
		failed = c.eventHandler.completeLocked(ctx, operation, constants.OperationFailed, failMessage,
			NewErrorResultData("start_failed", failMessage, err.Error()))
		return NewErrorResponse(failMessage)
	}
	return NewSuccessResponse(&StartedData{
		OperationID: operationID,
		Status:      "started",
		Message:     message,
	})
}

// busyResponse 不空闲时返回错误响应
func (c *CommandHandler) busyResponse() *ApiResponse {
	if c.operationManager.IsIdle() {
		return nil
	}
	operationID := ""
	if operation := c.operationManager.CurrentOperation(); operation != nil {
		operationID = operation.GetID()
	}
	return NewErrorResponse(fmt.Sprintf("%s: %s", e.ErrControllerBusy.Error(), operationID))
}

func (c *CommandHandler) startTraceFunctionCalls(ctx context.Context, params Params) *ApiResponse {
	functionName, _, err := params.String("function", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	maxCalls, err := params.PositiveInt("max_calls", defaultMaxCalls)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	captureArgs, err := params.Bool("capture_args", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	captureReturn, err := params.Bool("capture_return", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}

	return c.startNewOperation(ctx, constants.TraceOperationPrefix, constants.StateTracingFunction,
		func(ctx context.Context, operationID string) Operation {
			return NewTraceFunctionCalls(operationID, functionName, maxCalls, captureArgs, captureReturn)
		},
		func(ctx context.Context, operation Operation) error {
			breakpoints := c.breakpointManager.SetBreakpointForFunction(ctx, functionName)
			if len(breakpoints) == 0 {
				return fmt.Errorf("%w: %s", e.ErrNoFunctionBreakpoints, functionName)
			}
			return c.eventHandler.continueExecution(ctx)
		},
		fmt.Sprintf("Tracing function '%s' for up to %d calls", functionName, maxCalls))
}

func (c *CommandHandler) startFindValueChange(ctx context.Context, params Params) *ApiResponse {
	variableName, _, err := params.String("variable", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	expected, hasExpected, err := params.String("expected_value", false)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	maxSteps, err := params.PositiveInt("max_steps", defaultFindMaxSteps)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	var expectedValue *string
	if hasExpected {
		expectedValue = &expected
	}

	return c.startNewOperation(ctx, constants.FindChangeOperationPrefix, constants.StateFindingValueChange,
		func(ctx context.Context, operationID string) Operation {
			operation := NewFindValueChange(operationID, variableName, expectedValue, maxSteps)
			// 基线在操作开始前记录，不参与期望值的判断
			if value := c.evaluator.GetCurrentVariableValue(ctx, variableName); value != nil {
				operation.ValueHistory = append(operation.ValueHistory, &ValueSnapshotData{
					StepNumber:   0,
					Location:     c.eventHandler.currentLocation(ctx),
					VariableName: variableName,
					Value:        *value,
					Timestamp:    currentTimeMillis(),
				})
			}
			return operation
		},
		func(ctx context.Context, operation Operation) error {
			return c.eventHandler.stepOver(ctx)
		},
		fmt.Sprintf("Monitoring variable '%s' for changes", variableName))
}

func (c *CommandHandler) startStepUntilCondition(ctx context.Context, params Params) *ApiResponse {
	condition, _, err := params.String("condition", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	maxSteps, err := params.PositiveInt("max_steps", defaultStepUntilMaxSteps)
	if err != nil {
		return NewErrorResponse(err.Error())
	}

	return c.startNewOperation(ctx, constants.StepUntilOperationPrefix, constants.StateSteppingThrough,
		func(ctx context.Context, operationID string) Operation {
			return NewStepUntilCondition(operationID, condition, maxSteps)
		},
		func(ctx context.Context, operation Operation) error {
			return c.eventHandler.stepOver(ctx)
		},
		fmt.Sprintf("Stepping until condition: '%s'", condition))
}

func (c *CommandHandler) getOperationStatus(params Params) *ApiResponse {
	operationID, _, err := params.String("operation_id", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	result, ok := c.operationManager.GetOperationResult(operationID)
	if !ok {
		return NewErrorResponse(fmt.Sprintf("%s: %s", e.ErrOperationNotFound.Error(), operationID))
	}
	return NewSuccessResponse(result)
}

func (c *CommandHandler) evaluateExpression(ctx context.Context, params Params) *ApiResponse {
	expression, _, err := params.String("expression", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	frameIndex, err := params.Int("frame_index", 0)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	value, err := c.evaluator.EvaluateExpression(ctx, expression, frameIndex)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to evaluate expression: %v", err))
	}
	if value == nil {
		return NewErrorResponse(e.ErrEvaluatorNotAvailable.Error())
	}
	return NewSuccessResponse(value)
}

// getState 只返回状态和操作的不可变字段，操作的其他字段由事件协程修改
func (c *CommandHandler) getState() *ApiResponse {
	data := &StateData{State: string(c.operationManager.CurrentState())}
	if operation := c.operationManager.CurrentOperation(); operation != nil {
		data.OperationID = operation.GetID()
		data.OperationKind = operation.Kind()
	}
	return NewSuccessResponse(data)
}

func (c *CommandHandler) getFrame(ctx context.Context, params Params) *ApiResponse {
	depth, err := params.Int("depth", 0)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	frame, err := c.engine.GetFrameAt(ctx, depth)
	if err != nil {
		metrics.RecordEngineError("get_frame")
		return NewErrorResponse(fmt.Sprintf("Failed to get frame: %v", err))
	}
	return NewSuccessResponse(frame)
}

func (c *CommandHandler) getCallStack(ctx context.Context, params Params) *ApiResponse {
	maxDepth, err := params.PositiveInt("max_depth", defaultCallStackDepth)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	frames, err := c.engine.GetCallStack(ctx, maxDepth)
	if err != nil {
		metrics.RecordEngineError("get_call_stack")
		return NewErrorResponse(fmt.Sprintf("Failed to get call stack: %v", err))
	}
	return NewSuccessResponse(frames)
}

func (c *CommandHandler) getVariables(ctx context.Context, params Params) *ApiResponse {
	frameID, ok, err := params.String("frame_id", false)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	if !ok {
		frameID = "0"
	}
	maxDepth, err := params.PositiveInt("max_depth", defaultVariableDepth)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	variables, err := c.engine.GetFrameVariables(ctx, frameID, maxDepth)
	if err != nil {
		metrics.RecordEngineError("get_frame_variables")
		return NewErrorResponse(fmt.Sprintf("Failed to get variables: %v", err))
	}
	list := make([]*debugger.Variable, 0, len(variables))
	for _, variable := range variables {
		list = append(list, variable)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return NewSuccessResponse(dutils.SerializeVariables(list))
}

// setBreakpoint 设置用户断点
func (c *CommandHandler) setBreakpoint(ctx context.Context, params Params) *ApiResponse {
	filePath, _, err := params.String("file_path", true)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	if _, ok := params["line_number"]; !ok {
		return NewErrorResponse(missingParameter("line_number").Error())
	}
	line, err := params.PositiveInt("line_number", 0)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	condition, _, err := params.String("condition", false)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	breakpoint, err := c.breakpointManager.SetUserBreakpoint(ctx, filePath, line, condition)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to set breakpoint: %v", err))
	}
	return NewSuccessResponse(breakpoint)
}
