package controller

import (
	"time"

	"github.com/fansqz/auto-debugger/constants"
)

// Operation 一个长时间运行的调试操作，只有以下三种实现
type Operation interface {
	GetID() string
	// Kind 操作类型，同时也是操作id的前缀
	Kind() string
	GetRequestedAt() int64
	isOperation()
}

// TraceFunctionCalls 跟踪某个函数的N次调用
type TraceFunctionCalls struct {
	ID               string               `json:"id"`
	RequestedAt      int64                `json:"requestedAt"`
	FunctionName     string               `json:"functionName"`
	MaxCalls         int                  `json:"maxCalls"`
	CaptureArgs      bool                 `json:"captureArgs"`
	CaptureReturn    bool                 `json:"captureReturn"`
	CurrentCallCount int                  `json:"currentCallCount"`
	CollectedTraces  []*FunctionTraceData `json:"collectedTraces"`

	// exitBreakpointsSet 出口断点每个操作只设置一次
	exitBreakpointsSet bool
	// untracedCalls 达到上限后仍未返回的调用数，它们的出口事件不属于任何记录
	untracedCalls int
}

// FindValueChange 单步执行并记录变量的变化
type FindValueChange struct {
	ID            string               `json:"id"`
	RequestedAt   int64                `json:"requestedAt"`
	VariableName  string               `json:"variableName"`
	ExpectedValue *string              `json:"expectedValue,omitempty"`
	MaxSteps      int                  `json:"maxSteps"`
	CurrentSteps  int                  `json:"currentSteps"`
	ValueHistory  []*ValueSnapshotData `json:"valueHistory"`
}

// StepUntilCondition 单步执行直到条件成立
type StepUntilCondition struct {
	ID           string `json:"id"`
	RequestedAt  int64  `json:"requestedAt"`
	Condition    string `json:"condition"`
	MaxSteps     int    `json:"maxSteps"`
	CurrentSteps int    `json:"currentSteps"`
}

func NewTraceFunctionCalls(id string, functionName string, maxCalls int, captureArgs bool, captureReturn bool) *TraceFunctionCalls {
	return &TraceFunctionCalls{
		ID:              id,
		RequestedAt:     currentTimeMillis(),
		FunctionName:    functionName,
		MaxCalls:        maxCalls,
		CaptureArgs:     captureArgs,
		CaptureReturn:   captureReturn,
		CollectedTraces: make([]*FunctionTraceData, 0),
	}
}

func NewFindValueChange(id string, variableName string, expectedValue *string, maxSteps int) *FindValueChange {
	return &FindValueChange{
		ID:            id,
		RequestedAt:   currentTimeMillis(),
		VariableName:  variableName,
		ExpectedValue: expectedValue,
		MaxSteps:      maxSteps,
		ValueHistory:  make([]*ValueSnapshotData, 0),
	}
}

func NewStepUntilCondition(id string, condition string, maxSteps int) *StepUntilCondition {
	return &StepUntilCondition{
		ID:          id,
		RequestedAt: currentTimeMillis(),
		Condition:   condition,
		MaxSteps:    maxSteps,
	}
}

func (o *TraceFunctionCalls) GetID() string         { return o.ID }
func (o *TraceFunctionCalls) Kind() string          { return constants.TraceOperationPrefix }
func (o *TraceFunctionCalls) GetRequestedAt() int64 { return o.RequestedAt }
func (o *TraceFunctionCalls) isOperation()          {}

func (o *FindValueChange) GetID() string         { return o.ID }
func (o *FindValueChange) Kind() string          { return constants.FindChangeOperationPrefix }
func (o *FindValueChange) GetRequestedAt() int64 { return o.RequestedAt }
func (o *FindValueChange) isOperation()          {}

func (o *StepUntilCondition) GetID() string         { return o.ID }
func (o *StepUntilCondition) Kind() string          { return constants.StepUntilOperationPrefix }
func (o *StepUntilCondition) GetRequestedAt() int64 { return o.RequestedAt }
func (o *StepUntilCondition) isOperation()          {}

// lastOpenTrace 最近一次还没有出口信息的调用，递归调用时按栈的顺序匹配
func (o *TraceFunctionCalls) lastOpenTrace() *FunctionTraceData {
	for i := len(o.CollectedTraces) - 1; i >= 0; i-- {
		if o.CollectedTraces[i].ExitLocation == nil {
			return o.CollectedTraces[i]
		}
	}
	return nil
}

// matches 事件中的函数名是否是正在跟踪的函数
func (o *TraceFunctionCalls) matches(functionName string) bool {
	return functionName == o.FunctionName
}

// lastValue 最近一次记录的变量值
func (o *FindValueChange) lastValue() *string {
	if len(o.ValueHistory) == 0 {
		return nil
	}
	return &o.ValueHistory[len(o.ValueHistory)-1].Value
}

// stateOf 操作运行时对应的状态
func stateOf(operation Operation) constants.DebuggerState {
	switch operation.(type) {
	case *TraceFunctionCalls:
		return constants.StateTracingFunction
	case *FindValueChange:
		return constants.StateFindingValueChange
	case *StepUntilCondition:
		return constants.StateSteppingThrough
	}
	return constants.StateIdle
}

// OperationResult 操作结果，开始时写入in_progress，结束时被覆盖一次
type OperationResult struct {
	OperationID string                    `json:"operation_id"`
	Status      constants.OperationStatus `json:"status"`
	Data        OperationResultData       `json:"data,omitempty"`
	Message     string                    `json:"message,omitempty"`
	CompletedAt *int64                    `json:"completed_at,omitempty"`
}

func (r *OperationResult) IsTerminal() bool {
	return r.Status == constants.OperationCompleted || r.Status == constants.OperationFailed
}

// OperationResultData 操作结果数据，只有以下四种实现
type OperationResultData interface {
	isOperationResultData()
}

const (
	TracingResultKind     = "tracing"
	ValueChangeResultKind = "value_change"
	SteppingResultKind    = "stepping"
	ErrorResultKind       = "error"
)

type TracingResultData struct {
	Kind         string               `json:"kind"`
	FunctionName string               `json:"function_name"`
	TotalCalls   int                  `json:"total_calls"`
	Traces       []*FunctionTraceData `json:"traces"`
}

type ValueChangeResultData struct {
	Kind          string               `json:"kind"`
	VariableName  string               `json:"variable_name"`
	TotalSteps    int                  `json:"total_steps"`
	ChangeHistory []*ValueSnapshotData `json:"change_history"`
}

type SteppingResultData struct {
	Kind          string `json:"kind"`
	Condition     string `json:"condition"`
	TotalSteps    int    `json:"total_steps"`
	ConditionMet  bool   `json:"condition_met"`
	FinalLocation string `json:"final_location"`
}

type ErrorResultData struct {
	Kind      string  `json:"kind"`
	ErrorType string  `json:"error_type"`
	Message   string  `json:"message"`
	Details   *string `json:"details,omitempty"`
}

func (*TracingResultData) isOperationResultData()     {}
func (*ValueChangeResultData) isOperationResultData() {}
func (*SteppingResultData) isOperationResultData()    {}
func (*ErrorResultData) isOperationResultData()       {}

// FunctionTraceData 一次函数调用的记录
type FunctionTraceData struct {
	CallNumber    int               `json:"call_number"`
	FunctionName  string            `json:"function_name"`
	EntryLocation string            `json:"entry_location"`
	Arguments     map[string]string `json:"arguments"`
	ReturnValue   *string           `json:"return_value,omitempty"`
	ExitLocation  *string           `json:"exit_location,omitempty"`
	Timestamp     int64             `json:"timestamp"`
}

// ValueSnapshotData 变量在某一步的取值
type ValueSnapshotData struct {
	StepNumber   int    `json:"step_number"`
	Location     string `json:"location"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
	Timestamp    int64  `json:"timestamp"`
}

// newResultData 根据操作当前收集到的数据生成结果，失败的操作也保留已经收集的数据
func newResultData(operation Operation, conditionMet bool, location string) OperationResultData {
	switch op := operation.(type) {
	case *TraceFunctionCalls:
		traces := make([]*FunctionTraceData, len(op.CollectedTraces))
		copy(traces, op.CollectedTraces)
		return &TracingResultData{
			Kind:         TracingResultKind,
			FunctionName: op.FunctionName,
			TotalCalls:   len(traces),
			Traces:       traces,
		}
	case *FindValueChange:
		history := make([]*ValueSnapshotData, len(op.ValueHistory))
		copy(history, op.ValueHistory)
		return &ValueChangeResultData{
			Kind:          ValueChangeResultKind,
			VariableName:  op.VariableName,
			TotalSteps:    op.CurrentSteps,
			ChangeHistory: history,
		}
	case *StepUntilCondition:
		return &SteppingResultData{
			Kind:          SteppingResultKind,
			Condition:     op.Condition,
			TotalSteps:    op.CurrentSteps,
			ConditionMet:  conditionMet,
			FinalLocation: location,
		}
	}
	return nil
}

func NewErrorResultData(errorType string, message string, details string) *ErrorResultData {
	answer := &ErrorResultData{
		Kind:      ErrorResultKind,
		ErrorType: errorType,
		Message:   message,
	}
	if details != "" {
		answer.Details = &details
	}
	return answer
}

func currentTimeMillis() int64 {
	return time.Now().UnixMilli()
}
