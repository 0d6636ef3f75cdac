package controller

import (
	"context"
	"strings"
	"time"

	"github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	"github.com/fansqz/auto-debugger/metrics"
	"github.com/sirupsen/logrus"
)

// currentVariableDepth 读取当前变量时的加载深度
const currentVariableDepth = 3

// ExpressionEvaluator 在被调试程序暂停时计算表达式
type ExpressionEvaluator struct {
	engine  debugger.ExecutionEngine
	timeout time.Duration
}

func NewExpressionEvaluator(engine debugger.ExecutionEngine, timeout time.Duration) *ExpressionEvaluator {
	return &ExpressionEvaluator{
		engine:  engine,
		timeout: timeout,
	}
}

// Available 调试会话存活并且程序处于暂停状态
func (v *ExpressionEvaluator) Available() bool {
	return v.engine.IsSessionActive() && v.engine.IsPaused()
}

// EvaluateExpression 在某个栈帧中计算表达式
// 计算器不可用时返回nil, nil
func (v *ExpressionEvaluator) EvaluateExpression(ctx context.Context, expression string, frameIndex int) (debugger.StructuredValue, error) {
	logrus.Infof("[ExpressionEvaluator] EvaluateExpression %s at frame %d", expression, frameIndex)
	if !v.Available() {
		logrus.Warnf("[ExpressionEvaluator] evaluator not available for frame index: %d", frameIndex)
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	variable, err := v.engine.Evaluate(ctx, expression, frameIndex)
	if err != nil {
		metrics.RecordEngineError("evaluate")
		return nil, err
	}
	return dutils.SerializeVariable(variable), nil
}

// EvaluateCondition 判断条件是否成立
func (v *ExpressionEvaluator) EvaluateCondition(ctx context.Context, condition string) bool {
	if !v.Available() {
		logrus.Debugf("[ExpressionEvaluator] evaluator not available, falling back to basic evaluation")
		return evaluateConditionBasic(condition)
	}
	value, err := v.EvaluateExpression(ctx, condition, 0)
	if err != nil {
		logrus.Warnf("[ExpressionEvaluator] evaluate condition %s fail, err = %v", condition, err)
		return evaluateConditionBasic(condition)
	}
	if value == nil {
		return evaluateConditionBasic(condition)
	}
	result := dutils.FlattenValue(value)
	if result == nil {
		return false
	}
	switch strings.ToLower(*result) {
	case "true":
		return true
	case "false":
		return false
	case "", "null", "nil", "undefined":
		return false
	}
	return true
}

// evaluateConditionBasic 只识别字面量true
func evaluateConditionBasic(condition string) bool {
	return condition == "true"
}

// GetCurrentVariableValue 读取栈顶中某个变量的值，读取失败时返回nil
func (v *ExpressionEvaluator) GetCurrentVariableValue(ctx context.Context, variableName string) *string {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	variables, err := v.engine.GetFrameVariables(ctx, "0", currentVariableDepth)
	if err != nil {
		logrus.Warnf("[ExpressionEvaluator] get variable value for %s fail, err = %v", variableName, err)
		metrics.RecordEngineError("get_frame_variables")
		return nil
	}
	variable, ok := variables[variableName]
	if !ok || variable == nil {
		return nil
	}
	return dutils.FlattenValue(dutils.SerializeVariable(variable))
}
