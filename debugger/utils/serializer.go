package utils

import (
	"fmt"
	"strings"

	"github.com/fansqz/auto-debugger/debugger"
	"github.com/sirupsen/logrus"
)

const (
	// MaxSerializeDepth 对象展开的最大深度
	MaxSerializeDepth = 3
	// MaxSerializeFields 对象最多展示的字段数量
	MaxSerializeFields = 5
	// MaxArrayElements 数组最多展示的元素数量
	MaxArrayElements = 5

	CircularReferenceSummary = "[Circular Reference]"
	MaxDepthSummary          = "[Max Depth Reached]"
)

// SerializeVariable 将引擎返回的变量转换为结构化的值
// 序列化过程中的异常会被转换为 ObjectSummary{"Error", "Failed to serialize: ..."}
func SerializeVariable(variable *debugger.Variable) (answer debugger.StructuredValue) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[Serializer] SerializeVariable fail, err = %v", r)
			answer = debugger.NewObjectSummary("Error", fmt.Sprintf("Failed to serialize: %v", r))
		}
	}()
	visited := make(map[string]bool)
	return serializeValue(variable, visited, 0)
}

// SerializeVariables 序列化一组变量，同一组变量共享循环检测
func SerializeVariables(variables []*debugger.Variable) []*debugger.SerializedVariable {
	visited := make(map[string]bool)
	answer := make([]*debugger.SerializedVariable, 0, len(variables))
	for _, variable := range variables {
		if variable == nil {
			continue
		}
		answer = append(answer, &debugger.SerializedVariable{
			Name:  variable.Name,
			Value: serializeSafely(variable, visited),
		})
	}
	return answer
}

func serializeSafely(variable *debugger.Variable, visited map[string]bool) (answer debugger.StructuredValue) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[Serializer] serialize variable %s fail, err = %v", variable.Name, r)
			answer = debugger.NewObjectSummary("Error", fmt.Sprintf("Failed to serialize: %v", r))
		}
	}()
	return serializeValue(variable, visited, 0)
}

func serializeValue(variable *debugger.Variable, visited map[string]bool, depth int) debugger.StructuredValue {
	if variable == nil {
		return debugger.NewBasicValue("null", nil)
	}
	if variable.IsArray {
		elements := make([]string, 0, MaxArrayElements)
		for i, child := range variable.Children {
			if i >= MaxArrayElements {
				break
			}
			elements = append(elements, elementString(child))
		}
		size := variable.ChildrenNumber
		if size < len(variable.Children) {
			size = len(variable.Children)
		}
		return debugger.NewArraySummary(variable.Type, size, elements)
	}
	if len(variable.Children) == 0 && variable.ChildrenNumber == 0 {
		return debugger.NewBasicValue(variable.Type, variable.Value)
	}

	// 对象
	if variable.Reference != "" && visited[variable.Reference] {
		return debugger.NewObjectSummary(variable.Type, CircularReferenceSummary)
	}
	if depth >= MaxSerializeDepth {
		return debugger.NewObjectSummary(variable.Type, MaxDepthSummary)
	}
	if variable.Reference != "" {
		visited[variable.Reference] = true
	}
	fields := make(map[string]debugger.StructuredValue, MaxSerializeFields)
	for i, child := range variable.Children {
		if i >= MaxSerializeFields {
			break
		}
		fields[child.Name] = serializeValue(child, visited, depth+1)
	}
	return debugger.NewObjectFields(variable.Type, fields)
}

func elementString(variable *debugger.Variable) string {
	if variable == nil || variable.Value == nil {
		return "null"
	}
	return *variable.Value
}

// FlattenValue 将结构化的值展开为单个字符串
// 基础类型返回字面量，对象返回摘要，数组返回 Array[n]: a, b
func FlattenValue(value debugger.StructuredValue) *string {
	var answer string
	switch v := value.(type) {
	case *debugger.BasicValue:
		return v.Value
	case *debugger.ObjectSummary:
		answer = v.Summary
	case *debugger.ArraySummary:
		answer = fmt.Sprintf("Array[%d]: %s", v.Size, strings.Join(v.FirstElements, ", "))
	case *debugger.ObjectFields:
		answer = v.ObjectType
	default:
		return nil
	}
	return &answer
}
