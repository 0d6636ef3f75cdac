package replay_debugger

import (
	"fmt"
	"sort"

	. "github.com/fansqz/auto-debugger/debugger"
)

// 脚本中的对象可以通过该字段声明类型和引用
const (
	typeKey      = "$type"
	referenceKey = "$ref"
)

// toVariable 将yaml解析出来的值转换为变量，超过maxDepth的子元素不会加载
func toVariable(name string, value interface{}, depth int, maxDepth int) *Variable {
	switch v := value.(type) {
	case nil:
		return &Variable{Name: name, Type: "nil"}
	case map[string]interface{}:
		variable := &Variable{Name: name, Type: "object"}
		keys := make([]string, 0, len(v))
		for key := range v {
			switch key {
			case typeKey:
				variable.Type = fmt.Sprint(v[key])
			case referenceKey:
				variable.Reference = fmt.Sprint(v[key])
			default:
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		variable.ChildrenNumber = len(keys)
		if depth < maxDepth {
			for _, key := range keys {
				variable.Children = append(variable.Children, toVariable(key, v[key], depth+1, maxDepth))
			}
		}
		return variable
	case []interface{}:
		variable := &Variable{Name: name, Type: "array", IsArray: true, ChildrenNumber: len(v)}
		if depth < maxDepth {
			for i, item := range v {
				variable.Children = append(variable.Children, toVariable(fmt.Sprintf("[%d]", i), item, depth+1, maxDepth))
			}
		}
		return variable
	default:
		return NewVariable(name, fmt.Sprintf("%T", v), fmt.Sprint(v))
	}
}

func toVariables(values map[string]interface{}, maxDepth int) map[string]*Variable {
	answer := make(map[string]*Variable, len(values))
	for name, value := range values {
		answer[name] = toVariable(name, value, 0, maxDepth)
	}
	return answer
}
