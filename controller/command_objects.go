package controller

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	e "github.com/fansqz/auto-debugger/error"
)

// ApiResponse 命令的返回结果
type ApiResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func NewSuccessResponse(data interface{}) *ApiResponse {
	return &ApiResponse{
		Success:   true,
		Data:      data,
		Timestamp: currentTimeMillis(),
	}
}

func NewErrorResponse(message string) *ApiResponse {
	return &ApiResponse{
		Success:   false,
		Error:     message,
		Timestamp: currentTimeMillis(),
	}
}

// StartedData 操作启动成功的返回数据
type StartedData struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// StateData get_state的返回数据
type StateData struct {
	State         string `json:"state"`
	OperationID   string `json:"operation_id,omitempty"`
	OperationKind string `json:"operation_kind,omitempty"`
}

// Params 命令参数，通常来自json解码
type Params map[string]interface{}

func missingParameter(name string) error {
	return fmt.Errorf("%w: %s", e.ErrMissingParameter, name)
}

func invalidParameter(name string) error {
	return fmt.Errorf("%w: %s", e.ErrInvalidParameter, name)
}

// String 读取字符串参数，数字和布尔值会被转换为字符串
func (p Params) String(name string, required bool) (string, bool, error) {
	value, ok := p[name]
	if !ok || value == nil {
		if required {
			return "", false, missingParameter(name)
		}
		return "", false, nil
	}
	switch v := value.(type) {
	case string:
		// 必填参数只有空白时视为缺失
		if required && strings.TrimSpace(v) == "" {
			return "", false, missingParameter(name)
		}
		return v, true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case int:
		return strconv.Itoa(v), true, nil
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	case json.Number:
		return v.String(), true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	}
	return "", false, invalidParameter(name)
}

// Int 读取整数参数，参数不存在时返回默认值
func (p Params) Int(name string, defaultValue int) (int, error) {
	value, ok := p[name]
	if !ok || value == nil {
		return defaultValue, nil
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, invalidParameter(name)
		}
		return int(v), nil
	case json.Number:
		answer, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, invalidParameter(name)
		}
		return answer, nil
	case string:
		answer, err := strconv.Atoi(v)
		if err != nil {
			return 0, invalidParameter(name)
		}
		return answer, nil
	}
	return 0, invalidParameter(name)
}

// PositiveInt 读取大于0的整数参数
func (p Params) PositiveInt(name string, defaultValue int) (int, error) {
	answer, err := p.Int(name, defaultValue)
	if err != nil {
		return 0, err
	}
	if answer <= 0 {
		return 0, invalidParameter(name)
	}
	return answer, nil
}

// Bool 读取布尔参数，参数不存在时返回默认值
func (p Params) Bool(name string, defaultValue bool) (bool, error) {
	value, ok := p[name]
	if !ok || value == nil {
		return defaultValue, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		answer, err := strconv.ParseBool(v)
		if err != nil {
			return false, invalidParameter(name)
		}
		return answer, nil
	}
	return false, invalidParameter(name)
}
