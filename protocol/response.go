package protocol

import "github.com/fansqz/auto-debugger/constants"

// Response 请求的响应，失败时Message为错误信息
type Response struct {
	Type     string      `json:"type"`
	Sequence uint        `json:"sequence"`
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
}

func NewResponse(sequence uint, success bool, message string, data interface{}) *Response {
	return &Response{
		Type:     string(constants.ResponseMessage),
		Sequence: sequence,
		Success:  success,
		Message:  message,
		Data:     data,
	}
}
