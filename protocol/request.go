package protocol

import "github.com/fansqz/auto-debugger/constants"

// Request tcp连接上的一行请求
type Request struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号，响应中原样返回
	Sequence uint `json:"sequence"`
	// Command 命令名称，Type为command时有效
	Command string `json:"command,omitempty"`
	// Parameters 命令参数
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}
