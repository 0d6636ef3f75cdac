package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/controller"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// MCPServer 通过mcp stdio暴露编排命令，每个命令一个tool
type MCPServer struct {
	mcpServer  *server.MCPServer
	controller *controller.Controller
}

func NewMCPServer(controller *controller.Controller) *MCPServer {
	s := &MCPServer{
		mcpServer:  server.NewMCPServer("auto-debugger", Version),
		controller: controller,
	}
	for _, tool := range debuggerTools() {
		s.mcpServer.AddTool(tool, s.handleCommand)
	}
	return s
}

// Run 在stdio上提供服务，直到输入结束
func (s *MCPServer) Run() error {
	logrus.Infof("[MCPServer] serving on stdio, version %s", Version)
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// handleCommand tool名即命令名，参数原样交给编排器
func (s *MCPServer) handleCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response := s.controller.ExecuteCommand(ctx, request.Params.Name, request.GetArguments())
	if !response.Success {
		return errorResponse(response.Error), nil
	}
	data, err := json.MarshalIndent(response.Data, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return textResponse(string(data)), nil
}

func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func debuggerTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        string(constants.TraceFunctionCalls),
			Description: "Start tracing calls to a function. Records arguments on entry and the return value on exit. Returns an operation id; poll it with get_operation_status.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"function": map[string]interface{}{
						"type":        "string",
						"description": "Name of the function to trace",
					},
					"max_calls": map[string]interface{}{
						"type":        "integer",
						"description": "Stop after this many calls (default: 10)",
					},
					"capture_args": map[string]interface{}{
						"type":        "boolean",
						"description": "Record argument values on entry (default: true)",
					},
					"capture_return": map[string]interface{}{
						"type":        "boolean",
						"description": "Record the return value on exit (default: true)",
					},
				},
				Required: []string{"function"},
			},
		},
		{
			Name:        string(constants.FindValueChange),
			Description: "Step through the program and record every change of a variable. Stops when the variable equals expected_value or the step budget runs out.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"variable": map[string]interface{}{
						"type":        "string",
						"description": "Variable to watch",
					},
					"expected_value": map[string]interface{}{
						"type":        "string",
						"description": "Stop when the variable's displayed value equals this",
					},
					"max_steps": map[string]interface{}{
						"type":        "integer",
						"description": "Step budget (default: 100)",
					},
				},
				Required: []string{"variable"},
			},
		},
		{
			Name:        string(constants.StepUntilCondition),
			Description: "Step through the program until a boolean expression evaluates to true or the step budget runs out.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"condition": map[string]interface{}{
						"type":        "string",
						"description": "Expression evaluated after each step, e.g. 'i == 5'",
					},
					"max_steps": map[string]interface{}{
						"type":        "integer",
						"description": "Step budget (default: 50)",
					},
				},
				Required: []string{"condition"},
			},
		},
		{
			Name:        string(constants.GetOperationStatus),
			Description: "Get the status and result of an operation by id. Running operations return their partial data.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"operation_id": map[string]interface{}{
						"type":        "string",
						"description": "Id returned when the operation started",
					},
				},
				Required: []string{"operation_id"},
			},
		},
		{
			Name:        string(constants.EvaluateExpression),
			Description: "Evaluate an expression in a stack frame of the paused program.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"expression": map[string]interface{}{
						"type":        "string",
						"description": "Expression to evaluate",
					},
					"frame_index": map[string]interface{}{
						"type":        "integer",
						"description": "Stack frame index, 0 is the innermost frame (default: 0)",
					},
				},
				Required: []string{"expression"},
			},
		},
		{
			Name:        string(constants.GetState),
			Description: "Get the orchestrator state and the running operation, if any.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
			},
		},
		{
			Name:        string(constants.GetFrame),
			Description: "Get a stack frame with its variables.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"depth": map[string]interface{}{
						"type":        "integer",
						"description": "Frame depth, 0 is the innermost frame (default: 0)",
					},
				},
			},
		},
		{
			Name:        string(constants.GetCallStack),
			Description: "Get the call stack of the paused program.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"max_depth": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of frames (default: 10)",
					},
				},
			},
		},
		{
			Name:        string(constants.GetVariables),
			Description: "Get the variables of a stack frame, expanding nested values up to max_depth.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"frame_id": map[string]interface{}{
						"type":        "string",
						"description": "Frame id from get_call_stack (default: innermost frame)",
					},
					"max_depth": map[string]interface{}{
						"type":        "integer",
						"description": "Expansion depth for structured values (default: 3)",
					},
				},
			},
		},
		{
			Name:        string(constants.SetBreakpoint),
			Description: "Set a user breakpoint. User breakpoints are disabled while an operation runs and restored afterwards.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Source file",
					},
					"line_number": map[string]interface{}{
						"type":        "integer",
						"description": "1-based line number",
					},
					"condition": map[string]interface{}{
						"type":        "string",
						"description": "Optional breakpoint condition",
					},
				},
				Required: []string{"file_path", "line_number"},
			},
		},
	}
}
