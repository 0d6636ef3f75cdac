package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, s *MCPServer, name string, arguments map[string]interface{}) *mcp.CallToolResult {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = arguments
	result, err := s.handleCommand(context.Background(), request)
	require.NoError(t, err)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	require.Len(t, result.Content, 1)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestDebuggerTools_CoverAllCommands(t *testing.T) {
	tools := debuggerTools()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
		for _, required := range tool.InputSchema.Required {
			assert.Contains(t, tool.InputSchema.Properties, required, tool.Name)
		}
	}
	for _, command := range replCommands {
		assert.Contains(t, names, string(command))
	}
}

func TestMCPServer_GetState(t *testing.T) {
	app := newReplayApp(t, nil)
	s := NewMCPServer(app.controller)

	result := callTool(t, s, string(constants.GetState), nil)
	assert.False(t, result.IsError)
	state := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &state))
	assert.Equal(t, "IDLE", state["state"])
}

func TestMCPServer_ErrorResult(t *testing.T) {
	app := newReplayApp(t, nil)
	s := NewMCPServer(app.controller)

	result := callTool(t, s, string(constants.TraceFunctionCalls), map[string]interface{}{})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "function")

	result = callTool(t, s, string(constants.GetOperationStatus), map[string]interface{}{"operation_id": "trace_9"})
	assert.True(t, result.IsError)
}

func TestMCPServer_StepUntilCondition(t *testing.T) {
	app := newReplayApp(t, nil)
	s := NewMCPServer(app.controller)

	result := callTool(t, s, string(constants.StepUntilCondition), map[string]interface{}{
		"condition": "y == 6",
		"max_steps": float64(10),
	})
	require.False(t, result.IsError, resultText(t, result))
	started := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &started))
	operationID := started["operation_id"].(string)

	status := map[string]interface{}{}
	require.Eventually(t, func() bool {
		result := callTool(t, s, string(constants.GetOperationStatus), map[string]interface{}{"operation_id": operationID})
		if result.IsError {
			return false
		}
		status = map[string]interface{}{}
		_ = json.Unmarshal([]byte(resultText(t, result)), &status)
		return status["status"] != "in_progress"
	}, waitTimeout, waitTick)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, "Condition met", status["message"])
}
