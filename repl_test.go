package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/fansqz/auto-debugger/controller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		command string
		params  controller.Params
		wantErr bool
	}{
		{name: "no params", line: "get_state", command: "get_state", params: controller.Params{}},
		{
			name:    "key value",
			line:    "find_value_change variable=y max_steps=20",
			command: "find_value_change",
			params:  controller.Params{"variable": "y", "max_steps": "20"},
		},
		{
			name:    "quoted value",
			line:    `step_until_condition condition="i == 5"`,
			command: "step_until_condition",
			params:  controller.Params{"condition": "i == 5"},
		},
		{
			name:    "escaped quote",
			line:    `evaluate_expression expression="name == \"a\""`,
			command: "evaluate_expression",
			params:  controller.Params{"expression": `name == "a"`},
		},
		{
			name:    "extra spaces",
			line:    "  set_breakpoint   file_path=main.go\tline_number=3 ",
			command: "set_breakpoint",
			params:  controller.Params{"file_path": "main.go", "line_number": "3"},
		},
		{name: "missing equals", line: "get_frame depth", wantErr: true},
		{name: "empty key", line: "get_frame =1", wantErr: true},
		{name: "unterminated quote", line: `step_until_condition condition="i == 5`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, params, err := parseCommandLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.command, command)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestREPL_Execute(t *testing.T) {
	app := newReplayApp(t, nil)
	var out bytes.Buffer
	repl := NewREPL(app.controller, &out)
	ctx := context.Background()

	assert.True(t, repl.Execute(ctx, ""))
	assert.Empty(t, out.String())

	assert.True(t, repl.Execute(ctx, "help"))
	assert.Contains(t, out.String(), "trace_function_calls")
	out.Reset()

	assert.True(t, repl.Execute(ctx, "get_state"))
	assert.Contains(t, out.String(), `"state": "IDLE"`)
	out.Reset()

	assert.True(t, repl.Execute(ctx, `evaluate_expression expression="1 + 2"`))
	assert.NotContains(t, out.String(), "error:")
	assert.Contains(t, out.String(), "3")
	out.Reset()

	assert.True(t, repl.Execute(ctx, "no_such_command"))
	assert.Contains(t, out.String(), "error: Unknown command")
	out.Reset()

	assert.True(t, repl.Execute(ctx, "get_frame depth"))
	assert.Contains(t, out.String(), "error: expected key=value")

	assert.False(t, repl.Execute(ctx, "quit"))
}
