package protocol

import (
	"encoding/json"
	"testing"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name         string
		notification interface{}
		want         string
	}{
		{
			name:         "stopped",
			notification: debugger.NewStoppedEvent(constants.BreakpointStopped, "main.go", 4, "bp_1"),
			want:         `{"type":"event","event":"stopped","reason":"breakpoint","file":"main.go","line":4,"breakpointIds":["bp_1"]}`,
		},
		{
			name:         "output",
			notification: debugger.NewOutputEvent("hello\n"),
			want:         `{"type":"event","event":"output","output":"hello\n"}`,
		},
		{
			name:         "exited",
			notification: debugger.NewExitedEvent(1, "exit status 1"),
			want:         `{"type":"event","event":"exited","exitCode":1,"message":"exit status 1"}`,
		},
		{
			name:         "continued",
			notification: debugger.NewContinuedEvent(),
			want:         `{"type":"event","event":"continued"}`,
		},
		{
			name:         "terminated",
			notification: debugger.NewTerminatedEvent(),
			want:         `{"type":"event","event":"terminated"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := NewEvent(tt.notification)
			require.True(t, ok)
			data, err := json.Marshal(event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestNewEvent_Unknown(t *testing.T) {
	_, ok := NewEvent("not an event")
	assert.False(t, ok)
}

func TestNewResponse(t *testing.T) {
	data, err := json.Marshal(NewResponse(3, false, "Unknown command: foo", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","sequence":3,"success":false,"message":"Unknown command: foo","data":null}`, string(data))
}
