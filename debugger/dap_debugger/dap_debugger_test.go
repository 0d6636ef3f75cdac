package dap_debugger

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/debugger"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter 通过net.Pipe模拟一个调试适配器
type fakeAdapter struct {
	conn   net.Conn
	reader *bufio.Reader

	lock sync.Mutex
	// line 当前停止的行
	line int
	// lines 每个文件最后一次setBreakpoints的行
	lines         map[string][]int
	breakpointIDs map[int]int
	launchSeq     int
}

func newFakeAdapter(conn net.Conn) *fakeAdapter {
	return &fakeAdapter{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		line:          4,
		lines:         make(map[string][]int),
		breakpointIDs: make(map[int]int),
	}
}

func newResponse(request *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         request.Command,
		RequestSeq:      request.Seq,
		Success:         true,
	}
}

func newEvent(event string) dap.Event {
	return dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: event}
}

func (f *fakeAdapter) send(message dap.Message) {
	_ = dap.WriteProtocolMessage(f.conn, message)
}

func (f *fakeAdapter) setBreakpointLines(path string) []int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.lines[path]
}

func (f *fakeAdapter) serve() {
	for {
		message, err := dap.ReadProtocolMessage(f.reader)
		if err != nil {
			return
		}
		switch request := message.(type) {
		case *dap.InitializeRequest:
			f.send(&dap.InitializeResponse{
				Response: newResponse(&request.Request),
				Body:     dap.Capabilities{SupportsConfigurationDoneRequest: true},
			})
			f.send(&dap.InitializedEvent{Event: newEvent("initialized")})
		case *dap.LaunchRequest:
			f.launchSeq = request.Seq
		case *dap.SetBreakpointsRequest:
			response := &dap.SetBreakpointsResponse{Response: newResponse(&request.Request)}
			var lines []int
			for _, bp := range request.Arguments.Breakpoints {
				lines = append(lines, bp.Line)
				response.Body.Breakpoints = append(response.Body.Breakpoints, dap.Breakpoint{
					Id: bp.Line * 10, Verified: true, Line: bp.Line,
				})
			}
			f.lock.Lock()
			f.lines[request.Arguments.Source.Path] = lines
			f.lock.Unlock()
			f.send(response)
		case *dap.ConfigurationDoneRequest:
			f.send(&dap.ConfigurationDoneResponse{Response: newResponse(&request.Request)})
			launch := dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Type: "response"},
				Command:         "launch",
				RequestSeq:      f.launchSeq,
				Success:         true,
			}
			f.send(&dap.LaunchResponse{Response: launch})
			f.send(&dap.StoppedEvent{
				Event: newEvent("stopped"),
				Body:  dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1, HitBreakpointIds: []int{40}},
			})
		case *dap.StackTraceRequest:
			f.lock.Lock()
			line := f.line
			f.lock.Unlock()
			response := &dap.StackTraceResponse{Response: newResponse(&request.Request)}
			response.Body.StackFrames = []dap.StackFrame{
				{Id: 1000, Name: "main.add", Source: &dap.Source{Path: "/src/main.go"}, Line: line},
				{Id: 1001, Name: "main.main", Source: &dap.Source{Path: "/src/main.go"}, Line: 10},
			}
			if request.Arguments.Levels > 0 && request.Arguments.Levels < len(response.Body.StackFrames) {
				response.Body.StackFrames = response.Body.StackFrames[:request.Arguments.Levels]
			}
			f.send(response)
		case *dap.ScopesRequest:
			response := &dap.ScopesResponse{Response: newResponse(&request.Request)}
			response.Body.Scopes = []dap.Scope{
				{Name: "Locals", VariablesReference: 1},
				{Name: "Globals", VariablesReference: 99, Expensive: true},
			}
			f.send(response)
		case *dap.VariablesRequest:
			response := &dap.VariablesResponse{Response: newResponse(&request.Request)}
			switch request.Arguments.VariablesReference {
			case 1:
				response.Body.Variables = []dap.Variable{
					{Name: "a", Value: "1", Type: "int"},
					{Name: "p", Value: "main.Point {x: 1, y: 2}", Type: "main.Point", VariablesReference: 2, NamedVariables: 2},
				}
			case 2:
				response.Body.Variables = []dap.Variable{
					{Name: "x", Value: "1", Type: "int"},
					{Name: "y", Value: "2", Type: "int"},
				}
			}
			f.send(response)
		case *dap.EvaluateRequest:
			if request.Arguments.Expression != "a + b" {
				response := &dap.ErrorResponse{Response: newResponse(&request.Request)}
				response.Success = false
				response.Message = "could not find symbol"
				f.send(response)
				continue
			}
			response := &dap.EvaluateResponse{Response: newResponse(&request.Request)}
			response.Body.Result = "3"
			response.Body.Type = "int"
			f.send(response)
		case *dap.NextRequest:
			f.send(&dap.NextResponse{Response: newResponse(&request.Request)})
			f.lock.Lock()
			f.line++
			f.lock.Unlock()
			f.send(&dap.StoppedEvent{
				Event: newEvent("stopped"),
				Body:  dap.StoppedEventBody{Reason: "step", ThreadId: 1},
			})
		case *dap.ContinueRequest:
			f.send(&dap.ContinueResponse{Response: newResponse(&request.Request)})
			f.send(&dap.ExitedEvent{Event: newEvent("exited"), Body: dap.ExitedEventBody{ExitCode: 0}})
			f.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
		case *dap.DisconnectRequest:
			f.send(&dap.DisconnectResponse{Response: newResponse(&request.Request)})
			_ = f.conn.Close()
			return
		}
	}
}

func waitForEvent(t *testing.T, cha chan interface{}) interface{} {
	select {
	case event := <-cha:
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("wait for event timeout")
	}
	return nil
}

func TestDapDebugger(t *testing.T) {
	client, server := net.Pipe()
	adapter := newFakeAdapter(server)
	go adapter.serve()

	ctx := context.Background()
	cha := make(chan interface{}, 10)
	d := NewDapDebugger(&Options{SourceRoot: "/src", Timeout: 2 * time.Second})
	defer d.Terminate(ctx)
	err := d.StartWithConn(ctx, client, &debugger.StartOption{
		Breakpoints: []*debugger.Breakpoint{debugger.NewBreakpoint("main.go", 4)},
		Callback:    func(data interface{}) { cha <- data },
	})
	require.NoError(t, err)

	breakpoints, err := d.GetAllBreakpoints(ctx)
	require.NoError(t, err)
	require.Len(t, breakpoints, 1)
	bpID := breakpoints[0].ID
	assert.True(t, breakpoints[0].Verified)
	assert.Equal(t, []int{4}, adapter.setBreakpointLines("/src/main.go"))

	// 命中断点
	assert.Equal(t, debugger.NewStoppedEvent(constants.BreakpointStopped, "main.go", 4, bpID), waitForEvent(t, cha))
	assert.True(t, d.IsPaused())
	assert.True(t, d.IsSessionActive())

	frame, err := d.GetFrameAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &debugger.StackFrame{ID: "0", Name: "main.add", Path: "main.go", Line: 4}, frame)
	stack, err := d.GetCallStack(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stack, 2)
	assert.Equal(t, "main.main", stack[1].Name)
	_, err = d.GetFrameAt(ctx, 5)
	assert.ErrorIs(t, err, e.ErrFrameNotFound)

	variables, err := d.GetFrameVariables(ctx, "0", 3)
	require.NoError(t, err)
	require.Contains(t, variables, "a")
	assert.Equal(t, "1", variables["a"].StringValue())
	require.Len(t, variables["p"].Children, 2)
	assert.Equal(t, "y", variables["p"].Children[1].Name)
	assert.NotContains(t, variables, "Globals")

	value, err := d.Evaluate(ctx, "a + b", 0)
	require.NoError(t, err)
	assert.Equal(t, "3", value.StringValue())
	_, err = d.Evaluate(ctx, "missing", 0)
	assert.ErrorIs(t, err, e.ErrRequestFailed)

	// 单步
	require.NoError(t, d.StepOver(ctx))
	assert.Equal(t, debugger.NewStoppedEvent(constants.StepStopped, "main.go", 5), waitForEvent(t, cha))

	// 禁用断点时不会发送给适配器，但本地依然保留
	require.NoError(t, d.SetBreakpointEnabled(ctx, bpID, false))
	assert.Empty(t, adapter.setBreakpointLines("/src/main.go"))
	breakpoints, err = d.GetAllBreakpoints(ctx)
	require.NoError(t, err)
	require.Len(t, breakpoints, 1)
	assert.False(t, breakpoints[0].Enabled)

	types, err := d.GetBreakpointTypes(ctx, "main.go", 5)
	require.NoError(t, err)
	assert.Equal(t, []constants.BreakpointType{constants.LineBreakpoint}, types)

	// 继续直到程序结束
	require.NoError(t, d.Continue(ctx))
	assert.Equal(t, debugger.NewExitedEvent(0, "Process exited with code 0"), waitForEvent(t, cha))
	assert.Equal(t, &debugger.TerminatedEvent{}, waitForEvent(t, cha))
	assert.False(t, d.IsSessionActive())
	assert.ErrorIs(t, d.StepOver(ctx), e.ErrSessionNotActive)
}

func TestDapDebugger_RequestTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	// 只读不写的适配器
	go func() {
		reader := bufio.NewReader(server)
		for {
			if _, err := dap.ReadProtocolMessage(reader); err != nil {
				return
			}
		}
	}()
	d := NewDapDebugger(&Options{Timeout: 50 * time.Millisecond})
	err := d.StartWithConn(context.Background(), client, &debugger.StartOption{})
	assert.ErrorIs(t, err, e.ErrEngineTimeout)
}

func TestParseListeningAddress(t *testing.T) {
	address, ok := ParseListeningAddress("DAP server listening at: 127.0.0.1:38697")
	assert.True(t, ok)
	assert.Equal(t, "127.0.0.1:38697", address)
	address, ok = ParseListeningAddress("Listening at localhost:5678.")
	assert.True(t, ok)
	assert.Equal(t, "localhost:5678", address)
	_, ok = ParseListeningAddress("Type 'help' for list of commands.")
	assert.False(t, ok)
}
