package dap_debugger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	. "github.com/fansqz/auto-debugger/debugger"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/fansqz/auto-debugger/utils"
	"github.com/fansqz/auto-debugger/utils/gosync"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

const (
	// OptionTimeout 请求的默认超时时间
	OptionTimeout = 5 * time.Second
	// defaultVariableDepth 变量默认加载深度
	defaultVariableDepth = 3
)

// Options DAP执行引擎的配置
type Options struct {
	// Address 适配器的监听地址，配置了AdapterCommand时由适配器输出决定
	Address        string
	AdapterCommand string
	AdapterArgs    []string
	// Mode launch或者attach
	Mode string
	// Arguments launch/attach请求的参数，由具体的适配器决定
	Arguments map[string]interface{}
	// SourceRoot 相对路径的源文件基于该目录
	SourceRoot string
	Timeout    time.Duration
}

// DapDebugger
// 通过Debug Adapter Protocol连接任意调试适配器（dlv dap、debugpy等）的执行引擎
// 写请求由writeLock串行化，唯一的接收协程把响应分发给等待中的请求
type DapDebugger struct {
	options *Options

	// 事件产生时，触发该回调
	callback NotificationCallback

	// statusManager 调试的状态管理
	statusManager *utils.StatusManager

	conn      io.ReadWriteCloser
	reader    *bufio.Reader
	writeLock sync.Mutex
	seq       int64

	pendingLock sync.Mutex
	pending     map[int]chan dap.ResponseMessage

	// events 接收协程收到的事件，由单独的协程按顺序处理
	events      *utils.Queue[dap.EventMessage]
	initialized chan struct{}

	capabilities dap.Capabilities
	threadID     int64

	breakpointLock sync.Mutex
	breakpoints    *breakpointRegistry

	adapter   *AdapterProcess
	closeOnce sync.Once
}

func NewDapDebugger(options *Options) *DapDebugger {
	if options.Timeout <= 0 {
		options.Timeout = OptionTimeout
	}
	if options.Mode == "" {
		options.Mode = "launch"
	}
	return &DapDebugger{
		options:       options,
		statusManager: utils.NewStatusManager(),
		pending:       make(map[int]chan dap.ResponseMessage),
		events:        utils.NewQueue[dap.EventMessage](),
		initialized:   make(chan struct{}),
		breakpoints:   newBreakpointRegistry(),
	}
}

// Start 启动适配器（如果需要）并建立连接，完成DAP的初始化流程
func (d *DapDebugger) Start(ctx context.Context, option *StartOption) error {
	logrus.Infof("[DapDebugger] Start")
	address := d.options.Address
	if d.options.AdapterCommand != "" {
		adapter, err := LaunchAdapter(ctx, d.options.AdapterCommand, d.options.AdapterArgs, d.options.Timeout)
		if err != nil {
			return err
		}
		d.adapter = adapter
		address = adapter.Address
	}
	if address == "" {
		return e.ErrAdapterAddressNotFound
	}
	dialer := net.Dialer{Timeout: d.options.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		logrus.Errorf("[DapDebugger] dial %s fail, err = %v", address, err)
		d.stopAdapter()
		return err
	}
	return d.StartWithConn(ctx, conn, option)
}

// StartWithConn 在已经建立的连接上开始调试会话
func (d *DapDebugger) StartWithConn(ctx context.Context, conn io.ReadWriteCloser, option *StartOption) error {
	if option == nil {
		option = &StartOption{}
	}
	d.callback = option.Callback
	d.conn = conn
	d.reader = bufio.NewReader(conn)

	gosync.Go(context.Background(), func(ctx context.Context) {
		d.receiveLoop()
	})
	gosync.Go(context.Background(), func(ctx context.Context) {
		d.processEvents(ctx)
	})

	// initialize
	response, err := d.sendWithTimeOut(ctx, &dap.InitializeRequest{
		Request: dap.Request{Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{
			ClientID:        "auto-debugger",
			ClientName:      "auto-debugger",
			AdapterID:       "auto-debugger",
			Locale:          "en-US",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		},
	})
	if err != nil {
		d.close()
		return err
	}
	if initializeResponse, ok := response.(*dap.InitializeResponse); ok {
		d.capabilities = initializeResponse.Body
	}

	// launch/attach 的响应可能在configurationDone之后才返回
	arguments := make(map[string]interface{}, len(d.options.Arguments)+1)
	for key, value := range d.options.Arguments {
		arguments[key] = value
	}
	if option.StopOnEntry {
		arguments["stopOnEntry"] = true
	}
	rawArguments, err := json.Marshal(arguments)
	if err != nil {
		d.close()
		return err
	}
	var startRequest dap.RequestMessage
	if d.options.Mode == "attach" {
		startRequest = &dap.AttachRequest{Request: dap.Request{Command: "attach"}, Arguments: rawArguments}
	} else {
		startRequest = &dap.LaunchRequest{Request: dap.Request{Command: "launch"}, Arguments: rawArguments}
	}
	startResponse, err := d.sendAsync(startRequest)
	if err != nil {
		d.close()
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.options.Timeout)
	defer cancel()
	select {
	case <-d.initialized:
	case <-timeoutCtx.Done():
		d.close()
		return fmt.Errorf("%w: initialized event", e.ErrEngineTimeout)
	}

	// 设置初始断点
	for _, bp := range option.Breakpoints {
		if _, err = d.SetBreakpoint(ctx, bp); err != nil {
			logrus.Warnf("[DapDebugger] set initial breakpoint %s fail, err = %v", bp.Location(), err)
		}
	}
	if _, err = d.sendWithTimeOut(ctx, &dap.ConfigurationDoneRequest{
		Request: dap.Request{Command: "configurationDone"},
	}); err != nil {
		d.close()
		return err
	}
	if d.statusManager.Is(utils.Init) {
		d.statusManager.Set(utils.Running)
	}

	select {
	case response = <-startResponse:
		if response == nil {
			d.close()
			return e.ErrDebuggerIsClosed
		}
		if err = responseError(response); err != nil {
			d.close()
			return err
		}
	case <-timeoutCtx.Done():
		d.close()
		return fmt.Errorf("%w: %s", e.ErrEngineTimeout, d.options.Mode)
	}
	logrus.Infof("[DapDebugger] session started, mode = %s", d.options.Mode)
	return nil
}

// receiveLoop 唯一的读协程，分发响应和事件
func (d *DapDebugger) receiveLoop() {
	for {
		message, err := dap.ReadProtocolMessage(d.reader)
		if err != nil {
			if err != io.EOF {
				logrus.Warnf("[DapDebugger] read message fail, err = %v", err)
			}
			d.onDisconnected()
			return
		}
		switch m := message.(type) {
		case dap.ResponseMessage:
			d.dispatchResponse(m)
		case dap.EventMessage:
			d.onEvent(m)
		default:
			logrus.Debugf("[DapDebugger] ignore message %T", message)
		}
	}
}

func (d *DapDebugger) dispatchResponse(response dap.ResponseMessage) {
	requestSeq := response.GetResponse().RequestSeq
	d.pendingLock.Lock()
	channel, ok := d.pending[requestSeq]
	delete(d.pending, requestSeq)
	d.pendingLock.Unlock()
	if !ok {
		logrus.Debugf("[DapDebugger] response %d has no pending request", requestSeq)
		return
	}
	channel <- response
}

// onEvent 在接收协程中更新状态，其余处理交给processEvents
func (d *DapDebugger) onEvent(event dap.EventMessage) {
	switch ev := event.(type) {
	case *dap.InitializedEvent:
		select {
		case <-d.initialized:
		default:
			close(d.initialized)
		}
		return
	case *dap.StoppedEvent:
		atomic.StoreInt64(&d.threadID, int64(ev.Body.ThreadId))
		d.statusManager.Set(utils.Stopped)
	case *dap.ContinuedEvent:
		d.statusManager.Set(utils.Running)
	case *dap.TerminatedEvent:
		d.statusManager.Set(utils.Finish)
	}
	if err := d.events.Push(event); err != nil {
		logrus.Debugf("[DapDebugger] drop event %s", event.GetEvent().Event)
	}
}

// processEvents 按顺序将DAP事件转换为引擎事件，转换过程中可以发送请求
func (d *DapDebugger) processEvents(ctx context.Context) {
	for {
		event, ok := d.events.Pop(ctx)
		if !ok {
			return
		}
		var answer interface{}
		switch ev := event.(type) {
		case *dap.StoppedEvent:
			answer = d.stoppedEvent(ev)
		case *dap.ContinuedEvent:
			answer = NewContinuedEvent()
		case *dap.ExitedEvent:
			answer = NewExitedEvent(ev.Body.ExitCode, fmt.Sprintf("Process exited with code %d", ev.Body.ExitCode))
		case *dap.TerminatedEvent:
			answer = NewTerminatedEvent()
		case *dap.OutputEvent:
			answer = NewOutputEvent(ev.Body.Output)
		case *dap.BreakpointEvent:
			answer = d.breakpointEvent(ev)
		default:
			logrus.Debugf("[DapDebugger] ignore event %s", event.GetEvent().Event)
		}
		if answer != nil && d.callback != nil {
			d.callback(answer)
		}
	}
}

func (d *DapDebugger) stoppedEvent(event *dap.StoppedEvent) *StoppedEvent {
	reason := constants.StoppedReasonType(event.Body.Reason)
	switch event.Body.Reason {
	case "function breakpoint", "data breakpoint", "instruction breakpoint":
		reason = constants.BreakpointStopped
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.options.Timeout)
	defer cancel()
	var file string
	var line int
	frames, err := d.stackTrace(ctx, 1)
	if err != nil {
		logrus.Warnf("[DapDebugger] get stopped location fail, err = %v", err)
	} else if len(frames) > 0 {
		file, line = frames[0].Path, frames[0].Line
	}

	d.breakpointLock.Lock()
	ids := d.breakpoints.translate(event.Body.HitBreakpointIds)
	if len(ids) == 0 && reason == constants.BreakpointStopped && file != "" {
		ids = d.breakpoints.at(file, line)
	}
	d.breakpointLock.Unlock()
	return NewStoppedEvent(reason, file, line, ids...)
}

func (d *DapDebugger) breakpointEvent(event *dap.BreakpointEvent) *BreakpointEvent {
	d.breakpointLock.Lock()
	defer d.breakpointLock.Unlock()
	ids := d.breakpoints.translate([]int{event.Body.Breakpoint.Id})
	if len(ids) == 0 {
		return nil
	}
	bp, ok := d.breakpoints.get(ids[0])
	if !ok {
		return nil
	}
	bp.Verified = event.Body.Breakpoint.Verified
	if event.Body.Breakpoint.Line > 0 {
		bp.Line = event.Body.Breakpoint.Line
	}
	return NewBreakpointEvent(constants.BreakpointReasonType(event.Body.Reason), []*Breakpoint{bp.Clone()})
}

// onDisconnected 连接断开，所有等待中的请求立即失败
func (d *DapDebugger) onDisconnected() {
	wasActive := d.statusManager.Is(utils.Stopped, utils.Running)
	d.statusManager.Set(utils.Finish)
	d.pendingLock.Lock()
	for seq, channel := range d.pending {
		close(channel)
		delete(d.pending, seq)
	}
	d.pendingLock.Unlock()
	if wasActive {
		_ = d.events.Push(&dap.TerminatedEvent{Event: dap.Event{Event: "terminated"}})
	}
	d.events.Close()
}

// sendAsync 发送请求，返回接收响应的channel，连接断开时channel被关闭
func (d *DapDebugger) sendAsync(request dap.RequestMessage) (chan dap.ResponseMessage, error) {
	if d.statusManager.Is(utils.Finish) {
		return nil, e.ErrDebuggerIsClosed
	}
	req := request.GetRequest()
	req.Seq = int(atomic.AddInt64(&d.seq, 1))
	req.Type = "request"
	channel := make(chan dap.ResponseMessage, 1)
	d.pendingLock.Lock()
	d.pending[req.Seq] = channel
	d.pendingLock.Unlock()

	d.writeLock.Lock()
	err := dap.WriteProtocolMessage(d.conn, request)
	d.writeLock.Unlock()
	if err != nil {
		d.pendingLock.Lock()
		delete(d.pending, req.Seq)
		d.pendingLock.Unlock()
		return nil, err
	}
	logrus.Debugf("[DapDebugger] send %s, seq = %d", req.Command, req.Seq)
	return channel, nil
}

// sendWithTimeOut 发送请求并等待响应，失败的响应会转换为错误
func (d *DapDebugger) sendWithTimeOut(ctx context.Context, request dap.RequestMessage) (dap.ResponseMessage, error) {
	command := request.GetRequest().Command
	channel, err := d.sendAsync(request)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, d.options.Timeout)
	defer cancel()
	select {
	case response, ok := <-channel:
		if !ok {
			return nil, e.ErrDebuggerIsClosed
		}
		if err = responseError(response); err != nil {
			return nil, err
		}
		return response, nil
	case <-ctx.Done():
		d.pendingLock.Lock()
		delete(d.pending, request.GetRequest().Seq)
		d.pendingLock.Unlock()
		return nil, fmt.Errorf("%w: %s", e.ErrEngineTimeout, command)
	}
}

func responseError(response dap.ResponseMessage) error {
	resp := response.GetResponse()
	if resp.Success {
		return nil
	}
	message := resp.Message
	if errorResponse, ok := response.(*dap.ErrorResponse); ok && errorResponse.Body.Error != nil {
		message = errorResponse.Body.Error.Format
	}
	return fmt.Errorf("%w: %s %s", e.ErrRequestFailed, resp.Command, message)
}

// currentThread 获取当前线程，停止事件没有携带线程时查询第一个线程
func (d *DapDebugger) currentThread(ctx context.Context) (int, error) {
	if threadID := atomic.LoadInt64(&d.threadID); threadID != 0 {
		return int(threadID), nil
	}
	response, err := d.sendWithTimeOut(ctx, &dap.ThreadsRequest{Request: dap.Request{Command: "threads"}})
	if err != nil {
		return 0, err
	}
	threads, ok := response.(*dap.ThreadsResponse)
	if !ok {
		return 0, e.ErrUnexpectedResponseType
	}
	if len(threads.Body.Threads) == 0 {
		return 0, e.ErrSessionNotActive
	}
	atomic.StoreInt64(&d.threadID, int64(threads.Body.Threads[0].Id))
	return threads.Body.Threads[0].Id, nil
}

// resume 发送让程序继续运行的请求，请求失败时恢复停止状态
func (d *DapDebugger) resume(ctx context.Context, build func(threadID int) dap.RequestMessage) error {
	if !d.statusManager.Is(utils.Stopped) {
		if d.statusManager.Is(utils.Finish) {
			return e.ErrSessionNotActive
		}
		return e.ErrProgramIsRunning
	}
	threadID, err := d.currentThread(ctx)
	if err != nil {
		return err
	}
	d.statusManager.Set(utils.Running)
	if _, err = d.sendWithTimeOut(ctx, build(threadID)); err != nil {
		if d.statusManager.Is(utils.Running) {
			d.statusManager.Set(utils.Stopped)
		}
		return err
	}
	return nil
}

func (d *DapDebugger) StepOver(ctx context.Context) error {
	logrus.Debugf("[DapDebugger] StepOver")
	return d.resume(ctx, func(threadID int) dap.RequestMessage {
		return &dap.NextRequest{Request: dap.Request{Command: "next"}, Arguments: dap.NextArguments{ThreadId: threadID}}
	})
}

func (d *DapDebugger) StepInto(ctx context.Context) error {
	logrus.Debugf("[DapDebugger] StepInto")
	return d.resume(ctx, func(threadID int) dap.RequestMessage {
		return &dap.StepInRequest{Request: dap.Request{Command: "stepIn"}, Arguments: dap.StepInArguments{ThreadId: threadID}}
	})
}

func (d *DapDebugger) StepOut(ctx context.Context) error {
	logrus.Debugf("[DapDebugger] StepOut")
	return d.resume(ctx, func(threadID int) dap.RequestMessage {
		return &dap.StepOutRequest{Request: dap.Request{Command: "stepOut"}, Arguments: dap.StepOutArguments{ThreadId: threadID}}
	})
}

func (d *DapDebugger) Continue(ctx context.Context) error {
	logrus.Debugf("[DapDebugger] Continue")
	return d.resume(ctx, func(threadID int) dap.RequestMessage {
		return &dap.ContinueRequest{Request: dap.Request{Command: "continue"}, Arguments: dap.ContinueArguments{ThreadId: threadID}}
	})
}

// adapterPath 发送给适配器的路径
func (d *DapDebugger) adapterPath(file string) string {
	if filepath.IsAbs(file) || d.options.SourceRoot == "" {
		return file
	}
	return filepath.Join(d.options.SourceRoot, file)
}

// localPath 适配器返回的路径转换为相对SourceRoot的路径
func (d *DapDebugger) localPath(file string) string {
	if d.options.SourceRoot == "" {
		return file
	}
	if rel, err := filepath.Rel(d.options.SourceRoot, file); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return file
}

// syncSource 将某个文件中启用的断点整体同步给适配器，需要持有breakpointLock
func (d *DapDebugger) syncSource(ctx context.Context, file string) error {
	enabled := d.breakpoints.enabledInFile(file)
	sourceBreakpoints := make([]dap.SourceBreakpoint, 0, len(enabled))
	for _, bp := range enabled {
		sourceBreakpoints = append(sourceBreakpoints, dap.SourceBreakpoint{Line: bp.Line, Condition: bp.Condition})
	}
	path := d.adapterPath(file)
	response, err := d.sendWithTimeOut(ctx, &dap.SetBreakpointsRequest{
		Request: dap.Request{Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Name: filepath.Base(path), Path: path},
			Breakpoints: sourceBreakpoints,
		},
	})
	if err != nil {
		return err
	}
	setBreakpointsResponse, ok := response.(*dap.SetBreakpointsResponse)
	if !ok {
		return e.ErrUnexpectedResponseType
	}
	for i, result := range setBreakpointsResponse.Body.Breakpoints {
		if i >= len(enabled) {
			break
		}
		enabled[i].Verified = result.Verified
		if result.Line > 0 {
			enabled[i].Line = result.Line
		}
		d.breakpoints.bindAdapterID(result.Id, enabled[i].ID)
	}
	return nil
}

func (d *DapDebugger) SetBreakpoint(ctx context.Context, breakpoint *Breakpoint) (*Breakpoint, error) {
	if breakpoint == nil || breakpoint.File == "" || breakpoint.Line <= 0 {
		return nil, e.ErrBreakpointTypeNotValid
	}
	if breakpoint.Type != "" && breakpoint.Type != constants.LineBreakpoint {
		return nil, e.ErrBreakpointTypeNotValid
	}
	d.breakpointLock.Lock()
	defer d.breakpointLock.Unlock()
	bp := d.breakpoints.add(breakpoint)
	bp.Type = constants.LineBreakpoint
	if err := d.syncSource(ctx, bp.File); err != nil {
		d.breakpoints.remove(bp.ID)
		return nil, err
	}
	logrus.Debugf("[DapDebugger] SetBreakpoint %s at %s, verified = %v", bp.ID, bp.Location(), bp.Verified)
	return bp.Clone(), nil
}

func (d *DapDebugger) RemoveBreakpoint(ctx context.Context, id string) error {
	d.breakpointLock.Lock()
	defer d.breakpointLock.Unlock()
	bp, ok := d.breakpoints.get(id)
	if !ok {
		return e.ErrBreakpointNotFound
	}
	d.breakpoints.remove(id)
	if err := d.syncSource(ctx, bp.File); err != nil {
		// 同步失败时保留断点，保证本地与适配器一致
		d.breakpoints.breakpoints.Put(bp.ID, bp)
		return err
	}
	return nil
}

func (d *DapDebugger) SetBreakpointEnabled(ctx context.Context, id string, enabled bool) error {
	d.breakpointLock.Lock()
	defer d.breakpointLock.Unlock()
	bp, ok := d.breakpoints.get(id)
	if !ok {
		return e.ErrBreakpointNotFound
	}
	if bp.Enabled == enabled {
		return nil
	}
	bp.Enabled = enabled
	if err := d.syncSource(ctx, bp.File); err != nil {
		bp.Enabled = !enabled
		return err
	}
	return nil
}

func (d *DapDebugger) GetAllBreakpoints(ctx context.Context) ([]*Breakpoint, error) {
	d.breakpointLock.Lock()
	defer d.breakpointLock.Unlock()
	all := d.breakpoints.all()
	answer := make([]*Breakpoint, 0, len(all))
	for _, bp := range all {
		answer = append(answer, bp.Clone())
	}
	return answer, nil
}

// GetBreakpointTypes 适配器支持breakpointLocations时询问该行是否可以设置断点
func (d *DapDebugger) GetBreakpointTypes(ctx context.Context, file string, line int) ([]constants.BreakpointType, error) {
	if line <= 0 {
		return []constants.BreakpointType{}, nil
	}
	if !d.capabilities.SupportsBreakpointLocationsRequest {
		return []constants.BreakpointType{constants.LineBreakpoint}, nil
	}
	path := d.adapterPath(file)
	response, err := d.sendWithTimeOut(ctx, &dap.BreakpointLocationsRequest{
		Request: dap.Request{Command: "breakpointLocations"},
		Arguments: &dap.BreakpointLocationsArguments{
			Source: dap.Source{Name: filepath.Base(path), Path: path},
			Line:   line,
		},
	})
	if err != nil {
		return nil, err
	}
	locations, ok := response.(*dap.BreakpointLocationsResponse)
	if !ok {
		return nil, e.ErrUnexpectedResponseType
	}
	for _, location := range locations.Body.Breakpoints {
		if location.Line == line {
			return []constants.BreakpointType{constants.LineBreakpoint}, nil
		}
	}
	return []constants.BreakpointType{}, nil
}

// stackTrace 获取当前线程的调用栈，StackFrame.ID为适配器的frameId
func (d *DapDebugger) stackTrace(ctx context.Context, levels int) ([]*StackFrame, error) {
	threadID, err := d.currentThread(ctx)
	if err != nil {
		return nil, err
	}
	response, err := d.sendWithTimeOut(ctx, &dap.StackTraceRequest{
		Request:   dap.Request{Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: threadID, StartFrame: 0, Levels: levels},
	})
	if err != nil {
		return nil, err
	}
	stackTrace, ok := response.(*dap.StackTraceResponse)
	if !ok {
		return nil, e.ErrUnexpectedResponseType
	}
	answer := make([]*StackFrame, 0, len(stackTrace.Body.StackFrames))
	for _, frame := range stackTrace.Body.StackFrames {
		stackFrame := &StackFrame{ID: strconv.Itoa(frame.Id), Name: frame.Name, Line: frame.Line}
		if frame.Source != nil {
			stackFrame.Path = d.localPath(frame.Source.Path)
		}
		answer = append(answer, stackFrame)
	}
	return answer, nil
}

func (d *DapDebugger) checkPaused() error {
	if d.statusManager.Is(utils.Stopped) {
		return nil
	}
	if d.statusManager.Is(utils.Finish, utils.Init) {
		return e.ErrSessionNotActive
	}
	return e.ErrProgramIsRunning
}

// adapterFrameID 第depth层栈帧在适配器中的id
func (d *DapDebugger) adapterFrameID(ctx context.Context, depth int) (int, error) {
	if depth < 0 {
		return 0, e.ErrFrameNotFound
	}
	frames, err := d.stackTrace(ctx, depth+1)
	if err != nil {
		return 0, err
	}
	if depth >= len(frames) {
		return 0, e.ErrFrameNotFound
	}
	return strconv.Atoi(frames[depth].ID)
}

// GetFrameAt 获取第depth层栈帧，返回的ID为栈帧的层数
func (d *DapDebugger) GetFrameAt(ctx context.Context, depth int) (*StackFrame, error) {
	if err := d.checkPaused(); err != nil {
		return nil, err
	}
	if depth < 0 {
		return nil, e.ErrFrameNotFound
	}
	frames, err := d.stackTrace(ctx, depth+1)
	if err != nil {
		return nil, err
	}
	if depth >= len(frames) {
		return nil, e.ErrFrameNotFound
	}
	frame := frames[depth]
	frame.ID = strconv.Itoa(depth)
	return frame, nil
}

func (d *DapDebugger) GetCallStack(ctx context.Context, maxDepth int) ([]*StackFrame, error) {
	if err := d.checkPaused(); err != nil {
		return nil, err
	}
	frames, err := d.stackTrace(ctx, maxDepth)
	if err != nil {
		return nil, err
	}
	for i, frame := range frames {
		frame.ID = strconv.Itoa(i)
	}
	return frames, nil
}

// GetFrameVariables frameID为栈帧的层数，读取该栈帧中非expensive作用域的变量
func (d *DapDebugger) GetFrameVariables(ctx context.Context, frameID string, maxDepth int) (map[string]*Variable, error) {
	if err := d.checkPaused(); err != nil {
		return nil, err
	}
	depth, err := strconv.Atoi(frameID)
	if err != nil {
		return nil, e.ErrFrameNotFound
	}
	if maxDepth <= 0 {
		maxDepth = defaultVariableDepth
	}
	adapterFrameID, err := d.adapterFrameID(ctx, depth)
	if err != nil {
		return nil, err
	}
	response, err := d.sendWithTimeOut(ctx, &dap.ScopesRequest{
		Request:   dap.Request{Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: adapterFrameID},
	})
	if err != nil {
		return nil, err
	}
	scopes, ok := response.(*dap.ScopesResponse)
	if !ok {
		return nil, e.ErrUnexpectedResponseType
	}
	answer := make(map[string]*Variable)
	for _, scope := range scopes.Body.Scopes {
		if scope.Expensive || scope.VariablesReference == 0 {
			continue
		}
		variables, err := d.variables(ctx, scope.VariablesReference, 0, maxDepth)
		if err != nil {
			return nil, err
		}
		for _, variable := range variables {
			// 内层作用域的变量优先
			if _, exist := answer[variable.Name]; !exist {
				answer[variable.Name] = variable
			}
		}
	}
	return answer, nil
}

// variables 加载某个引用下的子变量，depth达到maxDepth后不再展开
func (d *DapDebugger) variables(ctx context.Context, reference int, depth int, maxDepth int) ([]*Variable, error) {
	response, err := d.sendWithTimeOut(ctx, &dap.VariablesRequest{
		Request:   dap.Request{Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: reference},
	})
	if err != nil {
		return nil, err
	}
	variablesResponse, ok := response.(*dap.VariablesResponse)
	if !ok {
		return nil, e.ErrUnexpectedResponseType
	}
	answer := make([]*Variable, 0, len(variablesResponse.Body.Variables))
	for _, v := range variablesResponse.Body.Variables {
		variable, err := d.newVariable(ctx, v.Name, v.Type, v.Value, v.VariablesReference,
			v.IndexedVariables, v.NamedVariables, v.MemoryReference, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		answer = append(answer, variable)
	}
	return answer, nil
}

func (d *DapDebugger) newVariable(ctx context.Context, name string, typ string, value string, reference int,
	indexed int, named int, memoryReference string, depth int, maxDepth int) (*Variable, error) {
	variable := &Variable{
		Name:           name,
		Type:           typ,
		Value:          &value,
		Reference:      memoryReference,
		IsArray:        indexed > 0 || strings.HasPrefix(typ, "[") || strings.HasSuffix(typ, "]"),
		ChildrenNumber: indexed + named,
	}
	if reference == 0 {
		return variable, nil
	}
	if depth >= maxDepth {
		if variable.ChildrenNumber == 0 {
			variable.ChildrenNumber = 1
		}
		return variable, nil
	}
	children, err := d.variables(ctx, reference, depth, maxDepth)
	if err != nil {
		return nil, err
	}
	variable.Children = children
	if variable.ChildrenNumber < len(children) {
		variable.ChildrenNumber = len(children)
	}
	return variable, nil
}

func (d *DapDebugger) Evaluate(ctx context.Context, expression string, frameIndex int) (*Variable, error) {
	if err := d.checkPaused(); err != nil {
		return nil, err
	}
	adapterFrameID, err := d.adapterFrameID(ctx, frameIndex)
	if err != nil {
		return nil, err
	}
	response, err := d.sendWithTimeOut(ctx, &dap.EvaluateRequest{
		Request:   dap.Request{Command: "evaluate"},
		Arguments: dap.EvaluateArguments{Expression: expression, FrameId: adapterFrameID, Context: "watch"},
	})
	if err != nil {
		return nil, err
	}
	evaluateResponse, ok := response.(*dap.EvaluateResponse)
	if !ok {
		return nil, e.ErrUnexpectedResponseType
	}
	body := evaluateResponse.Body
	return d.newVariable(ctx, expression, body.Type, body.Result, body.VariablesReference,
		body.IndexedVariables, body.NamedVariables, body.MemoryReference, 0, defaultVariableDepth)
}

func (d *DapDebugger) IsSessionActive() bool {
	return d.statusManager.Is(utils.Stopped, utils.Running)
}

func (d *DapDebugger) IsPaused() bool {
	return d.statusManager.Is(utils.Stopped)
}

// WaitForStop 等待程序停止或者结束
func (d *DapDebugger) WaitForStop(ctx context.Context) error {
	return d.statusManager.WaitFor(ctx, utils.Stopped, utils.Finish)
}

func (d *DapDebugger) Terminate(ctx context.Context) error {
	logrus.Infof("[DapDebugger] Terminate")
	if d.conn != nil && !d.statusManager.Is(utils.Finish) {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := d.sendWithTimeOut(ctx, &dap.DisconnectRequest{
			Request:   dap.Request{Command: "disconnect"},
			Arguments: &dap.DisconnectArguments{TerminateDebuggee: true},
		})
		cancel()
		if err != nil {
			logrus.Warnf("[DapDebugger] disconnect fail, err = %v", err)
		}
	}
	d.close()
	return nil
}

func (d *DapDebugger) close() {
	d.closeOnce.Do(func() {
		if d.conn != nil {
			_ = d.conn.Close()
		}
		d.stopAdapter()
	})
}

func (d *DapDebugger) stopAdapter() {
	if d.adapter != nil {
		if err := d.adapter.Stop(); err != nil {
			logrus.Debugf("[DapDebugger] stop adapter, err = %v", err)
		}
	}
}
