package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/controller"
	"github.com/fansqz/auto-debugger/protocol"
	"github.com/sirupsen/logrus"
)

const (
	// 单行请求的最大长度
	maxRequestSize = 1 << 20
	// 写超时，对端长时间不读取时关闭会话
	defaultWriteTimeout = 3 * time.Second
)

// Session 一个tcp连接，每行一个json请求，每行一个json响应或事件
type Session struct {
	conn       net.Conn
	controller *controller.Controller

	writeTimeout time.Duration
	writeLock    sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
}

func NewSession(conn net.Conn, controller *controller.Controller) *Session {
	return &Session{
		conn:         conn,
		controller:   controller,
		writeTimeout: defaultWriteTimeout,
	}
}

func (s *Session) Serve(ctx context.Context) {
	defer s.Close()
	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handle(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		logrus.Warnf("[Session] read from %s fail, err = %v", s.conn.RemoteAddr(), err)
	}
}

func (s *Session) handle(ctx context.Context, req []byte) {
	request := &protocol.Request{}
	if err := json.Unmarshal(req, request); err != nil {
		logrus.Warnf("[Session] parse request error, err = %v", err)
		s.sendResponse(0, false, "invalid request: "+err.Error(), nil)
		return
	}
	switch request.Type {
	case constants.PingRequest:
		s.sendResponse(request.Sequence, true, "pong", nil)
	case constants.CommandRequest:
		if request.Command == "" {
			s.sendResponse(request.Sequence, false, "command cannot be empty", nil)
			return
		}
		response := s.controller.ExecuteCommand(ctx, request.Command, request.Parameters)
		s.sendResponse(request.Sequence, response.Success, response.Error, response.Data)
	default:
		s.sendResponse(request.Sequence, false, "request type not support", nil)
	}
}

func (s *Session) sendResponse(sequence uint, success bool, message string, data interface{}) {
	answer, err := json.Marshal(protocol.NewResponse(sequence, success, message, data))
	if err != nil {
		logrus.Warnf("[Session] marshal response fail, err = %v", err)
		answer, _ = json.Marshal(protocol.NewResponse(sequence, false, err.Error(), nil))
	}
	s.write(answer)
}

// write 写入一行，响应和广播的事件可能并发写
// 广播在引擎的回调中同步执行，写超时后关闭会话
func (s *Session) write(data []byte) {
	if s.closed.Load() {
		return
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	line := make([]byte, 0, len(data)+1)
	line = append(append(line, data...), '\n')
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		logrus.Debugf("[Session] set write deadline for %s fail, err = %v", s.conn.RemoteAddr(), err)
	}
	if _, err := s.conn.Write(line); err != nil {
		logrus.Warnf("[Session] write to %s fail, close session, err = %v", s.conn.RemoteAddr(), err)
		s.Close()
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.Close()
	})
}
