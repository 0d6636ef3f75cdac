package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/fansqz/auto-debugger/controller"
	"github.com/fansqz/auto-debugger/protocol"
	"github.com/sirupsen/logrus"
)

// Server tcp服务，每个连接一个会话，引擎事件和操作完成事件广播给所有会话
type Server struct {
	app      *App
	listener net.Listener

	lock     sync.Mutex
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

func NewServer(app *App) *Server {
	server := &Server{
		app:      app,
		sessions: make(map[*Session]struct{}),
	}
	app.controller.SetCompletionCallback(func(result *controller.OperationResult) {
		server.broadcast(protocol.NewOperationCompletedEvent(result))
	})
	return server
}

// Forward 作为引擎通知的转发函数
func (s *Server) Forward(notification interface{}) {
	if event, ok := protocol.NewEvent(notification); ok {
		s.broadcast(event)
	}
}

// Listen 监听端口，返回实际监听的地址
func (s *Server) Listen(address string) (net.Addr, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Serve 接收连接直到ctx结束或者监听被关闭
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logrus.Warnf("[Server] accept fail, err = %v", err)
			continue
		}
		session := NewSession(conn, s.app.controller)
		s.addSession(session)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.removeSession(session)
			session.Serve(ctx)
		}()
	}
	s.closeSessions()
	s.wg.Wait()
	return nil
}

func (s *Server) addSession(session *Session) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions[session] = struct{}{}
	logrus.Infof("[Server] session from %s", session.conn.RemoteAddr())
}

func (s *Server) removeSession(session *Session) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.sessions, session)
	logrus.Infof("[Server] session from %s closed", session.conn.RemoteAddr())
}

func (s *Server) closeSessions() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for session := range s.sessions {
		session.Close()
	}
}

func (s *Server) broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[Server] marshal event fail, err = %v", err)
		return
	}
	s.lock.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.lock.Unlock()
	for _, session := range sessions {
		session.write(data)
	}
}
