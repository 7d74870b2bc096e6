package remote

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketLink 是挂在状态服务器 /remote 路由上的远程通道
// 同一时刻只有一个遥控端，新的连接会替换旧的连接。每个文本帧是一行。
type WebSocketLink struct {
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	sess *session
}

func NewWebSocketLink(logger *slog.Logger) *WebSocketLink {
	return &WebSocketLink{logger: logger.With("component", "websocket_link")}
}

// ServeHTTP 接受遥控端的 WebSocket 连接
func (l *WebSocketLink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("升级 WebSocket 失败", "error", err)
		return
	}
	s := newSession()

	l.mu.Lock()
	if l.conn != nil {
		l.logger.Info("新的遥控端接入，关闭旧连接", "remote", l.conn.RemoteAddr().String())
		l.sess.alive.Store(false)
		l.conn.Close()
	}
	l.conn = conn
	l.sess = s
	l.mu.Unlock()

	l.logger.Info("遥控端已连接", "remote", conn.RemoteAddr().String())
	go l.readLoop(conn, s)
}

func (l *WebSocketLink) readLoop(conn *websocket.Conn, s *session) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.alive.Store(false)
			l.logger.Info("遥控端断开", "error", err)
			return
		}
		if dropped := s.push(string(msg)); dropped > 0 {
			l.logger.Warn("入站缓冲区已满，丢弃指令", "dropped", dropped)
		}
	}
}

// Open 不主动建立连接，只报告是否有遥控端在线
func (l *WebSocketLink) Open() error {
	if l.Connected() {
		return nil
	}
	return ErrNoPeer
}

func (l *WebSocketLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.connected()
}

func (l *WebSocketLink) Available() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.available()
}

func (l *WebSocketLink) ReadLine() (string, error) {
	l.mu.Lock()
	s := l.sess
	l.mu.Unlock()
	return s.pop()
}

func (l *WebSocketLink) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.sess.connected() {
		return ErrNotConnected
	}
	return l.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (l *WebSocketLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	l.sess.alive.Store(false)
	err := l.conn.Close()
	l.conn = nil
	return err
}
