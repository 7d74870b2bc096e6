package remote

import (
	"errors"
	"strings"
	"sync/atomic"
)

var (
	ErrNotConnected = errors.New("remote link not connected")
	ErrNoData       = errors.New("no pending line")
	ErrNoPeer       = errors.New("waiting for remote peer")
)

// Link 是双向的文本行通道
// Available 是非阻塞的"有数据可读"判断，控制循环只在它为 true 时调用 ReadLine。
// 读写都由控制循环 goroutine 调用，实现内部的读取 goroutine 只负责把行放入缓冲区。
type Link interface {
	Open() error
	Connected() bool
	Available() bool
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
}

const defaultInboxSize = 64

// session 是一次连接的入站缓冲区
// 每次 Open 创建新的 session，旧的读取 goroutine 只会修改自己的 session。
type session struct {
	lines chan string
	alive atomic.Bool
}

func newSession() *session {
	s := &session{lines: make(chan string, defaultInboxSize)}
	s.alive.Store(true)
	return s
}

// push 把收到的数据按行拆分放入缓冲区，缓冲区满时返回丢弃的行数
func (s *session) push(data string) (dropped int) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		select {
		case s.lines <- line:
		default:
			dropped++
		}
	}
	return dropped
}

func (s *session) available() bool {
	return s != nil && len(s.lines) > 0
}

func (s *session) pop() (string, error) {
	if s == nil {
		return "", ErrNotConnected
	}
	select {
	case line := <-s.lines:
		return line, nil
	default:
		if !s.alive.Load() {
			return "", ErrNotConnected
		}
		return "", ErrNoData
	}
}

func (s *session) connected() bool {
	return s != nil && s.alive.Load()
}
