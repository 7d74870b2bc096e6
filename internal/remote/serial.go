package remote

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"

	serial "go.bug.st/serial"
)

// SerialLink 通过串口 (蓝牙 RFCOMM 或 UART) 收发文本行
type SerialLink struct {
	device string
	baud   int
	logger *slog.Logger

	// openPort 打开设备，测试中替换为内存实现
	openPort func(device string, baud int) (io.ReadWriteCloser, error)

	mu   sync.Mutex
	port io.ReadWriteCloser
	sess *session
}

func NewSerialLink(device string, baud int, logger *slog.Logger) *SerialLink {
	return &SerialLink{
		device:   device,
		baud:     baud,
		openPort: openSerialPort,
		logger:   logger.With("component", "serial_link", "device", device),
	}
}

func openSerialPort(device string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(device, &serial.Mode{BaudRate: baud})
}

// Open 打开串口
// 读取协程退出后旧的句柄仍占用设备 (独占模式)，重新打开前必须先关闭。
func (l *SerialLink) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess.connected() {
		return nil
	}
	if l.port != nil {
		if err := l.port.Close(); err != nil {
			l.logger.Debug("关闭旧的串口句柄失败", "error", err)
		}
		l.port = nil
	}
	p, err := l.openPort(l.device, l.baud)
	if err != nil {
		return fmt.Errorf("打开串口 %s 失败: %w", l.device, err)
	}
	l.port = p
	l.sess = newSession()
	go l.readLoop(p, l.sess)
	l.logger.Info("串口已连接", "baud", l.baud)
	return nil
}

func (l *SerialLink) readLoop(p io.Reader, s *session) {
	r := bufio.NewReader(p)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if dropped := s.push(line); dropped > 0 {
				l.logger.Warn("入站缓冲区已满，丢弃指令", "dropped", dropped)
			}
		}
		if err != nil {
			s.alive.Store(false)
			l.logger.Warn("串口读取结束", "error", err)
			return
		}
	}
}

func (l *SerialLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.connected()
}

func (l *SerialLink) Available() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.available()
}

func (l *SerialLink) ReadLine() (string, error) {
	l.mu.Lock()
	s := l.sess
	l.mu.Unlock()
	return s.pop()
}

func (l *SerialLink) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.sess.connected() {
		return ErrNotConnected
	}
	_, err := l.port.Write(append([]byte(line), '\n'))
	return err
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	if l.sess != nil {
		l.sess.alive.Store(false)
	}
	err := l.port.Close()
	l.port = nil
	return err
}
