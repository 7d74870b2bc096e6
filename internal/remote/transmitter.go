package remote

import (
	"fmt"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/metrics"
	"log/slog"
	"sync"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// TransmitterConfig 定义发送端参数
type TransmitterConfig struct {
	QueueSize int    // 待发送行的上限，超出时丢弃最旧的行
	Filter    string // 可选的 expr 规则，变量 kind / text，结果为 false 的事件不发送
}

type outbound struct {
	kind string
	text string
}

// Transmitter 缓存需要发出的事件，每个 tick 由控制循环统一 Flush
// Enqueue 可以从任意 goroutine 调用 (日志镜像可能来自传输层的 goroutine)。
type Transmitter struct {
	link   Link
	size   int
	filter *vm.Program
	logger *slog.Logger

	mu      sync.Mutex
	queue   []outbound
	dropped int
}

// NewTransmitter 创建发送端，规则在这里编译一次
func NewTransmitter(link Link, cfg TransmitterConfig, logger *slog.Logger) (*Transmitter, error) {
	t := &Transmitter{
		link:   link,
		size:   cfg.QueueSize,
		logger: logger.With("component", "transmitter"),
	}
	if t.size <= 0 {
		t.size = 256
	}
	if cfg.Filter != "" {
		env := map[string]interface{}{"kind": "", "text": ""}
		program, err := expr.Compile(cfg.Filter, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("编译发送过滤规则失败: %w", err)
		}
		t.filter = program
	}
	return t, nil
}

// Enqueue 把可发送事件放入队列
func (t *Transmitter) Enqueue(e event.Exposable) {
	t.enqueue(e.Kind(), e.Expose())
}

func (t *Transmitter) enqueue(kind, text string) {
	if !t.accept(kind, text) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) >= t.size {
		t.queue = t.queue[1:]
		t.dropped++
	}
	t.queue = append(t.queue, outbound{kind: kind, text: text})
}

func (t *Transmitter) accept(kind, text string) bool {
	if t.filter == nil {
		return true
	}
	out, err := expr.Run(t.filter, map[string]interface{}{"kind": kind, "text": text})
	if err != nil {
		// 规则出错时不过滤
		return true
	}
	ok, _ := out.(bool)
	return ok
}

// Pending 返回队列中的行数
func (t *Transmitter) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Flush 按顺序把队列中的每个事件作为一行写出
// 通道未连接时保留队列；写入失败时关闭通道，未发送的行留到下一次。
func (t *Transmitter) Flush() error {
	t.mu.Lock()
	batch := t.queue
	t.queue = nil
	dropped := t.dropped
	t.dropped = 0
	t.mu.Unlock()

	if dropped > 0 {
		t.logger.Warn("发送队列已满，丢弃了旧消息", "dropped", dropped)
	}
	if len(batch) == 0 {
		return nil
	}
	if !t.link.Connected() {
		t.requeue(batch)
		return nil
	}

	for i, msg := range batch {
		if err := t.link.WriteLine(msg.text); err != nil {
			metrics.RemoteErrorsTotal.Inc()
			if cerr := t.link.Close(); cerr != nil {
				t.logger.Debug("关闭远程通道失败", "error", cerr)
			}
			t.requeue(batch[i:])
			return fmt.Errorf("发送远程消息失败: %w", err)
		}
		metrics.RemoteMessagesTotal.WithLabelValues("out").Inc()
	}
	return nil
}

// requeue 把未发送的行放回队列头部，总数仍受 size 限制
func (t *Transmitter) requeue(rest []outbound) {
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := append(append([]outbound(nil), rest...), t.queue...)
	if over := len(merged) - t.size; over > 0 {
		merged = merged[over:]
		t.dropped += over
	}
	t.queue = merged
}
