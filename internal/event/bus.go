package event

import (
	"errors"
	"fmt"
	"linefollower-robot/internal/metrics"
	"log/slog"
	"reflect"
	"sync"
)

// Listener 是事件监听器
// 监听器的身份由接口值比较决定，因此实现应使用指针接收者。
// 指向零大小类型的不同指针可能相等，总线拒绝此类监听器 (ErrZeroSizeListener)。
type Listener interface {
	OnEvent(e Event) error
}

var (
	ErrNilEvent          = errors.New("event must not be nil")
	ErrNilListener       = errors.New("listener must not be nil")
	ErrAlreadyRegistered = errors.New("listener already registered")
	ErrNotRegistered     = errors.New("listener not registered")
	ErrZeroSizeListener  = errors.New("listener type has zero size and no stable identity")
)

// zeroSize 判断监听器是否没有可区分的身份
func zeroSize(l Listener) bool {
	t := reflect.TypeOf(l)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Size() == 0
}

// Bus 是一个同步的内存事件总线
// 发布时遍历监听器列表的快照 (copy-on-write)，监听器可以在回调中订阅或取消订阅。
// 单个监听器的错误或 panic 不会影响其余监听器。
// 总线只假设一个发布者 (控制循环)，并发发布需要外部同步。
type Bus struct {
	mu        sync.Mutex
	listeners []Listener // 只整体替换，不原地修改
	logger    *slog.Logger
}

// NewBus 创建一个新的事件总线实例
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger.With("component", "event_bus")}
}

// Subscribe 注册一个监听器，重复注册返回 ErrAlreadyRegistered
func (b *Bus) Subscribe(l Listener) error {
	if l == nil {
		return ErrNilListener
	}
	if zeroSize(l) {
		return fmt.Errorf("%T: %w", l, ErrZeroSizeListener)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.listeners {
		if existing == l {
			return ErrAlreadyRegistered
		}
	}
	next := make([]Listener, len(b.listeners), len(b.listeners)+1)
	copy(next, b.listeners)
	b.listeners = append(next, l)
	return nil
}

// Unsubscribe 移除一个监听器，不存在时返回 ErrNotRegistered
func (b *Bus) Unsubscribe(l Listener) error {
	if l == nil {
		return ErrNilListener
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.listeners {
		if existing == l {
			next := make([]Listener, 0, len(b.listeners)-1)
			next = append(next, b.listeners[:i]...)
			b.listeners = append(next, b.listeners[i+1:]...)
			return nil
		}
	}
	return ErrNotRegistered
}

// Len 返回当前注册的监听器数量
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Publish 按注册顺序同步地把事件交给每个监听器
// 所有监听器处理完毕后才返回
func (b *Bus) Publish(e Event) error {
	if e == nil {
		return ErrNilEvent
	}

	b.mu.Lock()
	snapshot := b.listeners
	b.mu.Unlock()

	metrics.EventsPublishedTotal.WithLabelValues(e.Kind()).Inc()
	for _, l := range snapshot {
		b.deliver(l, e)
	}
	return nil
}

func (b *Bus) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerFailuresTotal.Inc()
			b.logger.Error("监听器处理事件时 panic", "event", e.Kind(), "listener", fmt.Sprintf("%T", l), "panic", r)
		}
	}()
	if err := l.OnEvent(e); err != nil {
		metrics.ListenerFailuresTotal.Inc()
		b.logger.Error("监听器处理事件失败", "event", e.Kind(), "listener", fmt.Sprintf("%T", l), "error", err)
	}
}
