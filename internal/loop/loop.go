package loop

import (
	"context"
	"io"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/metrics"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// Publisher 把轮询得到的事件送上事件总线
type Publisher interface {
	Publish(e event.Event) error
}

// Ticker 执行当前策略的一步，*controller.Controller 实现了它
type Ticker interface {
	RunTick() error
}

// SensorSource 是带上报阈值的传感器，*hardware.ReportingSensor 实现了它
type SensorSource interface {
	Poll() (*event.Sensor, error)
	Close() error
}

// CommandSource 提供本 tick 收到的远程指令，*remote.Receiver 实现了它
type CommandSource interface {
	Poll() []*event.Command
}

// Flusher 在每个 tick 末尾把缓存的输出写出
type Flusher interface {
	Flush() error
}

// Config 控制循环参数
type Config struct {
	TickDelay       time.Duration
	MonitorInterval time.Duration // 0 表示不记录内存使用
}

// Deps 控制循环的依赖，除 Bus / Controller / Clock / Logger 外都可以为空
type Deps struct {
	Bus        Publisher
	Controller Ticker
	Sensors    []SensorSource
	Buttons    hardware.Buttons
	Commands   CommandSource
	Flushers   []Flusher
	Motors     hardware.Motors
	Closers    []io.Closer
	Clock      clock.Clock
	OnTick     func(tick uint64)
	Logger     *slog.Logger
}

// Loop 是唯一驱动决策核心的 goroutine
// 每个 tick: 轮询传感器、按键、远程指令并发布事件 -> 执行策略 -> 写出输出 -> 固定等待。
type Loop struct {
	cfg  Config
	deps Deps

	running atomic.Bool
	ticks   atomic.Uint64
	done    chan struct{}

	lastMonitor int64
	logger      *slog.Logger
}

func New(cfg Config, deps Deps) *Loop {
	if cfg.TickDelay <= 0 {
		cfg.TickDelay = 10 * time.Millisecond
	}
	return &Loop{
		cfg:    cfg,
		deps:   deps,
		done:   make(chan struct{}),
		logger: deps.Logger.With("component", "loop"),
	}
}

// Start 运行控制循环直到 Stop 被调用或 ctx 被取消，然后执行清理
// 调用方通常在独立的 goroutine 中调用它，再用 WaitForCompletion 等待退出。
func (l *Loop) Start(ctx context.Context) {
	defer close(l.done)
	defer l.cleanup()

	l.running.Store(true)
	l.lastMonitor = l.deps.Clock.NowMillis()
	l.logger.Info("控制循环启动", "tick_delay", l.cfg.TickDelay)

	timer := time.NewTimer(l.cfg.TickDelay)
	defer timer.Stop()

	for l.running.Load() {
		if ctx.Err() != nil {
			break
		}
		l.Tick()
		if !l.running.Load() {
			break
		}

		timer.Reset(l.cfg.TickDelay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	l.logger.Info("控制循环停止", "ticks", l.ticks.Load())
}

// Stop 请求在当前 tick 结束后退出，可以在任意 goroutine 中调用
func (l *Loop) Stop() {
	l.running.Store(false)
}

// WaitForCompletion 等待 Start 完成清理并返回
func (l *Loop) WaitForCompletion() {
	<-l.done
}

// Ticks 返回已执行的 tick 数
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Tick 执行一次完整的控制循环迭代
func (l *Loop) Tick() {
	start := time.Now()
	defer func() {
		metrics.TicksTotal.Inc()
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	l.pollSensors()
	l.pollButtons()
	l.pollCommands()

	if err := l.deps.Controller.RunTick(); err != nil {
		l.logger.Debug("本 tick 策略执行失败", "error", err)
	}

	for _, f := range l.deps.Flushers {
		if err := f.Flush(); err != nil {
			l.logger.Warn("写出输出失败", "error", err)
		}
	}

	n := l.ticks.Add(1)
	l.monitor()
	if l.deps.OnTick != nil {
		l.deps.OnTick(n)
	}
}

func (l *Loop) pollSensors() {
	for _, s := range l.deps.Sensors {
		e, err := s.Poll()
		if err != nil {
			l.logger.Warn("轮询传感器失败", "error", err)
			continue
		}
		if e != nil {
			l.publish(e)
		}
	}
}

func (l *Loop) pollButtons() {
	if l.deps.Buttons == nil {
		return
	}
	ids, err := l.deps.Buttons.Pressed()
	if err != nil {
		l.logger.Warn("读取按键失败", "error", err)
		return
	}
	for _, id := range ids {
		e, err := event.NewButton(l.deps.Clock.NowMillis(), id)
		if err != nil {
			l.logger.Warn("无效的按键", "id", id, "error", err)
			continue
		}
		l.publish(e)
	}
}

func (l *Loop) pollCommands() {
	if l.deps.Commands == nil {
		return
	}
	for _, e := range l.deps.Commands.Poll() {
		l.publish(e)
	}
}

func (l *Loop) publish(e event.Event) {
	if err := l.deps.Bus.Publish(e); err != nil {
		l.logger.Error("发布事件失败", "kind", e.Kind(), "error", err)
	}
}

// monitor 按间隔记录 Go 运行时的内存使用
func (l *Loop) monitor() {
	if l.cfg.MonitorInterval <= 0 {
		return
	}
	now := l.deps.Clock.NowMillis()
	if now-l.lastMonitor < l.cfg.MonitorInterval.Milliseconds() {
		return
	}
	l.lastMonitor = now

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	l.logger.Info("内存使用",
		"heap_alloc_kb", m.HeapAlloc/1024,
		"heap_sys_kb", m.HeapSys/1024,
		"goroutines", runtime.NumGoroutine(),
		"gc_cycles", m.NumGC,
	)
}

// cleanup 停止电机并关闭所有外设，错误只记录
func (l *Loop) cleanup() {
	if l.deps.Motors != nil {
		if err := l.deps.Motors.Stop(true); err != nil {
			l.logger.Warn("停止电机失败", "error", err)
		}
		if err := l.deps.Motors.Close(); err != nil {
			l.logger.Warn("关闭电机失败", "error", err)
		}
	}
	for _, s := range l.deps.Sensors {
		if err := s.Close(); err != nil {
			l.logger.Warn("关闭传感器失败", "error", err)
		}
	}
	for _, c := range l.deps.Closers {
		if err := c.Close(); err != nil {
			l.logger.Warn("关闭资源失败", "error", err)
		}
	}
}
