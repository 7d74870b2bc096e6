package controller

import (
	"errors"
	"fmt"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/fsm"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/metrics"
	"linefollower-robot/internal/strategy"
	"linefollower-robot/internal/types"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrNotStarted     = errors.New("controller not started")
	ErrStrategyPanic  = errors.New("strategy panicked")
	ErrAlreadyStarted = errors.New("controller already started")
)

// Outbound 接收需要通过远程通道发出的事件，*remote.Transmitter 实现了它
type Outbound interface {
	Enqueue(e event.Exposable)
}

// Config 控制器参数
type Config struct {
	StaleAfterMs int64
	Orientation  types.Orientation
	Strategy     strategy.Config
}

// Deps 控制器依赖
type Deps struct {
	Bus      *event.Bus
	Store    *calibration.Store
	Motors   hardware.Motors
	Clock    clock.Clock
	Outbound Outbound // 可以为 nil
	Shutdown func()   // 收到 EXIT 指令或 ESCAPE 按键时调用
	Logger   *slog.Logger
}

// Controller 持有当前状态和当前策略，是所有事件的唯一入口
// state / strategy 只由控制循环 goroutine 读写；
// stateKind / strategyKind / orientation 是原子值，供状态服务器读取。
type Controller struct {
	bus        *event.Bus
	store      *calibration.Store
	motors     hardware.Motors
	clock      clock.Clock
	outbound   Outbound
	factory    *strategy.Factory
	staleAfter int64
	logger     *slog.Logger

	newState func(types.StateKind) (fsm.State, error)

	started      bool
	state        fsm.State
	strategy     strategy.Strategy
	stateKind    atomic.Value // types.StateKind
	strategyKind atomic.Value // types.StrategyKind
	orientation  atomic.Value // types.Orientation

	shutdown     func()
	shutdownOnce sync.Once
}

// New 创建控制器，Start 之前不处理事件
func New(cfg Config, deps Deps) *Controller {
	c := &Controller{
		bus:        deps.Bus,
		store:      deps.Store,
		motors:     deps.Motors,
		clock:      deps.Clock,
		outbound:   deps.Outbound,
		staleAfter: cfg.StaleAfterMs,
		shutdown:   deps.Shutdown,
		logger:     deps.Logger.With("component", "controller"),
		newState:   fsm.New,
	}
	if c.staleAfter <= 0 {
		c.staleAfter = event.DefaultStaleAfterMs
	}
	orientation := cfg.Orientation
	if orientation == "" {
		orientation = types.OrientationLeft
	}
	c.orientation.Store(orientation)
	c.stateKind.Store(types.StateKind(""))
	c.strategyKind.Store(types.StrategyNone)

	c.factory = strategy.NewFactory(cfg.Strategy, strategy.Deps{
		Motors:      deps.Motors,
		Store:       deps.Store,
		Bus:         deps.Bus,
		Clock:       deps.Clock,
		Orientation: c.Orientation,
		Logger:      deps.Logger,
	})
	return c
}

// Start 把控制器注册为事件总线的第一个监听器，并进入初始状态
func (c *Controller) Start(initial types.StateKind) error {
	if c.started {
		return ErrAlreadyStarted
	}
	if err := c.bus.Subscribe(c); err != nil {
		return fmt.Errorf("注册控制器监听器失败: %w", err)
	}
	c.started = true
	c.logger.Info("控制器已启动", "initial_state", initial, "orientation", c.Orientation())
	return c.SetState(initial)
}

// OnEvent 处理总线上的每个事件
func (c *Controller) OnEvent(e event.Event) error {
	if c.state == nil {
		return ErrNotStarted
	}
	now := c.clock.NowMillis()
	if event.IsStale(e, now, c.staleAfter) {
		metrics.EventsStaleTotal.Inc()
		c.logger.Warn("丢弃过期事件", "event", e.Kind(), "age_ms", now-e.Timestamp())
		return nil
	}

	if x, ok := e.(event.Exposable); ok && c.outbound != nil {
		c.outbound.Enqueue(x)
	}

	switch ev := e.(type) {
	case *event.Sensor:
		c.store.Ingest(ev)
	case *event.Button:
		if ev.ID() == types.ButtonEscape {
			c.requestShutdown("escape button")
			return nil
		}
	case *event.Command:
		switch cmd := ev.Payload().(type) {
		case command.Exit:
			c.requestShutdown("exit command")
			return nil
		case command.Orient:
			c.setOrientation(cmd.Value)
		}
	}

	return c.state.HandleEvent(c, e)
}

func (c *Controller) requestShutdown(reason string) {
	c.shutdownOnce.Do(func() {
		c.logger.Info("收到退出请求", "reason", reason)
		if c.shutdown != nil {
			c.shutdown()
		}
	})
}

func (c *Controller) setOrientation(o types.Orientation) {
	if c.Orientation() == o {
		c.logger.Warn("巡线方向未变化", "orientation", o)
		return
	}
	c.orientation.Store(o)
	c.logger.Info("巡线方向已更新", "orientation", o)
}

// RunTick 执行当前策略的一步，错误和 panic 都在这里被捕获
// 失败的策略不会被自动停用。
func (c *Controller) RunTick() (err error) {
	s := c.strategy
	if s == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.StrategyErrorsTotal.Inc()
			c.logger.Error("策略执行时 panic", "strategy", s.Kind(), "panic", r)
			err = fmt.Errorf("%w: %v", ErrStrategyPanic, r)
		}
	}()
	if err := s.Execute(); err != nil {
		metrics.StrategyErrorsTotal.Inc()
		c.logger.Error("策略执行失败", "strategy", s.Kind(), "error", err)
		return err
	}
	return nil
}

// SetState 切换到目标状态：旧状态 OnExit -> 安装新状态 -> 新状态 OnEnter -> 发布 ChangeState
func (c *Controller) SetState(kind types.StateKind) error {
	next, err := c.newState(kind)
	if err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidState, err)
	}

	prev := c.state
	if prev != nil {
		if err := prev.OnExit(c); err != nil {
			c.logger.Error("退出状态失败", "state", prev.Kind(), "error", err)
		}
	}
	c.state = next
	c.stateKind.Store(kind)
	metrics.StateTransitionsTotal.WithLabelValues(string(kind)).Inc()
	if prev != nil {
		c.logger.Info("状态切换", "from", prev.Kind(), "to", kind)
	}

	enterErr := next.OnEnter(c)
	if enterErr != nil {
		c.logger.Error("进入状态失败", "state", kind, "error", enterErr)
	}

	ev, err := event.NewChangeState(c.clock.NowMillis(), kind)
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ev); err != nil {
		c.logger.Error("发布状态切换事件失败", "error", err)
	}
	return enterErr
}

// SetStrategy 停用旧策略后激活新策略，传入当前策略本身时不做任何事
// 激活失败时当前策略为空。
func (c *Controller) SetStrategy(s strategy.Strategy) error {
	if s == c.strategy {
		return nil
	}
	if old := c.strategy; old != nil {
		if err := old.Deactivate(); err != nil {
			c.logger.Error("停用策略失败", "strategy", old.Kind(), "error", err)
		}
	}
	c.strategy = nil
	c.strategyKind.Store(types.StrategyNone)
	if s == nil {
		return nil
	}

	c.strategy = s
	c.strategyKind.Store(s.Kind())
	if err := s.Activate(); err != nil {
		c.strategy = nil
		c.strategyKind.Store(types.StrategyNone)
		c.logger.Error("激活策略失败", "strategy", s.Kind(), "error", err)
		return fmt.Errorf("激活策略 %s 失败: %w", s.Kind(), err)
	}
	metrics.StrategySwitchesTotal.WithLabelValues(string(s.Kind())).Inc()
	return nil
}

func (c *Controller) Strategy() strategy.Strategy   { return c.strategy }
func (c *Controller) Strategies() *strategy.Factory { return c.factory }
func (c *Controller) Motors() hardware.Motors       { return c.motors }
func (c *Controller) Logger() *slog.Logger          { return c.logger }
func (c *Controller) Store() *calibration.Store     { return c.store }

// State 返回当前状态类型，可以从任意 goroutine 调用
func (c *Controller) State() types.StateKind { return c.stateKind.Load().(types.StateKind) }

// StrategyKind 返回当前策略类型，可以从任意 goroutine 调用
func (c *Controller) StrategyKind() types.StrategyKind {
	return c.strategyKind.Load().(types.StrategyKind)
}

// Orientation 返回当前巡线方向，可以从任意 goroutine 调用
func (c *Controller) Orientation() types.Orientation {
	return c.orientation.Load().(types.Orientation)
}

// MultiOutbound 把同一个事件依次交给多个 Outbound (例如远程发送端与日志文件)
type MultiOutbound []Outbound

func (m MultiOutbound) Enqueue(e event.Exposable) {
	for _, o := range m {
		if o != nil {
			o.Enqueue(e)
		}
	}
}
