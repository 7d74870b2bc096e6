package handlers

import (
	"fmt"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/metrics"
	"linefollower-robot/internal/types"
	"linefollower-robot/internal/web"
	"log/slog"
)

// Subscriber 是事件总线的注册接口
type Subscriber interface {
	Subscribe(l event.Listener) error
}

// RegisterEventHandlers 将指标、状态页面和审计日志监听器注册到事件总线
// 需要在控制器启动之后调用，使控制器始终是第一个收到事件的监听器。
func RegisterEventHandlers(bus Subscriber, st *web.StateTracker, logger *slog.Logger) error {
	listeners := []event.Listener{
		&MetricsListener{logger: logger.With("component", "metrics_listener")},
		&StatusListener{tracker: st},
		&AuditListener{logger: logger.With("component", "audit")},
	}
	for _, l := range listeners {
		if err := bus.Subscribe(l); err != nil {
			return fmt.Errorf("注册监听器 %T 失败: %w", l, err)
		}
	}
	return nil
}

// MetricsListener 统计丢线和按键
type MetricsListener struct {
	logger *slog.Logger
}

func (m *MetricsListener) OnEvent(e event.Event) error {
	switch ev := e.(type) {
	case *event.LineStatus:
		if !ev.OnLine() {
			metrics.LineLostTotal.Inc()
		}
	case *event.Button:
		metrics.ButtonPressesTotal.WithLabelValues(ev.ID()).Inc()
		m.logger.Debug("按键已计数", "button", ev.ID())
	}
	return nil
}

// StatusListener 把状态切换和在线状态同步到状态页面
type StatusListener struct {
	tracker *web.StateTracker
}

func (s *StatusListener) OnEvent(e event.Event) error {
	switch ev := e.(type) {
	case *event.ChangeState:
		s.tracker.Update(func(st *web.Status) { st.State = ev.NewState() })
	case *event.LineStatus:
		s.tracker.Update(func(st *web.Status) { st.OnLine = ev.OnLine() })
	}
	return nil
}

// AuditListener 记录关键事件
type AuditListener struct {
	logger *slog.Logger
}

func (a *AuditListener) OnEvent(e event.Event) error {
	switch ev := e.(type) {
	case *event.ChangeState:
		a.logger.Info("状态已切换", "state", ev.NewState())
	case *event.LineStatus:
		if ev.OnLine() {
			a.logger.Info("重新找到线")
		} else {
			a.logger.Warn("丢线")
		}
	case *event.Button:
		a.logger.Info("按键按下", "button", ev.ID())
	case *event.Command:
		a.logger.Info("收到远程指令", "command", ev.Payload().String())
	}
	return nil
}

// ControllerView 是控制器的只读视图
type ControllerView interface {
	State() types.StateKind
	StrategyKind() types.StrategyKind
	Orientation() types.Orientation
}

// StoreView 是标定存储的只读视图
type StoreView interface {
	Snapshot() (calibration.Snapshot, error)
}

// StatusRefresher 按固定间隔把控制器与标定存储的完整状态写入 StateTracker
// 由控制循环的 OnTick 调用。
type StatusRefresher struct {
	tracker    *web.StateTracker
	controller ControllerView
	store      StoreView
	clock      clock.Clock
	intervalMs int64
	logger     *slog.Logger

	refreshed bool
	last      int64
}

func NewStatusRefresher(st *web.StateTracker, c ControllerView, s StoreView, clk clock.Clock, intervalMs int64, logger *slog.Logger) *StatusRefresher {
	return &StatusRefresher{
		tracker:    st,
		controller: c,
		store:      s,
		clock:      clk,
		intervalMs: intervalMs,
		logger:     logger.With("component", "status_refresher"),
	}
}

// OnTick 在间隔到达时刷新一次状态
func (r *StatusRefresher) OnTick(tick uint64) {
	now := r.clock.NowMillis()
	if r.refreshed && now-r.last < r.intervalMs {
		return
	}
	snap, err := r.store.Snapshot()
	if err != nil {
		r.logger.Warn("读取标定快照失败", "error", err)
		return
	}
	r.refreshed = true
	r.last = now

	r.tracker.Update(func(st *web.Status) {
		st.State = r.controller.State()
		st.Strategy = r.controller.StrategyKind()
		st.Orientation = r.controller.Orientation()
		st.LastLight = snap.LastLight
		st.LastDistance = snap.LastDistance
		st.LineEdgeThreshold = snap.LineEdgeThreshold
		st.OnLine = snap.OnLine
		st.Floor = snap.Floor
		st.Stripe = snap.Stripe
		st.Tick = tick
	})
}
