package controller

import (
	"errors"
	"io"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/fsm"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/strategy"
	"linefollower-robot/internal/types"
	"log/slog"
	"testing"
)

type stubMotors struct{ stops int }

func (m *stubMotors) Forward(l, r int) error  { return hardware.CheckSpeeds(l, r) }
func (m *stubMotors) Backward(l, r int) error { return hardware.CheckSpeeds(l, r) }
func (m *stubMotors) Stop(bool) error         { m.stops++; return nil }
func (m *stubMotors) Close() error            { return nil }

type recordingOutbound struct{ lines []string }

func (o *recordingOutbound) Enqueue(e event.Exposable) { o.lines = append(o.lines, e.Expose()) }

type harness struct {
	ctrl      *Controller
	bus       *event.Bus
	store     *calibration.Store
	clock     *clock.Manual
	motors    *stubMotors
	outbound  *recordingOutbound
	shutdowns int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		bus:      event.NewBus(logger),
		clock:    clock.NewManual(10_000),
		motors:   &stubMotors{},
		outbound: &recordingOutbound{},
	}
	h.store = calibration.NewStore(h.bus, h.clock, calibration.DefaultConfig(), logger)
	h.ctrl = New(Config{
		StaleAfterMs: event.DefaultStaleAfterMs,
		Orientation:  types.OrientationLeft,
		Strategy:     strategy.DefaultConfig(),
	}, Deps{
		Bus:      h.bus,
		Store:    h.store,
		Motors:   h.motors,
		Clock:    h.clock,
		Outbound: h.outbound,
		Shutdown: func() { h.shutdowns++ },
		Logger:   logger,
	})
	return h
}

func (h *harness) publish(t *testing.T, e event.Event, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("创建事件失败: %v", err)
	}
	if err := h.bus.Publish(e); err != nil {
		t.Fatalf("发布事件失败: %v", err)
	}
}

func (h *harness) command(t *testing.T, c command.Command) {
	t.Helper()
	e, err := event.NewCommand(h.clock.NowMillis(), c)
	h.publish(t, e, err)
}

func TestEndToEnd_LineLostAndRecovered(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(types.StateIdle); err != nil {
		t.Fatal(err)
	}

	h.command(t, command.SwitchState{Target: types.StateAutonomous})
	if h.ctrl.State() != types.StateAutonomous {
		t.Fatalf("预期 AUTONOMOUS, 得到 %s", h.ctrl.State())
	}

	lost, err := event.NewLineStatus(h.clock.NowMillis(), false)
	h.publish(t, lost, err)
	if h.ctrl.StrategyKind() != types.StrategyCircleSearch {
		t.Fatalf("丢线后预期 CIRCLE_SEARCH, 得到 %s", h.ctrl.StrategyKind())
	}

	found, err := event.NewLineStatus(h.clock.NowMillis(), true)
	h.publish(t, found, err)
	lf, ok := h.ctrl.Strategy().(*strategy.LineFollowing)
	if !ok {
		t.Fatalf("找到线条后预期 LINE_FOLLOWING, 得到 %s", h.ctrl.StrategyKind())
	}
	if lf.Algorithm().Kind() != types.AlgorithmPID {
		t.Errorf("预期 PID, 得到 %s", lf.Algorithm().Kind())
	}
}

func TestEndToEnd_SensorDrivesLineStatus(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateAutonomous)

	// 503 离线 -> 存储发布 LineStatus{false} -> 切换到螺旋搜索
	s, err := event.NewSensor(h.clock.NowMillis(), "light", types.SensorLight, 503)
	h.publish(t, s, err)
	if h.ctrl.StrategyKind() != types.StrategyCircleSearch {
		t.Fatalf("预期 CIRCLE_SEARCH, 得到 %s", h.ctrl.StrategyKind())
	}

	want := []string{"NEW_STATE|AUTONOMOUS", "SENSOR|LIGHT|503", "LINE_STATUS|OFF"}
	if len(h.outbound.lines) != len(want) {
		t.Fatalf("预期发出 %v, 得到 %v", want, h.outbound.lines)
	}
	for i := range want {
		if h.outbound.lines[i] != want[i] {
			t.Errorf("第 %d 条预期 %q, 得到 %q", i, want[i], h.outbound.lines[i])
		}
	}
}

func TestStaleEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateIdle)

	e, err := event.NewCommand(h.clock.NowMillis()-1001, command.SwitchState{Target: types.StateManual})
	h.publish(t, e, err)
	if h.ctrl.State() != types.StateIdle {
		t.Errorf("过期指令不应被处理, 当前 %s", h.ctrl.State())
	}

	s, err := event.NewSensor(h.clock.NowMillis()-5000, "light", types.SensorLight, 480)
	h.publish(t, s, err)
	if h.store.LastLight() != calibration.Unknown {
		t.Errorf("过期传感器事件不应进入存储")
	}
}

func TestExitAndEscapeRequestShutdown(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateIdle)

	h.command(t, command.Exit{})
	if h.shutdowns != 1 {
		t.Fatalf("EXIT 应触发退出, 调用 %d 次", h.shutdowns)
	}
	b, err := event.NewButton(h.clock.NowMillis(), types.ButtonEscape)
	h.publish(t, b, err)
	if h.shutdowns != 1 {
		t.Errorf("退出回调只应调用一次, 调用 %d 次", h.shutdowns)
	}
}

func TestOrientCommand(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateIdle)

	h.command(t, command.Orient{Value: types.OrientationRight})
	if h.ctrl.Orientation() != types.OrientationRight {
		t.Fatalf("预期 RIGHT, 得到 %s", h.ctrl.Orientation())
	}
	h.command(t, command.Orient{Value: types.OrientationRight})
	if h.ctrl.Orientation() != types.OrientationRight {
		t.Errorf("重复设置方向不应改变结果")
	}
}

// spyState 包装真实状态，记录 OnEnter / OnExit 调用
type spyState struct {
	fsm.State
	trace *[]string
}

func (s *spyState) OnEnter(ctx fsm.Context) error {
	*s.trace = append(*s.trace, "enter:"+string(s.Kind()))
	return s.State.OnEnter(ctx)
}

func (s *spyState) OnExit(ctx fsm.Context) error {
	*s.trace = append(*s.trace, "exit:"+string(s.Kind()))
	return s.State.OnExit(ctx)
}

func TestIdleToManual_ExitBeforeEnter(t *testing.T) {
	h := newHarness(t)
	var trace []string
	h.ctrl.newState = func(k types.StateKind) (fsm.State, error) {
		s, err := fsm.New(k)
		if err != nil {
			return nil, err
		}
		return &spyState{State: s, trace: &trace}, nil
	}
	_ = h.ctrl.Start(types.StateIdle)
	trace = nil

	h.command(t, command.SwitchState{Target: types.StateManual})
	if h.ctrl.State() != types.StateManual || h.ctrl.StrategyKind() != types.StrategyUserControl {
		t.Fatalf("预期 MANUAL/USER_CONTROL, 得到 %s/%s", h.ctrl.State(), h.ctrl.StrategyKind())
	}
	if len(trace) != 2 || trace[0] != "exit:IDLE" || trace[1] != "enter:MANUAL" {
		t.Errorf("预期 [exit:IDLE enter:MANUAL], 得到 %v", trace)
	}
}

// spyStrategy 记录激活顺序，可以配置为执行失败或 panic
type spyStrategy struct {
	name        string
	trace       *[]string
	activateErr error
	executeErr  error
	panics      bool
	executions  int
}

func (s *spyStrategy) Kind() types.StrategyKind { return types.StrategyKind(s.name) }
func (s *spyStrategy) Activate() error {
	*s.trace = append(*s.trace, "activate:"+s.name)
	return s.activateErr
}
func (s *spyStrategy) Deactivate() error {
	*s.trace = append(*s.trace, "deactivate:"+s.name)
	return nil
}
func (s *spyStrategy) Execute() error {
	s.executions++
	if s.panics {
		panic("boom")
	}
	return s.executeErr
}

func TestSetStrategy_DeactivateBeforeActivate(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateIdle)
	var trace []string
	a := &spyStrategy{name: "A", trace: &trace}
	b := &spyStrategy{name: "B", trace: &trace}

	_ = h.ctrl.SetStrategy(a)
	_ = h.ctrl.SetStrategy(b)
	want := []string{"activate:A", "deactivate:A", "activate:B"}
	if len(trace) != len(want) {
		t.Fatalf("预期 %v, 得到 %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("预期 %v, 得到 %v", want, trace)
		}
	}

	trace = nil
	_ = h.ctrl.SetStrategy(b)
	if len(trace) != 0 {
		t.Errorf("切换到同一实例不应有任何调用, 得到 %v", trace)
	}
}

func TestSetStrategy_ActivationFailureLeavesNone(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateIdle)
	var trace []string
	bad := &spyStrategy{name: "BAD", trace: &trace, activateErr: errors.New("no threshold")}

	if err := h.ctrl.SetStrategy(bad); err == nil {
		t.Fatal("激活失败应返回错误")
	}
	if h.ctrl.Strategy() != nil || h.ctrl.StrategyKind() != types.StrategyNone {
		t.Errorf("激活失败后当前策略应为空")
	}
}

func TestRunTick_IsolatesFailures(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateIdle)
	var trace []string
	s := &spyStrategy{name: "S", trace: &trace, panics: true}
	_ = h.ctrl.SetStrategy(s)

	if err := h.ctrl.RunTick(); !errors.Is(err, ErrStrategyPanic) {
		t.Fatalf("预期 ErrStrategyPanic, 得到 %v", err)
	}
	s.panics = false
	s.executeErr = errors.New("sensor glitch")
	if err := h.ctrl.RunTick(); err == nil {
		t.Fatal("预期返回策略错误")
	}
	if h.ctrl.Strategy() != s {
		t.Errorf("失败的策略不应被自动停用")
	}
	if s.executions != 2 {
		t.Errorf("预期执行 2 次, 得到 %d", s.executions)
	}
}

func TestCalibrationFlowEndsInIdle(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Start(types.StateCalibration)

	step := func(light int, c command.Command) {
		s, err := event.NewSensor(h.clock.NowMillis(), "light", types.SensorLight, light)
		h.publish(t, s, err)
		h.command(t, c)
		h.clock.Advance(1000)
	}
	step(560, command.Calibrate{Step: types.StepFloor})
	step(440, command.Calibrate{Step: types.StepStripe})
	step(440, command.Calibrate{Step: types.StepDone})

	if h.ctrl.State() != types.StateIdle {
		t.Fatalf("预期 IDLE, 得到 %s", h.ctrl.State())
	}
	if h.store.Floor() != 560 || h.store.Stripe() != 440 {
		t.Errorf("标定值错误: floor=%d stripe=%d", h.store.Floor(), h.store.Stripe())
	}
}
