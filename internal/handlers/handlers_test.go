package handlers

import (
	"io"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/types"
	"linefollower-robot/internal/web"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterEventHandlers_UpdatesStatus(t *testing.T) {
	bus := event.NewBus(discardLogger())
	st := web.NewStateTracker("run", "robot", nil)
	if err := RegisterEventHandlers(bus, st, discardLogger()); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if bus.Len() != 3 {
		t.Fatalf("应注册 3 个监听器, 实际 %d", bus.Len())
	}

	cs, _ := event.NewChangeState(0, types.StateAutonomous)
	ls, _ := event.NewLineStatus(0, false)
	_ = bus.Publish(cs)
	_ = bus.Publish(ls)

	snap := st.Snapshot()
	if snap.State != types.StateAutonomous || snap.OnLine {
		t.Fatalf("状态未同步: %+v", snap)
	}

	if err := RegisterEventHandlers(bus, st, discardLogger()); err != nil {
		t.Fatalf("新的监听器实例可以重复注册: %v", err)
	}
}

type fakeController struct{}

func (fakeController) State() types.StateKind           { return types.StateManual }
func (fakeController) StrategyKind() types.StrategyKind { return types.StrategyUserControl }
func (fakeController) Orientation() types.Orientation   { return types.OrientationRight }

type fakeStore struct{ calls int }

func (s *fakeStore) Snapshot() (calibration.Snapshot, error) {
	s.calls++
	return calibration.Snapshot{LastLight: 480, LastDistance: 30, Floor: 555, Stripe: 445, LineEdgeThreshold: 500, OnLine: true}, nil
}

func TestStatusRefresher_Interval(t *testing.T) {
	st := web.NewStateTracker("run", "robot", nil)
	store := &fakeStore{}
	clk := clock.NewManual(0)
	r := NewStatusRefresher(st, fakeController{}, store, clk, 100, discardLogger())

	r.OnTick(1)
	clk.Advance(50)
	r.OnTick(2)
	if store.calls != 1 {
		t.Fatalf("间隔内不应刷新, 实际 %d 次", store.calls)
	}
	clk.Advance(50)
	r.OnTick(3)
	if store.calls != 2 {
		t.Fatalf("间隔到达后应刷新, 实际 %d 次", store.calls)
	}

	snap := st.Snapshot()
	want := web.Status{
		RunID: "run", RobotID: "robot",
		State: types.StateManual, Strategy: types.StrategyUserControl, Orientation: types.OrientationRight,
		LastLight: 480, LastDistance: 30, LineEdgeThreshold: 500, OnLine: true, Floor: 555, Stripe: 445,
		Tick: 3,
	}
	if snap != want {
		t.Fatalf("状态快照错误:\n got  %+v\n want %+v", snap, want)
	}
}
