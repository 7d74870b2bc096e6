package strategy

import (
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/types"
	"testing"
)

func pressEnter(t *testing.T, f *fixture) {
	t.Helper()
	e, err := event.NewButton(f.clock.NowMillis(), types.ButtonEnter)
	if err != nil {
		t.Fatal(err)
	}
	_ = f.bus.Publish(e)
}

func TestCalibration_FullProtocol(t *testing.T) {
	f := newFixture(t)
	completed := 0
	c := NewCalibration(DefaultConfig(), f.deps, func() { completed++ })
	if err := c.Activate(); err != nil {
		t.Fatal(err)
	}

	// 光线读数未知时拒绝确认，且不占用防抖窗口
	pressEnter(t, f)
	if c.Step() != types.StepFloor {
		t.Fatalf("读数未知时不应前进, 当前 %s", c.Step())
	}

	f.store.light = 560
	pressEnter(t, f)
	if c.Step() != types.StepStripe {
		t.Fatalf("预期进入 STRIPE, 当前 %s", c.Step())
	}

	// 防抖窗口内的确认被忽略
	f.store.light = 440
	f.clock.Advance(500)
	pressEnter(t, f)
	if c.Step() != types.StepStripe {
		t.Fatalf("防抖窗口内不应前进, 当前 %s", c.Step())
	}

	// 步骤不匹配的指令被忽略
	f.clock.Advance(600)
	publishCommand(t, f, f.clock.NowMillis(), command.Calibrate{Step: types.StepFloor})
	if c.Step() != types.StepStripe {
		t.Fatalf("步骤不匹配的指令不应前进, 当前 %s", c.Step())
	}

	publishCommand(t, f, f.clock.NowMillis(), command.Calibrate{Step: types.StepStripe})
	if c.Step() != types.StepDone {
		t.Fatalf("预期进入 DONE, 当前 %s", c.Step())
	}
	if completed != 0 || f.store.updates != 0 {
		t.Fatalf("DONE 确认前不应提交")
	}

	f.clock.Advance(1000)
	pressEnter(t, f)
	if completed != 1 {
		t.Fatalf("预期完成回调调用一次, 得到 %d", completed)
	}
	if f.store.floor != 560 || f.store.stripe != 440 {
		t.Errorf("提交的标定值错误: floor=%d stripe=%d", f.store.floor, f.store.stripe)
	}
	if f.store.threshold != 500 {
		t.Errorf("预期阈值 500, 得到 %d", f.store.threshold)
	}
}

func TestCalibration_IgnoresEventsWhenInactive(t *testing.T) {
	f := newFixture(t)
	c := NewCalibration(DefaultConfig(), f.deps, nil)
	_ = c.Activate()
	_ = c.Deactivate()
	if f.bus.Len() != 0 {
		t.Fatalf("停用后应取消订阅")
	}

	f.store.light = 555
	if err := c.OnEvent(mustButton(t, f)); err != nil {
		t.Fatal(err)
	}
	if c.Step() != types.StepFloor {
		t.Errorf("停用后不应响应确认")
	}
}

func TestCalibration_IgnoresStaleConfirm(t *testing.T) {
	f := newFixture(t)
	c := NewCalibration(DefaultConfig(), f.deps, nil)
	_ = c.Activate()
	f.store.light = 555

	e, _ := event.NewButton(f.clock.NowMillis()-5000, types.ButtonEnter)
	_ = f.bus.Publish(e)
	if c.Step() != types.StepFloor {
		t.Errorf("过期的按键不应推进标定")
	}
}

func mustButton(t *testing.T, f *fixture) *event.Button {
	t.Helper()
	e, err := event.NewButton(f.clock.NowMillis(), types.ButtonEnter)
	if err != nil {
		t.Fatal(err)
	}
	return e
}
