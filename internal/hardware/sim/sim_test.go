package sim

import (
	"errors"
	"io"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/hardware"
	"log/slog"
	"testing"
)

func TestTrack_LightFollowsPosition(t *testing.T) {
	clk := clock.NewManual(0)
	m := NewMotors(slog.New(slog.NewTextHandler(io.Discard, nil)))
	track := NewTrack(m, clk, 555, 445)
	sensor := track.LightSensor()

	if v, _ := sensor.Read(); v != 500 {
		t.Errorf("线条边缘处预期 500, 得到 %d", v)
	}
	track.SetPosition(-50)
	if v, _ := sensor.Read(); v != 445 {
		t.Errorf("线条上预期 445, 得到 %d", v)
	}
	track.SetPosition(50)
	if v, _ := sensor.Read(); v != 555 {
		t.Errorf("地面上预期 555, 得到 %d", v)
	}

	// 右轮较快时远离线条 (x 增大)
	track.SetPosition(0)
	_ = m.Forward(100, 300)
	clk.Advance(100)
	if v, _ := sensor.Read(); v <= 500 {
		t.Errorf("右轮较快时读数应增大, 得到 %d", v)
	}
}

func TestMotors_RejectNegativeAndClosed(t *testing.T) {
	m := NewMotors(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := m.Forward(-1, 0); !errors.Is(err, hardware.ErrNegativeSpeed) {
		t.Errorf("预期 ErrNegativeSpeed, 得到 %v", err)
	}
	_ = m.Backward(10, 20)
	if l, r := m.Speeds(); l != -10 || r != -20 {
		t.Errorf("后退速度应为负值, 得到 %d %d", l, r)
	}
	_ = m.Close()
	if err := m.Forward(1, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("关闭后预期 ErrClosed, 得到 %v", err)
	}
}

func TestButtons_Drain(t *testing.T) {
	b := NewButtons()
	b.Press("ENTER")
	b.Press("ESCAPE")
	got, _ := b.Pressed()
	if len(got) != 2 || got[0] != "ENTER" {
		t.Fatalf("按键顺序错误: %v", got)
	}
	if again, _ := b.Pressed(); len(again) != 0 {
		t.Errorf("读取后队列应为空")
	}
}
