package hardware

import (
	"errors"
	"fmt"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/types"
)

var ErrNegativeSpeed = errors.New("motor speed must not be negative")

// Motors 是左右驱动电机的执行器接口
// 速度是非负的幅值，方向由调用的方法决定。
type Motors interface {
	Forward(left, right int) error
	Backward(left, right int) error
	Stop(hard bool) error
	Close() error
}

// Sensor 是轮询式的原始传感器
type Sensor interface {
	Read() (int, error)
	Close() error
}

// Buttons 返回自上次调用以来被按下的按键 ID
type Buttons interface {
	Pressed() ([]string, error)
}

// CheckSpeeds 校验电机速度，供 Motors 实现使用
func CheckSpeeds(left, right int) error {
	if left < 0 || right < 0 {
		return fmt.Errorf("%w: left=%d right=%d", ErrNegativeSpeed, left, right)
	}
	return nil
}

// Drive 把带符号的轮速映射到 Forward / Backward
// 两轮同向时按对应方向行驶；方向相反时向前行驶，负值按 0 处理。
func Drive(m Motors, left, right int) error {
	switch {
	case left >= 0 && right >= 0:
		return m.Forward(left, right)
	case left <= 0 && right <= 0:
		return m.Backward(-left, -right)
	default:
		return m.Forward(max(left, 0), max(right, 0))
	}
}

// Clamp 把值限制在 [lo, hi] 区间内
func Clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// ReportingSensor 包装原始传感器，只在读数变化足够大时产生事件
// 第一次读取总会产生事件，之后只有 |new-last| >= threshold 时才产生。
type ReportingSensor struct {
	id        string
	kind      types.SensorKind
	sensor    Sensor
	threshold int
	clock     clock.Clock

	last     int
	reported bool
}

func NewReportingSensor(id string, kind types.SensorKind, s Sensor, threshold int, clk clock.Clock) *ReportingSensor {
	return &ReportingSensor{id: id, kind: kind, sensor: s, threshold: threshold, clock: clk}
}

// Poll 读取一次传感器，需要上报时返回事件，否则返回 nil
func (r *ReportingSensor) Poll() (*event.Sensor, error) {
	v, err := r.sensor.Read()
	if err != nil {
		return nil, fmt.Errorf("读取传感器 %s 失败: %w", r.id, err)
	}
	if v < 0 {
		return nil, nil
	}
	if r.reported && abs(v-r.last) < r.threshold {
		return nil, nil
	}
	r.last = v
	r.reported = true
	return event.NewSensor(r.clock.NowMillis(), r.id, r.kind, v)
}

func (r *ReportingSensor) ID() string { return r.id }

func (r *ReportingSensor) Close() error { return r.sensor.Close() }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
