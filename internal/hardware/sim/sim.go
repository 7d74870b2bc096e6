// Package sim 提供在开发机上运行用的模拟电机、传感器和按键
package sim

import (
	"errors"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/hardware"
	"log/slog"
	"sync"
)

var ErrClosed = errors.New("device closed")

// Motors 记录最后一次指令的模拟电机
// 后退速度以负值保存，Track 据此计算位移。
type Motors struct {
	mu     sync.Mutex
	left   int
	right  int
	closed bool
	logger *slog.Logger
}

func NewMotors(logger *slog.Logger) *Motors {
	return &Motors{logger: logger.With("component", "sim_motors")}
}

func (m *Motors) Forward(left, right int) error {
	return m.set(left, right, 1)
}

func (m *Motors) Backward(left, right int) error {
	return m.set(left, right, -1)
}

func (m *Motors) set(left, right, dir int) error {
	if err := hardware.CheckSpeeds(left, right); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.left, m.right = dir*left, dir*right
	return nil
}

func (m *Motors) Stop(hard bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left, m.right = 0, 0
	return nil
}

func (m *Motors) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.left, m.right = 0, 0
	m.logger.Info("模拟电机已关闭")
	return nil
}

// Speeds 返回当前带符号的左右轮速
func (m *Motors) Speeds() (left, right int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.left, m.right
}

// Track 是一维的巡线场地模型
// x=0 是线条边缘，x<0 在线条上 (暗)，x>0 在地面上 (亮)，中间线性过渡。
type Track struct {
	mu       sync.Mutex
	motors   *Motors
	clock    clock.Clock
	floor    int
	stripe   int
	width    float64 // 过渡带宽度
	gain     float64 // 每毫秒、每单位轮速差产生的位移
	x        float64
	lastMs   int64
	distance int
}

// NewTrack 创建场地模型，机器人初始位于线条边缘
func NewTrack(m *Motors, clk clock.Clock, floor, stripe int) *Track {
	return &Track{
		motors:   m,
		clock:    clk,
		floor:    floor,
		stripe:   stripe,
		width:    20,
		gain:     0.0005,
		lastMs:   clk.NowMillis(),
		distance: 255,
	}
}

// advance 根据上次读取以来的时间和轮速差移动机器人
func (t *Track) advance() {
	now := t.clock.NowMillis()
	dt := float64(now - t.lastMs)
	t.lastMs = now
	l, r := t.motors.Speeds()
	t.x += float64(r-l) * t.gain * dt
}

func (t *Track) light() int {
	half := t.width / 2
	switch {
	case t.x <= -half:
		return t.stripe
	case t.x >= half:
		return t.floor
	}
	ratio := (t.x + half) / t.width
	return t.stripe + int(ratio*float64(t.floor-t.stripe))
}

// SetPosition 把机器人放到 x 位置
func (t *Track) SetPosition(x float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.x = x
}

// SetDistance 设置前方障碍物距离
func (t *Track) SetDistance(d int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.distance = d
}

// LightSensor 返回读取 Track 亮度的模拟光线传感器
func (t *Track) LightSensor() hardware.Sensor { return &lightSensor{t} }

// DistanceSensor 返回读取 Track 障碍物距离的模拟超声波传感器
func (t *Track) DistanceSensor() hardware.Sensor { return &distanceSensor{t} }

type lightSensor struct{ t *Track }

func (s *lightSensor) Read() (int, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.advance()
	return s.t.light(), nil
}

func (s *lightSensor) Close() error { return nil }

type distanceSensor struct{ t *Track }

func (s *distanceSensor) Read() (int, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.t.distance, nil
}

func (s *distanceSensor) Close() error { return nil }

// Buttons 是按键队列，Press 可以从任意 goroutine 调用
type Buttons struct {
	mu      sync.Mutex
	pending []string
}

func NewButtons() *Buttons { return &Buttons{} }

func (b *Buttons) Press(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, id)
}

func (b *Buttons) Pressed() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out, nil
}
