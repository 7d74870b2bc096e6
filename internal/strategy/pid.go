package strategy

import (
	"fmt"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/types"
	"log/slog"
	"math"
)

// PID 是基于光线读数的 PID 巡线算法
// 设定值在初始化时从 Store 读取当前的线边缘阈值。
type PID struct {
	cfg         Config
	motors      hardware.Motors
	store       Store
	orientation func() types.Orientation
	logger      *slog.Logger

	active   bool
	setpoint int
	integral float64
	prevErr  float64
}

func NewPID(cfg Config, deps Deps) *PID {
	return &PID{
		cfg:         cfg,
		motors:      deps.Motors,
		store:       deps.Store,
		orientation: deps.Orientation,
		logger:      deps.Logger.With("component", "pid"),
	}
}

func (p *PID) Kind() types.AlgorithmKind { return types.AlgorithmPID }

func (p *PID) Initialize() error {
	setpoint := p.store.LineEdgeThreshold()
	if setpoint < 0 {
		return fmt.Errorf("%w: %d", ErrThresholdUnset, setpoint)
	}
	p.setpoint = setpoint
	p.integral = 0
	p.prevErr = 0
	p.active = true
	p.logger.Info("PID 已初始化", "setpoint", setpoint)
	return p.motors.Stop(true)
}

func (p *PID) Deinitialize() error {
	p.active = false
	return p.motors.Stop(true)
}

func (p *PID) Run() error {
	if !p.active {
		p.logger.Warn("PID 未初始化")
		return nil
	}
	light := p.store.LastLight()
	if light == calibration.Unknown {
		return nil
	}

	turn := p.turn(light)
	distance := p.store.LastDistance()
	if distance != calibration.Unknown && distance < p.cfg.StopDistance {
		return p.motors.Stop(true)
	}
	left, right := p.wheelSpeeds(turn, distance)
	return p.motors.Forward(left, right)
}

// turn 计算一步 PID 输出
func (p *PID) turn(light int) int {
	e := float64(p.setpoint - light)
	p.integral += e
	derivative := e - p.prevErr
	p.prevErr = e
	return int(p.cfg.Kp*e + p.cfg.Ki*p.integral + p.cfg.Kd*derivative)
}

// wheelSpeeds 根据转向值、巡线方向和前方距离计算左右轮速
// 距离小于停车距离时两轮都为 0；结果限制在 [0, MaxSpeed]。
func (p *PID) wheelSpeeds(turn, distance int) (left, right int) {
	reduction := math.Abs(float64(turn)) * p.cfg.TurnReduction
	target := hardware.Clamp(int(float64(p.cfg.MaxSpeed)-reduction), p.cfg.MinSpeed, p.cfg.MaxSpeed)

	if p.orientation() == types.OrientationRight {
		left, right = target+turn, target-turn
	} else {
		left, right = target-turn, target+turn
	}

	switch {
	case distance == calibration.Unknown:
	case distance < p.cfg.StopDistance:
		return 0, 0
	case distance < p.cfg.SlowDownDistance:
		f := p.collisionReduction(distance)
		left = int(float64(left) * f)
		right = int(float64(right) * f)
	}
	return hardware.Clamp(left, 0, p.cfg.MaxSpeed), hardware.Clamp(right, 0, p.cfg.MaxSpeed)
}

// collisionReduction 在减速区内线性插值：减速边界处为 1，停车边界处为 CollisionFactor
func (p *PID) collisionReduction(distance int) float64 {
	span := float64(p.cfg.SlowDownDistance - p.cfg.StopDistance)
	ratio := float64(p.cfg.SlowDownDistance-distance) / span
	return 1 - (1-p.cfg.CollisionFactor)*ratio
}
