package strategy

import (
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/types"
	"log/slog"
	"math"
)

// UserControl 把远程 MOVE 指令直接转换为电机速度
// 激活期间它是事件总线上的监听器。
type UserControl struct {
	cfg    Config
	motors hardware.Motors
	bus    Subscriber
	clock  clock.Clock
	logger *slog.Logger

	active bool
}

func NewUserControl(cfg Config, deps Deps) *UserControl {
	return &UserControl{
		cfg:    cfg,
		motors: deps.Motors,
		bus:    deps.Bus,
		clock:  deps.Clock,
		logger: deps.Logger.With("component", "user_control"),
	}
}

func (u *UserControl) Kind() types.StrategyKind { return types.StrategyUserControl }

func (u *UserControl) Activate() error {
	if err := u.bus.Subscribe(u); err != nil {
		return err
	}
	u.active = true
	u.logger.Info("遥控策略已激活")
	return nil
}

func (u *UserControl) Deactivate() error {
	u.active = false
	err := u.bus.Unsubscribe(u)
	if stopErr := u.motors.Stop(true); err == nil {
		err = stopErr
	}
	u.logger.Info("遥控策略已停用")
	return err
}

// Execute 不做任何事，遥控指令在 OnEvent 中处理
func (u *UserControl) Execute() error { return nil }

func (u *UserControl) OnEvent(e event.Event) error {
	if !u.active || event.IsStale(e, u.clock.NowMillis(), u.cfg.StaleAfterMs) {
		return nil
	}
	ce, ok := e.(*event.Command)
	if !ok {
		return nil
	}
	move, ok := ce.Payload().(command.Move)
	if !ok {
		return nil
	}
	left, right := u.differential(move)
	return hardware.Drive(u.motors, left, right)
}

// differential 把速度和转向角 (度) 转换为左右轮速，小数部分向零截断
func (u *UserControl) differential(m command.Move) (left, right int) {
	rad := float64(m.TurnAngle) * math.Pi / 180
	forward := math.Cos(rad) * float64(m.Speed)
	lateral := math.Sin(rad) * float64(m.Speed)
	left = int(forward - lateral)
	right = int(forward + lateral)
	return hardware.Clamp(left, -u.cfg.MaxSpeed, u.cfg.MaxSpeed), hardware.Clamp(right, -u.cfg.MaxSpeed, u.cfg.MaxSpeed)
}
