package fsm

import (
	"fmt"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/strategy"
	"linefollower-robot/internal/types"
	"log/slog"
)

// Context 是状态访问控制器的接口
// SetState / SetStrategy 是修改当前状态和策略的唯一入口。
type Context interface {
	SetState(kind types.StateKind) error
	SetStrategy(s strategy.Strategy) error
	Strategy() strategy.Strategy
	Strategies() *strategy.Factory
	Motors() hardware.Motors
	Logger() *slog.Logger
}

// State 定义机器人的高层状态
// 控制器先调用旧状态的 OnExit，再安装新状态并调用其 OnEnter。
type State interface {
	Kind() types.StateKind
	OnEnter(ctx Context) error
	OnExit(ctx Context) error
	HandleEvent(ctx Context, e event.Event) error
}

// New 根据状态类型创建状态实例
func New(kind types.StateKind) (State, error) {
	switch kind {
	case types.StateIdle:
		return &Idle{}, nil
	case types.StateManual:
		return &Manual{}, nil
	case types.StateAutonomous:
		return &Autonomous{}, nil
	case types.StateCalibration:
		return &Calibration{}, nil
	}
	return nil, fmt.Errorf("invalid state: %q", kind)
}

// handleSwitch 处理所有状态共有的 STATE 指令
// 返回 true 表示事件已被处理 (包括切换到当前状态的空操作)。
func handleSwitch(ctx Context, current types.StateKind, e event.Event) (bool, error) {
	ce, ok := e.(*event.Command)
	if !ok {
		return false, nil
	}
	sw, ok := ce.Payload().(command.SwitchState)
	if !ok {
		return false, nil
	}
	if sw.Target == current {
		ctx.Logger().Info("已处于目标状态，忽略切换", "state", current)
		return true, nil
	}
	return true, ctx.SetState(sw.Target)
}

// Idle 空闲状态：电机停止，等待指令
type Idle struct{}

func (s *Idle) Kind() types.StateKind { return types.StateIdle }

func (s *Idle) OnEnter(ctx Context) error {
	ctx.Logger().Info("进入空闲状态")
	return ctx.Motors().Stop(true)
}

func (s *Idle) OnExit(ctx Context) error {
	ctx.Logger().Info("离开空闲状态")
	return nil
}

func (s *Idle) HandleEvent(ctx Context, e event.Event) error {
	_, err := handleSwitch(ctx, s.Kind(), e)
	return err
}

// Manual 遥控状态
type Manual struct{}

func (s *Manual) Kind() types.StateKind { return types.StateManual }

func (s *Manual) OnEnter(ctx Context) error {
	ctx.Logger().Info("进入遥控状态")
	return ctx.SetStrategy(ctx.Strategies().UserControl())
}

func (s *Manual) OnExit(ctx Context) error {
	ctx.Logger().Info("离开遥控状态")
	return stopAndRelease(ctx)
}

func (s *Manual) HandleEvent(ctx Context, e event.Event) error {
	_, err := handleSwitch(ctx, s.Kind(), e)
	return err
}

// Autonomous 自主巡线状态
// 丢线时切换到螺旋搜索策略，重新找到线条后切回巡线策略，状态本身不变。
type Autonomous struct{}

func (s *Autonomous) Kind() types.StateKind { return types.StateAutonomous }

func (s *Autonomous) OnEnter(ctx Context) error {
	ctx.Logger().Info("进入自主巡线状态")
	return s.follow(ctx)
}

func (s *Autonomous) OnExit(ctx Context) error {
	ctx.Logger().Info("离开自主巡线状态")
	return stopAndRelease(ctx)
}

func (s *Autonomous) HandleEvent(ctx Context, e event.Event) error {
	if handled, err := handleSwitch(ctx, s.Kind(), e); handled {
		return err
	}
	ls, ok := e.(*event.LineStatus)
	if !ok {
		return nil
	}
	searching := currentKind(ctx) == types.StrategyCircleSearch
	switch {
	case !ls.OnLine() && !searching:
		ctx.Logger().Info("丢失线条，开始螺旋搜索")
		return ctx.SetStrategy(ctx.Strategies().CircleSearch(func() {
			if err := s.resume(ctx); err != nil {
				ctx.Logger().Error("切回巡线策略失败", "error", err)
			}
		}))
	case ls.OnLine() && searching:
		return s.resume(ctx)
	}
	return nil
}

// resume 在螺旋搜索找到线条后切回巡线策略
func (s *Autonomous) resume(ctx Context) error {
	if currentKind(ctx) != types.StrategyCircleSearch {
		return nil
	}
	ctx.Logger().Info("重新找到线条，恢复巡线")
	return s.follow(ctx)
}

func (s *Autonomous) follow(ctx Context) error {
	lf, err := ctx.Strategies().LineFollowing()
	if err != nil {
		return err
	}
	return ctx.SetStrategy(lf)
}

// Calibration 标定状态
// 标定策略完成后请求切换到空闲状态。
type Calibration struct{}

func (s *Calibration) Kind() types.StateKind { return types.StateCalibration }

func (s *Calibration) OnEnter(ctx Context) error {
	ctx.Logger().Info("进入标定状态")
	if err := ctx.Motors().Stop(true); err != nil {
		return err
	}
	return ctx.SetStrategy(ctx.Strategies().Calibration(func() {
		if err := ctx.SetState(types.StateIdle); err != nil {
			ctx.Logger().Error("标定完成后切换到空闲状态失败", "error", err)
		}
	}))
}

func (s *Calibration) OnExit(ctx Context) error {
	ctx.Logger().Info("离开标定状态")
	return ctx.SetStrategy(nil)
}

func (s *Calibration) HandleEvent(ctx Context, e event.Event) error {
	_, err := handleSwitch(ctx, s.Kind(), e)
	return err
}

func stopAndRelease(ctx Context) error {
	stopErr := ctx.Motors().Stop(true)
	if err := ctx.SetStrategy(nil); err != nil {
		return err
	}
	return stopErr
}

func currentKind(ctx Context) types.StrategyKind {
	if s := ctx.Strategy(); s != nil {
		return s.Kind()
	}
	return types.StrategyNone
}
