package strategy

import (
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/types"
	"log/slog"
)

// Calibration 驱动标定流程：FLOOR -> STRIPE -> DONE
// 每一步由 ENTER 按键或匹配的 CALIBRATE 指令确认，两次确认之间至少间隔 DebounceMs。
// DONE 确认后把标定值写入 Store 并调用 onComplete。
type Calibration struct {
	cfg        Config
	store      Store
	bus        Subscriber
	clock      clock.Clock
	onComplete func()
	logger     *slog.Logger

	active       bool
	step         types.CalibrationStep
	floor        int
	stripe       int
	accepted     bool
	lastAccepted int64
}

func NewCalibration(cfg Config, deps Deps, onComplete func()) *Calibration {
	return &Calibration{
		cfg:        cfg,
		store:      deps.Store,
		bus:        deps.Bus,
		clock:      deps.Clock,
		onComplete: onComplete,
		logger:     deps.Logger.With("component", "calibration"),
		step:       types.StepFloor,
		floor:      calibration.Unknown,
		stripe:     calibration.Unknown,
	}
}

func (c *Calibration) Kind() types.StrategyKind { return types.StrategyCalibration }

// Step 返回当前等待确认的步骤
func (c *Calibration) Step() types.CalibrationStep { return c.step }

func (c *Calibration) Activate() error {
	if err := c.bus.Subscribe(c); err != nil {
		return err
	}
	c.active = true
	c.logger.Info("标定已开始，请把传感器放在地面上并确认", "step", c.step)
	return nil
}

func (c *Calibration) Deactivate() error {
	c.active = false
	return c.bus.Unsubscribe(c)
}

// Execute 不做任何事，标定由确认事件推进
func (c *Calibration) Execute() error { return nil }

func (c *Calibration) OnEvent(e event.Event) error {
	if !c.active || event.IsStale(e, c.clock.NowMillis(), c.cfg.StaleAfterMs) {
		return nil
	}
	switch ev := e.(type) {
	case *event.Button:
		if ev.ID() == types.ButtonEnter {
			return c.confirm()
		}
	case *event.Command:
		cmd, ok := ev.Payload().(command.Calibrate)
		if !ok {
			return nil
		}
		if cmd.Step != c.step {
			c.logger.Warn("标定步骤不匹配，忽略指令", "command_step", cmd.Step, "current_step", c.step)
			return nil
		}
		return c.confirm()
	}
	return nil
}

func (c *Calibration) confirm() error {
	now := c.clock.NowMillis()
	if c.accepted && now-c.lastAccepted < c.cfg.DebounceMs {
		c.logger.Debug("确认过于频繁，已忽略", "step", c.step)
		return nil
	}

	light := c.store.LastLight()
	if c.step != types.StepDone && light == calibration.Unknown {
		c.logger.Warn("光线读数未知，无法确认标定步骤", "step", c.step)
		return nil
	}
	c.accepted = true
	c.lastAccepted = now

	switch c.step {
	case types.StepFloor:
		c.floor = light
		c.step = types.StepStripe
		c.logger.Info("已记录地面亮度，请把传感器放在线条上并确认", "floor", light)
	case types.StepStripe:
		c.stripe = light
		c.step = types.StepDone
		c.logger.Info("已记录线条亮度，再次确认以提交", "floor", c.floor, "stripe", light)
	case types.StepDone:
		if err := c.store.UpdateCalibration(c.floor, c.stripe); err != nil {
			return err
		}
		c.logger.Info("标定完成", "floor", c.floor, "stripe", c.stripe)
		if c.onComplete != nil {
			c.onComplete()
		}
	}
	return nil
}
