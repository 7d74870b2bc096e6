package strategy

import (
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/types"
	"log/slog"
)

// ZigZag 是开关式的巡线算法，比 PID 计算量更小
type ZigZag struct {
	cfg    Config
	motors hardware.Motors
	store  Store
	logger *slog.Logger

	searchRight bool
}

func NewZigZag(cfg Config, deps Deps) *ZigZag {
	return &ZigZag{
		cfg:         cfg,
		motors:      deps.Motors,
		store:       deps.Store,
		logger:      deps.Logger.With("component", "zigzag"),
		searchRight: true,
	}
}

func (z *ZigZag) Kind() types.AlgorithmKind { return types.AlgorithmZigZag }

func (z *ZigZag) Initialize() error {
	z.searchRight = true
	z.logger.Info("ZigZag 已初始化")
	return z.motors.Stop(true)
}

func (z *ZigZag) Deinitialize() error {
	return z.motors.Stop(true)
}

func (z *ZigZag) Run() error {
	light := z.store.LastLight()
	if light == calibration.Unknown {
		return nil
	}
	fast := z.cfg.MinSpeed
	slow := fast / z.cfg.TurnFactor

	if light > z.cfg.StripeEdge {
		// 越过线条边缘，换向
		if z.searchRight {
			z.searchRight = false
			return z.motors.Forward(slow, fast)
		}
		z.searchRight = true
		return z.motors.Forward(fast, slow)
	}
	if z.searchRight {
		return z.motors.Forward(fast, slow)
	}
	return z.motors.Forward(slow, fast)
}
