package strategy

import (
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/types"
	"log/slog"
)

type circlePhase int

const (
	phaseDriving circlePhase = iota
	phasePausing
	phaseFound
	phaseExhausted
)

// CircleSearch 在丢线后以逐渐扩大的圆弧寻找线条
// 每个 tick 只推进一步：记录当前半径、阶段和阶段开始时间，不在 Execute 中等待。
type CircleSearch struct {
	cfg     Config
	motors  hardware.Motors
	store   Store
	clock   clock.Clock
	onFound func()
	logger  *slog.Logger

	active     bool
	radius     int
	phase      circlePhase
	phaseStart int64
}

// NewCircleSearch 创建螺旋搜索策略，找到线条时调用 onFound (可以为 nil)
func NewCircleSearch(cfg Config, deps Deps, onFound func()) *CircleSearch {
	return &CircleSearch{
		cfg:     cfg,
		motors:  deps.Motors,
		store:   deps.Store,
		clock:   deps.Clock,
		onFound: onFound,
		logger:  deps.Logger.With("component", "circle_search"),
	}
}

func (c *CircleSearch) Kind() types.StrategyKind { return types.StrategyCircleSearch }

func (c *CircleSearch) Activate() error {
	c.active = true
	c.radius = 0
	c.phase = phaseDriving
	c.phaseStart = c.clock.NowMillis()
	c.logger.Info("螺旋搜索已激活")
	return c.motors.Stop(true)
}

func (c *CircleSearch) Deactivate() error {
	c.active = false
	c.logger.Info("螺旋搜索已停用", "radius", c.radius)
	return c.motors.Stop(true)
}

// Radius 返回当前搜索半径
func (c *CircleSearch) Radius() int { return c.radius }

// Exhausted 表示所有半径都已搜索完毕
func (c *CircleSearch) Exhausted() bool { return c.phase == phaseExhausted }

// Found 表示已经重新找到线条
func (c *CircleSearch) Found() bool { return c.phase == phaseFound }

func (c *CircleSearch) duration(radius int) int64 {
	return c.cfg.BaseDurationMs + int64(radius)*c.cfg.IncrementMs
}

func (c *CircleSearch) Execute() error {
	if !c.active {
		return nil
	}
	now := c.clock.NowMillis()

	switch c.phase {
	case phaseDriving:
		if c.lineVisible() {
			c.phase = phaseFound
			c.logger.Info("重新找到线条", "radius", c.radius)
			if c.onFound != nil {
				c.onFound()
			}
			return nil
		}
		if now-c.phaseStart >= c.duration(c.radius) {
			c.phase = phasePausing
			c.phaseStart = now
			return c.motors.Stop(true)
		}
		return c.motors.Forward(c.cfg.MinSpeed, c.cfg.MaxSpeed)

	case phasePausing:
		if now-c.phaseStart < c.cfg.PauseMs {
			return nil
		}
		c.radius++
		if c.radius >= c.cfg.MaxRadius {
			c.phase = phaseExhausted
			c.logger.Warn("螺旋搜索未找到线条", "max_radius", c.cfg.MaxRadius)
			return c.motors.Stop(true)
		}
		c.phase = phaseDriving
		c.phaseStart = now
		return c.motors.Forward(c.cfg.MinSpeed, c.cfg.MaxSpeed)
	}
	return nil
}

func (c *CircleSearch) lineVisible() bool {
	light := c.store.LastLight()
	if light == calibration.Unknown {
		return false
	}
	d := light - c.store.LineEdgeThreshold()
	return d <= c.cfg.Tolerance && d >= -c.cfg.Tolerance
}
