package strategy

import (
	"errors"
	"fmt"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/types"
	"log/slog"
)

var (
	ErrThresholdUnset   = errors.New("line edge threshold is not set")
	ErrUnknownAlgorithm = errors.New("unknown line following algorithm")
)

// Strategy 是当前生效的驾驶策略
// 同一时刻只有一个策略处于激活状态，由控制器负责切换：
// 旧策略的 Deactivate 完成后才会调用新策略的 Activate。
type Strategy interface {
	Kind() types.StrategyKind
	Activate() error
	Deactivate() error
	// Execute 每个 tick 调用一次，必须在常数时间内返回
	Execute() error
}

// Algorithm 是巡线策略内部使用的算法
type Algorithm interface {
	Kind() types.AlgorithmKind
	Initialize() error
	Deinitialize() error
	Run() error
}

// Store 是策略读取传感器状态所需的接口，由 *calibration.Store 实现
type Store interface {
	LastLight() int
	LastDistance() int
	LineEdgeThreshold() int
	UpdateCalibration(floor, stripe int) error
}

// Subscriber 用于需要监听事件总线的策略，由 *event.Bus 实现
type Subscriber interface {
	Subscribe(l event.Listener) error
	Unsubscribe(l event.Listener) error
}

// Config 汇总所有策略的参数
type Config struct {
	MinSpeed   int
	MaxSpeed   int
	TurnFactor int
	StripeEdge int

	Kp              float64
	Ki              float64
	Kd              float64
	TurnReduction   float64
	CollisionFactor float64

	StopDistance     int
	SlowDownDistance int

	MaxRadius      int
	BaseDurationMs int64
	IncrementMs    int64
	PauseMs        int64
	Tolerance      int

	DebounceMs   int64
	StaleAfterMs int64

	Algorithm types.AlgorithmKind
}

// DefaultConfig 返回出厂参数
func DefaultConfig() Config {
	return Config{
		MinSpeed:         300,
		MaxSpeed:         720,
		TurnFactor:       2,
		StripeEdge:       50,
		Kp:               10,
		Ki:               0,
		Kd:               20,
		TurnReduction:    1.5,
		CollisionFactor:  0.5,
		StopDistance:     25,
		SlowDownDistance: 50,
		MaxRadius:        5,
		BaseDurationMs:   1000,
		IncrementMs:      500,
		PauseMs:          200,
		Tolerance:        2,
		DebounceMs:       1000,
		StaleAfterMs:     event.DefaultStaleAfterMs,
		Algorithm:        types.AlgorithmPID,
	}
}

// Deps 是策略共享的依赖
type Deps struct {
	Motors      hardware.Motors
	Store       Store
	Bus         Subscriber
	Clock       clock.Clock
	Orientation func() types.Orientation
	Logger      *slog.Logger
}

// Factory 根据配置创建策略实例
type Factory struct {
	cfg  Config
	deps Deps
}

func NewFactory(cfg Config, deps Deps) *Factory {
	return &Factory{cfg: cfg, deps: deps}
}

// Algorithm 创建指定的巡线算法
func (f *Factory) Algorithm(kind types.AlgorithmKind) (Algorithm, error) {
	switch kind {
	case types.AlgorithmPID:
		return NewPID(f.cfg, f.deps), nil
	case types.AlgorithmZigZag:
		return NewZigZag(f.cfg, f.deps), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, kind)
}

// LineFollowing 创建使用配置算法的巡线策略
func (f *Factory) LineFollowing() (*LineFollowing, error) {
	alg, err := f.Algorithm(f.cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	return NewLineFollowing(alg, f.deps.Logger), nil
}

func (f *Factory) CircleSearch(onFound func()) *CircleSearch {
	return NewCircleSearch(f.cfg, f.deps, onFound)
}

func (f *Factory) UserControl() *UserControl {
	return NewUserControl(f.cfg, f.deps)
}

func (f *Factory) Calibration(onComplete func()) *Calibration {
	return NewCalibration(f.cfg, f.deps, onComplete)
}

// LineFollowing 是巡线策略，把每个 tick 交给内部算法
type LineFollowing struct {
	alg    Algorithm
	logger *slog.Logger
}

func NewLineFollowing(alg Algorithm, logger *slog.Logger) *LineFollowing {
	return &LineFollowing{alg: alg, logger: logger.With("component", "line_following")}
}

func (s *LineFollowing) Kind() types.StrategyKind { return types.StrategyLineFollowing }

// Algorithm 返回内部使用的算法
func (s *LineFollowing) Algorithm() Algorithm { return s.alg }

func (s *LineFollowing) Activate() error {
	s.logger.Info("巡线策略已激活", "algorithm", s.alg.Kind())
	return s.alg.Initialize()
}

func (s *LineFollowing) Deactivate() error {
	s.logger.Info("巡线策略已停用", "algorithm", s.alg.Kind())
	return s.alg.Deinitialize()
}

func (s *LineFollowing) Execute() error { return s.alg.Run() }
