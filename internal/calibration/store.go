package calibration

import (
	"errors"
	"fmt"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/metrics"
	"linefollower-robot/internal/types"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tiendc/go-deepcopy"
)

// Unknown 表示尚未读到传感器值
const Unknown = -1

var ErrNegativeCalibration = errors.New("calibration values must not be negative")

// Publisher 是 Store 发布线状态事件所需的最小接口，*event.Bus 实现了它
type Publisher interface {
	Publish(e event.Event) error
}

// Config 定义自适应阈值的参数
type Config struct {
	DefaultFloor     int // 默认地面亮度
	DefaultStripe    int // 默认线条亮度
	OutlierBound     int // 与当前阈值偏差超过该值的读数不进入历史
	HistorySize      int // 历史窗口容量，满后重新计算阈值并清空
	OnLineHysteresis int // 阈值与读数之差大于该值才算在线上
}

// DefaultConfig 返回与出厂设置一致的参数
func DefaultConfig() Config {
	return Config{
		DefaultFloor:     555,
		DefaultStripe:    445,
		OutlierBound:     5,
		HistorySize:      100,
		OnLineHysteresis: 2,
	}
}

// Snapshot 是 Store 某一时刻的只读副本
type Snapshot struct {
	LastLight         int   `json:"last_light"`
	LastDistance      int   `json:"last_distance"`
	Floor             int   `json:"floor"`
	Stripe            int   `json:"stripe"`
	LineEdgeThreshold int   `json:"line_edge_threshold"`
	OnLine            bool  `json:"on_line"`
	History           []int `json:"history"`
}

// Store 保存最近的传感器读数、标定值以及自适应的线边缘阈值
// Ingest 和 UpdateCalibration 只由控制循环调用；
// 读数、阈值和在线状态是原子变量，状态服务器等其他 goroutine 可以直接读取。
type Store struct {
	pub    Publisher
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger

	lastLight    atomic.Int64
	lastDistance atomic.Int64
	floor        atomic.Int64
	stripe       atomic.Int64
	threshold    atomic.Int64
	onLine       atomic.Bool

	mu      sync.Mutex // 保护 history
	history []int
}

// NewStore 使用默认标定值创建 Store，阈值初始化为两者的中点
func NewStore(pub Publisher, clk clock.Clock, cfg Config, logger *slog.Logger) *Store {
	s := &Store{
		pub:     pub,
		clock:   clk,
		cfg:     cfg,
		logger:  logger.With("component", "calibration_store"),
		history: make([]int, 0, cfg.HistorySize),
	}
	s.lastLight.Store(Unknown)
	s.lastDistance.Store(Unknown)
	s.floor.Store(int64(cfg.DefaultFloor))
	s.stripe.Store(int64(cfg.DefaultStripe))
	s.setThreshold((cfg.DefaultFloor + cfg.DefaultStripe) / 2)
	s.onLine.Store(true)
	metrics.OnLine.Set(1)
	return s
}

// Ingest 处理一个传感器事件
func (s *Store) Ingest(e *event.Sensor) {
	switch e.SensorKind() {
	case types.SensorLight:
		s.ingestLight(e.Value())
	case types.SensorUltrasonic:
		s.lastDistance.Store(int64(e.Value()))
	}
}

func (s *Store) ingestLight(value int) {
	s.lastLight.Store(int64(value))

	threshold := s.LineEdgeThreshold()
	if abs(value-threshold) > s.cfg.OutlierBound {
		return
	}

	s.mu.Lock()
	s.history = append(s.history, value)
	if len(s.history) >= s.cfg.HistorySize {
		sum := 0
		for _, v := range s.history {
			sum += v
		}
		threshold = sum / len(s.history)
		s.history = s.history[:0]
		s.setThreshold(threshold)
		s.logger.Debug("线边缘阈值已更新", "threshold", threshold)
	}
	s.mu.Unlock()

	onLine := threshold-value > s.cfg.OnLineHysteresis
	if s.onLine.Swap(onLine) == onLine {
		return
	}
	if onLine {
		metrics.OnLine.Set(1)
	} else {
		metrics.OnLine.Set(0)
	}

	// 只在状态翻转时发布 (边沿触发)
	ev, err := event.NewLineStatus(s.clock.NowMillis(), onLine)
	if err != nil {
		s.logger.Error("创建线状态事件失败", "error", err)
		return
	}
	if err := s.pub.Publish(ev); err != nil {
		s.logger.Error("发布线状态事件失败", "error", err)
	}
}

// UpdateCalibration 提交新的标定值，并把阈值重置为两者的中点，丢弃历史
func (s *Store) UpdateCalibration(floor, stripe int) error {
	if floor < 0 || stripe < 0 {
		return fmt.Errorf("%w: floor=%d stripe=%d", ErrNegativeCalibration, floor, stripe)
	}
	s.floor.Store(int64(floor))
	s.stripe.Store(int64(stripe))

	s.mu.Lock()
	s.history = s.history[:0]
	s.mu.Unlock()

	s.setThreshold((floor + stripe) / 2)
	s.logger.Info("标定值已更新", "floor", floor, "stripe", stripe, "threshold", s.LineEdgeThreshold())
	return nil
}

func (s *Store) setThreshold(v int) {
	s.threshold.Store(int64(v))
	metrics.LineEdgeThreshold.Set(float64(v))
}

func (s *Store) LastLight() int         { return int(s.lastLight.Load()) }
func (s *Store) LastDistance() int      { return int(s.lastDistance.Load()) }
func (s *Store) Floor() int             { return int(s.floor.Load()) }
func (s *Store) Stripe() int            { return int(s.stripe.Load()) }
func (s *Store) LineEdgeThreshold() int { return int(s.threshold.Load()) }
func (s *Store) OnLine() bool           { return s.onLine.Load() }

// HistoryLen 返回当前窗口中的读数个数
func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Snapshot 返回当前状态的深拷贝，调用方可以随意修改
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	src := Snapshot{
		LastLight:         s.LastLight(),
		LastDistance:      s.LastDistance(),
		Floor:             s.Floor(),
		Stripe:            s.Stripe(),
		LineEdgeThreshold: s.LineEdgeThreshold(),
		OnLine:            s.OnLine(),
		History:           s.history,
	}
	var dst Snapshot
	err := deepcopy.Copy(&dst, &src)
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, fmt.Errorf("复制标定快照失败: %w", err)
	}
	return dst, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
