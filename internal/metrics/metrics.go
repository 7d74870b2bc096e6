package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// TicksTotal 计数器：控制循环执行的 tick 总数
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_ticks_total",
		Help: "The total number of control loop ticks",
	})

	// TickDuration 直方图：单个 tick 的耗时分布 (不含 tick 间的等待)
	// 用于确认策略计算保持在时间预算之内
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "robot_tick_duration_seconds",
		Help:    "Time spent in one control loop tick",
		Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
	})

	// EventsPublishedTotal 计数器：经事件总线发布的事件数，按事件类型分类
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_events_published_total",
		Help: "The total number of events published on the bus",
	}, []string{"kind"})

	// EventsStaleTotal 计数器：因过期被丢弃的事件数
	EventsStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_events_stale_total",
		Help: "The total number of events dropped as stale",
	})

	// ListenerFailuresTotal 计数器：监听器返回错误或 panic 的次数
	ListenerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_bus_listener_failures_total",
		Help: "The total number of listener callbacks that failed",
	})

	// StrategyErrorsTotal 计数器：策略 tick 执行失败次数
	StrategyErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_strategy_errors_total",
		Help: "The total number of failed strategy executions",
	})

	// StrategySwitchesTotal 计数器：按新策略分类的策略切换次数
	StrategySwitchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_strategy_switches_total",
		Help: "The total number of driving strategy switches",
	}, []string{"strategy"})

	// StateTransitionsTotal 计数器：按目标状态分类的状态切换次数
	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_state_transitions_total",
		Help: "The total number of robot state transitions",
	}, []string{"state"})

	// LineEdgeThreshold 仪表盘：当前自适应的线边缘阈值
	LineEdgeThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robot_line_edge_threshold",
		Help: "The current self-tuned line edge light threshold",
	})

	// OnLine 仪表盘：1 表示传感器在线上，0 表示离线
	OnLine = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robot_on_line",
		Help: "Whether the light sensor currently reads as on the line",
	})

	// RemoteMessagesTotal 计数器：远程通道收发的消息数 (direction: in/out)
	RemoteMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_remote_messages_total",
		Help: "The total number of remote channel messages",
	}, []string{"direction"})

	// RemoteReconnectsTotal 计数器：远程通道重连尝试次数
	RemoteReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_remote_reconnects_total",
		Help: "The total number of remote link reconnect attempts",
	})

	// RemoteErrorsTotal 计数器：远程通道读写错误次数
	RemoteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_remote_errors_total",
		Help: "The total number of remote link I/O errors",
	})

	// LineLostTotal 计数器：丢线次数 (LINE_STATUS 从 ON 变为 OFF)
	LineLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_line_lost_total",
		Help: "The total number of times the line was lost",
	})

	// ButtonPressesTotal 计数器：按物理按键分类的按下次数
	ButtonPressesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_button_presses_total",
		Help: "The total number of physical button presses",
	}, []string{"button"})
)
