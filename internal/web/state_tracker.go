package web

import (
	"linefollower-robot/internal/types"
	"sync"
)

// Status 是用于状态页面和遥测的机器人实时快照
type Status struct {
	RunID             string             `json:"run_id"`
	RobotID           string             `json:"robot_id"`
	State             types.StateKind    `json:"state"`
	Strategy          types.StrategyKind `json:"strategy"`
	Orientation       types.Orientation  `json:"orientation"`
	LastLight         int                `json:"last_light"`
	LastDistance      int                `json:"last_distance"`
	LineEdgeThreshold int                `json:"line_edge_threshold"`
	OnLine            bool               `json:"on_line"`
	Floor             int                `json:"floor"`
	Stripe            int                `json:"stripe"`
	Tick              uint64             `json:"tick"`
}

// Sink 接收每一次状态更新，实现必须是非阻塞的
type Sink interface {
	Offer(s Status)
}

// StateTracker 负责追踪机器人的实时状态，并通知前端和遥测
type StateTracker struct {
	mu     sync.RWMutex
	status Status
	hub    *Hub
	sinks  []Sink
}

// NewStateTracker 创建一个新的 StateTracker 实例，hub 可以为 nil
func NewStateTracker(runID, robotID string, hub *Hub) *StateTracker {
	return &StateTracker{
		status: Status{RunID: runID, RobotID: robotID, Strategy: types.StrategyNone},
		hub:    hub,
	}
}

// AddSink 注册一个额外的状态接收者，需要在控制循环启动前调用
func (st *StateTracker) AddSink(s Sink) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sinks = append(st.sinks, s)
}

// Update 修改状态并广播最新快照
func (st *StateTracker) Update(fn func(s *Status)) {
	st.mu.Lock()
	fn(&st.status)
	snapshot := st.status
	sinks := st.sinks
	st.mu.Unlock()

	if st.hub != nil {
		st.hub.Broadcast(snapshot)
	}
	for _, s := range sinks {
		s.Offer(snapshot)
	}
}

// Snapshot 返回当前状态的副本
func (st *StateTracker) Snapshot() Status {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.status
}
