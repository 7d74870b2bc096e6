package clock

import (
	"sync/atomic"
	"time"
)

// Clock 提供单调递增的毫秒时间戳
// 事件时间戳、防抖和螺旋搜索计时都基于它
type Clock interface {
	NowMillis() int64
}

// System 基于进程启动时刻的单调时钟
type System struct {
	start time.Time
}

// NewSystem 创建一个从 0 开始计时的系统时钟
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) NowMillis() int64 {
	return time.Since(s.start).Milliseconds()
}

// Manual 是手动推进的时钟，用于测试
type Manual struct {
	now atomic.Int64
}

func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) NowMillis() int64 { return m.now.Load() }

// Advance 将时钟向前推进 ms 毫秒
func (m *Manual) Advance(ms int64) { m.now.Add(ms) }

// Set 直接设置当前时间
func (m *Manual) Set(ms int64) { m.now.Store(ms) }
