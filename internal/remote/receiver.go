package remote

import (
	"errors"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/metrics"
	"log/slog"
)

// ReceiverConfig 定义接收端参数
type ReceiverConfig struct {
	ReconnectIntervalMs int64 // 两次重连尝试的最小间隔
	MaxCommandsPerTick  int   // 每个 tick 最多读取的行数
}

// Receiver 在每个 tick 中非阻塞地读取远程指令
// 通道断开时按间隔重连，读取失败时关闭通道，之后的 tick 会重新连接。
type Receiver struct {
	link   Link
	clock  clock.Clock
	cfg    ReceiverConfig
	logger *slog.Logger

	attempted   bool
	lastAttempt int64
	wasUp       bool
}

func NewReceiver(link Link, clk clock.Clock, cfg ReceiverConfig, logger *slog.Logger) *Receiver {
	if cfg.MaxCommandsPerTick <= 0 {
		cfg.MaxCommandsPerTick = 8
	}
	return &Receiver{link: link, clock: clk, cfg: cfg, logger: logger.With("component", "receiver")}
}

// Poll 返回本 tick 收到的指令事件
func (r *Receiver) Poll() []*event.Command {
	if !r.ensureConnected() {
		return nil
	}

	var out []*event.Command
	for i := 0; i < r.cfg.MaxCommandsPerTick && r.link.Available(); i++ {
		line, err := r.link.ReadLine()
		if errors.Is(err, ErrNoData) {
			break
		}
		if err != nil {
			metrics.RemoteErrorsTotal.Inc()
			r.logger.Warn("读取远程指令失败，关闭通道", "error", err)
			if cerr := r.link.Close(); cerr != nil {
				r.logger.Debug("关闭远程通道失败", "error", cerr)
			}
			break
		}
		metrics.RemoteMessagesTotal.WithLabelValues("in").Inc()

		cmd, ok := command.Parse(line)
		if !ok {
			r.logger.Warn("无法解析的远程指令", "line", line)
			continue
		}
		e, err := event.NewCommand(r.clock.NowMillis(), cmd)
		if err != nil {
			r.logger.Error("创建指令事件失败", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *Receiver) ensureConnected() bool {
	if r.link.Connected() {
		r.wasUp = true
		return true
	}
	if r.wasUp {
		r.wasUp = false
		r.logger.Warn("远程通道已断开")
	}

	now := r.clock.NowMillis()
	if r.attempted && now-r.lastAttempt < r.cfg.ReconnectIntervalMs {
		return false
	}
	r.attempted = true
	r.lastAttempt = now
	metrics.RemoteReconnectsTotal.Inc()

	if err := r.link.Open(); err != nil {
		if errors.Is(err, ErrNoPeer) {
			r.logger.Debug("等待遥控端连接")
		} else {
			r.logger.Warn("连接远程通道失败", "error", err)
		}
		return false
	}
	r.wasUp = true
	return r.link.Connected()
}
