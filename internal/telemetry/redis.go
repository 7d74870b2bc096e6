package telemetry

import (
	"context"
	"fmt"
	"linefollower-robot/internal/web"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config Redis 镜像参数
type Config struct {
	Addr     string
	Password string
	DB       int
	RobotID  string
	TTL      time.Duration // 哈希的过期时间，机器人停止上报后状态会自动消失
}

// RedisMirror 把最新的机器人状态写入 Redis 哈希 robot:<robot_id>:status
// Offer 由控制循环调用且从不阻塞，写入在 Run 所在的 goroutine 中完成，
// 来不及写入的旧状态会被新的状态覆盖。
type RedisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	latest chan web.Status
	logger *slog.Logger
}

// NewRedisMirror 连接 Redis 并确认可用
func NewRedisMirror(ctx context.Context, cfg Config, logger *slog.Logger) (*RedisMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	m := newMirror(rdb, cfg, logger)
	m.logger.Info("Redis 状态镜像已连接", "addr", cfg.Addr, "key", m.key)
	return m, nil
}

func newMirror(rdb *redis.Client, cfg Config, logger *slog.Logger) *RedisMirror {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &RedisMirror{
		client: rdb,
		key:    fmt.Sprintf("robot:%s:status", cfg.RobotID),
		ttl:    cfg.TTL,
		latest: make(chan web.Status, 1),
		logger: logger.With("component", "redis_mirror"),
	}
}

// Offer 放入最新状态，旧的未写入状态被丢弃
func (m *RedisMirror) Offer(s web.Status) {
	for {
		select {
		case m.latest <- s:
			return
		default:
		}
		select {
		case <-m.latest:
		default:
		}
	}
}

// Run 持续把状态写入 Redis，直到 ctx 被取消
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.latest:
			if err := m.write(ctx, s); err != nil {
				m.logger.Warn("写入 Redis 失败", "error", err)
			}
		}
	}
}

func (m *RedisMirror) write(ctx context.Context, s web.Status) error {
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, m.key, statusFields(s))
	pipe.Expire(ctx, m.key, m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

func statusFields(s web.Status) map[string]interface{} {
	return map[string]interface{}{
		"run_id":              s.RunID,
		"state":               string(s.State),
		"strategy":            string(s.Strategy),
		"orientation":         string(s.Orientation),
		"last_light":          s.LastLight,
		"last_distance":       s.LastDistance,
		"line_edge_threshold": s.LineEdgeThreshold,
		"on_line":             s.OnLine,
		"floor":               s.Floor,
		"stripe":              s.Stripe,
		"tick":                s.Tick,
	}
}
