package config

import (
	"errors"
	"fmt"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/strategy"
	"linefollower-robot/internal/types"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig 配置值相互矛盾或超出范围
var ErrInvalidConfig = errors.New("invalid config")

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	Robot       RobotConfig       `mapstructure:"robot"`
	Loop        LoopConfig        `mapstructure:"loop"`
	Light       LightConfig       `mapstructure:"light"`
	Distance    DistanceConfig    `mapstructure:"distance"`
	Motor       MotorConfig       `mapstructure:"motor"`
	PID         PIDConfig         `mapstructure:"pid"`
	Circle      CircleConfig      `mapstructure:"circle"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Autonomous  AutonomousConfig  `mapstructure:"autonomous"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Log         LogConfig         `mapstructure:"log"`
}

type RobotConfig struct {
	ID           string `mapstructure:"id"`
	InitialState string `mapstructure:"initial_state"` // 启动后进入的状态
	Orientation  string `mapstructure:"orientation"`   // 巡线方向 left / right
}

type LoopConfig struct {
	TickDelayMs       int   `mapstructure:"tick_delay_ms"`
	StaleAfterMs      int64 `mapstructure:"stale_after_ms"`
	MonitorIntervalMs int   `mapstructure:"monitor_interval_ms"`
}

type LightConfig struct {
	DefaultFloor     int `mapstructure:"default_floor"`
	DefaultStripe    int `mapstructure:"default_stripe"`
	StripeEdge       int `mapstructure:"stripe_edge"`
	OutlierBound     int `mapstructure:"outlier_bound"`
	HistorySize      int `mapstructure:"history_size"`
	OnLineHysteresis int `mapstructure:"on_line_hysteresis"`
	ReportThreshold  int `mapstructure:"report_threshold"`
}

type DistanceConfig struct {
	Stop            int `mapstructure:"stop"`
	SlowDown        int `mapstructure:"slow_down"`
	ReportThreshold int `mapstructure:"report_threshold"`
}

type MotorConfig struct {
	MinSpeed   int `mapstructure:"min_speed"`
	MaxSpeed   int `mapstructure:"max_speed"`
	TurnFactor int `mapstructure:"turn_factor"`
}

type PIDConfig struct {
	Kp              float64 `mapstructure:"kp"`
	Ki              float64 `mapstructure:"ki"`
	Kd              float64 `mapstructure:"kd"`
	TurnReduction   float64 `mapstructure:"turn_reduction"`
	CollisionFactor float64 `mapstructure:"collision_factor"`
}

type CircleConfig struct {
	MaxRadius      int   `mapstructure:"max_radius"`
	BaseDurationMs int64 `mapstructure:"base_duration_ms"`
	IncrementMs    int64 `mapstructure:"increment_ms"`
	PauseMs        int64 `mapstructure:"pause_ms"`
	Tolerance      int   `mapstructure:"tolerance"`
}

type CalibrationConfig struct {
	DebounceMs int64 `mapstructure:"debounce_ms"`
}

type AutonomousConfig struct {
	Algorithm string `mapstructure:"algorithm"` // pid 或 zigzag
}

type RemoteConfig struct {
	Transport           string     `mapstructure:"transport"` // serial / websocket / mqtt / none
	Device              string     `mapstructure:"device"`
	Baud                int        `mapstructure:"baud"`
	ReconnectIntervalMs int64      `mapstructure:"reconnect_interval_ms"`
	MaxCommandsPerTick  int        `mapstructure:"max_commands_per_tick"`
	QueueSize           int        `mapstructure:"queue_size"`
	OutboundFilter      string     `mapstructure:"outbound_filter"` // expr 规则，变量 kind / text
	LogLevel            string     `mapstructure:"log_level"`       // 不低于该级别的日志会镜像给遥控端
	MQTT                MQTTConfig `mapstructure:"mqtt"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

type HTTPConfig struct {
	Addr             string `mapstructure:"addr"` // 为空时不启动状态服务器
	StatusIntervalMs int64  `mapstructure:"status_interval_ms"`
}

type TelemetryConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"` // 为空时不启用 Redis 镜像
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"` // 为空时不记录
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json 或 text
}

// SetDefaults 设置所有配置项的出厂默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("robot.id", "robot-1")
	v.SetDefault("robot.initial_state", "calibration")
	v.SetDefault("robot.orientation", "left")

	v.SetDefault("loop.tick_delay_ms", 10)
	v.SetDefault("loop.stale_after_ms", 1000)
	v.SetDefault("loop.monitor_interval_ms", 5000)

	v.SetDefault("light.default_floor", 555)
	v.SetDefault("light.default_stripe", 445)
	v.SetDefault("light.stripe_edge", 50)
	v.SetDefault("light.outlier_bound", 5)
	v.SetDefault("light.history_size", 100)
	v.SetDefault("light.on_line_hysteresis", 2)
	v.SetDefault("light.report_threshold", 10)

	v.SetDefault("distance.stop", 25)
	v.SetDefault("distance.slow_down", 50)
	v.SetDefault("distance.report_threshold", 10)

	v.SetDefault("motor.min_speed", 300)
	v.SetDefault("motor.max_speed", 720)
	v.SetDefault("motor.turn_factor", 2)

	v.SetDefault("pid.kp", 10.0)
	v.SetDefault("pid.ki", 0.0)
	v.SetDefault("pid.kd", 20.0)
	v.SetDefault("pid.turn_reduction", 1.5)
	v.SetDefault("pid.collision_factor", 0.5)

	v.SetDefault("circle.max_radius", 5)
	v.SetDefault("circle.base_duration_ms", 1000)
	v.SetDefault("circle.increment_ms", 500)
	v.SetDefault("circle.pause_ms", 200)
	v.SetDefault("circle.tolerance", 2)

	v.SetDefault("calibration.debounce_ms", 1000)
	v.SetDefault("autonomous.algorithm", "pid")

	v.SetDefault("remote.transport", "none")
	v.SetDefault("remote.device", "/dev/rfcomm0")
	v.SetDefault("remote.baud", 115200)
	v.SetDefault("remote.reconnect_interval_ms", 2000)
	v.SetDefault("remote.max_commands_per_tick", 8)
	v.SetDefault("remote.queue_size", 256)
	v.SetDefault("remote.outbound_filter", "")
	v.SetDefault("remote.log_level", "warn")
	v.SetDefault("remote.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("remote.mqtt.username", "")
	v.SetDefault("remote.mqtt.password", "")
	v.SetDefault("remote.mqtt.topic_prefix", "linefollower")
	v.SetDefault("remote.mqtt.qos", 0)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.status_interval_ms", 200)

	v.SetDefault("telemetry.redis_addr", "")
	v.SetDefault("telemetry.redis_password", "")
	v.SetDefault("telemetry.redis_db", 0)
	v.SetDefault("telemetry.ttl_seconds", 30)

	v.SetDefault("journal.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig 从 config.yaml、.env 和 ROBOT_ 前缀的环境变量加载配置
// path 为空时在当前目录和 ./configs 中查找 config.yaml，找不到文件时只使用默认值。
func LoadConfig(path string) (*Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	SetDefaults(v)
	v.SetEnvPrefix("ROBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查相互矛盾或不可能的配置
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Robot.ID != "", "robot.id 不能为空")
	if _, err := c.InitialState(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Orientation(); err != nil {
		errs = append(errs, err)
	}
	check(c.Loop.TickDelayMs > 0, "loop.tick_delay_ms 必须大于 0")
	check(c.Loop.StaleAfterMs > 0, "loop.stale_after_ms 必须大于 0")
	check(c.Light.DefaultFloor >= 0 && c.Light.DefaultStripe >= 0, "默认标定值不能为负")
	check(c.Light.HistorySize > 0, "light.history_size 必须大于 0")
	check(c.Motor.MinSpeed >= 0 && c.Motor.MinSpeed <= c.Motor.MaxSpeed,
		"motor.min_speed (%d) 必须在 0 与 motor.max_speed (%d) 之间", c.Motor.MinSpeed, c.Motor.MaxSpeed)
	check(c.Motor.TurnFactor > 0, "motor.turn_factor 必须大于 0")
	check(c.Distance.Stop < c.Distance.SlowDown,
		"distance.stop (%d) 必须小于 distance.slow_down (%d)", c.Distance.Stop, c.Distance.SlowDown)
	check(c.Circle.MaxRadius > 0, "circle.max_radius 必须大于 0")

	switch types.AlgorithmKind(strings.ToLower(c.Autonomous.Algorithm)) {
	case types.AlgorithmPID, types.AlgorithmZigZag:
	default:
		errs = append(errs, fmt.Errorf("未知的巡线算法 %q", c.Autonomous.Algorithm))
	}
	switch c.Remote.Transport {
	case "serial", "websocket", "mqtt", "none":
	default:
		errs = append(errs, fmt.Errorf("未知的远程通道 %q", c.Remote.Transport))
	}
	check(c.Remote.MQTT.QoS >= 0 && c.Remote.MQTT.QoS <= 2, "remote.mqtt.qos 必须在 0 到 2 之间")
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("未知的日志格式 %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// InitialState 返回启动状态
func (c *Config) InitialState() (types.StateKind, error) {
	return types.ParseStateKind(strings.ToUpper(c.Robot.InitialState))
}

// Orientation 返回巡线方向
func (c *Config) Orientation() (types.Orientation, error) {
	switch o := types.Orientation(strings.ToUpper(c.Robot.Orientation)); o {
	case types.OrientationLeft, types.OrientationRight:
		return o, nil
	}
	return "", fmt.Errorf("未知的巡线方向 %q", c.Robot.Orientation)
}

// QoS 返回 MQTT 服务质量等级
func (r RemoteConfig) QoS() byte {
	return byte(r.MQTT.QoS)
}

// TickDelay 返回 tick 间隔
func (c *Config) TickDelay() time.Duration {
	return time.Duration(c.Loop.TickDelayMs) * time.Millisecond
}

// StrategyConfig 转换为驾驶策略参数
func (c *Config) StrategyConfig() strategy.Config {
	return strategy.Config{
		MinSpeed:         c.Motor.MinSpeed,
		MaxSpeed:         c.Motor.MaxSpeed,
		TurnFactor:       c.Motor.TurnFactor,
		StripeEdge:       c.Light.StripeEdge,
		Kp:               c.PID.Kp,
		Ki:               c.PID.Ki,
		Kd:               c.PID.Kd,
		TurnReduction:    c.PID.TurnReduction,
		CollisionFactor:  c.PID.CollisionFactor,
		StopDistance:     c.Distance.Stop,
		SlowDownDistance: c.Distance.SlowDown,
		MaxRadius:        c.Circle.MaxRadius,
		BaseDurationMs:   c.Circle.BaseDurationMs,
		IncrementMs:      c.Circle.IncrementMs,
		PauseMs:          c.Circle.PauseMs,
		Tolerance:        c.Circle.Tolerance,
		DebounceMs:       c.Calibration.DebounceMs,
		StaleAfterMs:     c.Loop.StaleAfterMs,
		Algorithm:        types.AlgorithmKind(strings.ToLower(c.Autonomous.Algorithm)),
	}
}

// StoreConfig 转换为标定存储参数
func (c *Config) StoreConfig() calibration.Config {
	return calibration.Config{
		DefaultFloor:     c.Light.DefaultFloor,
		DefaultStripe:    c.Light.DefaultStripe,
		OutlierBound:     c.Light.OutlierBound,
		HistorySize:      c.Light.HistorySize,
		OnLineHysteresis: c.Light.OnLineHysteresis,
	}
}
