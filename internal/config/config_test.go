package config

import (
	"errors"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/strategy"
	"linefollower-robot/internal/types"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadConfig_DefaultsMatchFactorySettings(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("没有配置文件时应使用默认值: %v", err)
	}
	if got, want := cfg.StrategyConfig(), strategy.DefaultConfig(); got != want {
		t.Fatalf("策略默认值不一致:\n got  %+v\n want %+v", got, want)
	}
	if got, want := cfg.StoreConfig(), calibration.DefaultConfig(); got != want {
		t.Fatalf("标定默认值不一致:\n got  %+v\n want %+v", got, want)
	}
	state, _ := cfg.InitialState()
	if state != types.StateCalibration {
		t.Fatalf("默认初始状态应为 CALIBRATION, 实际 %s", state)
	}
	if cfg.TickDelay() != 10*time.Millisecond {
		t.Fatalf("默认 tick 间隔错误: %v", cfg.TickDelay())
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
robot:
  id: lab-bot
  initial_state: idle
  orientation: right
motor:
  max_speed: 650
autonomous:
  algorithm: zigzag
remote:
  transport: mqtt
  mqtt:
    qos: 1
`)
	t.Setenv("ROBOT_PID_KP", "12.5")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Robot.ID != "lab-bot" || cfg.Motor.MaxSpeed != 650 || cfg.Motor.MinSpeed != 300 {
		t.Fatalf("文件配置未生效: %+v", cfg)
	}
	if cfg.PID.Kp != 12.5 {
		t.Fatalf("环境变量应覆盖默认值, 实际 kp=%v", cfg.PID.Kp)
	}
	if o, _ := cfg.Orientation(); o != types.OrientationRight {
		t.Fatalf("巡线方向错误: %s", o)
	}
	if cfg.StrategyConfig().Algorithm != types.AlgorithmZigZag {
		t.Fatalf("巡线算法错误")
	}
	if cfg.Remote.QoS() != 1 {
		t.Fatalf("QoS 错误")
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("指定的配置文件不存在时应返回错误")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"min above max", "motor:\n  min_speed: 800\n"},
		{"stop beyond slow down", "distance:\n  stop: 60\n"},
		{"zero tick", "loop:\n  tick_delay_ms: 0\n"},
		{"unknown transport", "remote:\n  transport: carrier-pigeon\n"},
		{"unknown algorithm", "autonomous:\n  algorithm: bangbang\n"},
		{"unknown state", "robot:\n  initial_state: dancing\n"},
		{"unknown orientation", "robot:\n  orientation: up\n"},
		{"qos out of range", "remote:\n  mqtt:\n    qos: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("期望 ErrInvalidConfig, 实际 %v", err)
			}
		})
	}
}
