package types

import "fmt"

// StateKind 定义机器人高层状态
// 使用字符串类型，方便在日志、远程协议和配置中直接使用
type StateKind string

const (
	StateIdle        StateKind = "IDLE"        // 空闲：电机停止，等待指令
	StateAutonomous  StateKind = "AUTONOMOUS"  // 自主巡线
	StateManual      StateKind = "MANUAL"      // 遥控驾驶
	StateCalibration StateKind = "CALIBRATION" // 光线传感器标定
)

// ParseStateKind 将字符串 (不区分大小写由调用方保证) 转换为状态类型
func ParseStateKind(s string) (StateKind, error) {
	switch k := StateKind(s); k {
	case StateIdle, StateAutonomous, StateManual, StateCalibration:
		return k, nil
	}
	return "", fmt.Errorf("unknown state %q", s)
}

// StrategyKind 定义驾驶策略类型
type StrategyKind string

const (
	StrategyNone          StrategyKind = "NONE"
	StrategyLineFollowing StrategyKind = "LINE_FOLLOWING" // 巡线 (内部使用 PID 或 ZigZag 算法)
	StrategyUserControl   StrategyKind = "USER_CONTROL"   // 远程遥控直通
	StrategyCircleSearch  StrategyKind = "CIRCLE_SEARCH"  // 丢线后的螺旋搜索
	StrategyCalibration   StrategyKind = "CALIBRATION"    // 标定流程
)

// AlgorithmKind 定义巡线算法类型
type AlgorithmKind string

const (
	AlgorithmPID    AlgorithmKind = "pid"
	AlgorithmZigZag AlgorithmKind = "zigzag"
)

// SensorKind 定义传感器类型
type SensorKind string

const (
	SensorLight      SensorKind = "LIGHT"
	SensorUltrasonic SensorKind = "ULTRASONIC"
)

// CalibrationStep 定义标定流程的步骤
type CalibrationStep string

const (
	StepFloor  CalibrationStep = "FLOOR"  // 记录地面亮度
	StepStripe CalibrationStep = "STRIPE" // 记录线条亮度
	StepDone   CalibrationStep = "DONE"   // 提交标定值
)

// Orientation 定义巡线时线条相对于传感器的方向
type Orientation string

const (
	OrientationLeft  Orientation = "LEFT"
	OrientationRight Orientation = "RIGHT"
)

// 物理按键 ID
const (
	ButtonEnter  = "ENTER"
	ButtonEscape = "ESCAPE"
)
