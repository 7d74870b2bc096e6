package command

import (
	"linefollower-robot/internal/types"
	"strconv"
	"strings"
)

// separator 是远程协议的字段分隔符
const separator = "|"

// Parse 将一行远程文本解析为指令
// 不区分大小写，忽略首尾空白；无法识别、参数个数不符或数值非法时返回 false。
// 该函数无副作用，告警日志由调用方负责。
func Parse(line string) (Command, bool) {
	text := strings.ToUpper(strings.TrimSpace(line))
	if text == "" {
		return nil, false
	}

	parts := strings.Split(text, separator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch parts[0] {
	case "EXIT":
		if len(parts) != 1 {
			return nil, false
		}
		return Exit{}, true
	case "STATE":
		return parseState(parts)
	case "MOVE":
		return parseMove(parts)
	case "CALIBRATE":
		return parseCalibrate(parts)
	case "ORIENT":
		return parseOrient(parts)
	}
	return nil, false
}

func parseState(parts []string) (Command, bool) {
	if len(parts) != 2 {
		return nil, false
	}
	target, err := types.ParseStateKind(parts[1])
	if err != nil {
		return nil, false
	}
	return SwitchState{Target: target}, true
}

func parseMove(parts []string) (Command, bool) {
	if len(parts) != 3 {
		return nil, false
	}
	speed, err := strconv.Atoi(parts[1])
	if err != nil || speed < 0 {
		return nil, false
	}
	turn, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, false
	}
	return Move{Speed: speed, TurnAngle: turn}, true
}

func parseCalibrate(parts []string) (Command, bool) {
	if len(parts) != 2 {
		return nil, false
	}
	switch step := types.CalibrationStep(parts[1]); step {
	case types.StepFloor, types.StepStripe, types.StepDone:
		return Calibrate{Step: step}, true
	}
	return nil, false
}

func parseOrient(parts []string) (Command, bool) {
	if len(parts) != 2 {
		return nil, false
	}
	switch o := types.Orientation(parts[1]); o {
	case types.OrientationLeft, types.OrientationRight:
		return Orient{Value: o}, true
	}
	return nil, false
}
