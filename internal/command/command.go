package command

import (
	"fmt"
	"linefollower-robot/internal/types"
)

// Command 是远程文本指令解析后的结果
// 只能由 Parse 创建，具体类型为 Move / SwitchState / Calibrate / Orient / Exit
type Command interface {
	fmt.Stringer
	command()
}

// Move 遥控驾驶指令：速度 (非负) 与转向角 (度，可为负)
type Move struct {
	Speed     int
	TurnAngle int
}

// SwitchState 请求切换到目标状态
type SwitchState struct {
	Target types.StateKind
}

// Calibrate 确认当前标定步骤
type Calibrate struct {
	Step types.CalibrationStep
}

// Orient 设置巡线方向
type Orient struct {
	Value types.Orientation
}

// Exit 请求终止进程
type Exit struct{}

func (Move) command()        {}
func (SwitchState) command() {}
func (Calibrate) command()   {}
func (Orient) command()      {}
func (Exit) command()        {}

func (c Move) String() string        { return fmt.Sprintf("MOVE|%d|%d", c.Speed, c.TurnAngle) }
func (c SwitchState) String() string { return "STATE|" + string(c.Target) }
func (c Calibrate) String() string   { return "CALIBRATE|" + string(c.Step) }
func (c Orient) String() string      { return "ORIENT|" + string(c.Value) }
func (Exit) String() string          { return "EXIT" }
