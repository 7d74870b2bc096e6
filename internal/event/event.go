package event

import (
	"errors"
	"fmt"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/types"
	"strconv"
)

// Event 是事件总线上传递的事件
// 具体类型为 *Sensor / *Button / *Command / *LineStatus / *ChangeState / *Log，
// 创建后不可修改。
type Event interface {
	Timestamp() int64 // 创建时的单调毫秒时间戳
	Kind() string     // 事件类型名，用于指标和日志
}

// Exposable 表示可以通过远程通道对外发送的事件
type Exposable interface {
	Event
	Expose() string
}

// 事件构造时的校验错误
var (
	ErrInvalidTimestamp = errors.New("event timestamp must not be negative")
	ErrInvalidSensor    = errors.New("invalid sensor event")
	ErrEmptyButtonID    = errors.New("button id must not be empty")
	ErrNilCommand       = errors.New("command must not be nil")
	ErrInvalidState     = errors.New("invalid state")
	ErrEmptyLogText     = errors.New("log text must not be empty")
)

// DefaultStaleAfterMs 事件的默认过期时间
const DefaultStaleAfterMs = 1000

// IsStale 判断事件在 now 时刻是否已过期 (时间戳为负也视为过期)
func IsStale(e Event, now, staleAfterMs int64) bool {
	ts := e.Timestamp()
	return ts < 0 || now-ts > staleAfterMs
}

type base struct {
	ts int64
}

func (b base) Timestamp() int64 { return b.ts }

// Sensor 传感器读数事件
type Sensor struct {
	base
	sensorID string
	kind     types.SensorKind
	value    int
}

// NewSensor 创建传感器事件，读数必须非负
func NewSensor(ts int64, sensorID string, kind types.SensorKind, value int) (*Sensor, error) {
	if ts < 0 {
		return nil, ErrInvalidTimestamp
	}
	if sensorID == "" {
		return nil, fmt.Errorf("%w: empty sensor id", ErrInvalidSensor)
	}
	if kind != types.SensorLight && kind != types.SensorUltrasonic {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSensor, kind)
	}
	if value < 0 {
		return nil, fmt.Errorf("%w: negative value %d", ErrInvalidSensor, value)
	}
	return &Sensor{base: base{ts}, sensorID: sensorID, kind: kind, value: value}, nil
}

func (e *Sensor) Kind() string                 { return "SENSOR" }
func (e *Sensor) SensorID() string             { return e.sensorID }
func (e *Sensor) SensorKind() types.SensorKind { return e.kind }
func (e *Sensor) Value() int                   { return e.value }
func (e *Sensor) Expose() string {
	return "SENSOR|" + string(e.kind) + "|" + strconv.Itoa(e.value)
}

// Button 物理按键事件
type Button struct {
	base
	id string
}

func NewButton(ts int64, id string) (*Button, error) {
	if ts < 0 {
		return nil, ErrInvalidTimestamp
	}
	if id == "" {
		return nil, ErrEmptyButtonID
	}
	return &Button{base: base{ts}, id: id}, nil
}

func (e *Button) Kind() string   { return "BUTTON" }
func (e *Button) ID() string     { return e.id }
func (e *Button) Expose() string { return "BUTTON:" + e.id }

// Command 远程指令事件
type Command struct {
	base
	payload command.Command
}

func NewCommand(ts int64, c command.Command) (*Command, error) {
	if ts < 0 {
		return nil, ErrInvalidTimestamp
	}
	if c == nil {
		return nil, ErrNilCommand
	}
	return &Command{base: base{ts}, payload: c}, nil
}

func (e *Command) Kind() string              { return "COMMAND" }
func (e *Command) Payload() command.Command { return e.payload }

// LineStatus 在线/离线状态发生变化时发出
type LineStatus struct {
	base
	onLine bool
}

func NewLineStatus(ts int64, onLine bool) (*LineStatus, error) {
	if ts < 0 {
		return nil, ErrInvalidTimestamp
	}
	return &LineStatus{base: base{ts}, onLine: onLine}, nil
}

func (e *LineStatus) Kind() string { return "LINE_STATUS" }
func (e *LineStatus) OnLine() bool { return e.onLine }
func (e *LineStatus) Expose() string {
	if e.onLine {
		return "LINE_STATUS|ON"
	}
	return "LINE_STATUS|OFF"
}

// ChangeState 状态切换完成后发出
type ChangeState struct {
	base
	newState types.StateKind
}

func NewChangeState(ts int64, s types.StateKind) (*ChangeState, error) {
	if ts < 0 {
		return nil, ErrInvalidTimestamp
	}
	if _, err := types.ParseStateKind(string(s)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &ChangeState{base: base{ts}, newState: s}, nil
}

func (e *ChangeState) Kind() string              { return "CHANGE_STATE" }
func (e *ChangeState) NewState() types.StateKind { return e.newState }
func (e *ChangeState) Expose() string            { return "NEW_STATE|" + string(e.newState) }

// Log 远程日志事件
type Log struct {
	base
	text string
}

func NewLog(ts int64, text string) (*Log, error) {
	if ts < 0 {
		return nil, ErrInvalidTimestamp
	}
	if text == "" {
		return nil, ErrEmptyLogText
	}
	return &Log{base: base{ts}, text: text}, nil
}

func (e *Log) Kind() string   { return "LOG" }
func (e *Log) Text() string   { return e.text }
func (e *Log) Expose() string { return "LOG|" + e.text }
