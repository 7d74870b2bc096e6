package loop

import (
	"context"
	"errors"
	"io"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/command"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/types"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// trace 记录各组件被调用的顺序
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, s)
}

func (t *trace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.steps, ",")
}

type tracePublisher struct{ t *trace }

func (p tracePublisher) Publish(e event.Event) error {
	p.t.add("publish:" + e.Kind())
	return nil
}

type traceTicker struct {
	t   *trace
	err error
}

func (c traceTicker) RunTick() error {
	c.t.add("tick")
	return c.err
}

type scriptedSensor struct {
	t      *trace
	values []int
	closed bool
}

func (s *scriptedSensor) Poll() (*event.Sensor, error) {
	s.t.add("poll")
	if len(s.values) == 0 {
		return nil, nil
	}
	v := s.values[0]
	s.values = s.values[1:]
	if v < 0 {
		return nil, errors.New("sensor fault")
	}
	return event.NewSensor(0, "light", types.SensorLight, v)
}

func (s *scriptedSensor) Close() error {
	s.closed = true
	return nil
}

type fixedButtons struct{ ids []string }

func (b *fixedButtons) Pressed() ([]string, error) {
	ids := b.ids
	b.ids = nil
	return ids, nil
}

type fixedCommands struct{ cmds []*event.Command }

func (c *fixedCommands) Poll() []*event.Command {
	cmds := c.cmds
	c.cmds = nil
	return cmds
}

type traceFlusher struct{ t *trace }

func (f traceFlusher) Flush() error {
	f.t.add("flush")
	return nil
}

type stopMotors struct {
	stops, closes int
}

func (m *stopMotors) Forward(l, r int) error  { return nil }
func (m *stopMotors) Backward(l, r int) error { return nil }
func (m *stopMotors) Stop(hard bool) error    { m.stops++; return nil }
func (m *stopMotors) Close() error            { m.closes++; return nil }

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTick_Order(t *testing.T) {
	tr := &trace{}
	exit, _ := event.NewCommand(0, command.Exit{})
	l := New(Config{}, Deps{
		Bus:        tracePublisher{tr},
		Controller: traceTicker{t: tr},
		Sensors:    []SensorSource{&scriptedSensor{t: tr, values: []int{500}}},
		Buttons:    &fixedButtons{ids: []string{types.ButtonEnter}},
		Commands:   &fixedCommands{cmds: []*event.Command{exit}},
		Flushers:   []Flusher{traceFlusher{tr}},
		Clock:      clock.NewManual(0),
		Logger:     discardLogger(),
	})

	l.Tick()

	want := "poll,publish:SENSOR,publish:BUTTON,publish:COMMAND,tick,flush"
	if got := tr.String(); got != want {
		t.Fatalf("tick 顺序错误:\n got  %s\n want %s", got, want)
	}
	if l.Ticks() != 1 {
		t.Fatalf("tick 计数应为 1, 实际 %d", l.Ticks())
	}
}

func TestTick_ErrorsDoNotStopTheTick(t *testing.T) {
	tr := &trace{}
	l := New(Config{}, Deps{
		Bus:        tracePublisher{tr},
		Controller: traceTicker{t: tr, err: errors.New("boom")},
		Sensors:    []SensorSource{&scriptedSensor{t: tr, values: []int{-1}}},
		Flushers:   []Flusher{traceFlusher{tr}},
		Clock:      clock.NewManual(0),
		Logger:     discardLogger(),
	})

	l.Tick()

	if got := tr.String(); got != "poll,tick,flush" {
		t.Fatalf("出错时 tick 仍应完整执行, 实际 %s", got)
	}
}

func TestStart_StopsAndCleansUp(t *testing.T) {
	tr := &trace{}
	sensor := &scriptedSensor{t: tr}
	motors := &stopMotors{}
	link := &closer{}

	var l *Loop
	l = New(Config{TickDelay: time.Millisecond}, Deps{
		Bus:        tracePublisher{tr},
		Controller: traceTicker{t: tr},
		Sensors:    []SensorSource{sensor},
		Motors:     motors,
		Closers:    []io.Closer{link},
		Clock:      clock.NewManual(0),
		OnTick: func(n uint64) {
			if n == 3 {
				l.Stop()
			}
		},
		Logger: discardLogger(),
	})

	go l.Start(context.Background())
	l.WaitForCompletion()

	if l.Ticks() != 3 {
		t.Fatalf("Stop 后不应再执行 tick, 实际 %d", l.Ticks())
	}
	if motors.stops != 1 || motors.closes != 1 {
		t.Fatalf("退出时应停止并关闭电机: stops=%d closes=%d", motors.stops, motors.closes)
	}
	if !sensor.closed || !link.closed {
		t.Fatalf("退出时应关闭传感器和通道")
	}
}

func TestStart_ContextCancel(t *testing.T) {
	tr := &trace{}
	l := New(Config{TickDelay: time.Millisecond}, Deps{
		Bus:        tracePublisher{tr},
		Controller: traceTicker{t: tr},
		Clock:      clock.NewManual(0),
		Logger:     discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go l.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("取消 context 后循环应退出")
	}
	if l.Ticks() == 0 {
		t.Fatalf("取消前应至少执行一次 tick")
	}
}
