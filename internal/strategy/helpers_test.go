package strategy

import (
	"io"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/types"
	"log/slog"
	"testing"
)

type motorCall struct {
	method      string
	left, right int
}

// recordingMotors 记录所有电机指令
type recordingMotors struct {
	calls []motorCall
}

func (m *recordingMotors) Forward(l, r int) error {
	if err := hardware.CheckSpeeds(l, r); err != nil {
		return err
	}
	m.calls = append(m.calls, motorCall{"forward", l, r})
	return nil
}

func (m *recordingMotors) Backward(l, r int) error {
	if err := hardware.CheckSpeeds(l, r); err != nil {
		return err
	}
	m.calls = append(m.calls, motorCall{"backward", l, r})
	return nil
}

func (m *recordingMotors) Stop(hard bool) error {
	m.calls = append(m.calls, motorCall{method: "stop"})
	return nil
}

func (m *recordingMotors) Close() error { return nil }

func (m *recordingMotors) last() motorCall {
	if len(m.calls) == 0 {
		return motorCall{}
	}
	return m.calls[len(m.calls)-1]
}

// fakeStore 是可直接设置读数的 Store
type fakeStore struct {
	light, distance, threshold int
	floor, stripe              int
	updates                    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{light: calibration.Unknown, distance: calibration.Unknown, threshold: 500}
}

func (s *fakeStore) LastLight() int         { return s.light }
func (s *fakeStore) LastDistance() int      { return s.distance }
func (s *fakeStore) LineEdgeThreshold() int { return s.threshold }
func (s *fakeStore) UpdateCalibration(floor, stripe int) error {
	s.floor, s.stripe = floor, stripe
	s.threshold = (floor + stripe) / 2
	s.updates++
	return nil
}

type fixture struct {
	motors      *recordingMotors
	store       *fakeStore
	bus         *event.Bus
	clock       *clock.Manual
	orientation types.Orientation
	deps        Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		motors:      &recordingMotors{},
		store:       newFakeStore(),
		bus:         event.NewBus(logger),
		clock:       clock.NewManual(10_000),
		orientation: types.OrientationLeft,
	}
	f.deps = Deps{
		Motors:      f.motors,
		Store:       f.store,
		Bus:         f.bus,
		Clock:       f.clock,
		Orientation: func() types.Orientation { return f.orientation },
		Logger:      logger,
	}
	return f
}
