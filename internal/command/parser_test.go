package command

import (
	"linefollower-robot/internal/types"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Command
		ok   bool
	}{
		{"exit", "EXIT", Exit{}, true},
		{"exit lower with spaces", "  exit \n", Exit{}, true},
		{"exit with arg", "EXIT|NOW", nil, false},
		{"state autonomous", "state|autonomous", SwitchState{Target: types.StateAutonomous}, true},
		{"state idle", "STATE|IDLE", SwitchState{Target: types.StateIdle}, true},
		{"state manual mixed case", "State|Manual", SwitchState{Target: types.StateManual}, true},
		{"state calibration", "STATE|CALIBRATION", SwitchState{Target: types.StateCalibration}, true},
		{"state unknown", "STATE|FLYING", nil, false},
		{"state arity", "STATE|IDLE|NOW", nil, false},
		{"move", "move|300|15", Move{Speed: 300, TurnAngle: 15}, true},
		{"move negative turn", "MOVE|100|-45", Move{Speed: 100, TurnAngle: -45}, true},
		{"move padded fields", "MOVE | 200 | 10", Move{Speed: 200, TurnAngle: 10}, true},
		{"move negative speed", "move|-5|0", nil, false},
		{"move bad number", "MOVE|fast|0", nil, false},
		{"move arity", "MOVE|300", nil, false},
		{"calibrate floor", "calibrate|floor", Calibrate{Step: types.StepFloor}, true},
		{"calibrate done", "CALIBRATE|DONE", Calibrate{Step: types.StepDone}, true},
		{"calibrate unknown", "CALIBRATE|WALL", nil, false},
		{"orient right", "orient|right", Orient{Value: types.OrientationRight}, true},
		{"orient unknown", "ORIENT|UP", nil, false},
		{"empty", "", nil, false},
		{"whitespace", "   ", nil, false},
		{"unknown keyword", "JUMP|1", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, 预期 %v", tt.in, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %#v, 预期 %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_Deterministic(t *testing.T) {
	first, _ := Parse("MOVE|250|-30")
	for i := 0; i < 10; i++ {
		again, _ := Parse("  move|250|-30  ")
		if again != first {
			t.Fatalf("第 %d 次解析结果不一致: %v != %v", i, again, first)
		}
	}
}

func TestCommand_StringRoundTrip(t *testing.T) {
	for _, c := range []Command{
		Exit{},
		Move{Speed: 300, TurnAngle: -15},
		SwitchState{Target: types.StateManual},
		Calibrate{Step: types.StepStripe},
		Orient{Value: types.OrientationLeft},
	} {
		got, ok := Parse(c.String())
		if !ok || got != c {
			t.Errorf("Parse(%q) = %v, %v", c.String(), got, ok)
		}
	}
}
