package onboard

import "sort"

// Named presets every operator surface exposes.
const (
	SetpointZero   = "ZERO"
	SetpointIntake = "INTAKE"
	SetpointLow    = "LOW"
	SetpointMid    = "MID"
	SetpointHigh   = "HIGH"
	SetpointClimb  = "CLIMB"
)

// ArmState is one target configuration for the mechanism. Values are fixed
// at config load; moves reference these, they never own or mutate them.
type ArmState struct {
	ElbowAngle     float64 `json:"elbowAngle"`     // degrees, positive is the front side
	ElevatorHeight float64 `json:"elevatorHeight"` // inches
}

// IsFront reports which mechanical side the elbow sits on at this state.
func (s ArmState) IsFront() bool {
	return s.ElbowAngle > 0
}

// SetpointStore resolves preset names to target configurations. Built once
// from config and read-only afterwards.
type SetpointStore struct {
	states map[string]ArmState
}

func NewSetpointStore(setpoints map[string]SetpointConfig) (store *SetpointStore) {
	store = &SetpointStore{
		states: make(map[string]ArmState, len(setpoints)),
	}

	for name, sp := range setpoints {
		store.states[name] = ArmState{
			ElbowAngle:     sp.ElbowAngle,
			ElevatorHeight: sp.ElevatorHeight,
		}
	}

	return store
}

// Resolve looks a preset up by name.
func (s *SetpointStore) Resolve(name string) (state ArmState, ok bool) {
	state, ok = s.states[name]
	return
}

// Names lists the known presets in a stable order.
func (s *SetpointStore) Names() (names []string) {
	names = make([]string, 0, len(s.states))
	for name := range s.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}
