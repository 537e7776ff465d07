package hardware

import (
	"math"
	"sync"
)

// positionEpsilon is how close a simulated axis has to get before it counts
// as sitting on a limit.
const positionEpsilon = 1e-6

// SimAxis is a rate-limited first-order stand-in for a real axis, used by
// -sim mode and tests. It sweeps to the min limit on startup the way node
// firmware homes, then tracks its setpoint at a fixed step per update.
type SimAxis struct {
	name     string
	min, max float64
	step     float64 // distance covered per Update call

	mu       sync.RWMutex
	position float64
	target   float64
	state    AxisState
	output   float64
}

func NewSimAxis(name string, min, max, step float64) *SimAxis {
	return &SimAxis{
		name: name,
		min:  min,
		max:  max,
		step: step,
		// powered on somewhere mid-travel with no idea where
		position: (min + max) / 2,
		target:   min,
		state:    AxisHoming,
	}
}

func (s *SimAxis) SetPosition(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value < s.min {
		value = s.min
	}
	if value > s.max {
		value = s.max
	}
	s.target = value
}

func (s *SimAxis) GetPosition() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

func (s *SimAxis) IsAtMinLimit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position <= s.min+positionEpsilon
}

func (s *SimAxis) IsAtMaxLimit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position >= s.max-positionEpsilon
}

func (s *SimAxis) GetState() AxisState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *SimAxis) GetOutput() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output
}

func (s *SimAxis) Update() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AxisKnown {
		// homing sweep toward the min limit switch
		s.position -= s.step
		s.output = -1
		if s.position <= s.min+positionEpsilon {
			s.position = s.min
			s.target = s.min
			s.output = 0
			s.state = AxisKnown
		}
		return
	}

	err := s.target - s.position
	if math.Abs(err) <= s.step {
		s.position = s.target
		s.output = 0
		return
	}

	if err > 0 {
		s.position += s.step
		s.output = 1
	} else {
		s.position -= s.step
		s.output = -1
	}
}
