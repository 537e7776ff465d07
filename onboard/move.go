package onboard

import (
	"sync"
	"time"
)

type movePhase int

// Phases of a side-switching transition, in order. A direct move starts at
// phaseConverge.
const (
	phaseStage    movePhase = iota // staged to safe height + deadzone edge, waiting for the elevator to clear
	phaseExit                      // cross issued, waiting to see the safe band go false
	phaseEnter                     // waiting to see the safe band come true at the far edge
	phaseConverge                  // final setpoints issued, waiting inside tolerance
	phaseDone
)

func (p movePhase) String() string {
	switch p {
	case phaseStage:
		return "stage"
	case phaseExit:
		return "cross"
	case phaseEnter:
		return "arrive"
	case phaseConverge:
		return "converge"
	case phaseDone:
		return "done"
	}
	return "unknown"
}

// Move outcomes as recorded in the move log.
const (
	MoveCompleted  = "completed"
	MoveSuperseded = "superseded"
)

// Move is the handle for one coordinated request. It completes when both
// axes converge on the target, or is superseded when a newer request takes
// over; there is no failure state and no timeout, a stalled mechanism
// simply leaves the handle pending.
type Move struct {
	Setpoint string
	Target   ArmState

	switching bool
	requested time.Time

	mu         sync.RWMutex
	phase      movePhase
	completed  bool
	superseded bool
	done       chan struct{}
}

func newMove(setpoint string, target ArmState, switching bool, phase movePhase) *Move {
	return &Move{
		Setpoint:  setpoint,
		Target:    target,
		switching: switching,
		requested: time.Now(),
		phase:     phase,
		done:      make(chan struct{}),
	}
}

// newNoopMove is what an unrecognised setpoint name yields: a move that was
// born complete and touched nothing. Callers cannot tell it apart from a
// real move that had nothing to do.
func newNoopMove(setpoint string) (m *Move) {
	m = &Move{
		Setpoint:  setpoint,
		requested: time.Now(),
		phase:     phaseDone,
		completed: true,
		done:      make(chan struct{}),
	}
	close(m.done)
	return
}

// Done is closed once the move has either completed or been superseded.
func (m *Move) Done() <-chan struct{} {
	return m.done
}

func (m *Move) Completed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed
}

func (m *Move) Superseded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.superseded
}

// SwitchingSides reports whether this move took the phased safe transition.
func (m *Move) SwitchingSides() bool {
	return m.switching
}

// Phase names the barrier the move is currently waiting on, for telemetry.
func (m *Move) Phase() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase.String()
}

func (m *Move) currentPhase() movePhase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

func (m *Move) setPhase(p movePhase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = p
}

func (m *Move) finished() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed || m.superseded
}

func (m *Move) complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed || m.superseded {
		return
	}
	m.completed = true
	m.phase = phaseDone
	close(m.done)
}

func (m *Move) supersede() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed || m.superseded {
		return
	}
	m.superseded = true
	close(m.done)
}

func (m *Move) outcome() string {
	if m.Completed() {
		return MoveCompleted
	}
	return MoveSuperseded
}

// MoveRecord is one finished move in the post-run log.
type MoveRecord struct {
	ID       int `storm:"id,increment"`
	Setpoint string
	Target   ArmState
	Requested time.Time
	Finished  time.Time
	Outcome   string
}

// MoveRecorder persists finished moves. Recording is best effort; the
// coordinator never blocks on it.
type MoveRecorder interface {
	RecordMove(rec MoveRecord) error
}
