package onboard

import (
	"math"
	"sync"
	"time"

	"github.com/elevarm/goelevarm/onboard/hardware"
	"go.uber.org/zap"
)

// Predicate margins and completion tolerances. The margins widen the wait
// conditions only; staged move targets always use the raw deadzone
// boundaries, so a phase cannot advance until the mechanism is sensed past
// a boundary rather than merely commanded to it.
const (
	SafeHeightMargin  = 2.5  // inches below the safe height still counted as clear
	SafeAngleMargin   = 15.0 // degrees widening the safe band test
	ElbowTolerance    = 5.0  // degrees
	ElevatorTolerance = 1.0  // inches
)

// Arm coordinates the elevator and elbow so the elbow never swings through
// the tower while the elevator is low. One move is active at a time; a new
// request supersedes the old one outright, with no rollback of whatever
// phase it was in. All state advances on Tick, driven by the host control
// loop.
type Arm struct {
	elevator hardware.AxisController
	elbow    hardware.AxisController
	store    *SetpointStore
	safety   SafetyConfig
	geometry GeometryConfig
	log      *zap.SugaredLogger

	sink     TelemetrySink
	recorder MoveRecorder

	mu     sync.Mutex
	active *Move
}

func NewArm(elevator, elbow hardware.AxisController, store *SetpointStore,
	safety SafetyConfig, geometry GeometryConfig, log *zap.SugaredLogger) *Arm {
	return &Arm{
		elevator: elevator,
		elbow:    elbow,
		store:    store,
		safety:   safety,
		geometry: geometry,
		log:      log,
	}
}

// SetTelemetrySink wires the dashboard feed. Call before the control loop
// starts.
func (a *Arm) SetTelemetrySink(sink TelemetrySink) {
	a.sink = sink
}

// SetMoveRecorder wires the post-run move log. Call before the control loop
// starts.
func (a *Arm) SetMoveRecorder(rec MoveRecorder) {
	a.recorder = rec
}

func (a *Arm) CurrentElbowAngle() float64 {
	return a.elbow.GetPosition()
}

func (a *Arm) CurrentElevatorHeight() float64 {
	return a.elevator.GetPosition()
}

// OnFront reports which side of zero the elbow currently occupies. No
// hysteresis around zero; requests issued with the elbow dead on the
// boundary can classify either way.
func (a *Arm) OnFront() bool {
	return a.CurrentElbowAngle() > 0
}

// AboveSafeHeight is true once the elevator has cleared the collision
// envelope, with the margin guaranteeing it is sensed past the boundary.
func (a *Arm) AboveSafeHeight() bool {
	return a.CurrentElevatorHeight() >= a.safety.SafeElevatorHeight-SafeHeightMargin
}

// InSafeAngle is true when the elbow is near either extreme, away from the
// dangerous middle band. The band is a union of two edges, not an interval.
func (a *Arm) InSafeAngle() bool {
	angle := a.CurrentElbowAngle()
	return angle < a.safety.DeadzoneBack+SafeAngleMargin ||
		angle > a.safety.DeadzoneFront-SafeAngleMargin
}

// MoveToNamed resolves a preset and starts the move. An unrecognised name
// yields an immediately-complete no-op, not an error.
func (a *Arm) MoveToNamed(name string) *Move {
	state, ok := a.store.Resolve(name)
	if !ok {
		a.log.Warnw("unknown setpoint requested", "name", name)
		return newNoopMove(name)
	}
	return a.MoveTo(name, state)
}

func (a *Arm) MoveToZero() *Move   { return a.MoveToNamed(SetpointZero) }
func (a *Arm) MoveToIntake() *Move { return a.MoveToNamed(SetpointIntake) }
func (a *Arm) MoveToLow() *Move    { return a.MoveToNamed(SetpointLow) }
func (a *Arm) MoveToMid() *Move    { return a.MoveToNamed(SetpointMid) }
func (a *Arm) MoveToHigh() *Move   { return a.MoveToNamed(SetpointHigh) }
func (a *Arm) MoveToClimb() *Move  { return a.MoveToNamed(SetpointClimb) }

// MoveTo starts a coordinated move toward target. The side-switch decision
// is made once, from the side the elbow is on right now, and the first
// phase's setpoints go out before MoveTo returns, atomically with respect
// to the tick.
func (a *Arm) MoveTo(setpoint string, target ArmState) *Move {
	a.mu.Lock()
	defer a.mu.Unlock()

	switching := a.OnFront() != target.IsFront()

	var m *Move
	if switching {
		// stage: elevator up to the safe height, elbow only as far as the
		// edge of the danger zone on its current side, never across it
		edge := a.safety.DeadzoneBack
		if a.OnFront() {
			edge = a.safety.DeadzoneFront
		}
		a.elevator.SetPosition(a.safety.SafeElevatorHeight)
		a.elbow.SetPosition(edge)
		m = newMove(setpoint, target, true, phaseStage)
	} else {
		a.elbow.SetPosition(target.ElbowAngle)
		a.elevator.SetPosition(target.ElevatorHeight)
		m = newMove(setpoint, target, false, phaseConverge)
	}

	a.supersedeLocked(m.Setpoint)
	a.active = m

	a.log.Infow("move started",
		"setpoint", setpoint,
		"elbowAngle", target.ElbowAngle,
		"elevatorHeight", target.ElevatorHeight,
		"switchingSides", switching)

	return m
}

// Hold abandons the active move and pins both axes where they are. This is
// the only recovery path for a stalled move.
func (a *Arm) Hold() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.supersedeLocked("HOLD")
	a.active = nil

	a.elevator.SetPosition(a.elevator.GetPosition())
	a.elbow.SetPosition(a.elbow.GetPosition())

	a.log.Infow("holding position",
		"elbowAngle", a.CurrentElbowAngle(),
		"elevatorHeight", a.CurrentElevatorHeight())
}

// ActiveMove returns the move currently being driven, or nil.
func (a *Arm) ActiveMove() *Move {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Tick advances both axes and the active move by one control period, then
// publishes telemetry. Barriers are plain predicate checks: a phase that is
// not physically achieved simply stays put until a later tick, forever if
// need be.
func (a *Arm) Tick() {
	a.mu.Lock()

	a.elevator.Update()
	a.elbow.Update()

	if m := a.active; m != nil && !m.finished() {
		switch m.currentPhase() {
		case phaseStage:
			if a.AboveSafeHeight() {
				// elevator is clear, swing through the deadzone
				a.elbow.SetPosition(m.Target.ElbowAngle)
				m.setPhase(phaseExit)
			}

		case phaseExit:
			// require the band to drop false once so a pre-satisfied
			// predicate cannot short-circuit the arrival wait
			if !a.InSafeAngle() {
				m.setPhase(phaseEnter)
			}

		case phaseEnter:
			if a.InSafeAngle() {
				a.elevator.SetPosition(m.Target.ElevatorHeight)
				m.setPhase(phaseConverge)
			}

		case phaseConverge:
			if a.converged(m.Target) {
				m.complete()
				a.record(m)
				a.log.Infow("move complete", "setpoint", m.Setpoint)
			}
		}
	}

	snap := a.snapshotLocked()
	a.mu.Unlock()

	if sink := a.sink; sink != nil {
		sink.PublishTelemetry(snap)
	}
}

// Snapshot returns the current telemetry view outside the tick.
func (a *Arm) Snapshot() Telemetry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Arm) converged(target ArmState) bool {
	elbowError := math.Abs(a.CurrentElbowAngle() - target.ElbowAngle)
	elevatorError := math.Abs(a.CurrentElevatorHeight() - target.ElevatorHeight)
	return elbowError < ElbowTolerance && elevatorError < ElevatorTolerance
}

func (a *Arm) supersedeLocked(by string) {
	prev := a.active
	if prev == nil || prev.finished() {
		return
	}

	prev.supersede()
	a.record(prev)
	a.log.Infow("move superseded", "setpoint", prev.Setpoint, "by", by)
}

func (a *Arm) record(m *Move) {
	if a.recorder == nil {
		return
	}

	rec := MoveRecord{
		Setpoint:  m.Setpoint,
		Target:    m.Target,
		Requested: m.requested,
		Finished:  time.Now(),
		Outcome:   m.outcome(),
	}

	go func() {
		if err := a.recorder.RecordMove(rec); err != nil {
			a.log.Errorw("unable to record move", "setpoint", rec.Setpoint, "err", err)
		}
	}()
}

func (a *Arm) snapshotLocked() Telemetry {
	tip := TipPosition(a.geometry, a.CurrentElbowAngle(), a.CurrentElevatorHeight())

	t := Telemetry{
		ElbowAngle:     a.CurrentElbowAngle(),
		ElevatorHeight: a.CurrentElevatorHeight(),

		ElevatorAtMinLimit: a.elevator.IsAtMinLimit(),
		ElevatorAtMaxLimit: a.elevator.IsAtMaxLimit(),
		ElbowAtMinLimit:    a.elbow.IsAtMinLimit(),
		ElbowAtMaxLimit:    a.elbow.IsAtMaxLimit(),

		ElevatorStateKnown: a.elevator.GetState() == hardware.AxisKnown,
		ElbowStateKnown:    a.elbow.GetState() == hardware.AxisKnown,

		ElevatorMotorOutput: a.elevator.GetOutput(),
		ElbowMotorOutput:    a.elbow.GetOutput(),

		OnFront: a.OnFront(),
		TipX:    tip.X(),
		TipZ:    tip.Y(),
	}

	if m := a.active; m != nil && !m.finished() {
		t.ActiveMove = m.Setpoint
		t.MovePhase = m.Phase()
	}

	return t
}
