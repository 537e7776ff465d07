package hardware

// AxisState reports whether an axis knows where it is. Consumed by telemetry
// only; move logic never branches on it.
type AxisState int

const (
	AxisUnknown AxisState = iota
	AxisHoming
	AxisKnown
)

func (s AxisState) String() string {
	switch s {
	case AxisHoming:
		return "HOMING"
	case AxisKnown:
		return "KNOWN"
	default:
		return "UNKNOWN"
	}
}

// AxisController is one closed-loop degree of freedom. The regulation itself
// (PID, ramp rate, current limit) lives behind this contract, in node
// firmware or in the simulator; callers only command setpoints and read the
// measured state back.
type AxisController interface {
	// SetPosition commands a new setpoint in engineering units. Values
	// outside the travel bounds are clamped, not rejected.
	SetPosition(value float64)
	// GetPosition returns the latest measured position.
	GetPosition() float64
	IsAtMinLimit() bool
	IsAtMaxLimit() bool
	// Update advances housekeeping once per control tick.
	Update()
	GetState() AxisState
	// GetOutput is the raw motor output fraction, -1..1. Telemetry only.
	GetOutput() float64
}

// AxisParams describes how one mechanism axis maps onto its drive.
type AxisParams struct {
	Name    string
	Channel uint8
	Scale   float64 // engineering units per firmware count
	Offset  float64 // engineering units at count zero
	Min     float64 // travel bounds, engineering units
	Max     float64
}
