package onboard

// Telemetry is the per-tick snapshot pushed at the dashboard. Write-only:
// nothing in the coordinator ever reads these values back.
type Telemetry struct {
	ElbowAngle     float64 `json:"elbowAngle"`
	ElevatorHeight float64 `json:"elevatorHeight"`

	ElevatorAtMinLimit bool `json:"elevatorAtMinLimit"`
	ElevatorAtMaxLimit bool `json:"elevatorAtMaxLimit"`
	ElbowAtMinLimit    bool `json:"elbowAtMinLimit"`
	ElbowAtMaxLimit    bool `json:"elbowAtMaxLimit"`

	ElevatorStateKnown bool `json:"elevatorStateKnown"`
	ElbowStateKnown    bool `json:"elbowStateKnown"`

	ElevatorMotorOutput float64 `json:"elevatorMotorOutput"`
	ElbowMotorOutput    float64 `json:"elbowMotorOutput"`

	OnFront bool    `json:"onFront"`
	TipX    float64 `json:"tipX"`
	TipZ    float64 `json:"tipZ"`

	ActiveMove string `json:"activeMove"`
	MovePhase  string `json:"movePhase"`
}

// TelemetrySink receives one snapshot per control tick.
type TelemetrySink interface {
	PublishTelemetry(t Telemetry)
}
