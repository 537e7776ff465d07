package onboard

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// AxisConfig maps one mechanism axis onto its drive hardware and travel.
type AxisConfig struct {
	Node        uint32  `yaml:"node"`
	Channel     uint8   `yaml:"channel"`
	Scale       float64 `yaml:"scale"`
	Offset      float64 `yaml:"offset"`
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`
	MaxVelocity float64 `yaml:"max_velocity"` // used by the simulated axis
}

// SafetyConfig holds the collision envelope for the elbow/elevator pair.
// The deadzone values are the raw boundaries of the dangerous middle band;
// the wait-side margins live with the predicates, not here.
type SafetyConfig struct {
	SafeElevatorHeight float64 `yaml:"safe_elevator_height"`
	DeadzoneFront      float64 `yaml:"deadzone_front"`
	DeadzoneBack       float64 `yaml:"deadzone_back"`
}

// GeometryConfig describes the arm for the telemetry tip overlay.
type GeometryConfig struct {
	PivotOffset float64 `yaml:"pivot_offset"` // elbow pivot height above the carriage
	ArmLength   float64 `yaml:"arm_length"`
}

type SetpointConfig struct {
	ElbowAngle     float64 `yaml:"elbow_angle"`
	ElevatorHeight float64 `yaml:"elevator_height"`
}

type ArmConfig struct {
	Version   int                       `yaml:"version"`
	Bus       string                    `yaml:"bus"`
	Elevator  AxisConfig                `yaml:"elevator"`
	Elbow     AxisConfig                `yaml:"elbow"`
	Safety    SafetyConfig              `yaml:"safety"`
	Geometry  GeometryConfig            `yaml:"geometry"`
	Setpoints map[string]SetpointConfig `yaml:"setpoints"`
}

// LoadArmConfig parses and sanity checks a device config file.
func LoadArmConfig(data []byte) (config ArmConfig, err error) {
	if err = yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	switch config.Version {
	case 1:
		// current schema
	default:
		return config, fmt.Errorf("unable to work with config version %d", config.Version)
	}

	if config.Elevator.Max <= config.Elevator.Min {
		return config, fmt.Errorf("elevator travel is empty: min %v, max %v", config.Elevator.Min, config.Elevator.Max)
	}
	if config.Elbow.Max <= config.Elbow.Min {
		return config, fmt.Errorf("elbow travel is empty: min %v, max %v", config.Elbow.Min, config.Elbow.Max)
	}

	// front of the mechanism is positive angle, back is negative
	if config.Safety.DeadzoneFront <= 0 || config.Safety.DeadzoneBack >= 0 {
		return config, fmt.Errorf("deadzone boundaries must straddle zero: front %v, back %v",
			config.Safety.DeadzoneFront, config.Safety.DeadzoneBack)
	}

	return config, nil
}
