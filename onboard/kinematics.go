package onboard

import "github.com/go-gl/mathgl/mgl64"

// TipPosition returns the end effector coordinate in the mechanism's XZ
// plane: x positive toward the front of the robot, z up from the elevator
// base. Angle zero points the arm straight up; positive angles swing it
// toward the front. Dashboard overlay only, the coordinator never consults
// this.
func TipPosition(geom GeometryConfig, elbowAngle, elevatorHeight float64) mgl64.Vec2 {
	pivot := mgl64.Vec2{0, elevatorHeight + geom.PivotOffset}
	arm := mgl64.Rotate2D(mgl64.DegToRad(-elbowAngle)).Mul2x1(mgl64.Vec2{0, geom.ArmLength})
	return pivot.Add(arm)
}
