// Package robot drives the arm controller over its realtime interface.
package robot

import (
	"fmt"
	"math"
	"strings"
)

// NumJoints is the number of arm joints.
const NumJoints = 6

// JointName identifies a joint of the arm.
type JointName string

// Joint names of a UR-style 6-axis arm.
const (
	Base     JointName = "base"
	Shoulder JointName = "shoulder"
	Elbow    JointName = "elbow"
	Wrist1   JointName = "wrist1"
	Wrist2   JointName = "wrist2"
	Wrist3   JointName = "wrist3"
)

// AllJoints returns all joint names in controller order.
func AllJoints() []JointName {
	return []JointName{
		Base,
		Shoulder,
		Elbow,
		Wrist1,
		Wrist2,
		Wrist3,
	}
}

// Joints is one value per joint, in controller order. Angles are in radians,
// velocities in rad/s.
type Joints [NumJoints]float64

// Finite reports whether every value is a finite number.
func (j Joints) Finite() bool {
	for _, v := range j {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (j Joints) String() string {
	parts := make([]string, NumJoints)
	for i, v := range j {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Thresholds of the physically-moving predicate.
const (
	VelocityThreshold = 0.005 // rad/s
	PositionThreshold = 0.01  // rad
)

// JointState is one state sample reported by the controller.
type JointState struct {
	// Time is the controller uptime in seconds.
	Time     float64
	Target   Joints
	Actual   Joints
	Velocity Joints
}

// Moving reports whether the arm is physically moving: any joint turns
// faster than VelocityThreshold, or any joint is further than
// PositionThreshold from its target. The position check covers the window
// between a command and the first measurable acceleration.
func Moving(s JointState) bool {
	_, moving := movingJoint(s)
	return moving
}

// movingJoint returns the first joint that trips either threshold.
func movingJoint(s JointState) (int, bool) {
	for i := range NumJoints {
		if math.Abs(s.Velocity[i]) > VelocityThreshold {
			return i, true
		}
		if math.Abs(s.Target[i]-s.Actual[i]) > PositionThreshold {
			return i, true
		}
	}
	return -1, false
}
