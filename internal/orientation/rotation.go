// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation describes how a sensor is mounted relative to the
// vehicle body frame and rotates measurements into that frame.
package orientation

import "fmt"

// Rotation is a fixed mounting rotation, limited to the 90° multiples
// that actually occur on a board.
type Rotation int

const (
	RotationNone Rotation = iota
	RotationYaw90
	RotationYaw180
	RotationYaw270
	RotationRoll180
	RotationRoll180Yaw90
	RotationRoll180Yaw180
	RotationRoll180Yaw270
)

var rotationNames = map[Rotation]string{
	RotationNone:          "none",
	RotationYaw90:         "yaw90",
	RotationYaw180:        "yaw180",
	RotationYaw270:        "yaw270",
	RotationRoll180:       "roll180",
	RotationRoll180Yaw90:  "roll180_yaw90",
	RotationRoll180Yaw180: "roll180_yaw180",
	RotationRoll180Yaw270: "roll180_yaw270",
}

func (r Rotation) String() string {
	if name, ok := rotationNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rotation(%d)", int(r))
}

// Parse maps a config-file rotation name to a Rotation.
func Parse(name string) (Rotation, error) {
	for r, n := range rotationNames {
		if n == name {
			return r, nil
		}
	}
	return RotationNone, fmt.Errorf("unknown rotation %q", name)
}

// Apply rotates the vector (x, y, z) from the sensor frame into the
// body frame.
func (r Rotation) Apply(x, y, z float64) (float64, float64, float64) {
	switch r {
	case RotationYaw90:
		return -y, x, z
	case RotationYaw180:
		return -x, -y, z
	case RotationYaw270:
		return y, -x, z
	case RotationRoll180:
		return x, -y, -z
	case RotationRoll180Yaw90:
		return y, x, -z
	case RotationRoll180Yaw180:
		return -x, y, -z
	case RotationRoll180Yaw270:
		return -y, -x, -z
	default:
		return x, y, z
	}
}
