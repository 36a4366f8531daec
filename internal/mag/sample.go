// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mag holds the calibrated magnetometer sample type and the
// collector that turns raw sensor counts into samples.
package mag

import "time"

// Sample is one calibrated magnetic field measurement.
// Mx, My, Mz are in µT, in the body frame. Norm is the field magnitude
// in µT. Time is RFC3339 to match project conventions.
type Sample struct {
	Mx   float64 `json:"mx"`
	My   float64 `json:"my"`
	Mz   float64 `json:"mz"`
	Norm float64 `json:"norm"`
	Time string  `json:"time"`
}

// NewSample builds a Sample from body-frame µT components.
func NewSample(ts time.Time, mx, my, mz, norm float64) Sample {
	return Sample{
		Mx:   mx,
		My:   my,
		Mz:   mz,
		Norm: norm,
		Time: ts.UTC().Format(time.RFC3339Nano),
	}
}
