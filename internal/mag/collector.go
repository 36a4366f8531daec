// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mag

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/mag_computer/internal/orientation"
)

// Collector is the measurement sink for a magnetometer driver. It owns
// the physical scale factor and the mounting rotation, converts raw
// counts to µT in the body frame, and hands finished samples to a
// publish callback.
//
// The driver sets the scale during its configure phase; until then
// Update drops samples.
type Collector struct {
	mu            sync.Mutex
	scale         float64
	rotation      orientation.Rotation
	tempAvailable bool
	publish       func(Sample)
}

// NewCollector creates a collector with the given mounting rotation.
// publish is invoked synchronously for every accepted sample and must
// not block for long.
func NewCollector(rotation orientation.Rotation, publish func(Sample)) *Collector {
	return &Collector{
		rotation:      rotation,
		tempAvailable: true,
		publish:       publish,
	}
}

// SetScale sets the multiplier converting raw counts to µT.
func (c *Collector) SetScale(scale float64) {
	c.mu.Lock()
	c.scale = scale
	c.mu.Unlock()
}

// SetTemperatureUnavailable marks that the sensor has no temperature
// channel.
func (c *Collector) SetTemperatureUnavailable() {
	c.mu.Lock()
	c.tempAvailable = false
	c.mu.Unlock()
}

// TemperatureAvailable reports whether the device exposes temperature.
func (c *Collector) TemperatureAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempAvailable
}

// Rotation returns the mounting rotation in use.
func (c *Collector) Rotation() orientation.Rotation {
	return c.rotation
}

// Update accepts one raw (x, y, z) reading in sensor counts, scales it
// to µT, rotates it into the body frame, and publishes the result.
func (c *Collector) Update(ts time.Time, x, y, z float64) {
	c.mu.Lock()
	scale := c.scale
	c.mu.Unlock()

	if scale == 0 {
		return
	}

	mx, my, mz := c.rotation.Apply(x*scale, y*scale, z*scale)
	norm := math.Sqrt(mx*mx + my*my + mz*mz)

	if c.publish != nil {
		c.publish(NewSample(ts, mx, my, mz, norm))
	}
}
