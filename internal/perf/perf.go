// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package perf provides lightweight event counters for driver diagnostics.
package perf

import (
	"fmt"
	"sync/atomic"
)

// Counter counts events. Safe for concurrent use.
type Counter struct {
	name string
	n    atomic.Uint64
}

// NewCounter creates a named event counter.
func NewCounter(name string) *Counter {
	return &Counter{name: name}
}

// Count records one event.
func (c *Counter) Count() {
	c.n.Add(1)
}

// Events returns the number of events recorded so far.
func (c *Counter) Events() uint64 {
	return c.n.Load()
}

// Name returns the counter name.
func (c *Counter) Name() string {
	return c.name
}

func (c *Counter) String() string {
	return fmt.Sprintf("%s: %d events", c.name, c.n.Load())
}
