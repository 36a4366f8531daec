// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ist8308

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler delivers future invocations of the driver's step function.
// At most one invocation is in flight at a time; a new Schedule call
// supersedes whatever was pending. Safe for concurrent use.
type Scheduler interface {
	// ScheduleNow requests an invocation as soon as possible.
	ScheduleNow()
	// ScheduleDelayed requests one invocation after d.
	ScheduleDelayed(d time.Duration)
	// ScheduleOnInterval requests repeating invocations every p,
	// starting after p.
	ScheduleOnInterval(p time.Duration)
	// ScheduleClear cancels all pending invocations.
	ScheduleClear()
}

// timerScheduler is the production Scheduler, built on clock timers.
// Invocations run on timer goroutines but are serialized by runMu, so
// the step function never observes concurrency with itself. A
// generation counter invalidates stale timer fires after rescheduling.
type timerScheduler struct {
	clk clock.Clock
	run func()

	runMu sync.Mutex

	mu       sync.Mutex
	timer    *clock.Timer
	interval time.Duration
	gen      uint64
}

func newTimerScheduler(clk clock.Clock, run func()) *timerScheduler {
	return &timerScheduler{clk: clk, run: run}
}

func (s *timerScheduler) ScheduleNow() {
	s.arm(0, 0)
}

func (s *timerScheduler) ScheduleDelayed(d time.Duration) {
	s.arm(d, 0)
}

func (s *timerScheduler) ScheduleOnInterval(p time.Duration) {
	s.arm(p, p)
}

func (s *timerScheduler) ScheduleClear() {
	s.mu.Lock()
	s.gen++
	s.interval = 0
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *timerScheduler) arm(d, interval time.Duration) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.interval = interval
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clk.AfterFunc(d, func() { s.fire(gen) })
	s.mu.Unlock()
}

func (s *timerScheduler) fire(gen uint64) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		// superseded while waiting for runMu
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.run()

	// Re-arm the interval unless the step function rescheduled.
	s.mu.Lock()
	if gen == s.gen && s.interval > 0 {
		s.gen++
		next := s.gen
		s.timer = s.clk.AfterFunc(s.interval, func() { s.fire(next) })
	}
	s.mu.Unlock()
}
