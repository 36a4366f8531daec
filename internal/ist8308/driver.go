// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ist8308

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/mag_computer/internal/perf"
)

// Debug enables verbose state-machine logging.
var Debug = false

func debugf(format string, args ...any) {
	if Debug {
		log.Printf("ist8308: "+format, args...)
	}
}

// State is the driver phase. Transitions happen only inside Step,
// except that Reset and Stop force-set the state from the caller's
// goroutine; the value is therefore held atomically.
type State int32

const (
	StateReset State = iota
	StateWaitForReset
	StateConfigure
	StateRead
	StateRequestStop
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateWaitForReset:
		return "wait_for_reset"
	case StateConfigure:
		return "configure"
	case StateRead:
		return "read"
	case StateRequestStop:
		return "request_stop"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Timing bounds from the datasheet and the sampling design.
const (
	// Power-on reset completes within 50 ms per the datasheet; a reset
	// that has not finished after 100 ms is re-issued.
	powerOnResetTime  = 50 * time.Millisecond
	resetTimeout      = 100 * time.Millisecond
	resetRecheckDelay = 50 * time.Millisecond

	configureRetryDelay = 50 * time.Millisecond
	healthCheckInterval = 100 * time.Millisecond

	// 50 Hz sampling.
	defaultSampleInterval = 20 * time.Millisecond
)

// Sink receives calibrated samples and device metadata from the
// driver. Update gets raw counts already converted by the scale the
// driver set; implementations apply mounting rotation and deliver the
// result downstream.
type Sink interface {
	SetScale(scale float64)
	SetTemperatureUnavailable()
	Update(ts time.Time, x, y, z float64)
}

// Opts are construction options. Zero values select production
// defaults.
type Opts struct {
	// SampleInterval overrides the 20 ms sampling period.
	SampleInterval time.Duration
	// Clock substitutes a mock clock in tests.
	Clock clock.Clock
	// Scheduler substitutes a fake scheduler in tests. When nil the
	// driver runs on its own timer scheduler.
	Scheduler Scheduler
}

// Driver is the IST8308 state machine and lifecycle controller.
type Driver struct {
	bus   Transport
	sink  Sink
	clk   clock.Clock
	sched Scheduler

	state atomic.Int32

	sampleInterval time.Duration

	// Step-only state; never touched from other goroutines.
	resetTime  time.Time
	lastCheck  time.Time
	checkIndex int

	transfers    *perf.Counter
	badTransfers *perf.Counter
	badRegisters *perf.Counter
}

// New creates a driver. It does not touch the bus; call Init to start.
func New(bus Transport, sink Sink, opts Opts) *Driver {
	d := &Driver{
		bus:            bus,
		sink:           sink,
		clk:            opts.Clock,
		sched:          opts.Scheduler,
		sampleInterval: opts.SampleInterval,
		transfers:      perf.NewCounter("ist8308: transfer"),
		badTransfers:   perf.NewCounter("ist8308: bad transfer"),
		badRegisters:   perf.NewCounter("ist8308: bad register"),
	}
	if d.clk == nil {
		d.clk = clock.New()
	}
	if d.sampleInterval <= 0 {
		d.sampleInterval = defaultSampleInterval
	}
	if d.sched == nil {
		d.sched = newTimerScheduler(d.clk, d.Step)
	}
	d.state.Store(int32(StateStopped))
	return d
}

// State returns the current driver phase.
func (d *Driver) State() State {
	return State(d.state.Load())
}

func (d *Driver) storeState(s State) {
	d.state.Store(int32(s))
}

// Init probes the sensor identity and arms the state machine. It is
// the only entry point that surfaces bus failures to the caller;
// everything after a successful Init self-heals in the background.
func (d *Driver) Init() error {
	if err := d.Probe(); err != nil {
		return err
	}
	d.Reset()
	return nil
}

// Reset re-arms the state machine from the reset phase. Used for first
// start and for externally triggered re-initialization.
func (d *Driver) Reset() {
	d.storeState(StateReset)
	d.sched.ScheduleClear()
	d.sched.ScheduleNow()
}

// Stop requests termination and blocks until the state machine has
// observed the request and stopped. Safe to call from any goroutine.
func (d *Driver) Stop() {
	for d.State() != StateStopped {
		d.storeState(StateRequestStop)
		d.sched.ScheduleNow()
		time.Sleep(10 * time.Microsecond)
	}
}

// Probe checks the identity register, independent of the running state
// machine.
func (d *Driver) Probe() error {
	whoami, err := d.bus.ReadRegister(RegWAI)
	if err != nil {
		return fmt.Errorf("ist8308: probe: %w", err)
	}
	if whoami != DeviceID {
		return fmt.Errorf("ist8308: unexpected WAI 0x%02X (want 0x%02X)", whoami, DeviceID)
	}
	return nil
}

// Status is a diagnostics snapshot.
type Status struct {
	State             string `json:"state"`
	Transfers         uint64 `json:"transfers"`
	BadTransfers      uint64 `json:"bad_transfers"`
	BadRegisterChecks uint64 `json:"bad_register_checks"`
}

// GetStatus returns the current diagnostics snapshot.
func (d *Driver) GetStatus() Status {
	return Status{
		State:             d.State().String(),
		Transfers:         d.transfers.Events(),
		BadTransfers:      d.badTransfers.Events(),
		BadRegisterChecks: d.badRegisters.Events(),
	}
}

// PrintInfo logs the diagnostics counters.
func (d *Driver) PrintInfo() {
	log.Printf("ist8308: state: %s", d.State())
	log.Print(d.transfers)
	log.Print(d.badTransfers)
	log.Print(d.badRegisters)
}

// Step runs one state-machine invocation. It performs at most one
// bus-affecting action, updates state, and reschedules itself. Called
// by the scheduler; invocations are never concurrent.
func (d *Driver) Step() {
	switch d.State() {
	case StateReset:
		// SRST self-clears once the POR routine finishes.
		d.setAndClearBits(RegCNTL3, CNTL3SoftReset, 0)
		d.resetTime = d.clk.Now()
		d.storeState(StateWaitForReset)
		d.sched.ScheduleDelayed(powerOnResetTime)

	case StateWaitForReset:
		whoami, errID := d.bus.ReadRegister(RegWAI)
		cntl3, errRst := d.bus.ReadRegister(RegCNTL3)

		if errID == nil && errRst == nil && whoami == DeviceID && cntl3&CNTL3SoftReset == 0 {
			d.storeState(StateConfigure)
			d.sched.ScheduleNow()
		} else if d.clk.Since(d.resetTime) > resetTimeout {
			log.Print("ist8308: reset failed, retrying")
			d.storeState(StateReset)
			d.sched.ScheduleNow()
		} else {
			debugf("reset not complete, check again in %v", resetRecheckDelay)
			d.sched.ScheduleDelayed(resetRecheckDelay)
		}

	case StateConfigure:
		if d.configure() {
			d.storeState(StateRead)
			d.sched.ScheduleOnInterval(d.sampleInterval)
		} else {
			debugf("configure failed, retrying")
			d.sched.ScheduleDelayed(configureRetryDelay)
		}

	case StateRead:
		d.readSample()

	case StateRequestStop:
		d.sched.ScheduleClear()
		d.storeState(StateStopped)

	case StateStopped:
		// do nothing
	}
}

// readSample performs the READ phase: one bulk transfer spanning STAT
// through DATAZH, sample decode and forward, then the incremental
// register health check.
func (d *Driver) readSample() {
	var buf [7]byte // STAT, DATAXL..DATAZH

	ts := d.clk.Now()
	d.transfers.Count()
	err := d.bus.BulkRead(RegSTAT, buf[:])
	failure := err != nil
	if failure {
		d.badTransfers.Count()
	} else if buf[0]&STATDataReady != 0 {
		x := int16(uint16(buf[2])<<8 | uint16(buf[1]))
		y := int16(uint16(buf[4])<<8 | uint16(buf[3]))
		z := int16(uint16(buf[6])<<8 | uint16(buf[5]))
		d.sink.Update(ts, float64(x), float64(y), float64(z))
	}

	if failure || d.clk.Since(d.lastCheck) > healthCheckInterval {
		if d.registerCheck(registerConfig[d.checkIndex], true) {
			d.lastCheck = ts
			d.checkIndex = (d.checkIndex + 1) % len(registerConfig)
		} else {
			// One bad register throws the whole device state into
			// doubt; reconfigure everything.
			debugf("health check failed, reconfiguring")
			d.storeState(StateConfigure)
			d.sched.ScheduleNow()
		}
	}
}

// configure verifies the full configuration table, correcting any
// entry that fails, and pushes the fixed device metadata to the sink.
// It returns true only if every entry verified without correction; a
// corrected entry must re-pass verification on the next pass before it
// is trusted.
func (d *Driver) configure() bool {
	success := true

	for _, reg := range registerConfig {
		if !d.registerCheck(reg, false) {
			success = false
		}
	}

	d.sink.SetScale(ScaleFactor) // 6.6 LSB/µT
	d.sink.SetTemperatureUnavailable()

	return success
}

// registerCheck verifies one configuration entry and corrects it in
// place on failure. notify counts the failure as a health-check event.
func (d *Driver) registerCheck(cfg RegisterConfig, notify bool) bool {
	success := true

	value, err := d.bus.ReadRegister(cfg.Reg)
	if err != nil {
		success = false
	}

	if success && cfg.SetBits != 0 && value&cfg.SetBits != cfg.SetBits {
		debugf("0x%02X: 0x%02X (0x%02X not set)", byte(cfg.Reg), value, cfg.SetBits)
		success = false
	}

	if success && cfg.ClearBits != 0 && value&cfg.ClearBits != 0 {
		debugf("0x%02X: 0x%02X (0x%02X not cleared)", byte(cfg.Reg), value, cfg.ClearBits)
		success = false
	}

	if !success {
		d.setAndClearBits(cfg.Reg, cfg.SetBits, cfg.ClearBits)
		if notify {
			d.badRegisters.Count()
		}
	}

	return success
}

// setAndClearBits is a read-modify-write: OR in set, AND-NOT clear.
// Not atomic with respect to other bus users; the driver owns the
// address exclusively.
func (d *Driver) setAndClearBits(reg Register, set, clear byte) {
	value, err := d.bus.ReadRegister(reg)
	if err != nil {
		return
	}
	value |= set
	value &^= clear
	if err := d.bus.WriteRegister(reg, value); err != nil {
		debugf("write 0x%02X failed: %v", byte(reg), err)
	}
}
