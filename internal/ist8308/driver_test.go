package ist8308

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// simBus simulates an IST8308 behind the Transport interface.
type simBus struct {
	regs        map[Register]byte
	wai         byte
	resetClears bool // SRST self-clears after a reset write
	failReads   bool
	failBulk    bool

	reads  []Register
	writes []Register
	data   [6]byte // DATAXL..DATAZH
	drdy   bool
}

func newSimBus() *simBus {
	return &simBus{
		regs:        make(map[Register]byte),
		wai:         DeviceID,
		resetClears: true,
	}
}

func (b *simBus) ReadRegister(reg Register) (byte, error) {
	b.reads = append(b.reads, reg)
	if b.failReads {
		return 0, errors.New("sim: read failure")
	}
	if reg == RegWAI {
		return b.wai, nil
	}
	return b.regs[reg], nil
}

func (b *simBus) WriteRegister(reg Register, value byte) error {
	b.writes = append(b.writes, reg)
	if reg == RegCNTL3 && value&CNTL3SoftReset != 0 {
		// POR wipes the configuration registers
		b.regs = make(map[Register]byte)
		if !b.resetClears {
			b.regs[RegCNTL3] = CNTL3SoftReset
		}
		return nil
	}
	b.regs[reg] = value
	return nil
}

func (b *simBus) BulkRead(start Register, buf []byte) error {
	if b.failBulk {
		return errors.New("sim: bulk failure")
	}
	if start != RegSTAT || len(buf) != 7 {
		return errors.New("sim: unexpected bulk read geometry")
	}
	if b.drdy {
		buf[0] = STATDataReady
	} else {
		buf[0] = 0
	}
	copy(buf[1:], b.data[:])
	return nil
}

// fakeScheduler records scheduling requests; the test pumps Step
// itself. Mutex-guarded because Stop is exercised from a second
// goroutine.
type fakeScheduler struct {
	mu         sync.Mutex
	nowCount   int
	delays     []time.Duration
	interval   time.Duration
	clearCount int
}

func (s *fakeScheduler) ScheduleNow() {
	s.mu.Lock()
	s.nowCount++
	s.mu.Unlock()
}

func (s *fakeScheduler) ScheduleDelayed(d time.Duration) {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
}

func (s *fakeScheduler) ScheduleOnInterval(p time.Duration) {
	s.mu.Lock()
	s.interval = p
	s.mu.Unlock()
}

func (s *fakeScheduler) ScheduleClear() {
	s.mu.Lock()
	s.clearCount++
	s.mu.Unlock()
}

func (s *fakeScheduler) lastDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delays) == 0 {
		return 0, false
	}
	return s.delays[len(s.delays)-1], true
}

// recordSink records everything the driver pushes at it.
type recordSink struct {
	scale     float64
	tempUnset bool
	samples   []struct {
		ts      time.Time
		x, y, z float64
	}
}

func (s *recordSink) SetScale(scale float64)     { s.scale = scale }
func (s *recordSink) SetTemperatureUnavailable() { s.tempUnset = true }
func (s *recordSink) Update(ts time.Time, x, y, z float64) {
	s.samples = append(s.samples, struct {
		ts      time.Time
		x, y, z float64
	}{ts, x, y, z})
}

func newTestDriver(bus Transport) (*Driver, *fakeScheduler, *recordSink, *clock.Mock) {
	sched := &fakeScheduler{}
	sink := &recordSink{}
	mock := clock.NewMock()
	d := New(bus, sink, Opts{Clock: mock, Scheduler: sched})
	return d, sched, sink, mock
}

// bringToRead pumps the state machine from Reset to Read against a
// healthy simulated bus.
func bringToRead(t *testing.T, d *Driver, mock *clock.Mock) {
	t.Helper()
	d.Reset()
	for i := 0; i < 20 && d.State() != StateRead; i++ {
		d.Step()
		mock.Add(powerOnResetTime)
	}
	if d.State() != StateRead {
		t.Fatalf("never reached read state, stuck in %s", d.State())
	}
}

func TestNewStartsStopped(t *testing.T) {
	d, sched, _, _ := newTestDriver(newSimBus())
	if d.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", d.State())
	}
	d.Step()
	if sched.nowCount != 0 || len(sched.delays) != 0 {
		t.Error("stopped step must not reschedule")
	}
}

func TestResetSequenceReachesRead(t *testing.T) {
	bus := newSimBus()
	d, sched, sink, mock := newTestDriver(bus)

	d.Reset()
	if sched.clearCount != 1 || sched.nowCount != 1 {
		t.Fatalf("Reset must clear and schedule immediately, got clear=%d now=%d",
			sched.clearCount, sched.nowCount)
	}

	// RESET: issues the soft-reset write and waits out the POR bound.
	d.Step()
	if d.State() != StateWaitForReset {
		t.Fatalf("state = %s, want wait_for_reset", d.State())
	}
	if len(sched.delays) != 1 || sched.delays[0] != powerOnResetTime {
		t.Fatalf("expected one %v delay, got %v", powerOnResetTime, sched.delays)
	}
	mock.Add(powerOnResetTime)

	// WAIT_FOR_RESET: identity matches, SRST cleared.
	d.Step()
	if d.State() != StateConfigure {
		t.Fatalf("state = %s, want configure", d.State())
	}

	// CONFIGURE, first pass: registers are at POR defaults, so entries
	// needing set bits get corrected and the phase repeats.
	d.Step()
	if d.State() != StateConfigure {
		t.Fatalf("state = %s, want configure (corrections pending)", d.State())
	}

	// CONFIGURE, second pass: corrections verified, sampling starts.
	d.Step()
	if d.State() != StateRead {
		t.Fatalf("state = %s, want read", d.State())
	}
	if sched.interval != defaultSampleInterval {
		t.Fatalf("sample interval = %v, want %v", sched.interval, defaultSampleInterval)
	}
	if sink.scale != ScaleFactor {
		t.Errorf("scale = %v, want %v", sink.scale, ScaleFactor)
	}
	if !sink.tempUnset {
		t.Error("temperature should be marked unavailable")
	}
}

func TestConfigureAppliesTable(t *testing.T) {
	bus := newSimBus()
	d, _, _, mock := newTestDriver(bus)
	bringToRead(t, d, mock)

	for _, cfg := range registerConfig {
		v := bus.regs[cfg.Reg]
		if v&cfg.SetBits != cfg.SetBits {
			t.Errorf("0x%02X: 0x%02X missing set bits 0x%02X", byte(cfg.Reg), v, cfg.SetBits)
		}
		if v&cfg.ClearBits != 0 {
			t.Errorf("0x%02X: 0x%02X has clear bits 0x%02X", byte(cfg.Reg), v, cfg.ClearBits)
		}
	}
}

func TestConfigTableMasksDisjoint(t *testing.T) {
	for _, cfg := range registerConfig {
		if cfg.SetBits&cfg.ClearBits != 0 {
			t.Errorf("0x%02X: set 0x%02X overlaps clear 0x%02X",
				byte(cfg.Reg), cfg.SetBits, cfg.ClearBits)
		}
	}
}

func TestConfigureCorrectsOncePerPass(t *testing.T) {
	bus := newSimBus()
	d, _, _, mock := newTestDriver(bus)
	d.Reset()
	d.Step()
	mock.Add(powerOnResetTime)
	d.Step() // now in configure

	bus.writes = nil
	d.Step() // first configure pass

	// Exactly one corrective write per failing entry, none for entries
	// already at their required value.
	want := 0
	for _, cfg := range registerConfig {
		v := byte(0) // POR default
		if (cfg.SetBits != 0 && v&cfg.SetBits != cfg.SetBits) || v&cfg.ClearBits != 0 {
			want++
		}
	}
	if len(bus.writes) != want {
		t.Fatalf("corrective writes = %d, want %d", len(bus.writes), want)
	}
	if d.State() != StateConfigure {
		t.Fatal("corrected entries must be re-verified before advancing")
	}
}

func TestSampleDecode(t *testing.T) {
	bus := newSimBus()
	d, _, sink, mock := newTestDriver(bus)
	bringToRead(t, d, mock)

	bus.drdy = true
	bus.data = [6]byte{0x02, 0x01, 0x04, 0x03, 0xFE, 0xFF} // L,H per axis

	sink.samples = nil
	d.Step()

	if len(sink.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(sink.samples))
	}
	s := sink.samples[0]
	if s.x != 0x0102 || s.y != 0x0304 || s.z != -2 {
		t.Errorf("decoded (%v, %v, %v), want (258, 772, -2)", s.x, s.y, s.z)
	}
	if !s.ts.Equal(mock.Now()) {
		t.Error("sample timestamp must be taken at capture time")
	}
}

func TestNoSampleWithoutDataReady(t *testing.T) {
	bus := newSimBus()
	d, _, sink, mock := newTestDriver(bus)
	bringToRead(t, d, mock)

	bus.drdy = false
	bus.data = [6]byte{1, 2, 3, 4, 5, 6}
	sink.samples = nil
	d.Step()

	if len(sink.samples) != 0 {
		t.Fatal("sample forwarded without DRDY set")
	}
}

func TestHealthCheckRoundRobin(t *testing.T) {
	bus := newSimBus()
	d, _, _, mock := newTestDriver(bus)
	bringToRead(t, d, mock)

	bus.reads = nil
	cycles := 2 * len(registerConfig)
	for i := 0; i < cycles; i++ {
		mock.Add(healthCheckInterval + time.Millisecond)
		d.Step()
	}

	if len(bus.reads) != cycles {
		t.Fatalf("expected %d health-check reads, got %d", cycles, len(bus.reads))
	}
	for i, reg := range bus.reads {
		want := registerConfig[i%len(registerConfig)].Reg
		if reg != want {
			t.Fatalf("check %d read 0x%02X, want 0x%02X", i, byte(reg), byte(want))
		}
	}
}

func TestHealthCheckSkippedInsideInterval(t *testing.T) {
	bus := newSimBus()
	d, _, _, mock := newTestDriver(bus)
	bringToRead(t, d, mock)

	// First read performs a check (no check has ever run); the next,
	// 20 ms later, must not.
	d.Step()
	bus.reads = nil
	mock.Add(defaultSampleInterval)
	d.Step()

	if len(bus.reads) != 0 {
		t.Fatalf("unexpected register reads inside check interval: %v", bus.reads)
	}
}

func TestHealthCheckFailureForcesReconfigure(t *testing.T) {
	bus := newSimBus()
	d, sched, _, mock := newTestDriver(bus)
	bringToRead(t, d, mock)
	d.Step() // first check passes, cursor -> 1

	// Corrupt the entry the cursor now points at.
	corrupt := registerConfig[1]
	bus.regs[corrupt.Reg] = corrupt.ClearBits

	sched.nowCount = 0
	mock.Add(healthCheckInterval + time.Millisecond)
	d.Step()

	if d.State() != StateConfigure {
		t.Fatalf("state = %s, want configure after failed health check", d.State())
	}
	if sched.nowCount != 1 {
		t.Fatal("reconfigure must be scheduled immediately")
	}
	if got := d.GetStatus().BadRegisterChecks; got != 1 {
		t.Errorf("bad register checks = %d, want 1", got)
	}
}

func TestFailedTransferCountsAndChecks(t *testing.T) {
	bus := newSimBus()
	d, _, sink, mock := newTestDriver(bus)
	bringToRead(t, d, mock)
	d.Step() // consume the initial health check

	bus.failBulk = true
	bus.reads = nil
	sink.samples = nil
	mock.Add(defaultSampleInterval) // inside the 100 ms check interval
	d.Step()

	if len(sink.samples) != 0 {
		t.Fatal("no sample should be forwarded on a failed transfer")
	}
	// A failed transfer folds into an immediate health check even
	// though the check interval has not elapsed.
	if len(bus.reads) != 1 {
		t.Fatalf("expected 1 health-check read after bad transfer, got %d", len(bus.reads))
	}
	st := d.GetStatus()
	if st.BadTransfers != 1 {
		t.Errorf("bad transfers = %d, want 1", st.BadTransfers)
	}
}

func TestResetNeverCompletingRetriesForever(t *testing.T) {
	bus := newSimBus()
	bus.resetClears = false
	d, sched, _, mock := newTestDriver(bus)

	d.Reset()
	resets := 0
	for i := 0; i < 200; i++ {
		if d.State() == StateConfigure || d.State() == StateRead {
			t.Fatal("driver must not advance while SRST never clears")
		}
		if d.State() == StateReset {
			resets++
		}
		d.Step()
		// advance by whatever the machine asked for
		if delay, ok := sched.lastDelay(); ok {
			mock.Add(delay)
		}
	}
	if resets < 2 {
		t.Fatalf("expected repeated reset retries, saw %d", resets)
	}
}

func TestStopFromEveryPhase(t *testing.T) {
	phases := []func(d *Driver, bus *simBus, mock *clock.Mock){
		func(d *Driver, bus *simBus, mock *clock.Mock) { d.Reset() },
		func(d *Driver, bus *simBus, mock *clock.Mock) { d.Reset(); d.Step() },
		func(d *Driver, bus *simBus, mock *clock.Mock) { bringToRead(t, d, mock) },
	}

	for i, arm := range phases {
		bus := newSimBus()
		d, _, _, mock := newTestDriver(bus)
		arm(d, bus, mock)

		done := make(chan struct{})
		go func() {
			d.Stop()
			close(done)
		}()

		deadline := time.After(5 * time.Second)
		for stopped := false; !stopped; {
			select {
			case <-done:
				stopped = true
			case <-deadline:
				t.Fatalf("phase %d: Stop did not terminate", i)
			default:
				d.Step()
			}
		}
		if d.State() != StateStopped {
			t.Fatalf("phase %d: state = %s, want stopped", i, d.State())
		}
	}
}

func TestStoppedStepTouchesNothing(t *testing.T) {
	bus := newSimBus()
	d, sched, _, mock := newTestDriver(bus)
	bringToRead(t, d, mock)
	d.storeState(StateRequestStop)
	d.Step()

	bus.reads, bus.writes = nil, nil
	sched.nowCount, sched.clearCount = 0, 0
	d.Step()
	if len(bus.reads)+len(bus.writes) != 0 {
		t.Error("stopped step touched the bus")
	}
	if sched.nowCount+sched.clearCount != 0 {
		t.Error("stopped step rescheduled")
	}
}

func TestProbe(t *testing.T) {
	bus := newSimBus()
	d, _, _, _ := newTestDriver(bus)
	if err := d.Probe(); err != nil {
		t.Fatalf("probe failed on healthy bus: %v", err)
	}

	bus.wai = 0x42
	if err := d.Probe(); err == nil {
		t.Fatal("probe must fail on identity mismatch")
	}

	bus.failReads = true
	if err := d.Probe(); err == nil {
		t.Fatal("probe must fail on transport error")
	}
}

func TestInitFailsOnBadIdentity(t *testing.T) {
	bus := newSimBus()
	bus.wai = 0x42
	d, sched, _, _ := newTestDriver(bus)
	if err := d.Init(); err == nil {
		t.Fatal("Init must surface the probe failure")
	}
	if sched.nowCount != 0 {
		t.Error("failed Init must not arm the state machine")
	}
}

func TestGetStatus(t *testing.T) {
	bus := newSimBus()
	d, _, _, mock := newTestDriver(bus)
	bringToRead(t, d, mock)
	d.Step()

	st := d.GetStatus()
	if st.State != "read" {
		t.Errorf("status state = %q, want read", st.State)
	}
	if st.Transfers == 0 {
		t.Error("transfer counter never incremented")
	}
}
