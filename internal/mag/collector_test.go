package mag

import (
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/mag_computer/internal/orientation"
)

func TestUpdateScalesAndRotates(t *testing.T) {
	var got []Sample
	c := NewCollector(orientation.RotationYaw90, func(s Sample) {
		got = append(got, s)
	})
	c.SetScale(0.5)

	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c.Update(ts, 2, 4, 6)

	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	s := got[0]
	// scaled: (1, 2, 3); yaw90: (-2, 1, 3)
	if s.Mx != -2 || s.My != 1 || s.Mz != 3 {
		t.Errorf("got (%v, %v, %v), want (-2, 1, 3)", s.Mx, s.My, s.Mz)
	}
	want := math.Sqrt(4 + 1 + 9)
	if math.Abs(s.Norm-want) > 1e-12 {
		t.Errorf("norm = %v, want %v", s.Norm, want)
	}
	if s.Time != ts.Format(time.RFC3339Nano) {
		t.Errorf("time = %q", s.Time)
	}
}

func TestUpdateDroppedUntilScaleSet(t *testing.T) {
	n := 0
	c := NewCollector(orientation.RotationNone, func(Sample) { n++ })

	c.Update(time.Now(), 1, 2, 3)
	if n != 0 {
		t.Fatal("sample published before scale was set")
	}

	c.SetScale(1)
	c.Update(time.Now(), 1, 2, 3)
	if n != 1 {
		t.Fatalf("expected 1 sample after scale set, got %d", n)
	}
}

func TestTemperatureUnavailable(t *testing.T) {
	c := NewCollector(orientation.RotationNone, nil)
	if !c.TemperatureAvailable() {
		t.Fatal("temperature should default to available")
	}
	c.SetTemperatureUnavailable()
	if c.TemperatureAvailable() {
		t.Fatal("temperature should be unavailable after SetTemperatureUnavailable")
	}
}
