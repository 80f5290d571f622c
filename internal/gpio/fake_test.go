package gpio

import (
	"errors"
	"testing"
)

// Compile-time interface checks.
var (
	_ Pump   = (*FakePump)(nil)
	_ Button = (*FakeButton)(nil)
	_ Pump   = (*RealPump)(nil)
	_ Button = (*RealButton)(nil)
)

func TestFakePumpSet(t *testing.T) {
	p := NewFakePump()

	if p.On {
		t.Fatal("pump should start off")
	}
	if err := p.Set(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.On {
		t.Error("expected pump on")
	}
	if err := p.Set(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.On {
		t.Error("expected pump off")
	}
	if len(p.Calls) != 2 || p.Calls[0] != true || p.Calls[1] != false {
		t.Errorf("calls: got %v", p.Calls)
	}
}

func TestFakePumpError(t *testing.T) {
	p := NewFakePump()
	p.SetError = errors.New("relay stuck")

	if err := p.Set(true); err == nil {
		t.Fatal("expected error to be returned")
	}
	if p.On {
		t.Error("failed Set must not change state")
	}
	if len(p.Calls) != 1 {
		t.Errorf("failed call should still be recorded, got %v", p.Calls)
	}
}

func TestFakePumpCloseSwitchesOff(t *testing.T) {
	p := NewFakePump()
	p.Set(true)

	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if p.On || !p.Closed {
		t.Errorf("after close: on=%v closed=%v", p.On, p.Closed)
	}
}

func TestFakeButtonPressed(t *testing.T) {
	b := NewFakeButton([]bool{false, true, false})

	want := []bool{false, true, false, false} // last sample repeats
	for i, w := range want {
		got, err := b.Pressed()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("sample %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestFakeButtonNoSamples(t *testing.T) {
	b := NewFakeButton(nil)

	if _, err := b.Pressed(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeButtonError(t *testing.T) {
	b := NewFakeButton([]bool{true})
	b.ReadError = errors.New("simulated error")

	_, err := b.Pressed()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeButtonReset(t *testing.T) {
	b := NewFakeButton([]bool{true, false})

	b.Pressed()
	b.Close()
	b.Reset()

	if b.Closed {
		t.Error("reset should clear Closed")
	}
	got, _ := b.Pressed()
	if !got {
		t.Error("after reset: expected first sample again")
	}
}
