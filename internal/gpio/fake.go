package gpio

import "errors"

// FakePump is a test double that records relay commands.
type FakePump struct {
	// On is the last commanded state.
	On bool

	// Calls records every Set in order.
	Calls []bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakePump creates a FakePump with the relay off.
func NewFakePump() *FakePump {
	return &FakePump{}
}

// Set records the command. On is only updated when no error is returned.
func (f *FakePump) Set(on bool) error {
	f.Calls = append(f.Calls, on)
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	return nil
}

// Close switches the pump off and marks it closed.
func (f *FakePump) Close() error {
	f.On = false
	f.Closed = true
	return nil
}

// FakeButton is a test double that returns scripted button levels.
type FakeButton struct {
	// Samples contains scripted levels to return.
	// Each call to Pressed() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Pressed()
	ReadError error
}

// NewFakeButton creates a FakeButton with the given samples.
func NewFakeButton(samples []bool) *FakeButton {
	return &FakeButton{Samples: samples}
}

// Pressed returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeButton) Pressed() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the button as closed.
func (f *FakeButton) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the button to the beginning of samples.
func (f *FakeButton) Reset() {
	f.index = 0
	f.Closed = false
}
