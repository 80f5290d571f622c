package sensor

import (
	"fmt"
	"sync"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// FakeReader is a test double that returns scripted raw values.
// It is safe for concurrent use so a potentiometer and the run loop can
// share one instance.
type FakeReader struct {
	mu sync.Mutex

	// Values contains scripted raw values per kind.
	// Each Read consumes the next one; the last value repeats.
	Values map[logic.SensorKind][]int

	// Channels contains scripted raw values per ADC channel.
	Channels map[int][]int

	// Errors, if set for a kind, is returned by Read for that kind.
	Errors map[logic.SensorKind]error

	// ReinitError, if set, will be returned by Reinit()
	ReinitError error

	// Reinits counts Reinit calls.
	Reinits int

	// Closed tracks if Close was called
	Closed bool

	index   map[logic.SensorKind]int
	chIndex map[int]int
}

// NewFakeReader creates a FakeReader with the given per-kind values.
func NewFakeReader(values map[logic.SensorKind][]int) *FakeReader {
	if values == nil {
		values = make(map[logic.SensorKind][]int)
	}
	return &FakeReader{
		Values:   values,
		Channels: make(map[int][]int),
		Errors:   make(map[logic.SensorKind]error),
		index:    make(map[logic.SensorKind]int),
		chIndex:  make(map[int]int),
	}
}

// Read returns the next scripted value for kind.
func (f *FakeReader) Read(kind logic.SensorKind) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.Errors[kind]; err != nil {
		return 0, err
	}
	values := f.Values[kind]
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	i := f.index[kind]
	if i < len(values)-1 {
		f.index[kind] = i + 1
	}
	return values[i], nil
}

// ReadChannel returns the next scripted value for ch.
func (f *FakeReader) ReadChannel(ch int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values := f.Channels[ch]
	if len(values) == 0 {
		return 0, fmt.Errorf("no samples configured for channel %d", ch)
	}

	i := f.chIndex[ch]
	if i < len(values)-1 {
		f.chIndex[ch] = i + 1
	}
	return values[i], nil
}

// Set replaces the script for kind and rewinds it.
func (f *FakeReader) Set(kind logic.SensorKind, values ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Values[kind] = values
	f.index[kind] = 0
}

// Fail makes every Read of kind return err until cleared with a nil err.
func (f *FakeReader) Fail(kind logic.SensorKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[kind] = err
}

// Reinit counts the call.
func (f *FakeReader) Reinit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reinits++
	return f.ReinitError
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
