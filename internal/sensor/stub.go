//go:build !linux

package sensor

import (
	"errors"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(busName string, addr uint16, iioDir string) (*RealReader, error) {
	return nil, errors.New("sensor: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read(kind logic.SensorKind) (int, error) {
	return 0, errors.New("sensor: not supported")
}

// ReadChannel is not implemented on non-Linux platforms.
func (r *RealReader) ReadChannel(ch int) (int, error) {
	return 0, errors.New("sensor: not supported")
}

// Reinit is not implemented on non-Linux platforms.
func (r *RealReader) Reinit() error {
	return errors.New("sensor: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
