//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealPump is not available on non-Linux platforms.
type RealPump struct{}

// NewRealPump returns an error on non-Linux platforms.
func NewRealPump(pin int) (*RealPump, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (p *RealPump) Set(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *RealPump) Close() error {
	return nil
}

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(pin int) (*RealButton, error) {
	return nil, errUnsupported
}

// Pressed is not implemented on non-Linux platforms.
func (b *RealButton) Pressed() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealButton) Close() error {
	return nil
}
