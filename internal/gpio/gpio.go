// Package gpio drives the pump relay and reads the emergency stop button.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Pump switches the water pump relay.
type Pump interface {
	// Set drives the relay to the given logical state.
	// Setting the state it is already in is harmless.
	Set(on bool) error

	// Close switches the pump off and releases GPIO resources.
	Close() error
}

// Button reads the emergency stop button.
type Button interface {
	// Pressed returns the logical button level.
	// The button pulls the line to ground: raw 0 = pressed.
	Pressed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinPump          = 19 // Relay driving the pump, active high
	PinEmergencyStop = 26 // Normally open button to ground

	chipName = "gpiochip0"
)
