// Package sensor reads raw transducer values for the controller.
// The real implementation talks to an ADS1115 ADC over I2C and to the
// kernel's DHT driver through IIO sysfs files.
// The fake implementation allows testing without hardware.
package sensor

import (
	"errors"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Reader produces raw samples, one sensor kind at a time.
type Reader interface {
	// Read returns the raw value for kind: 12-bit ADC counts for moisture
	// and light, tenths of a unit for temperature and humidity.
	Read(kind logic.SensorKind) (int, error)

	// Reinit re-opens the underlying bus after repeated failures.
	Reinit() error

	// Close releases bus resources.
	Close() error
}

// ADC reads a single analog input channel.
type ADC interface {
	ReadChannel(ch int) (int, error)
}

// ADC channel assignments.
const (
	ChannelMoisture      = 0
	ChannelLight         = 1
	ChannelPotentiometer = 2

	// DefaultAddr is the ADS1115 address with ADDR tied to ground.
	DefaultAddr = 0x48

	// RawMax is the full-scale raw value after scaling to 12 bits.
	RawMax = 4095
)

// ErrUnsupportedKind is returned for a kind the reader has no transducer for.
var ErrUnsupportedKind = errors.New("sensor: unsupported kind")

// ReadDue reads every kind in kinds and stamps each sample with now.
// A failed read yields a result with Err set; it never aborts the others.
func ReadDue(r Reader, kinds []logic.SensorKind, now time.Time) []logic.ReadResult {
	results := make([]logic.ReadResult, 0, len(kinds))
	for _, kind := range kinds {
		raw, err := r.Read(kind)
		results = append(results, logic.ReadResult{
			Sample: logic.RawSample{Kind: kind, Raw: raw, Time: now},
			Err:    err,
		})
	}
	return results
}
