//go:build linux

package sensor

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// RealReader reads the ADS1115 over I2C and the DHT through IIO sysfs.
// It is safe for concurrent use; the potentiometer goroutine shares the ADC
// with the control loop.
type RealReader struct {
	busName string
	addr    uint16
	iioDir  string
	openBus func(name string) (i2c.BusCloser, error)

	mu   sync.Mutex // serializes conversions and bus reopen
	bus  i2c.BusCloser
	adc  *ads1x15.Dev
	pins map[int]ads1x15.PinADC
}

// NewRealReader initialises the host drivers and opens the I2C bus.
// An empty busName selects the first available bus.
func NewRealReader(busName string, addr uint16, iioDir string) (*RealReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	r := &RealReader{busName: busName, addr: addr, iioDir: iioDir, openBus: i2creg.Open}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RealReader) open() error {
	bus, err := r.openBus(r.busName)
	if err != nil {
		return fmt.Errorf("open i2c bus %q: %w", r.busName, err)
	}
	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: r.addr})
	if err != nil {
		bus.Close()
		return fmt.Errorf("ads1115 at %#x: %w", r.addr, err)
	}
	r.bus = bus
	r.adc = adc
	r.pins = make(map[int]ads1x15.PinADC)
	return nil
}

// Read returns the raw value for kind.
func (r *RealReader) Read(kind logic.SensorKind) (int, error) {
	switch kind {
	case logic.SensorMoisture:
		return r.ReadChannel(ChannelMoisture)
	case logic.SensorLight:
		return r.ReadChannel(ChannelLight)
	case logic.SensorTemperature, logic.SensorHumidity:
		return readIIOTenths(r.iioDir, kind)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

// ReadChannel runs a single-shot conversion on ch and returns 12-bit counts.
func (r *RealReader) ReadChannel(ch int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bus == nil {
		return 0, fmt.Errorf("i2c bus closed")
	}
	pin, err := r.pin(ch)
	if err != nil {
		return 0, err
	}
	sample, err := pin.Read()
	if err != nil {
		return 0, fmt.Errorf("read channel %d: %w", ch, err)
	}
	return adcCounts(sample.Raw), nil
}

func (r *RealReader) pin(ch int) (ads1x15.PinADC, error) {
	if p, ok := r.pins[ch]; ok {
		return p, nil
	}
	c, err := adcChannel(ch)
	if err != nil {
		return nil, err
	}
	p, err := r.adc.PinForChannel(c, adcFullScale, adcRate, ads1x15.BestQuality)
	if err != nil {
		return nil, fmt.Errorf("ads1115 channel %d: %w", ch, err)
	}
	r.pins[ch] = p
	return p, nil
}

// Reinit closes and re-opens the I2C bus. A failed close does not stop the
// reopen.
func (r *RealReader) Reinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.close(); err != nil {
		log.Printf("sensor: reinit: %v", err)
	}
	return r.open()
}

// Close releases the I2C bus.
func (r *RealReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.close()
}

func (r *RealReader) close() error {
	if r.bus == nil {
		return nil
	}
	for _, p := range r.pins {
		p.Halt()
	}
	r.pins = nil
	r.adc = nil
	err := r.bus.Close()
	r.bus = nil
	if err != nil {
		return fmt.Errorf("close i2c bus: %w", err)
	}
	return nil
}
