package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

// ADS1115 front end. 4.096 V full scale covers the 3.3 V sensor supply.
const (
	adcFullScale = 4096 * physic.MilliVolt
	adcRate      = 128 * physic.Hertz
)

// adcChannel maps a single-ended input number onto the driver's channel.
func adcChannel(ch int) (ads1x15.Channel, error) {
	switch ch {
	case 0:
		return ads1x15.Channel0, nil
	case 1:
		return ads1x15.Channel1, nil
	case 2:
		return ads1x15.Channel2, nil
	case 3:
		return ads1x15.Channel3, nil
	}
	return 0, fmt.Errorf("ads1115: channel %d outside 0..3", ch)
}

// adcCounts converts a 16-bit conversion result to 12-bit counts.
// Single-ended inputs only use the positive half; noise below ground reads 0.
func adcCounts(raw int32) int {
	if raw < 0 {
		return 0
	}
	v := int(raw) >> 3
	if v > RawMax {
		v = RawMax
	}
	return v
}
