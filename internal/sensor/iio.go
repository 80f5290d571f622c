package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// DefaultIIODir is where the kernel dht11 driver exposes its channels.
const DefaultIIODir = "/sys/bus/iio/devices/iio:device0"

// IIO file names per kind. Both report thousandths of a unit.
var iioFiles = map[logic.SensorKind]string{
	logic.SensorTemperature: "in_temp_input",
	logic.SensorHumidity:    "in_humidityrelative_input",
}

// readIIOTenths reads an IIO channel and converts milli-units to tenths.
func readIIOTenths(dir string, kind logic.SensorKind) (int, error) {
	name, ok := iioFiles[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", kind, err)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", kind, err)
	}
	return milli / 100, nil
}
