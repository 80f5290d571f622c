package sensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/devices/v3/ads1x15"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Compile-time interface checks.
var (
	_ Reader = (*FakeReader)(nil)
	_ ADC    = (*FakeReader)(nil)
	_ Reader = (*RealReader)(nil)
	_ ADC    = (*RealReader)(nil)
)

func TestFakeReaderScript(t *testing.T) {
	f := NewFakeReader(map[logic.SensorKind][]int{
		logic.SensorMoisture: {3000, 2900},
	})

	for _, want := range []int{3000, 2900, 2900} {
		got, err := f.Read(logic.SensorMoisture)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := f.Read(logic.SensorLight)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestFakeReaderFailAndReinit(t *testing.T) {
	f := NewFakeReader(map[logic.SensorKind][]int{logic.SensorTemperature: {215}})
	boom := errors.New("dht: checksum")

	f.Fail(logic.SensorTemperature, boom)
	_, err := f.Read(logic.SensorTemperature)
	assert.ErrorIs(t, err, boom)

	f.Fail(logic.SensorTemperature, nil)
	v, err := f.Read(logic.SensorTemperature)
	require.NoError(t, err)
	assert.Equal(t, 215, v)

	require.NoError(t, f.Reinit())
	assert.Equal(t, 1, f.Reinits)
	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}

func TestFakeReaderChannels(t *testing.T) {
	f := NewFakeReader(nil)
	_, err := f.ReadChannel(ChannelPotentiometer)
	assert.Error(t, err)

	f.Channels[ChannelPotentiometer] = []int{100, 200}
	v, _ := f.ReadChannel(ChannelPotentiometer)
	assert.Equal(t, 100, v)
	v, _ = f.ReadChannel(ChannelPotentiometer)
	assert.Equal(t, 200, v)
}

func TestReadDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	f := NewFakeReader(map[logic.SensorKind][]int{
		logic.SensorMoisture: {2500},
		logic.SensorHumidity: {550},
	})
	f.Fail(logic.SensorTemperature, errors.New("timeout"))

	results := ReadDue(f, []logic.SensorKind{logic.SensorMoisture, logic.SensorTemperature, logic.SensorHumidity}, now)
	require.Len(t, results, 3)

	assert.Equal(t, logic.SensorMoisture, results[0].Sample.Kind)
	assert.Equal(t, 2500, results[0].Sample.Raw)
	assert.Equal(t, now, results[0].Sample.Time)
	assert.NoError(t, results[0].Err)

	assert.Equal(t, logic.SensorTemperature, results[1].Sample.Kind)
	assert.Error(t, results[1].Err)

	assert.Equal(t, 550, results[2].Sample.Raw)
}

func TestADCChannel(t *testing.T) {
	ch, err := adcChannel(0)
	require.NoError(t, err)
	assert.Equal(t, ads1x15.Channel0, ch)

	ch, err = adcChannel(2)
	require.NoError(t, err)
	assert.Equal(t, ads1x15.Channel2, ch)

	_, err = adcChannel(4)
	assert.Error(t, err)
	_, err = adcChannel(-1)
	assert.Error(t, err)
}

func TestADCCounts(t *testing.T) {
	tests := []struct {
		name string
		in   int32
		want int
	}{
		{"full scale", 0x7FFF, RawMax},
		{"zero", 0, 0},
		{"mid", 0x4000, 2048},
		{"below ground", -16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adcCounts(tt.in))
		})
	}
}

func TestReadIIOTenths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in_temp_input"), []byte("21500\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in_humidityrelative_input"), []byte("abc"), 0o644))

	v, err := readIIOTenths(dir, logic.SensorTemperature)
	require.NoError(t, err)
	assert.Equal(t, 215, v)

	_, err = readIIOTenths(dir, logic.SensorHumidity)
	assert.Error(t, err)

	_, err = readIIOTenths(t.TempDir(), logic.SensorTemperature)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = readIIOTenths(dir, logic.SensorMoisture)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}
