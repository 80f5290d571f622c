// Package status provides a thread-safe status tracker for the irrigation
// controller. It is read by the HTTP handlers, the metrics collector and
// the heartbeat publisher while the run loop writes it once per tick.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs          int64
	HeartbeatMs     int64
	Broker          string
	HTTPAddr        string
	ConfigFile      string // empty when running on defaults
	ThresholdSource string // "fixed" or "potentiometer"
	Irrigation      config.Irrigation
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Controller    logic.Snapshot
	Ready         bool // at least one control tick has run
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int
	MQTTDropped   int
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Publish stores the controller snapshot produced by the latest tick.
// The snapshot's maps are fresh per tick and never written afterwards, so
// readers may share them.
func (t *Tracker) Publish(s logic.Snapshot) {
	t.mu.Lock()
	t.snap.Controller = s
	t.snap.Ready = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffer sets the offline buffer counters.
func (t *Tracker) SetMQTTBuffer(buffered, dropped int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = buffered
	t.snap.MQTTDropped = dropped
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
