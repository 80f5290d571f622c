// Package logic contains the pure decision core of the irrigation controller:
// sensor validation, the irrigation state machine and the safety supervisor.
// This package has NO hardware, MQTT, OS or time.Sleep dependencies.
// Time is always injectable via time.Time parameters.
package logic

import "time"

// SensorKind identifies a physical quantity.
type SensorKind string

const (
	SensorMoisture    SensorKind = "moisture"
	SensorTemperature SensorKind = "temperature"
	SensorHumidity    SensorKind = "humidity"
	SensorLight       SensorKind = "light"
)

// SensorKinds lists every kind in evaluation order.
var SensorKinds = []SensorKind{SensorMoisture, SensorTemperature, SensorHumidity, SensorLight}

// RawSample is one raw transducer value. It lives for a single validation pass.
type RawSample struct {
	Kind SensorKind
	Raw  int
	Time time.Time
}

// ReadResult is what the run loop hands over per read: a sample, or a
// non-nil Err when the reader could not obtain one.
type ReadResult struct {
	Sample RawSample
	Err    error
}

// ValidatedReading is the validator's verdict on a sample.
type ValidatedReading struct {
	Kind  SensorKind
	Value float64
	Valid bool
	Fault FaultReason // empty when Valid
	Time  time.Time
}

// SensorHealth persists across cycles, one per kind.
type SensorHealth struct {
	Kind              SensorKind
	ConsecutiveErrors int
	Disconnected      bool
	LastValid         time.Time
	TotalErrors       int
}

// State is the irrigation state machine state.
type State string

const (
	StateIdle              State = "IDLE"
	StateIrrigating        State = "IRRIGATING"
	StateCooldownWait      State = "COOLDOWN_WAIT"
	StateDailyLimitReached State = "DAILY_LIMIT_REACHED"
	StateEmergencyStopped  State = "EMERGENCY_STOPPED"
)

// IrrigationContext carries the timers and counters behind the state.
type IrrigationContext struct {
	LastIrrigationEnd time.Time // zero until the first run completes
	DailyCount        int
	DayStart          time.Time
	PumpStart         time.Time // valid while Irrigating
	RunDuration       time.Duration
	Manual            bool
}

// CommandType is a manual control issued from outside the run loop.
type CommandType string

const (
	CommandEmergencyStop  CommandType = "EMERGENCY_STOP"
	CommandReset          CommandType = "RESET"
	CommandManualIrrigate CommandType = "MANUAL_IRRIGATE"
)

// Command is a queued manual control.
type Command struct {
	Type   CommandType
	Source string // e.g. "http", "mqtt", "button"
	Time   time.Time
}

// EventType represents something worth publishing.
type EventType string

const (
	EventIrrigationStart    EventType = "IRRIGATION_START"
	EventIrrigationStop     EventType = "IRRIGATION_STOP"
	EventIrrigationDenied   EventType = "IRRIGATION_DENIED"
	EventStateChange        EventType = "STATE_CHANGE"
	EventEmergencyStop      EventType = "EMERGENCY_STOP"
	EventReset              EventType = "RESET"
	EventSensorDisconnected EventType = "SENSOR_DISCONNECTED"
	EventSensorReconnected  EventType = "SENSOR_RECONNECTED"
	EventRecoveryAttempt    EventType = "RECOVERY_ATTEMPT"
	EventSupervisorFault    EventType = "SUPERVISOR_FAULT"
)

// Event is a published transition.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      State
	To        State
	Sensor    SensorKind  // sensor events only
	Reason    FaultReason // denials and faults
	Manual    bool
}

// EventCounts tracks the number of notable events since startup.
type EventCounts struct {
	IrrigationsStarted   int
	IrrigationsCompleted int
	Denied               int
	EmergencyStops       int
	SensorFaults         int
	Recoveries           int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
