// Package control serializes manual commands from the web and MQTT
// producers into the single-goroutine run loop.
package control

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// ErrQueueFull is returned when the run loop has fallen behind.
var ErrQueueFull = errors.New("control: command queue full")

// DefaultCapacity bounds the number of commands waiting for the next tick.
const DefaultCapacity = 16

// Queue is a bounded multi-producer, single-consumer command queue.
// An emergency stop is held in its own slot so a full queue can never
// refuse it; repeated stops before a drain collapse into one.
type Queue struct {
	ch   chan logic.Command
	stop atomic.Pointer[logic.Command]
	now  func() time.Time
}

// NewQueue creates a queue holding up to capacity commands.
func NewQueue(capacity int, now func() time.Time) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{ch: make(chan logic.Command, capacity), now: now}
}

// Submit enqueues a command without blocking. The command time is stamped
// if the caller left it zero.
func (q *Queue) Submit(cmd logic.Command) error {
	if cmd.Time.IsZero() {
		cmd.Time = q.now()
	}
	if cmd.Type == logic.CommandEmergencyStop {
		q.stop.CompareAndSwap(nil, &cmd)
		return nil
	}
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain removes and returns everything queued. A pending emergency stop
// comes first, the rest in arrival order.
func (q *Queue) Drain() []logic.Command {
	var cmds []logic.Command
	if stop := q.stop.Swap(nil); stop != nil {
		cmds = append(cmds, *stop)
	}
	for {
		select {
		case cmd := <-q.ch:
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	n := len(q.ch)
	if q.stop.Load() != nil {
		n++
	}
	return n
}

// ParseCommand maps an external command name onto a CommandType.
// Names are case-insensitive and accept '-' or '_' separators.
func ParseCommand(name string) (logic.CommandType, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_") {
	case "EMERGENCY_STOP", "STOP":
		return logic.CommandEmergencyStop, nil
	case "RESET":
		return logic.CommandReset, nil
	case "MANUAL_IRRIGATE", "IRRIGATE":
		return logic.CommandManualIrrigate, nil
	}
	return "", fmt.Errorf("control: unknown command %q", name)
}
