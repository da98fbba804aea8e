// Package status tracks the daemon's sync lifecycle: from restoring
// the last snapshot through pairing and history sync to serving the
// live event stream. Every accepted transition is announced on the bus.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/tfaria/wsync/internal/bus"
)

// State is one phase of the sync lifecycle.
type State string

// Lifecycle phases. A fresh daemon starts in Restoring while the last
// snapshot is loaded. Live means the replica is current and applying
// the live stream. Degraded means the socket is stalling (keepalive
// gaps) but has not dropped yet, so the replica may be falling behind.
const (
	Restoring    State = "RESTORING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Live         State = "LIVE"
	Degraded     State = "DEGRADED"
	Reconnecting State = "RECONNECTING"
	Failed       State = "FAILED"
)

// lifecycle is the transition graph. Degraded recovers to Live when the
// stream catches up, or falls through Reconnecting when the socket
// finally drops.
var lifecycle = map[State][]State{
	Restoring:    {AuthRequired, Connecting, Failed},
	AuthRequired: {Connecting, Failed},
	Connecting:   {Syncing, AuthRequired, Reconnecting, Failed},
	Syncing:      {Live, Degraded, Reconnecting, Failed},
	Live:         {Degraded, Reconnecting, AuthRequired, Failed},
	Degraded:     {Live, Syncing, Reconnecting, AuthRequired, Failed},
	Reconnecting: {Connecting, Failed},
	Failed:       {Restoring},
}

// TransitionError reports a lifecycle move the graph does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lifecycle cannot move from %s to %s", e.From, e.To)
}

// Change is the payload published with every accepted transition.
type Change struct {
	From State
	To   State
}

// Machine serializes lifecycle transitions and announces each accepted
// one on the bus as a session.status_changed event. A nil bus disables
// announcements.
type Machine struct {
	bus *bus.Bus

	mu  sync.Mutex
	cur State
}

// NewMachine creates a machine in the Restoring phase.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{bus: b, cur: Restoring}
}

// Current returns the current phase.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Is reports whether the current phase equals any of the given states.
func (m *Machine) Is(states ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		if m.cur == s {
			return true
		}
	}
	return false
}

// Transition moves to the given phase. A move the lifecycle graph does
// not allow returns a TransitionError and leaves the phase unchanged.
// Announcements are published under the lock so subscribers observe
// changes in the order they were accepted.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.cur
	ok := false
	for _, s := range lifecycle[from] {
		if s == to {
			ok = true
			break
		}
	}
	if !ok {
		return &TransitionError{From: from, To: to}
	}
	m.cur = to

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.status_changed",
			Timestamp: time.Now(),
			Payload:   Change{From: from, To: to},
		})
	}
	return nil
}
