package bus

import "time"

// Event is one message on the bus. Kind is a dot-separated name whose
// leading segment is the namespace subscribers filter on: inbound
// protocol events are published under wa., the engine's derived events
// under sync., and lifecycle changes under session..
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
