package connection

import "github.com/google/uuid"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Live reports whether the state still owns transport resources.
func (s State) Live() bool {
	return s == StateConnecting || s == StateOpen
}

// Handle identifies one transport session created by Open.
type Handle struct {
	ID uuid.UUID
}

func (h Handle) IsZero() bool {
	return h.ID == uuid.Nil
}

func (h Handle) String() string {
	return h.ID.String()
}

type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventClosed
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	default:
		return "failed"
	}
}

// Event is a lifecycle notification or an inbound frame for one handle.
type Event struct {
	Handle  Handle
	Kind    EventKind
	Payload []byte
	Code    int
	Reason  string
	Err     error
}

// EventSink receives events in the order the transport produced them.
// It is called from manager goroutines, never while the manager lock is held.
type EventSink func(Event)
