// Package live keeps assembled timelog views current. Mutation notifications
// are pure signals: they carry no business payload and only ever trigger a
// refetch-and-reassemble, so racing or reordered notifications all converge
// on whatever the store currently holds.
package live

// Signal is an opaque mutation notification.
type Signal int

const (
	SignalEntryCreated Signal = iota
	SignalEntryStopped
	SignalEntryChanged
	SignalEntryDeleted
	SignalHeartbeatTimeout
)

// String returns the wire-level event type name.
func (s Signal) String() string {
	switch s {
	case SignalEntryCreated:
		return "interval.created"
	case SignalEntryStopped:
		return "interval.stopped"
	case SignalEntryChanged:
		return "interval.changed"
	case SignalEntryDeleted:
		return "interval.deleted"
	case SignalHeartbeatTimeout:
		return "heartbeat.timeout"
	}
	return "unknown"
}

// ParseSignal maps a wire event type back to a Signal. Unknown event types
// map to SignalEntryChanged: any signal is just a reason to reassemble, so an
// unrecognised one still triggers reconciliation rather than being dropped.
func ParseSignal(eventType string) Signal {
	switch eventType {
	case "interval.created":
		return SignalEntryCreated
	case "interval.stopped":
		return SignalEntryStopped
	case "interval.deleted":
		return SignalEntryDeleted
	case "heartbeat.timeout":
		return SignalHeartbeatTimeout
	}
	return SignalEntryChanged
}
