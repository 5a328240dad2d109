package interfaces

// RealtimeConn is a coordination channel owned by exactly one manager.
// ARCHITECTURAL DISCOVERY: No other component may close or send on the
// underlying socket directly - everything goes through this interface
type RealtimeConn interface {
	// State returns the current connection state (connecting, open,
	// closed-clean, closed-retrying, closed-exhausted).
	State() string

	// Send serializes the payload and writes it when the channel is open.
	// FUNCTIONAL DISCOVERY: Sending on a non-open channel drops the payload
	// and returns nil - it must never fail the caller
	Send(v any) error

	// Close performs a normal-code closure, cancelling any pending
	// reconnect attempt first. Safe to call more than once.
	Close() error
}
