package driver

import "fmt"

// The error taxonomy of §7. Transport/decode errors are defined in their
// owning packages (transport.ErrDisconnected et al.); the driver only
// needs the state-machine-facing subset.

// ProtocolError reports a message that arrived in a state where its type
// is not legal (e.g. relogin with no disconnected seat, or login after
// the session is running).
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %s", e.Detail) }

// CapacityError reports Table.Allocate on a full table.
type CapacityError struct{}

func (e *CapacityError) Error() string { return "capacity error: no free slot" }

// ValidationError is a controller-surfaced rejection (bid/ask violation,
// invalid production choice, invalid amount). Reflected only to the
// originating seat (§7).
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation error: %s", e.Code) }

// StateError reports a persistence or configuration failure that aborts
// Start (at session start) or is logged and retried (mid-session).
type StateError struct {
	Detail string
}

func (e *StateError) Error() string { return fmt.Sprintf("state error: %s", e.Detail) }
