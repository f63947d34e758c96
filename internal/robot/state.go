package robot

// State is a step of the connection lifecycle.
type State int

const (
	StateSelected State = iota
	StateServicesResolving
	StateCharacteristicsBinding
	StateHandshakePending
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSelected:
		return "selected"
	case StateServicesResolving:
		return "services-resolving"
	case StateCharacteristicsBinding:
		return "characteristics-binding"
	case StateHandshakePending:
		return "handshake-pending"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminating reports whether teardown has started or finished.
func (s State) terminating() bool {
	return s >= StateClosing
}

// CloseReason says who ended a connection.
type CloseReason int

const (
	CloseUser   CloseReason = iota // explicit disconnect or shutdown
	CloseDevice                    // platform reported link loss
	CloseFailed                    // setup or transport failure
)

func (r CloseReason) String() string {
	switch r {
	case CloseUser:
		return "user"
	case CloseDevice:
		return "device"
	case CloseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Closure describes how a connection ended.
type Closure struct {
	Reason   CloseReason
	Err      error // set for CloseFailed
	WasReady bool  // the handshake had completed
	HasV2    bool
}
