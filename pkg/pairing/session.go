package pairing

// SessionState is the state of the pairing session.
type SessionState uint8

const (
	// StateIdle indicates no session is active.
	StateIdle SessionState = iota

	// StateListening indicates the responder is waiting for a connection.
	StateListening

	// StateVerifying indicates the responder accepted a connection and is
	// checking the submitted code.
	StateVerifying

	// StateConnecting indicates the initiator is dialing the peer.
	StateConnecting

	// StateAwaitingResponse indicates the initiator sent its request and is
	// waiting for the confirm.
	StateAwaitingResponse

	// StatePaired is the terminal success state.
	StatePaired

	// StateRejected is the terminal failure state (code mismatch, network
	// failure, malformed peer).
	StateRejected

	// StateCancelled is the terminal state for Stop or deadline expiry.
	// Distinct from StateRejected: no peer rejected anything.
	StateCancelled
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateVerifying:
		return "VERIFYING"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StatePaired:
		return "PAIRED"
	case StateRejected:
		return "REJECTED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// active reports whether the state is non-terminal (a worker is running).
func (s SessionState) active() bool {
	switch s {
	case StateListening, StateVerifying, StateConnecting, StateAwaitingResponse:
		return true
	default:
		return false
	}
}

// Role is the side of the exchange a session runs.
type Role uint8

const (
	// RoleResponder holds the code and listens.
	RoleResponder Role = iota

	// RoleInitiator enters the code and connects.
	RoleInitiator
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleResponder:
		return "RESPONDER"
	case RoleInitiator:
		return "INITIATOR"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result of a completed pairing exchange.
type Outcome struct {
	// Success is true when both sides confirmed the code.
	Success bool

	// PeerHostname is the peer's self-reported hostname (set on success,
	// and on failure when the peer identified itself).
	PeerHostname string

	// Reason describes the failure. Code mismatch uses ReasonInvalidCode
	// verbatim; network failures use the reason constants below. On
	// success it is empty unless the trust-store write failed, in which
	// case it carries that error.
	Reason string
}

// Failure reason constants for initiator outcomes.
const (
	ReasonConnectionRefused = "connection refused"
	ReasonConnectTimeout    = "connect timeout"
	ReasonReadTimeout       = "read timeout"
	ReasonMalformedMessage  = "malformed message"
	ReasonSendFailed        = "send failed"
	ReasonCancelled         = "cancelled"
)
