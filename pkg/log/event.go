package log

import (
	"time"
)

// Event represents a pickup log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the pairing session the event belongs to (UUID).
	// Empty for discovery and storage events.
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow for wire events.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Role indicates which side of the pairing exchange this endpoint is.
	Role Role `cbor:"5,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port), when known.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Wire        *WireEvent        `cbor:"7,keyasint,omitempty"`  // Raw pairing messages
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"`  // Session/discovery state
	Discovery   *DiscoveryEvent   `cbor:"9,keyasint,omitempty"`  // Peer set changes
	Storage     *StorageEvent     `cbor:"10,keyasint,omitempty"` // Trust-store operations
	Error       *ErrorEventData   `cbor:"11,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryWire indicates a pairing wire message.
	CategoryWire Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryDiscovery indicates a peer discovery event.
	CategoryDiscovery Category = 2
	// CategoryStorage indicates a trust-store operation.
	CategoryStorage Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryWire:
		return "WIRE"
	case CategoryState:
		return "STATE"
	case CategoryDiscovery:
		return "DISCOVERY"
	case CategoryStorage:
		return "STORAGE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side of the pairing exchange the local endpoint is.
type Role uint8

const (
	// RoleNone indicates no pairing role (discovery/storage events).
	RoleNone Role = 0
	// RoleResponder indicates the code-holding side.
	RoleResponder Role = 1
	// RoleInitiator indicates the code-entering side.
	RoleInitiator Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "NONE"
	case RoleResponder:
		return "RESPONDER"
	case RoleInitiator:
		return "INITIATOR"
	default:
		return "UNKNOWN"
	}
}

// MaxWireDataSize is the maximum wire payload size to include in events.
// Larger payloads are truncated to avoid excessive log growth.
const MaxWireDataSize = 4096

// WireEvent captures a raw pairing message.
type WireEvent struct {
	// Size is the full payload size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw JSON bytes (may be truncated).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewWireEvent builds a WireEvent, truncating oversized payloads.
func NewWireEvent(data []byte) *WireEvent {
	ev := &WireEvent{Size: len(data)}
	if len(data) > MaxWireDataSize {
		ev.Data = data[:MaxWireDataSize]
		ev.Truncated = true
	} else {
		ev.Data = data
	}
	return ev
}

// StateChangeEvent captures session and discovery lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a pairing session state change.
	StateEntitySession StateEntity = 0
	// StateEntityDiscovery indicates a discovery lifecycle change.
	StateEntityDiscovery StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityDiscovery:
		return "DISCOVERY"
	default:
		return "UNKNOWN"
	}
}

// DiscoveryEvent captures a change to the discovered peer set.
type DiscoveryEvent struct {
	// Change is the kind of change (add/update/remove).
	Change DiscoveryChange `cbor:"1,keyasint"`

	// ServiceName is the mDNS instance name of the affected peer.
	ServiceName string `cbor:"2,keyasint"`

	// Hostname is the peer hostname, when known.
	Hostname string `cbor:"3,keyasint,omitempty"`

	// PeerCount is the size of the peer set after the change.
	PeerCount int `cbor:"4,keyasint"`
}

// DiscoveryChange is the kind of peer set change.
type DiscoveryChange uint8

const (
	// DiscoveryAdd indicates a newly discovered peer.
	DiscoveryAdd DiscoveryChange = 0
	// DiscoveryUpdate indicates a peer's advertisement changed.
	DiscoveryUpdate DiscoveryChange = 1
	// DiscoveryRemove indicates a peer disappeared.
	DiscoveryRemove DiscoveryChange = 2
)

// String returns the change name.
func (c DiscoveryChange) String() string {
	switch c {
	case DiscoveryAdd:
		return "ADD"
	case DiscoveryUpdate:
		return "UPDATE"
	case DiscoveryRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// StorageEvent captures a trust-store operation.
type StorageEvent struct {
	// Op is the operation name (load, save, add, remove).
	Op string `cbor:"1,keyasint"`

	// DeviceID is the affected device, when the operation targets one.
	DeviceID string `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures error details.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Op is the operation that failed.
	Op string `cbor:"2,keyasint,omitempty"`
}
