// Package pairing runs the code-guarded handshake that establishes mutual
// trust between two pickup devices.
//
// # Protocol
//
// Pairing is a single request/response over a short-lived TCP connection.
// The responder shows a short numeric code and listens; the initiator is told
// the code by a human and connects:
//
//	initiator -> responder: {"type":"pairing_request","code":"1234","hostname":"alice-laptop"}
//	responder -> initiator: {"type":"pairing_confirm","status":"success","hostname":"bob-desktop"}
//	                   or:  {"type":"pairing_confirm","status":"failure","reason":"Invalid code"}
//
// Each side sends exactly one JSON document per connection and closes. The
// codec reads until a complete document parses or the peer closes, bounded by
// MaxMessageSize and the read deadline; it never assumes a single read
// returns the whole message.
//
// The code proves physical or visual proximity, not cryptographic secrecy;
// the exchange is clear text by design.
//
// # Sessions
//
// A Coordinator owns at most one session at a time. Starting a new session
// first stops any prior one: the stop flag is set, the blocking accept or
// connect is unblocked by closing its socket, and the worker is joined before
// the new session begins.
//
//	Idle -> Listening -> Verifying         -> Paired | Rejected
//	Idle -> Connecting -> AwaitingResponse -> Paired | Rejected
//	any active state -> Cancelled          (Stop called or deadline exceeded)
//
// A successful exchange persists the peer into the trust store on both sides,
// keyed hostname@ip.
package pairing
