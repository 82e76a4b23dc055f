package pairing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// Wire constants.
const (
	// TypeRequest is the message type sent by the initiator.
	TypeRequest = "pairing_request"

	// TypeConfirm is the message type sent by the responder.
	TypeConfirm = "pairing_confirm"

	// StatusSuccess indicates the code matched.
	StatusSuccess = "success"

	// StatusFailure indicates the exchange failed.
	StatusFailure = "failure"

	// ReasonInvalidCode is the failure reason for a code mismatch.
	ReasonInvalidCode = "Invalid code"

	// MaxMessageSize is the maximum accepted wire message size (64 KB).
	MaxMessageSize = 65536

	// readChunkSize is how much is read from the socket at a time.
	readChunkSize = 1024
)

// Wire errors.
var (
	// ErrMalformedMessage indicates the peer sent partial or non-JSON data.
	ErrMalformedMessage = errors.New("malformed pairing message")

	// ErrMessageTooLarge indicates the peer sent more than MaxMessageSize
	// bytes without a parseable document.
	ErrMessageTooLarge = errors.New("pairing message too large")
)

// Request is the document the initiator sends.
type Request struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Hostname string `json:"hostname"`
}

// Confirm is the document the responder sends back.
type Confirm struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Hostname string `json:"hostname,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// writeMessage sends one JSON document on the connection.
// Returns the encoded bytes for logging.
func writeMessage(conn net.Conn, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pairing message: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return data, fmt.Errorf("failed to send pairing message: %w", err)
	}
	return data, nil
}

// readMessage reads until a complete JSON document parses or the peer closes.
// A single read returning only part of the document is not an error; the
// loop keeps accumulating until parse succeeds, the size guard trips, the
// connection's read deadline fires, or the peer closes with undecodable data.
// Returns the raw bytes read for logging.
func readMessage(conn net.Conn, v any) ([]byte, error) {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > MaxMessageSize {
				return buf, ErrMessageTooLarge
			}
			if json.Valid(buf) {
				if uerr := json.Unmarshal(buf, v); uerr != nil {
					return buf, fmt.Errorf("%w: %v", ErrMalformedMessage, uerr)
				}
				return buf, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				if len(buf) == 0 {
					return nil, fmt.Errorf("%w: peer closed without sending", ErrMalformedMessage)
				}
				// Final parse attempt on whatever arrived before close.
				if json.Valid(buf) {
					if uerr := json.Unmarshal(buf, v); uerr != nil {
						return buf, fmt.Errorf("%w: %v", ErrMalformedMessage, uerr)
					}
					return buf, nil
				}
				return buf, fmt.Errorf("%w: connection closed mid-document", ErrMalformedMessage)
			}
			return buf, err
		}
	}
}

// truncateForLog clips a wire fragment for inclusion in error logs.
func truncateForLog(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
