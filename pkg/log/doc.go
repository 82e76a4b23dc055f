// Package log provides structured event logging for the pickup core.
//
// Events are captured at three places: the pairing wire (raw JSON exchanged
// over a pairing connection), state machines (pairing session and discovery
// lifecycle transitions), and the trust store. Applications receive events
// through the Logger interface; FileLogger persists them as a CBOR stream
// that Reader can replay, and SlogAdapter bridges events to log/slog for
// console output during development.
//
// Logging must never disrupt the core: implementations swallow their own
// errors and are safe for concurrent use.
package log
