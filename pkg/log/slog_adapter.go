package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes pickup events to an slog.Logger.
// Useful for development when you want to see events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.Role != RoleNone {
		attrs = append(attrs, slog.String("role", event.Role.String()))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}

	// Add type-specific attributes
	switch {
	case event.Wire != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("size", event.Wire.Size),
			slog.Bool("truncated", event.Wire.Truncated),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Discovery != nil:
		attrs = append(attrs,
			slog.String("change", event.Discovery.Change.String()),
			slog.String("service_name", event.Discovery.ServiceName),
			slog.Int("peer_count", event.Discovery.PeerCount),
		)
		if event.Discovery.Hostname != "" {
			attrs = append(attrs, slog.String("hostname", event.Discovery.Hostname))
		}
	case event.Storage != nil:
		attrs = append(attrs, slog.String("op", event.Storage.Op))
		if event.Storage.DeviceID != "" {
			attrs = append(attrs, slog.String("device_id", event.Storage.DeviceID))
		}
	case event.Error != nil:
		attrs = append(attrs, slog.String("error_msg", event.Error.Message))
		if event.Error.Op != "" {
			attrs = append(attrs, slog.String("error_op", event.Error.Op))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "pickup", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
