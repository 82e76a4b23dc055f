package commands

import (
	"fmt"
	"io"

	"github.com/oreon-project/pickup-go/pkg/log"
)

// RunView prints events matching the filter in human-readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of one event.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session] ROLE DIR CATEGORY
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [%s] %s %-3s %s\n",
		ts, shortenSessionID(event.SessionID), event.Role, event.Direction, event.Category)

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Wire != nil:
		formatWireDetails(w, event.Wire)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Discovery != nil:
		formatDiscoveryDetails(w, event.Discovery)
	case event.Storage != nil:
		formatStorageDetails(w, event.Storage)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenSessionID returns the first 8 characters of a session ID.
func shortenSessionID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatWireDetails(w io.Writer, wire *log.WireEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", wire.Size)
	if len(wire.Data) > 0 {
		// Pairing messages are JSON, print them as text.
		fmt.Fprintf(w, "  Data: %s", wire.Data)
		if wire.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  %s: %s -> %s", sc.Entity, orDash(sc.OldState), sc.NewState)
	if sc.Reason != "" {
		fmt.Fprintf(w, " (%s)", sc.Reason)
	}
	fmt.Fprintln(w)
}

func formatDiscoveryDetails(w io.Writer, d *log.DiscoveryEvent) {
	fmt.Fprintf(w, "  %s: %s", d.Change, d.ServiceName)
	if d.Hostname != "" {
		fmt.Fprintf(w, " (%s)", d.Hostname)
	}
	fmt.Fprintf(w, "  peers=%d\n", d.PeerCount)
}

func formatStorageDetails(w io.Writer, s *log.StorageEvent) {
	fmt.Fprintf(w, "  Op: %s", s.Op)
	if s.DeviceID != "" {
		fmt.Fprintf(w, "  Device: %s", s.DeviceID)
	}
	fmt.Fprintln(w)
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	if e.Op != "" {
		fmt.Fprintf(w, "  Op: %s\n", e.Op)
	}
	fmt.Fprintf(w, "  Error: %s\n", e.Message)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
