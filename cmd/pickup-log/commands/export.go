package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/oreon-project/pickup-go/pkg/log"
)

// exportedEvent is the JSONL shape of one event. String forms are used for
// the enumerated fields so exported logs are greppable.
type exportedEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Category   string    `json:"category"`
	RemoteAddr string    `json:"remote_addr,omitempty"`

	Wire        *exportedWire        `json:"wire,omitempty"`
	StateChange *exportedStateChange `json:"state_change,omitempty"`
	Discovery   *log.DiscoveryEvent  `json:"discovery,omitempty"`
	Storage     *log.StorageEvent    `json:"storage,omitempty"`
	Error       *log.ErrorEventData  `json:"error,omitempty"`
}

type exportedWire struct {
	Size      int    `json:"size"`
	Data      string `json:"data,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

type exportedStateChange struct {
	Entity   string `json:"entity"`
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state"`
	Reason   string `json:"reason,omitempty"`
}

// RunExport writes events matching the filter as JSON lines.
func RunExport(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(exportEvent(event)); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
}

func exportEvent(event log.Event) exportedEvent {
	out := exportedEvent{
		Timestamp:  event.Timestamp,
		SessionID:  event.SessionID,
		Category:   event.Category.String(),
		RemoteAddr: event.RemoteAddr,
		Discovery:  event.Discovery,
		Storage:    event.Storage,
		Error:      event.Error,
	}
	if event.Role != log.RoleNone {
		out.Role = event.Role.String()
	}
	if event.Category == log.CategoryWire {
		out.Direction = event.Direction.String()
	}
	if event.Wire != nil {
		out.Wire = &exportedWire{
			Size:      event.Wire.Size,
			Data:      string(event.Wire.Data),
			Truncated: event.Wire.Truncated,
		}
	}
	if event.StateChange != nil {
		out.StateChange = &exportedStateChange{
			Entity:   event.StateChange.Entity.String(),
			OldState: event.StateChange.OldState,
			NewState: event.StateChange.NewState,
			Reason:   event.StateChange.Reason,
		}
	}
	return out
}
