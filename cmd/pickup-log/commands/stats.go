package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/oreon-project/pickup-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single pairing session.
type SessionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Role       log.Role
	FinalState string
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats, err := collectStats(reader)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(reader *log.Reader) (*Stats, error) {
	stats := &Stats{
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++
		if event.Category == log.CategoryWire {
			stats.EventsByDirection[event.Direction]++
		}
		if event.Error != nil {
			stats.Errors++
		}

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.SessionID == "" {
			continue
		}
		session, ok := stats.Sessions[event.SessionID]
		if !ok {
			session = &SessionStats{FirstSeen: event.Timestamp}
			stats.Sessions[event.SessionID] = session
		}
		session.Events++
		session.LastSeen = event.Timestamp
		if event.Role != log.RoleNone {
			session.Role = event.Role
		}
		if event.StateChange != nil && event.StateChange.Entity == log.StateEntitySession {
			session.FinalState = event.StateChange.NewState
		}
	}

	return stats, nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	if !stats.TimeRange.Start.IsZero() {
		fmt.Fprintf(w, "Time range:   %s - %s (%s)\n",
			stats.TimeRange.Start.UTC().Format(time.RFC3339),
			stats.TimeRange.End.UTC().Format(time.RFC3339),
			stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Errors:       %d\n", stats.Errors)

	fmt.Fprintln(w, "\nEvents by category:")
	for _, category := range []log.Category{
		log.CategoryWire, log.CategoryState, log.CategoryDiscovery,
		log.CategoryStorage, log.CategoryError,
	} {
		if n := stats.EventsByCategory[category]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", category, n)
		}
	}

	if len(stats.EventsByDirection) > 0 {
		fmt.Fprintln(w, "\nWire messages by direction:")
		fmt.Fprintf(w, "  in  %d\n", stats.EventsByDirection[log.DirectionIn])
		fmt.Fprintf(w, "  out %d\n", stats.EventsByDirection[log.DirectionOut])
	}

	if len(stats.Sessions) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSessions (%d):\n", len(stats.Sessions))

	ids := make([]string, 0, len(stats.Sessions))
	for id := range stats.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return stats.Sessions[ids[i]].FirstSeen.Before(stats.Sessions[ids[j]].FirstSeen)
	})

	for _, id := range ids {
		session := stats.Sessions[id]
		state := session.FinalState
		if state == "" {
			state = "?"
		}
		fmt.Fprintf(w, "  %s  %-9s %-9s %3d events  %s\n",
			shortenSessionID(id), session.Role, state, session.Events,
			session.LastSeen.Sub(session.FirstSeen).Round(time.Millisecond))
	}
}
