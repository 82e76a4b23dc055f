package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oreon-project/pickup-go/pkg/config"
	"github.com/oreon-project/pickup-go/pkg/log"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// PairedDevice is the durable record of a successfully paired peer.
type PairedDevice struct {
	// Hostname is the peer's self-reported hostname.
	Hostname string `json:"hostname"`

	// IP is the address the pairing exchange used.
	IP string `json:"ip"`

	// Port is the peer's pairing port.
	Port int `json:"port"`

	// PairedAt is when the pairing succeeded (unix seconds).
	PairedAt int64 `json:"paired_at"`
}

// DeviceID returns the stable identifier for this record, hostname@ip.
func (d PairedDevice) DeviceID() string {
	return d.Hostname + "@" + d.IP
}

// State is the full persisted state document. Only the paired-devices map is
// owned by this package; unknown top-level keys round-trip unchanged.
type State struct {
	// PairedDevices maps device IDs (hostname@ip) to paired-device records.
	// Never nil.
	PairedDevices map[string]PairedDevice

	// extra holds top-level keys owned by other collaborators.
	extra map[string]json.RawMessage
}

// UnmarshalJSON decodes the state document, splitting the paired-devices map
// from the collaborator-owned remainder.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.PairedDevices = make(map[string]PairedDevice)
	if pd, ok := raw["paired_devices"]; ok {
		if err := json.Unmarshal(pd, &s.PairedDevices); err != nil {
			return fmt.Errorf("invalid paired_devices map: %w", err)
		}
		delete(raw, "paired_devices")
	}
	s.extra = raw
	return nil
}

// MarshalJSON encodes the state document, merging the paired-devices map back
// into the collaborator-owned keys.
func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.extra)+1)
	for k, v := range s.extra {
		out[k] = v
	}

	devices := s.PairedDevices
	if devices == nil {
		devices = map[string]PairedDevice{}
	}
	pd, err := json.Marshal(devices)
	if err != nil {
		return nil, err
	}
	out["paired_devices"] = pd

	return json.Marshal(out)
}

// Extra returns the raw value of a collaborator-owned top-level key.
func (s *State) Extra(key string) (json.RawMessage, bool) {
	v, ok := s.extra[key]
	return v, ok
}

// SetExtra records a collaborator-owned top-level key.
func (s *State) SetExtra(key string, value json.RawMessage) {
	if s.extra == nil {
		s.extra = make(map[string]json.RawMessage)
	}
	s.extra[key] = value
}

// defaultState returns the skeleton written to fresh state files.
func defaultState() *State {
	return &State{
		PairedDevices: make(map[string]PairedDevice),
		extra: map[string]json.RawMessage{
			"version":        json.RawMessage(fmt.Sprintf("%d", StateVersion)),
			"schema_version": json.RawMessage(fmt.Sprintf("%q", config.Version)),
			"applications":   json.RawMessage("[]"),
			"files":          json.RawMessage("[]"),
			"notifications":  json.RawMessage("[]"),
		},
	}
}

// Store manages persistence of the trust store to a JSON file.
type Store struct {
	mu     sync.Mutex
	path   string
	logger log.Logger
}

// NewStore creates a trust store backed by the file at path.
// Pass a nil logger to disable logging.
func NewStore(path string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Store{path: path, logger: logger}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state document from disk. A missing, unreadable, or corrupt
// file degrades to the default empty state rather than failing: a broken
// state file must never block pairing.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the state file without taking the lock.
func (s *Store) load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return defaultState(), nil
	}
	if err != nil {
		s.logError("load", err)
		return defaultState(), nil
	}

	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		s.logError("load", err)
		return defaultState(), nil
	}
	return st, nil
}

// Save writes the complete state document back to disk.
// Write failures are returned so the caller knows the state may not persist.
func (s *Store) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(st)
}

// save writes the state file without taking the lock.
func (s *Store) save(st *State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logError("save", err)
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.logError("save", err)
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.logError("save", err)
		return fmt.Errorf("failed to write state file: %w", err)
	}

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryStorage,
		Storage:   &log.StorageEvent{Op: "save"},
	})
	return nil
}

// AddOrUpdate upserts a paired-device record. Last writer wins on device ID
// collision.
func (s *Store) AddOrUpdate(deviceID string, device PairedDevice) error {
	if deviceID == "" {
		return fmt.Errorf("empty device ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	st.PairedDevices[deviceID] = device

	if err := s.save(st); err != nil {
		return err
	}

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryStorage,
		Storage:   &log.StorageEvent{Op: "add", DeviceID: deviceID},
	})
	return nil
}

// Remove deletes a paired-device record. Removing an absent ID is a no-op;
// a warning event is logged.
func (s *Store) Remove(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := st.PairedDevices[deviceID]; !ok {
		s.logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryStorage,
			Storage:   &log.StorageEvent{Op: "remove-missing", DeviceID: deviceID},
		})
		return nil
	}

	delete(st.PairedDevices, deviceID)
	if err := s.save(st); err != nil {
		return err
	}

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryStorage,
		Storage:   &log.StorageEvent{Op: "remove", DeviceID: deviceID},
	})
	return nil
}

// List returns the paired-devices map. The returned map is a copy; mutating
// it does not affect the store.
func (s *Store) List() (map[string]PairedDevice, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}

	out := make(map[string]PairedDevice, len(st.PairedDevices))
	for id, d := range st.PairedDevices {
		out[id] = d
	}
	return out, nil
}

// logError records a storage error event.
func (s *Store) logError(op string, err error) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error(), Op: "state." + op},
	})
}
