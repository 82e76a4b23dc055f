package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/oreon-project/pickup-go/pkg/config"
	"github.com/oreon-project/pickup-go/pkg/discovery"
	"github.com/oreon-project/pickup-go/pkg/log"
	"github.com/oreon-project/pickup-go/pkg/pairing"
	"github.com/oreon-project/pickup-go/pkg/state"
)

// ErrNotImplemented is returned by operations that later protocol stages
// will provide. Present so frontends can wire their surfaces now.
var ErrNotImplemented = errors.New("not implemented")

// PeerInfo is the consumer view of a discovered peer: deduplicated by device
// ID and annotated with its trust-store status.
type PeerInfo struct {
	discovery.Peer

	// Paired reports whether the peer is in the trust store.
	Paired bool
}

// Service is the top-level facade over discovery, pairing, and the trust
// store. Safe for concurrent use.
type Service struct {
	cfg      config.Config
	hostname string
	logger   log.Logger

	store   *state.Store
	disc    *discovery.Service
	coord   *pairing.Coordinator
	fileLog *log.FileLogger

	mu        sync.Mutex
	snapshots chan map[string]discovery.Peer
	closed    bool
}

// New wires a Service from a validated configuration. Pass a nil logger to
// disable logging.
func New(cfg config.Config, logger log.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	var fileLog *log.FileLogger
	if cfg.ProtocolLogPath != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open protocol log: %w", err)
		}
		fileLog = fl
		logger = log.NewMultiLogger(logger, fl)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "Unknown Device"
	}

	store := state.NewStore(cfg.StatePath, logger)
	disc := discovery.NewService(discovery.ServiceConfig{
		Hostname:  hostname,
		Version:   config.Version,
		Interface: cfg.Interface,
	}, logger)
	coord := pairing.NewCoordinator(pairing.CoordinatorConfig{
		Hostname:       hostname,
		Port:           cfg.Port,
		PairingTimeout: cfg.PairingTimeout(),
		CodeLength:     cfg.CodeLength,
	}, store, logger)

	return &Service{
		cfg:       cfg,
		hostname:  hostname,
		logger:    logger,
		store:     store,
		disc:      disc,
		coord:     coord,
		fileLog:   fileLog,
		snapshots: make(chan map[string]discovery.Peer, 1),
	}, nil
}

// Hostname returns this device's hostname as peers will see it.
func (s *Service) Hostname() string {
	return s.hostname
}

// Store exposes the trust store for frontends that render its contents.
func (s *Service) Store() *state.Store {
	return s.store
}

// StartBrowsing begins watching for peers. Each change to the peer set is
// published on Snapshots and, when non-nil, passed to onChange.
func (s *Service) StartBrowsing(onChange func(map[string]discovery.Peer)) error {
	return s.disc.StartBrowsing(func(peers map[string]discovery.Peer) {
		s.publishSnapshot(peers)
		if onChange != nil {
			onChange(peers)
		}
	})
}

// StopBrowsing stops watching for peers.
func (s *Service) StopBrowsing() {
	s.disc.StopBrowsing()
}

// Snapshots is the UI-facing peer feed. The channel holds only the most
// recent peer set; a consumer that falls behind skips intermediate states
// instead of blocking discovery.
func (s *Service) Snapshots() <-chan map[string]discovery.Peer {
	return s.snapshots
}

// publishSnapshot replaces any undelivered snapshot with the new one.
func (s *Service) publishSnapshot(peers map[string]discovery.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.snapshots <- peers:
			return
		default:
			select {
			case <-s.snapshots:
			default:
			}
		}
	}
}

// Peers returns the current peer set keyed by device ID, duplicates
// collapsed, each annotated with its pairing status.
func (s *Service) Peers() map[string]PeerInfo {
	known, err := s.store.List()
	if err != nil {
		known = nil
	}
	return annotatePeers(s.disc.Peers(), known)
}

// annotatePeers collapses a raw peer set by device ID and marks the entries
// present in the trust store.
func annotatePeers(peers map[string]discovery.Peer, known map[string]state.PairedDevice) map[string]PeerInfo {
	deduped := discovery.DedupeByDeviceID(peers)
	out := make(map[string]PeerInfo, len(deduped))
	for id, peer := range deduped {
		_, paired := known[id]
		out[id] = PeerInfo{Peer: peer, Paired: paired}
	}
	return out
}

// Advertise announces this device on the local network using the configured
// pairing port.
func (s *Service) Advertise() error {
	return s.disc.Advertise(s.cfg.Port)
}

// StopAdvertising withdraws the announcement.
func (s *Service) StopAdvertising() {
	s.disc.StopAdvertising()
}

// GenerateCode generates a pairing code of the configured length.
func (s *Service) GenerateCode() (string, error) {
	return s.coord.GenerateCode()
}

// StartResponder begins waiting for a peer that was shown code.
func (s *Service) StartResponder(code string) error {
	return s.coord.StartResponder(code)
}

// StopSession cancels the active pairing session, if any.
func (s *Service) StopSession() {
	s.coord.StopSession()
}

// SessionState returns the pairing session state for frontends.
func (s *Service) SessionState() pairing.SessionState {
	return s.coord.State()
}

// ActiveCode returns the code of the active responder session, or "".
func (s *Service) ActiveCode() string {
	return s.coord.ActiveCode()
}

// LastOutcome returns the result of the most recently finished pairing
// session. Responder frontends read this after a terminal state change.
func (s *Service) LastOutcome() pairing.Outcome {
	return s.coord.LastOutcome()
}

// OnSessionStateChange registers a callback for pairing state transitions.
func (s *Service) OnSessionStateChange(fn func(old, new pairing.SessionState)) {
	s.coord.OnStateChange(fn)
}

// Initiate pairs with the peer at ip:port using the code its user is
// showing.
func (s *Service) Initiate(ctx context.Context, ip string, port int, code string) (pairing.Outcome, error) {
	return s.coord.Initiate(ctx, ip, port, code)
}

// ListPaired returns the trust store contents keyed by device ID.
func (s *Service) ListPaired() (map[string]state.PairedDevice, error) {
	return s.store.List()
}

// Unpair removes a device from the trust store. Unknown IDs are not an
// error.
func (s *Service) Unpair(deviceID string) error {
	return s.store.Remove(deviceID)
}

// SendState pushes application state to a paired peer.
// Not part of the pairing stage.
func (s *Service) SendState(ctx context.Context, deviceID string, payload []byte) error {
	return ErrNotImplemented
}

// StartStateListener accepts state pushes from paired peers.
// Not part of the pairing stage.
func (s *Service) StartStateListener() error {
	return ErrNotImplemented
}

// StopStateListener stops accepting state pushes.
// Not part of the pairing stage.
func (s *Service) StopStateListener() error {
	return ErrNotImplemented
}

// Close stops the pairing session, discovery, the snapshot feed, and the
// protocol log file when one was configured. The Service is unusable
// afterwards.
func (s *Service) Close() {
	s.coord.StopSession()
	s.disc.Close()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.snapshots)
	}
	s.mu.Unlock()

	if s.fileLog != nil {
		s.fileLog.Close()
	}
}
