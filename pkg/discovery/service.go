package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/oreon-project/pickup-go/pkg/config"
	"github.com/oreon-project/pickup-go/pkg/log"
)

// ServiceConfig configures the discovery service.
type ServiceConfig struct {
	// Hostname is advertised in TXT properties. Defaults to os.Hostname.
	Hostname string

	// Version is advertised in TXT properties. Defaults to config.Version.
	Version string

	// Interface pins mDNS traffic to a single network interface.
	// Empty string means all multicast-capable interfaces.
	Interface string
}

// Service owns advertisement and browsing for the pickup service type.
// The zero value is not usable; construct with NewService.
type Service struct {
	config ServiceConfig
	logger log.Logger

	mu sync.Mutex

	// sharedRefs counts active users (browser, advertiser) of the shared
	// multicast layer. The interface set is resolved on first acquire and
	// dropped when the count reaches zero.
	sharedRefs   int
	sharedIfaces []net.Interface

	// Browsing state
	browseCancel context.CancelFunc
	browseDone   chan struct{}

	// Latest delivered snapshot, for Peers().
	snapshot map[string]Peer

	// Advertising state
	server *zeroconf.Server
}

// NewService creates a discovery service. Pass a nil logger to disable logging.
func NewService(cfg ServiceConfig, logger log.Logger) *Service {
	if cfg.Hostname == "" {
		if hn, err := os.Hostname(); err == nil {
			cfg.Hostname = hn
		} else {
			cfg.Hostname = "unknown"
		}
	}
	if cfg.Version == "" {
		cfg.Version = config.Version
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Service{
		config: cfg,
		logger: logger,
	}
}

// Hostname returns the hostname this service advertises.
func (s *Service) Hostname() string {
	return s.config.Hostname
}

// acquireSharedLocked takes a reference on the shared multicast layer,
// resolving the interface set on first use. Callers must hold s.mu.
func (s *Service) acquireSharedLocked() error {
	if s.sharedRefs == 0 {
		ifaces, err := multicastInterfaces(s.config.Interface)
		if err != nil {
			return err
		}
		s.sharedIfaces = ifaces
	}
	s.sharedRefs++
	return nil
}

// releaseSharedLocked drops a reference on the shared multicast layer.
// Callers must hold s.mu.
func (s *Service) releaseSharedLocked() {
	if s.sharedRefs == 0 {
		return
	}
	s.sharedRefs--
	if s.sharedRefs == 0 {
		s.sharedIfaces = nil
	}
}

// multicastInterfaces resolves the interfaces to use for mDNS.
// Returns nil (meaning all interfaces) when no pinning is configured.
// Returns ErrUnavailable when no up, multicast-capable interface exists.
func multicastInterfaces(pin string) ([]net.Interface, error) {
	if pin != "" {
		iface, err := net.InterfaceByName(pin)
		if err != nil {
			return nil, fmt.Errorf("%w: interface %q: %v", ErrUnavailable, pin, err)
		}
		return []net.Interface{*iface}, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: no multicast-capable interface", ErrUnavailable)
}

// StartBrowsing begins listening for pickup service events. onChange receives
// a copy of the full current peer set, keyed by service name, after every
// change. It is invoked from the browse goroutine; snapshots are delivered in
// order, each at least as fresh as the previous.
//
// Calling while already browsing is a no-op. Returns ErrUnavailable when the
// mDNS layer cannot start; this is non-fatal and the caller may proceed
// without discovery.
func (s *Service) StartBrowsing(onChange func(map[string]Peer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browseCancel != nil {
		return nil
	}

	if err := s.acquireSharedLocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})

	s.browseCancel = cancel
	s.browseDone = done
	s.snapshot = make(map[string]Peer)

	go s.browseLoop(ctx, entries, removed, onChange, done)

	opts := s.clientOptions()
	go func() {
		err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
		if err != nil && ctx.Err() == nil {
			// Browse failures after start degrade to an empty peer view.
			s.logError("browse", err)
		}
	}()

	s.logStateChange("", "BROWSING", "")
	return nil
}

// clientOptions returns zeroconf client options for the shared layer.
// Callers must hold s.mu.
func (s *Service) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if len(s.sharedIfaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(s.sharedIfaces))
	}
	return opts
}

// browseLoop owns the peer set and turns mDNS events into snapshots.
func (s *Service) browseLoop(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, onChange func(map[string]Peer), done chan<- struct{}) {
	defer close(done)

	peers := make(map[string]Peer)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			peer, err := entryToPeer(entry)
			if err != nil {
				// Undecodable advertisement: drop the event, keep listening.
				s.logError("decode", err)
				continue
			}

			change := log.DiscoveryAdd
			if existing, found := peers[peer.ServiceName]; found {
				change = log.DiscoveryUpdate
				peer.Addresses = mergeAddresses(existing.Addresses, peer.Addresses)
			}
			peers[peer.ServiceName] = peer

			s.deliver(peers, onChange)
			s.logger.Log(log.Event{
				Timestamp: time.Now(),
				Category:  log.CategoryDiscovery,
				Discovery: &log.DiscoveryEvent{
					Change:      change,
					ServiceName: peer.ServiceName,
					Hostname:    peer.Hostname,
					PeerCount:   len(peers),
				},
			})

		case entry, ok := <-removed:
			if !ok {
				continue
			}
			if _, found := peers[entry.Instance]; !found {
				continue
			}
			delete(peers, entry.Instance)

			s.deliver(peers, onChange)
			s.logger.Log(log.Event{
				Timestamp: time.Now(),
				Category:  log.CategoryDiscovery,
				Discovery: &log.DiscoveryEvent{
					Change:      log.DiscoveryRemove,
					ServiceName: entry.Instance,
					PeerCount:   len(peers),
				},
			})

		case <-ctx.Done():
			return
		}
	}
}

// deliver stores the latest snapshot and invokes the change callback with a
// copy the caller may keep.
func (s *Service) deliver(peers map[string]Peer, onChange func(map[string]Peer)) {
	snapshot := copyPeers(peers)

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	if onChange != nil {
		onChange(copyPeers(peers))
	}
}

// StopBrowsing stops listening for service events and releases the browse
// worker. Idempotent; safe to call if browsing never started.
func (s *Service) StopBrowsing() {
	s.mu.Lock()
	cancel := s.browseCancel
	done := s.browseDone
	s.browseCancel = nil
	s.browseDone = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(StopGracePeriod):
		s.logError("stop-browsing", fmt.Errorf("browse worker did not exit within %s", StopGracePeriod))
	}

	s.mu.Lock()
	s.snapshot = nil
	s.releaseSharedLocked()
	s.mu.Unlock()

	s.logStateChange("BROWSING", "STOPPED", "")
}

// Peers returns the most recently delivered peer set, keyed by service name.
// Returns an empty map when not browsing.
func (s *Service) Peers() map[string]Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return map[string]Peer{}
	}
	return copyPeers(s.snapshot)
}

// Advertise registers this device under the pickup service type with TXT
// properties hostname and version. Idempotent: a second call while already
// advertising logs a warning and succeeds. Does not require browsing to be
// active.
func (s *Service) Advertise(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		s.logStateChange("ADVERTISING", "ADVERTISING", "already advertising")
		return nil
	}

	if err := s.acquireSharedLocked(); err != nil {
		return fmt.Errorf("%w: %v", ErrAdvertiseFailed, err)
	}

	instance := InstanceNamePrefix + s.config.Hostname
	txt := EncodeTXT(s.config.Hostname, s.config.Version)

	server, err := zeroconf.Register(instance, ServiceType, Domain, port, txt, s.sharedIfaces)
	if err != nil {
		s.releaseSharedLocked()
		return fmt.Errorf("%w: %v", ErrAdvertiseFailed, err)
	}

	s.server = server
	s.logStateChange("", "ADVERTISING", "")
	return nil
}

// StopAdvertising unregisters the service record. Idempotent.
func (s *Service) StopAdvertising() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return
	}

	s.server.Shutdown()
	s.server = nil
	s.releaseSharedLocked()
	s.logStateChange("ADVERTISING", "STOPPED", "")
}

// Close stops browsing and advertising.
func (s *Service) Close() {
	s.StopBrowsing()
	s.StopAdvertising()
}

// entryToPeer converts a zeroconf entry into a Peer.
// Returns an error when the TXT properties cannot be decoded.
func entryToPeer(entry *zeroconf.ServiceEntry) (Peer, error) {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	bridge := ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		Text:     entry.Text,
		Addrs:    addrs,
	}
	return bridge.ToPeer()
}

// mergeAddresses adds new addresses to the existing list, avoiding duplicates.
// The existing order is kept so the primary address stays stable.
func mergeAddresses(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, addr := range existing {
		if !seen[addr] {
			merged = append(merged, addr)
			seen[addr] = true
		}
	}
	for _, addr := range incoming {
		if !seen[addr] {
			merged = append(merged, addr)
			seen[addr] = true
		}
	}
	return merged
}

// copyPeers returns a shallow copy of a peer set.
func copyPeers(peers map[string]Peer) map[string]Peer {
	out := make(map[string]Peer, len(peers))
	for k, v := range peers {
		out[k] = v
	}
	return out
}

// logStateChange records a discovery lifecycle event.
func (s *Service) logStateChange(old, new, reason string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDiscovery,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}

// logError records a discovery error event.
func (s *Service) logError(op string, err error) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error(), Op: "discovery." + op},
	})
}
