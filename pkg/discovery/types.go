package discovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/oreon-project/pickup-go/pkg/config"
)

// Service type constants for mDNS.
const (
	// ServiceType is the mDNS service type for Oreon Pickup devices.
	ServiceType = config.ServiceType

	// Domain is the mDNS domain.
	Domain = config.Domain

	// InstanceNamePrefix is the prefix for advertised instance names.
	InstanceNamePrefix = "Oreon Pickup on "
)

// TXT record key constants.
const (
	// TXTKeyHostname is the advertising device's hostname.
	TXTKeyHostname = "hostname"

	// TXTKeyVersion is the advertised protocol/application version.
	TXTKeyVersion = "version"
)

// Timing constants.
const (
	// StopGracePeriod bounds how long StopBrowsing waits for the browse
	// worker to exit before giving up with a warning.
	StopGracePeriod = 2 * time.Second
)

// Discovery errors.
var (
	// ErrUnavailable indicates the mDNS layer cannot start (no
	// multicast-capable interface, socket failure). Non-fatal: callers
	// proceed without discovery.
	ErrUnavailable = errors.New("discovery unavailable")

	// ErrAdvertiseFailed indicates service registration failed.
	ErrAdvertiseFailed = errors.New("failed to advertise service")

	// ErrInvalidTXT indicates a peer's TXT properties could not be decoded.
	ErrInvalidTXT = errors.New("invalid TXT record")
)

// Peer is one discovered Oreon Pickup device. Peers are ephemeral: the set is
// rebuilt from mDNS events and does not survive restarts.
type Peer struct {
	// ServiceName is the opaque mDNS instance name. Not stable across
	// restarts of the remote device.
	ServiceName string

	// Hostname is the peer's self-reported hostname (from TXT properties).
	Hostname string

	// Addresses are the peer's addresses; the first entry is primary.
	Addresses []string

	// Port is the peer's pairing port.
	Port int

	// Properties are the decoded TXT properties (hostname, version).
	Properties map[string]string

	// LastSeen is when the most recent event for this peer arrived.
	LastSeen time.Time
}

// PrimaryAddress returns the first address, or "" if none are known.
func (p Peer) PrimaryAddress() string {
	if len(p.Addresses) == 0 {
		return ""
	}
	return p.Addresses[0]
}

// DeviceID returns the stable hostname@ip identifier used to correlate this
// peer with the trust store. Every component derives it the same way.
func (p Peer) DeviceID() string {
	return p.Hostname + "@" + p.PrimaryAddress()
}

// ServiceEntry holds raw mDNS service entry data, decoupled from the
// underlying zeroconf types. This is the seam browse tests use.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     int
	Text     []string
	Addrs    []string
}

// ToPeer converts a raw entry into a Peer.
// Returns an error when the TXT properties cannot be decoded.
func (e ServiceEntry) ToPeer() (Peer, error) {
	props, err := DecodeTXT(e.Text)
	if err != nil {
		return Peer{}, fmt.Errorf("service %q: %w", e.Instance, err)
	}

	return Peer{
		ServiceName: e.Instance,
		Hostname:    props[TXTKeyHostname],
		Addresses:   e.Addrs,
		Port:        e.Port,
		Properties:  props,
		LastSeen:    time.Now(),
	}, nil
}

// DedupeByDeviceID collapses a service-name-keyed peer set to a
// device-ID-keyed one, keeping the most recently seen entry when two
// advertisements derive the same ID.
func DedupeByDeviceID(peers map[string]Peer) map[string]Peer {
	out := make(map[string]Peer, len(peers))
	for _, p := range peers {
		id := p.DeviceID()
		if existing, ok := out[id]; ok && existing.LastSeen.After(p.LastSeen) {
			continue
		}
		out[id] = p
	}
	return out
}
