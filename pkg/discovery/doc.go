// Package discovery advertises this device on the local network and maintains
// a live view of other Oreon Pickup devices, using mDNS service records.
//
// # Service record
//
// Devices advertise under the service type "_oreon-pickup._tcp" in the
// "local" domain, with TXT properties "hostname" and "version". The
// advertisement instance name is ephemeral; the stable identity of a peer is
// its derived device ID, hostname@primary-address (see Peer.DeviceID).
//
// # Browsing
//
// StartBrowsing delivers a full copy of the current peer set, keyed by
// service name, after every add, update, or remove event. Snapshots are
// delivered from the browse goroutine, in order: each snapshot reflects a
// state at least as fresh as the previous one. Callers needing a specific
// thread must marshal themselves.
//
// Two service names can collapse to the same device ID when a peer
// re-advertises; consumers de-duplicate with DedupeByDeviceID, which keeps
// the most recently seen entry.
//
// # Shared mDNS layer
//
// Browsing and advertising share an underlying multicast resource that is
// created lazily by whichever starts first and reference-counted so that
// stopping one never tears down the other.
package discovery
