// Package service ties the lower-level components into one API for building
// a complete Oreon Pickup node.
//
// A Service owns the discovery layer, the pairing coordinator, and the trust
// store, wired to a shared configuration and logger. Frontends (a system
// tray, a settings panel, a CLI) talk to the Service and never to the
// components directly.
//
// Example usage:
//
//	cfg, _ := config.Load(configPath)
//	svc, err := service.New(cfg, logger)
//	defer svc.Close()
//
//	svc.Advertise()
//	svc.StartBrowsing(nil)
//
//	// Responder side: show the code, wait for a peer.
//	code, _ := svc.GenerateCode()
//	svc.StartResponder(code)
//
//	// Initiator side: user picked a peer and typed its code.
//	outcome, err := svc.Initiate(ctx, peer.PrimaryAddress(), peer.Port, code)
//
// UIs that render the peer list drain Snapshots: the channel holds only the
// latest peer set, so a slow frontend never backs up discovery.
package service
