// Package server implements the stationcfg bridge: a WebSocket server that
// relays bridge protocol requests to a local transport.
//
// The bridge owns the radio (or, for development, a simulated fleet) and
// lets remote stationcfg clients enumerate, read and write station
// attributes over the network. Frames are JSON text messages; see package
// protocol for the format.
//
// # Endpoints
//
//   - GET /ws: WebSocket endpoint (path configurable)
//   - GET /healthz: JSON status with protocol version and connection count
//
// # Discovery
//
// With Advertise set, the bridge registers itself via mDNS as
// _stationcfg._tcp with TXT records proto, path and version. Clients find
// it with discovery.Scanner.
//
// # Usage Example
//
//	fleet := simulator.NewFleet(simulator.NewStation("C0:FF:EE:00:00:01", "station-1"))
//	srv, err := server.New(&server.Config{Port: 8765, Advertise: true}, fleet)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Blocks until SIGINT/SIGTERM
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Connection Handling
//
// Each connection is served by one read loop. Requests are dispatched
// concurrently and responses written under a per-connection lock. The
// server pings idle clients every 54 seconds and drops connections that
// stay silent past the 60 second pong deadline.
//
// # Graceful Shutdown
//
// Shutdown withdraws the mDNS advertisement, stops accepting connections,
// sends a close frame to every active client and waits for in-flight
// requests to finish or the context to expire.
package server
