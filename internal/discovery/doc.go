// Package discovery finds things before a session can use them.
//
// Cache tracks per-device capability enumeration: the first section
// access on a connection enumerates the device's attributes, concurrent
// accesses share that single enumeration, and a disconnect forgets it.
//
// Scanner and Advertise handle the local network side: BLE bridges
// advertise themselves over mDNS as "_stationcfg._tcp" with a "proto"
// TXT record, and clients browse for them.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
