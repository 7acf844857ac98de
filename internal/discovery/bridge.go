package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge is a BLE bridge found on the local network
type Bridge struct {
	// Instance is the advertised mDNS instance name (e.g., "lab-pi")
	Instance string

	// Hostname is the mDNS hostname (e.g., "lab-pi.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the WebSocket port
	Port int

	// Path is the WebSocket endpoint path
	Path string

	// Metadata contains the mDNS TXT record data
	// Common fields: "proto=1", "path=/ws", "version=v0.3.0"
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Bridge %s (%s) at %s", b.Instance, b.Hostname, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)))
}

// URL returns the WebSocket URL of the bridge
func (b *Bridge) URL() string {
	path := b.Path
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(b.IP, strconv.Itoa(b.Port)), path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
