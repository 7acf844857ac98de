package config

import (
	"sort"
	"strings"
	"time"
)

// Registry represents the entire user configuration file.
// It stores metadata about stations and application preferences; it never
// stores section values or LoRaWAN keys.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by link-layer device ID
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents user-defined metadata for a single station.
type Device struct {
	Nickname    string    `yaml:"nickname,omitempty"`    // User-friendly name
	Name        string    `yaml:"name,omitempty"`        // Last advertised local name
	LastSeen    time.Time `yaml:"last_seen,omitempty"`   // Last scan or session time
	LastBridge  string    `yaml:"last_bridge,omitempty"` // Bridge URL the station was reached through
	Provisioned time.Time `yaml:"provisioned,omitempty"` // Last successful LoRaWAN provisioning
}

// DisplayName returns the nickname, then the advertised name, then id.
func (d *Device) DisplayName(id string) string {
	switch {
	case d == nil:
		return id
	case d.Nickname != "":
		return d.Nickname
	case d.Name != "":
		return d.Name
	default:
		return id
	}
}

// Preferences represents application-wide user preferences.
// Command-line flags override every field.
type Preferences struct {
	BridgeURL     string `yaml:"bridge_url,omitempty"` // ws:// URL; empty means discover via mDNS
	LogLevel      string `yaml:"log_level,omitempty"`  // debug, info, warn, error; empty is silent
	TraceFile     string `yaml:"trace_file,omitempty"` // Record attribute traffic to this file
	StrictNumbers bool   `yaml:"strict_numbers"`       // Reject unparseable numbers instead of writing 0
	ScanTimeout   int    `yaml:"scan_timeout"`         // Scan and bridge discovery timeout in seconds
	VerifyWrites  bool   `yaml:"verify_writes"`        // Read back and compare after every write
	ShowSecrets   bool   `yaml:"show_secrets"`         // Print LoRaWAN keys unmasked
}

// ScanTimeoutDuration returns ScanTimeout as a duration, defaulting to 5s.
func (p *Preferences) ScanTimeoutDuration() time.Duration {
	if p == nil || p.ScanTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.ScanTimeout) * time.Second
}

func defaultPreferences() *Preferences {
	return &Preferences{
		ScanTimeout:  5,
		VerifyWrites: true,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Preferences: defaultPreferences(),
	}
}

// GetDevice retrieves device metadata by ID.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(id string) *Device {
	return r.Devices[id]
}

// EnsureDevice ensures a device entry exists in the registry and returns it.
func (r *Registry) EnsureDevice(id string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[id]; exists {
		return device
	}

	device := &Device{}
	r.Devices[id] = device
	return device
}

// UpdateDeviceLastSeen records that a station was seen with the given
// advertised name. An empty name keeps the previous one.
func (r *Registry) UpdateDeviceLastSeen(id, name string) {
	device := r.EnsureDevice(id)
	device.LastSeen = time.Now()
	if name != "" {
		device.Name = name
	}
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(id, nickname string) {
	device := r.EnsureDevice(id)
	device.Nickname = nickname
}

// MarkProvisioned records a successful LoRaWAN provisioning.
func (r *Registry) MarkProvisioned(id string, at time.Time) {
	r.EnsureDevice(id).Provisioned = at
}

// ResolveDevice maps a query to a device ID. The query may be a device ID,
// a nickname or an advertised name; names match case-insensitively.
// Unknown queries are returned unchanged with ok false.
func (r *Registry) ResolveDevice(query string) (id string, ok bool) {
	if _, exists := r.Devices[query]; exists {
		return query, true
	}
	for _, id := range r.DeviceIDs() {
		d := r.Devices[id]
		if strings.EqualFold(d.Nickname, query) || strings.EqualFold(d.Name, query) {
			return id, true
		}
	}
	return query, false
}

// DeviceIDs returns every known device ID in sorted order.
func (r *Registry) DeviceIDs() []string {
	ids := make([]string, 0, len(r.Devices))
	for id := range r.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
