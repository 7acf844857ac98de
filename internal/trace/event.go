package trace

import (
	"fmt"
	"strings"
	"time"
)

// Event records one attribute operation on the link.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the operation started (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the recording run (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Op is the operation kind.
	Op Op `cbor:"3,keyasint"`

	// DeviceID is the link-layer identifier of the station.
	DeviceID string `cbor:"4,keyasint,omitempty"`

	// Locator is the attribute address ("180A/2A37").
	Locator string `cbor:"5,keyasint,omitempty"`

	// Namespace is the section bound to Locator, if any.
	Namespace string `cbor:"6,keyasint,omitempty"`

	// Payload is the attribute value read or written.
	Payload []byte `cbor:"7,keyasint,omitempty"`

	// Duration is how long the operation took.
	Duration time.Duration `cbor:"8,keyasint"`

	// Error is the failure message; empty on success.
	Error string `cbor:"9,keyasint,omitempty"`

	// Devices is the number of stations a scan returned.
	Devices int `cbor:"10,keyasint,omitempty"`
}

// Failed reports whether the operation returned an error.
func (e Event) Failed() bool {
	return e.Error != ""
}

// String renders a one-line summary.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-9s", e.Timestamp.Format("15:04:05.000"), e.Op)
	if e.DeviceID != "" {
		fmt.Fprintf(&b, " %s", e.DeviceID)
	}
	if e.Locator != "" {
		fmt.Fprintf(&b, " %s", e.Locator)
		if e.Namespace != "" {
			fmt.Fprintf(&b, " (%s)", e.Namespace)
		}
	}
	switch {
	case e.Failed():
		fmt.Fprintf(&b, " ERROR %s", e.Error)
	case e.Op == OpScan:
		fmt.Fprintf(&b, " %d device(s)", e.Devices)
	case len(e.Payload) > 0:
		fmt.Fprintf(&b, " %d bytes", len(e.Payload))
	}
	fmt.Fprintf(&b, " [%s]", e.Duration.Round(time.Microsecond))
	return b.String()
}

// Op indicates the traced operation.
type Op uint8

const (
	// OpScan is a device scan.
	OpScan Op = 0
	// OpEnumerate is capability discovery.
	OpEnumerate Op = 1
	// OpAttributes lists the attributes found during enumeration.
	OpAttributes Op = 2
	// OpRead is an attribute read.
	OpRead Op = 3
	// OpWrite is a write-with-response.
	OpWrite Op = 4
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpScan:
		return "SCAN"
	case OpEnumerate:
		return "ENUMERATE"
	case OpAttributes:
		return "ATTRS"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// ParseOp parses an operation name as printed by String, case-insensitively.
func ParseOp(s string) (Op, error) {
	for o := OpScan; o <= OpWrite; o++ {
		if strings.EqualFold(s, o.String()) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown trace op %q", s)
}
