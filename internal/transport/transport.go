// Package transport defines the attribute link a configuration session
// runs on. Implementations live in the simulator and bridge packages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stationlink/stationcfg/internal/schema"
)

// Common transport failures.
var (
	ErrNotConnected      = errors.New("device not connected")
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrWriteRejected     = errors.New("write rejected by device")
)

// Device is a connected (or discoverable) station. Sessions hold it as a
// non-owning reference; connection lifetime belongs to the transport.
type Device struct {
	// ID is the link-layer identifier (MAC address or platform handle).
	ID string `json:"id"`

	// Name is the advertised local name, if any.
	Name string `json:"name,omitempty"`

	// RSSI is the last observed signal strength in dBm.
	RSSI int `json:"rssi,omitempty"`

	// LastSeen is when the device was last observed by a scan.
	LastSeen time.Time `json:"lastSeen,omitempty"`
}

// String returns a human-readable description.
func (d Device) String() string {
	if d.Name == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}

// Transport exposes the raw attribute primitives. All methods may block
// and must honor ctx. Payloads are the base64 text exchanged with the
// device.
type Transport interface {
	// Enumerate performs capability discovery. It is idempotent on the
	// device side but may be expensive.
	Enumerate(ctx context.Context, dev Device) error

	// ReadAttribute returns the current attribute value.
	ReadAttribute(ctx context.Context, dev Device, loc schema.Locator) ([]byte, error)

	// WriteAttribute writes with response and returns once acknowledged.
	WriteAttribute(ctx context.Context, dev Device, loc schema.Locator, payload []byte) error
}

// Scanner is implemented by transports that can list nearby devices.
type Scanner interface {
	Scan(ctx context.Context, timeout time.Duration) ([]Device, error)
}

// AttributeLister is implemented by transports that can report the
// attributes found during enumeration.
type AttributeLister interface {
	Attributes(ctx context.Context, dev Device) ([]schema.Locator, error)
}

// Func adapts three functions to the Transport interface.
type Func struct {
	EnumerateFunc func(ctx context.Context, dev Device) error
	ReadFunc      func(ctx context.Context, dev Device, loc schema.Locator) ([]byte, error)
	WriteFunc     func(ctx context.Context, dev Device, loc schema.Locator, payload []byte) error
}

// Enumerate calls EnumerateFunc, or succeeds when it is nil.
func (f Func) Enumerate(ctx context.Context, dev Device) error {
	if f.EnumerateFunc == nil {
		return nil
	}
	return f.EnumerateFunc(ctx, dev)
}

// ReadAttribute calls ReadFunc.
func (f Func) ReadAttribute(ctx context.Context, dev Device, loc schema.Locator) ([]byte, error) {
	if f.ReadFunc == nil {
		return nil, fmt.Errorf("read %s: %w", loc, ErrAttributeNotFound)
	}
	return f.ReadFunc(ctx, dev, loc)
}

// WriteAttribute calls WriteFunc.
func (f Func) WriteAttribute(ctx context.Context, dev Device, loc schema.Locator, payload []byte) error {
	if f.WriteFunc == nil {
		return fmt.Errorf("write %s: %w", loc, ErrWriteRejected)
	}
	return f.WriteFunc(ctx, dev, loc, payload)
}
