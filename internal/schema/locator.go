package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// BaseUUIDSuffix is the tail of the Bluetooth base UUID that 16-bit
// identifiers are expanded onto.
const BaseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// ConfigService is the service that carries every configuration attribute.
const ConfigService uint16 = 0x180A

// Locator addresses one attribute on the device.
type Locator struct {
	Service        uint16
	Characteristic uint16
}

// String renders the locator as "180A/2A37".
func (l Locator) String() string {
	return fmt.Sprintf("%04X/%04X", l.Service, l.Characteristic)
}

// ServiceUUID returns the 128-bit service UUID.
func (l Locator) ServiceUUID() uuid.UUID {
	return Expand(l.Service)
}

// CharacteristicUUID returns the 128-bit characteristic UUID.
func (l Locator) CharacteristicUUID() uuid.UUID {
	return Expand(l.Characteristic)
}

// Expand maps a 16-bit assigned number onto the Bluetooth base UUID.
func Expand(short uint16) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("%08x%s", uint32(short), BaseUUIDSuffix))
}

// Shorten reverses Expand. It accepts a bare 16-bit hex identifier or a
// full UUID that sits on the Bluetooth base.
func Shorten(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid 16-bit identifier %q: %w", s, err)
		}
		return uint16(v), nil
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	text := u.String()
	if !strings.HasSuffix(text, BaseUUIDSuffix) || !strings.HasPrefix(text, "0000") {
		return 0, fmt.Errorf("UUID %s is not on the Bluetooth base", text)
	}
	v, err := strconv.ParseUint(text[4:8], 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return uint16(v), nil
}

// ParseLocator parses the form produced by Locator.String. Each half may
// also be a full base UUID.
func ParseLocator(s string) (Locator, error) {
	svc, char, ok := strings.Cut(s, "/")
	if !ok {
		return Locator{}, fmt.Errorf("invalid locator %q: expected service/characteristic", s)
	}
	service, err := Shorten(svc)
	if err != nil {
		return Locator{}, err
	}
	characteristic, err := Shorten(char)
	if err != nil {
		return Locator{}, err
	}
	return Locator{Service: service, Characteristic: characteristic}, nil
}

// LocatorFor returns the attribute locator bound to ns.
// Unknown namespaces return the zero Locator.
func LocatorFor(ns Namespace) Locator {
	return registry[ns].locator
}

// NamespaceAt returns the namespace bound to loc, if any.
func NamespaceAt(loc Locator) (Namespace, bool) {
	for ns, e := range registry {
		if e.locator == loc {
			return ns, true
		}
	}
	return "", false
}
