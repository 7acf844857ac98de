package schema

import (
	"fmt"
	"strings"
)

// Namespace identifies one configuration section exposed by a station.
// The string value is the wire token used as the outer JSON key.
type Namespace string

const (
	System       Namespace = "system"
	NTC100K      Namespace = "ntc_100k"
	NTC10K       Namespace = "ntc_10k"
	Conductivity Namespace = "cond"
	PH           Namespace = "ph"
	Sensors      Namespace = "sensors"
	LoRaWAN      Namespace = "lorawan"
)

// all lists every namespace in presentation order.
var all = []Namespace{System, NTC100K, NTC10K, Conductivity, PH, Sensors, LoRaWAN}

// All returns every known namespace in presentation order.
func All() []Namespace {
	out := make([]Namespace, len(all))
	copy(out, all)
	return out
}

// String returns the wire token.
func (ns Namespace) String() string {
	return string(ns)
}

// Valid reports whether ns is one of the known namespaces.
func (ns Namespace) Valid() bool {
	_, ok := registry[ns]
	return ok
}

// Title returns a human-readable section title.
func (ns Namespace) Title() string {
	if e, ok := registry[ns]; ok {
		return e.title
	}
	return string(ns)
}

// Parse resolves a wire token or a common alias to a Namespace.
// Matching is case-insensitive.
func Parse(s string) (Namespace, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	if ns := Namespace(token); ns.Valid() {
		return ns, nil
	}
	if ns, ok := aliases[token]; ok {
		return ns, nil
	}
	return "", fmt.Errorf("unknown namespace %q (valid: %s)", s, strings.Join(Tokens(), ", "))
}

// Tokens returns the wire tokens of every namespace.
func Tokens() []string {
	out := make([]string, 0, len(all))
	for _, ns := range all {
		out = append(out, string(ns))
	}
	return out
}

var aliases = map[string]Namespace{
	"ntc100k":      NTC100K,
	"ntc10k":       NTC10K,
	"conductivity": Conductivity,
	"sensor":       Sensors,
	"lora":         LoRaWAN,
}
