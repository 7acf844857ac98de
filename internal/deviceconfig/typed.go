package deviceconfig

import (
	"encoding/json"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/codec"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
)

// SectionFromDocument converts a decoded document into a typed section.
// Keys outside the schema are ignored. Values whose shape does not fit
// the field type are left absent rather than failing the read.
func SectionFromDocument(ns schema.Namespace, doc codec.Document) *schema.Section {
	sec := schema.NewSection(ns)
	sch := schema.SchemaFor(ns)

	for _, f := range doc.Fields {
		field, ok := sch.Field(f.Key)
		if !ok {
			logging.Debug("Ignoring unknown field from device",
				zap.String("namespace", string(ns)),
				zap.String("key", f.Key),
			)
			continue
		}
		v, ok := typedFromWire(field, f.Value)
		if !ok {
			logging.Debug("Dropping field with unexpected shape",
				zap.String("namespace", string(ns)),
				zap.String("key", f.Key),
				zap.Any("value", f.Value),
			)
			continue
		}
		sec.Set(field.Key, v)
	}
	return sec
}

func typedFromWire(f schema.Field, v any) (any, bool) {
	if v == nil {
		return nil, false
	}

	switch f.Type {
	case schema.Hex8:
		return DevAddrFromDevice(v)
	case schema.Hex32:
		return KeyFromDevice(v)

	case schema.Bool:
		switch x := v.(type) {
		case bool:
			return x, true
		case json.Number:
			n, err := x.Float64()
			return n != 0, err == nil
		case string:
			return ParseBoolText(x)
		}

	case schema.Int:
		switch x := v.(type) {
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n, true
			}
			n, err := x.Float64()
			if err != nil || math.IsInf(n, 0) || n >= math.MaxInt64 || n < math.MinInt64 {
				return nil, false
			}
			return int64(n), true
		case string:
			return ParseIntLenient(x)
		case bool:
			if x {
				return int64(1), true
			}
			return int64(0), true
		}

	case schema.Float:
		switch x := v.(type) {
		case json.Number:
			n, err := x.Float64()
			return n, err == nil
		case string:
			return ParseFloatLenient(x)
		}

	case schema.Text:
		switch x := v.(type) {
		case string:
			return x, true
		case json.Number:
			return x.String(), true
		case bool:
			return strconv.FormatBool(x), true
		}
	}
	return nil, false
}

// Prepared is a write that passed canonicalization and validation and is
// ready to send.
type Prepared struct {
	Namespace schema.Namespace
	// Canonical is the canonical text of every writable field.
	Canonical map[string]string
	// Values holds the typed values being written.
	Values *schema.Section
	// Document is the structured value in schema order.
	Document codec.Document
	// Payload is the encoded octets handed to the transport.
	Payload []byte
}

// PhaseFunc observes pipeline phase transitions.
type PhaseFunc func(Phase)

// Prepare runs the write pipeline up to, but not including, Sending:
// canonicalize every writable field, validate all of them, then encode.
// It performs no I/O. Missing keys are treated as empty text.
func Prepare(ns schema.Namespace, raw map[string]string, strict bool, observe PhaseFunc) (*Prepared, error) {
	if observe == nil {
		observe = func(Phase) {}
	}

	observe(PhaseCanonicalizing)
	canonical := Canonicalize(ns, raw)

	observe(PhaseValidating)
	if violations := ValidateFields(ns, canonical, strict); len(violations) > 0 {
		observe(PhaseFailed)
		return nil, NewValidationError(ns, violations)
	}

	observe(PhaseEncoding)
	values, doc := typedForWrite(ns, canonical)
	payload, err := codec.Encode(doc)
	if err != nil {
		observe(PhaseFailed)
		return nil, &DeviceError{
			Type:      ErrTypeUnknown,
			Message:   "encoding failed",
			Namespace: ns,
			Phase:     PhaseEncoding,
			Err:       err,
		}
	}

	return &Prepared{
		Namespace: ns,
		Canonical: canonical,
		Values:    values,
		Document:  doc,
		Payload:   payload,
	}, nil
}

// Canonicalize maps raw input text to canonical text. Every writable
// field is present in the result; keys outside the writable schema are
// carried through unchanged so validation can reject them.
func Canonicalize(ns schema.Namespace, raw map[string]string) map[string]string {
	sch := schema.SchemaFor(ns)
	out := make(map[string]string, len(raw))

	for key, value := range raw {
		if f, ok := sch.Field(key); !ok || f.ReadOnly {
			out[key] = value
		}
	}

	for _, f := range sch.Writable() {
		value := raw[f.Key]
		switch f.Type {
		case schema.Hex8:
			out[f.Key] = FormatDevAddr(value)
		case schema.Hex32:
			out[f.Key] = FormatKey(value)
		default:
			out[f.Key] = value
		}
	}
	return out
}

// typedForWrite coerces canonical text into typed values. Numeric text
// that does not parse becomes zero and boolean text becomes false.
func typedForWrite(ns schema.Namespace, canonical map[string]string) (*schema.Section, codec.Document) {
	sec := schema.NewSection(ns)
	doc := codec.Document{Namespace: string(ns)}

	for _, f := range schema.SchemaFor(ns).Writable() {
		text := canonical[f.Key]
		var v any

		switch f.Type {
		case schema.Bool:
			v, _ = ParseBoolText(text)
		case schema.Int:
			v, _ = ParseIntLenient(text)
		case schema.Float:
			v, _ = ParseFloatLenient(text)
		default:
			v = text
		}

		sec.Set(f.Key, v)
		doc.Fields = append(doc.Fields, codec.Field{Key: f.Key, Value: v})
	}
	return sec, doc
}
