package schema

import (
	"fmt"
	"strconv"
)

// Section is a typed snapshot of one namespace. Values are bool, int64,
// float64 or string depending on the field type. Fields the device did not
// report are absent.
type Section struct {
	Namespace Namespace
	values    map[string]any
}

// NewSection returns an empty section for ns.
func NewSection(ns Namespace) *Section {
	return &Section{Namespace: ns, values: make(map[string]any)}
}

// Set stores a value. Callers are expected to pass the Go type matching
// the field type.
func (s *Section) Set(key string, v any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = v
}

// Delete removes a value.
func (s *Section) Delete(key string) {
	delete(s.values, key)
}

// Get returns the raw value of key.
func (s *Section) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present.
func (s *Section) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Len returns the number of present fields.
func (s *Section) Len() int {
	return len(s.values)
}

// Bool returns a Bool field.
func (s *Section) Bool(key string) (bool, bool) {
	v, ok := s.values[key].(bool)
	return v, ok
}

// Int returns an Int field.
func (s *Section) Int(key string) (int64, bool) {
	v, ok := s.values[key].(int64)
	return v, ok
}

// Float returns a Float field.
func (s *Section) Float(key string) (float64, bool) {
	v, ok := s.values[key].(float64)
	return v, ok
}

// String returns a Text, Hex8 or Hex32 field.
func (s *Section) String(key string) (string, bool) {
	v, ok := s.values[key].(string)
	return v, ok
}

// Keys returns the present keys in schema order.
func (s *Section) Keys() []string {
	var keys []string
	for _, f := range SchemaFor(s.Namespace).Fields {
		if _, ok := s.values[f.Key]; ok {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// Text renders the value of key as editable text. Absent keys render
// as the empty string.
func (s *Section) Text(key string) string {
	v, ok := s.values[key]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Texts renders every present field as text, keyed by field key.
func (s *Section) Texts() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = FormatValue(v)
	}
	return out
}

// Clone returns an independent copy.
func (s *Section) Clone() *Section {
	c := NewSection(s.Namespace)
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// FormatValue renders a section value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
