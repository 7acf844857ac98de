package deviceconfig

import (
	"fmt"
	"strconv"

	"github.com/stationlink/stationcfg/internal/schema"
)

// ChangeBuilder provides a fluent API for building a section write on
// top of the values currently on the device.
//
// Example usage:
//
//	current, _ := session.Read(ctx, schema.System)
//	raw, err := NewChangeBuilder(current).
//	    SetInt("sleep_time", 300).
//	    Set("stationId", "ST-042").
//	    Build()
type ChangeBuilder struct {
	ns schema.Namespace

	// base holds the current writable values as text
	base map[string]string

	// changes holds the fields set through the builder
	changes map[string]string

	err error
}

// NewChangeBuilder creates a builder with current as baseline.
// Read-only fields of current are not carried into the write.
func NewChangeBuilder(current *schema.Section) *ChangeBuilder {
	b := NewChangeBuilderFor(current.Namespace)
	for _, f := range schema.SchemaFor(current.Namespace).Writable() {
		if current.Has(f.Key) {
			b.base[f.Key] = current.Text(f.Key)
		}
	}
	return b
}

// NewChangeBuilderFor creates a builder with no baseline. Fields that are
// never set are written as empty text.
func NewChangeBuilderFor(ns schema.Namespace) *ChangeBuilder {
	return &ChangeBuilder{
		ns:      ns,
		base:    make(map[string]string),
		changes: make(map[string]string),
	}
}

// Set sets a field from raw text.
func (b *ChangeBuilder) Set(key, text string) *ChangeBuilder {
	b.changes[key] = text
	return b
}

// SetBool sets a Bool field.
func (b *ChangeBuilder) SetBool(key string, v bool) *ChangeBuilder {
	return b.Set(key, strconv.FormatBool(v))
}

// SetInt sets an Int field.
func (b *ChangeBuilder) SetInt(key string, v int64) *ChangeBuilder {
	return b.Set(key, strconv.FormatInt(v, 10))
}

// SetFloat sets a Float field.
func (b *ChangeBuilder) SetFloat(key string, v float64) *ChangeBuilder {
	return b.Set(key, formatFloat(v))
}

// SetRecord sets every writable field of r. r must belong to the
// builder's namespace.
func (b *ChangeBuilder) SetRecord(r Record) *ChangeBuilder {
	if r.Namespace() != b.ns {
		b.err = fmt.Errorf("%s record cannot be written to %s", r.Namespace(), b.ns)
		return b
	}
	for k, v := range r.Texts() {
		b.changes[k] = v
	}
	return b
}

// HasChanges returns true if any field differs from the baseline.
func (b *ChangeBuilder) HasChanges() bool {
	for k, v := range b.changes {
		if base, ok := b.base[k]; !ok || base != v {
			return true
		}
	}
	return false
}

// Changes returns the fields set through the builder.
func (b *ChangeBuilder) Changes() map[string]string {
	out := make(map[string]string, len(b.changes))
	for k, v := range b.changes {
		out[k] = v
	}
	return out
}

// Validate runs full field validation (lenient numbers) on the merged
// values without building.
func (b *ChangeBuilder) Validate() error {
	merged := b.merge()
	if violations := ValidateFields(b.ns, Canonicalize(b.ns, merged), false); len(violations) > 0 {
		return NewValidationError(b.ns, violations)
	}
	return nil
}

// Build returns the merged raw text for a write. It fails when a change
// names a field that is unknown or read-only; value validation happens
// when the write is prepared.
func (b *ChangeBuilder) Build() (map[string]string, error) {
	if b.err != nil {
		return nil, b.err
	}
	sch := schema.SchemaFor(b.ns)
	violations := make(map[string]string)
	for k := range b.changes {
		f, ok := sch.Field(k)
		switch {
		case !ok:
			violations[k] = fmt.Sprintf("%s: unknown field", k)
		case f.ReadOnly:
			violations[k] = fmt.Sprintf("%s: field is read-only", k)
		}
	}
	if len(violations) > 0 {
		return nil, NewValidationError(b.ns, violations)
	}
	return b.merge(), nil
}

// Reset discards all changes.
func (b *ChangeBuilder) Reset() *ChangeBuilder {
	b.changes = make(map[string]string)
	b.err = nil
	return b
}

func (b *ChangeBuilder) merge() map[string]string {
	out := make(map[string]string, len(b.base)+len(b.changes))
	for k, v := range b.base {
		out[k] = v
	}
	for k, v := range b.changes {
		out[k] = v
	}
	return out
}
