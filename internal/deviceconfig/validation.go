package deviceconfig

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/stationlink/stationcfg/internal/schema"
)

var (
	devAddrPattern = regexp.MustCompile(`^(0x)?[0-9A-Fa-f]{8}$`)
	keyPattern     = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)
)

// FieldError is a validation failure for a single field.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Reason
}

// ValidateDevAddr validates a device address.
// Accepts exactly 8 hex digits with an optional lowercase "0x" prefix,
// which is the form FormatDevAddr produces.
func ValidateDevAddr(devAddr string) error {
	if !devAddrPattern.MatchString(devAddr) {
		return &FieldError{Key: "devAddr", Reason: "devAddr must be an 8-digit hexadecimal value"}
	}
	return nil
}

// ValidateKey validates a 128-bit session key.
// Whitespace and commas are ignored; exactly 32 hex digits must remain.
func ValidateKey(key, value string) error {
	if !keyPattern.MatchString(StripKey(value)) {
		return &FieldError{Key: key, Reason: fmt.Sprintf("%s must be a 32-digit hexadecimal value", key)}
	}
	return nil
}

// ValidateRecord canonicalizes and validates the writable fields of r
// the same way a write does. Errors are FieldErrors in schema order and
// the result is empty when r may be written.
func ValidateRecord(r Record, strict bool) []error {
	ns := r.Namespace()
	violations := ValidateFields(ns, Canonicalize(ns, r.Texts()), strict)
	if len(violations) == 0 {
		return nil
	}

	errs := make([]error, 0, len(violations))
	for _, key := range schema.SchemaFor(ns).Keys() {
		if reason, ok := violations[key]; ok {
			errs = append(errs, &FieldError{Key: key, Reason: reason})
			delete(violations, key)
		}
	}
	extra := make([]string, 0, len(violations))
	for key := range violations {
		extra = append(extra, key)
	}
	sort.Strings(extra)
	for _, key := range extra {
		errs = append(errs, &FieldError{Key: key, Reason: violations[key]})
	}
	return errs
}

// ValidateFields validates canonical field text for a write to ns.
// Every field is checked; the result maps each offending key to one
// reason and is empty when the write may proceed.
//
// Keys not in the schema and read-only keys are always rejected. With
// strict set, numeric and boolean text that does not parse is rejected
// instead of being written as zero or false.
func ValidateFields(ns schema.Namespace, canonical map[string]string, strict bool) map[string]string {
	violations := make(map[string]string)
	sch := schema.SchemaFor(ns)

	for key := range canonical {
		f, ok := sch.Field(key)
		if !ok {
			violations[key] = fmt.Sprintf("%s: unknown field", key)
			continue
		}
		if f.ReadOnly {
			violations[key] = fmt.Sprintf("%s: field is read-only", key)
		}
	}

	for _, f := range sch.Writable() {
		value := canonical[f.Key]
		var err error

		switch f.Type {
		case schema.Hex8:
			err = ValidateDevAddr(value)
		case schema.Hex32:
			err = ValidateKey(f.Key, value)
		case schema.Int:
			if strict {
				if _, ok := ParseIntLenient(value); !ok || !isWholeInt(value) {
					err = &FieldError{Key: f.Key, Reason: fmt.Sprintf("%s must be an integer", f.Key)}
				}
			}
		case schema.Float:
			if strict {
				if _, ok := ParseFloatLenient(value); !ok || !isWholeFloat(value) {
					err = &FieldError{Key: f.Key, Reason: fmt.Sprintf("%s must be a number", f.Key)}
				}
			}
		case schema.Bool:
			if strict {
				if _, ok := ParseBoolText(value); !ok {
					err = &FieldError{Key: f.Key, Reason: fmt.Sprintf("%s must be true or false", f.Key)}
				}
			}
		}

		if err != nil {
			violations[f.Key] = err.Error()
		}
	}

	return violations
}

// isWholeInt reports whether the entire text is an integer, not just a
// leading prefix.
func isWholeInt(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && leadingInt.FindString(s) == s
}

func isWholeFloat(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && leadingFloat.FindString(s) == s
}
