package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against *DecodeError.
var (
	ErrMalformed      = errors.New("malformed payload")
	ErrNotStructured  = errors.New("payload is not a structured object")
	ErrSchemaMismatch = errors.New("payload does not match namespace")
)

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind int

const (
	// KindMalformed means the transport encoding could not be undone.
	KindMalformed DecodeErrorKind = iota
	// KindNotStructured means the text is not a JSON object.
	KindNotStructured
	// KindSchemaMismatch means the object lacks the namespace key or its
	// value is not an object.
	KindSchemaMismatch
)

func (k DecodeErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindNotStructured:
		return "not structured"
	case KindSchemaMismatch:
		return "schema mismatch"
	default:
		return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
	}
}

func (k DecodeErrorKind) sentinel() error {
	switch k {
	case KindMalformed:
		return ErrMalformed
	case KindNotStructured:
		return ErrNotStructured
	case KindSchemaMismatch:
		return ErrSchemaMismatch
	default:
		return nil
	}
}

// DecodeError reports why a payload could not be decoded.
type DecodeError struct {
	Kind      DecodeErrorKind
	Namespace string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v: %v", e.Namespace, e.Kind.sentinel(), e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Namespace, e.Kind.sentinel())
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *DecodeError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}
