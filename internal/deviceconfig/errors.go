package deviceconfig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stationlink/stationcfg/internal/codec"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Error types for section operations

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeTransport indicates the link failed (enumeration, read or write)
	ErrTypeTransport ErrorType = iota
	// ErrTypeDecode indicates the device returned an unusable payload
	ErrTypeDecode
	// ErrTypeValidation indicates one or more fields failed validation
	ErrTypeValidation
	// ErrTypeSessionConflict indicates a session is already open for the device
	ErrTypeSessionConflict
	// ErrTypeSessionClosed indicates the session was used after Close
	ErrTypeSessionClosed
	// ErrTypeVerification indicates a read-back did not match what was written
	ErrTypeVerification
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeDecode:
		return "Decode Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeSessionConflict:
		return "Session Conflict"
	case ErrTypeSessionClosed:
		return "Session Closed"
	case ErrTypeVerification:
		return "Verification Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents a failed section operation
type DeviceError struct {
	Type       ErrorType         // Category of error
	Message    string            // Human-readable error message
	Namespace  schema.Namespace  // Section involved (if any)
	Phase      Phase             // Pipeline phase that failed
	DeviceID   string            // Device identifier (for context)
	Violations map[string]string // Field key -> reason (validation only)
	Err        error             // Underlying error (if any)
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a transport failure verbatim
func NewTransportError(deviceID string, ns schema.Namespace, phase Phase, err error) *DeviceError {
	var msg string
	switch phase {
	case PhaseDiscovering:
		msg = "capability enumeration failed"
	case PhaseFetching:
		msg = fmt.Sprintf("reading %s failed", ns)
	case PhaseSending:
		msg = fmt.Sprintf("writing %s failed", ns)
	default:
		msg = fmt.Sprintf("%s: link failure", ns)
	}
	return &DeviceError{
		Type:      ErrTypeTransport,
		Message:   msg,
		Namespace: ns,
		Phase:     phase,
		DeviceID:  deviceID,
		Err:       err,
	}
}

// NewDecodeError wraps a codec failure
func NewDecodeError(deviceID string, ns schema.Namespace, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeDecode,
		Message:   fmt.Sprintf("device returned an unusable %s payload", ns),
		Namespace: ns,
		Phase:     PhaseDecoding,
		DeviceID:  deviceID,
		Err:       err,
	}
}

// NewValidationError creates a validation error listing every offending field
func NewValidationError(ns schema.Namespace, violations map[string]string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeValidation,
		Message:    FormatViolations(ns, violations),
		Namespace:  ns,
		Phase:      PhaseValidating,
		Violations: violations,
	}
}

// NewSessionConflictError reports a second session for the same device
func NewSessionConflictError(deviceID string) *DeviceError {
	return &DeviceError{
		Type:     ErrTypeSessionConflict,
		Message:  fmt.Sprintf("a configuration session is already open for %s", deviceID),
		DeviceID: deviceID,
	}
}

// NewSessionClosedError reports use of a closed session
func NewSessionClosedError(deviceID string) *DeviceError {
	return &DeviceError{
		Type:     ErrTypeSessionClosed,
		Message:  fmt.Sprintf("session for %s is closed", deviceID),
		DeviceID: deviceID,
	}
}

// NewVerificationError reports a read-back mismatch
func NewVerificationError(deviceID string, ns schema.Namespace, mismatches []string) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeVerification,
		Message:   fmt.Sprintf("%s read-back mismatch: %s", ns, formatMismatches(mismatches)),
		Namespace: ns,
		Phase:     PhaseFetching,
		DeviceID:  deviceID,
	}
}

func asDeviceError(err error) (*DeviceError, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr, true
	}
	return nil, false
}

// IsTransportError checks if an error is a link failure
func IsTransportError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeTransport
}

// IsDecodeError checks if an error is a decode failure
func IsDecodeError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeDecode
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeValidation
}

// IsSessionConflict checks if an error reports a duplicate session
func IsSessionConflict(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeSessionConflict
}

// IsSessionClosed checks if an error reports use of a closed session
func IsSessionClosed(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeSessionClosed
}

// IsVerificationError checks if an error is a read-back mismatch
func IsVerificationError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeVerification
}

// Violations returns the per-field reasons of a validation error, or nil
func Violations(err error) map[string]string {
	devErr, ok := asDeviceError(err)
	if !ok || devErr.Type != ErrTypeValidation {
		return nil
	}
	return devErr.Violations
}

// FailedPhase returns the phase an error was raised in, or PhaseIdle
func FailedPhase(err error) Phase {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Phase
	}
	return PhaseIdle
}

// FormatViolations renders violations in schema field order
func FormatViolations(ns schema.Namespace, violations map[string]string) string {
	if len(violations) == 0 {
		return fmt.Sprintf("%s: no validation errors", ns)
	}

	keys := orderedKeys(ns, violations)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, violations[k])
	}
	return fmt.Sprintf("%s: %d invalid field(s): %s", ns, len(keys), strings.Join(parts, "; "))
}

// orderedKeys returns schema keys first, in order, then any others sorted
func orderedKeys(ns schema.Namespace, m map[string]string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, f := range schema.SchemaFor(ns).Fields {
		if _, ok := m[f.Key]; ok {
			keys = append(keys, f.Key)
			seen[f.Key] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTransport:
		switch {
		case errors.Is(devErr.Err, context.DeadlineExceeded):
			return strings.Join([]string{
				"The station did not respond in time.",
				"Troubleshooting:",
				"  • Move closer to the station",
				"  • Check that the station is awake (it may be in its sleep interval)",
				"  • Retry the operation; nothing was changed on the device",
			}, "\n")
		case errors.Is(devErr.Err, transport.ErrNotConnected):
			return strings.Join([]string{
				"The station is not connected.",
				"Troubleshooting:",
				"  • Reconnect and open a new session",
				"  • Check that the bridge is running: stationcfg devices",
			}, "\n")
		case errors.Is(devErr.Err, transport.ErrAttributeNotFound):
			return strings.Join([]string{
				"The station does not expose this configuration section.",
				"Troubleshooting:",
				"  • Check the firmware version on the station",
				"  • Reconnect so capabilities are enumerated again",
			}, "\n")
		}
		return strings.Join([]string{
			"Communication with the station failed.",
			"Troubleshooting:",
			"  • Check the bridge connection",
			"  • Move closer to the station",
			"  • Writes are never retried automatically; read the section to see its current state",
		}, "\n")

	case ErrTypeDecode:
		switch {
		case errors.Is(devErr.Err, codec.ErrMalformed):
			return "The station returned data that is not valid base64. This usually means a truncated read; try again."
		case errors.Is(devErr.Err, codec.ErrSchemaMismatch):
			return "The station answered with a different section than requested. Check the firmware version."
		}
		return "The station returned data that is not a JSON object. Check the firmware version."

	case ErrTypeValidation:
		return "The values are invalid and nothing was sent. Fix the listed fields and try again."

	case ErrTypeSessionConflict:
		return "Close the other session for this station before opening a new one."

	case ErrTypeSessionClosed:
		return "Open a new session for the station."

	case ErrTypeVerification:
		return strings.Join([]string{
			"The station accepted the write but reports different values.",
			"Troubleshooting:",
			"  • Read the section again; the station may still be applying the change",
			"  • Check that the values are within the station's supported range",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTransport:
		if errors.Is(devErr.Err, context.DeadlineExceeded) {
			return "Station not responding (timeout)"
		}
		return fmt.Sprintf("Link error: %s", devErr.Message)
	case ErrTypeDecode:
		return fmt.Sprintf("Unreadable %s payload", devErr.Namespace)
	case ErrTypeValidation:
		return devErr.Message
	case ErrTypeSessionConflict:
		return "Station already has an open session"
	case ErrTypeSessionClosed:
		return "Session closed"
	default:
		return devErr.Message
	}
}
