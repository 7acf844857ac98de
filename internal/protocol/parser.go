package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Version is the bridge protocol version carried in the mDNS "proto" record.
const Version = "1"

// MaxMessageSize bounds a single bridge frame.
const MaxMessageSize = 64 * 1024

// Op names a bridge operation.
type Op string

// Bridge operations
const (
	OpScan       Op = "scan"
	OpEnumerate  Op = "enumerate"
	OpAttributes Op = "attributes"
	OpRead       Op = "read"
	OpWrite      Op = "write"
)

// Error codes carried in failed responses
const (
	CodeNotConnected = "not_connected"
	CodeNotFound     = "not_found"
	CodeRejected     = "rejected"
	CodeTimeout      = "timeout"
	CodeUnsupported  = "unsupported"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

// ErrUnsupported is returned when the bridge backend cannot serve an op.
var ErrUnsupported = fmt.Errorf("operation not supported by bridge: %w", errors.ErrUnsupported)

// Request is a client-to-bridge frame.
type Request struct {
	ID        uint32 `json:"id"`
	Op        Op     `json:"op"`
	Device    string `json:"device,omitempty"`
	Locator   string `json:"locator,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

// Response is a bridge-to-client frame answering the request with the same ID.
type Response struct {
	ID         uint32             `json:"id"`
	OK         bool               `json:"ok"`
	Error      string             `json:"error,omitempty"`
	Code       string             `json:"code,omitempty"`
	Payload    []byte             `json:"payload,omitempty"`
	Devices    []transport.Device `json:"devices,omitempty"`
	Attributes []string           `json:"attributes,omitempty"`
}

// String returns a short description for logs.
func (r *Request) String() string {
	switch r.Op {
	case OpScan:
		return fmt.Sprintf("Request{id=%d, op=%s}", r.ID, r.Op)
	case OpRead, OpWrite:
		return fmt.Sprintf("Request{id=%d, op=%s, device=%s, locator=%s, payload=%d bytes}",
			r.ID, r.Op, r.Device, r.Locator, len(r.Payload))
	default:
		return fmt.Sprintf("Request{id=%d, op=%s, device=%s}", r.ID, r.Op, r.Device)
	}
}

// ParseRequest decodes and validates a request frame.
func ParseRequest(data []byte) (*Request, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("request too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid request frame: %w", err)
	}

	switch req.Op {
	case OpScan:
		return &req, nil
	case OpEnumerate, OpAttributes:
		if req.Device == "" {
			return &req, fmt.Errorf("%s request without device", req.Op)
		}
	case OpRead, OpWrite:
		if req.Device == "" {
			return &req, fmt.Errorf("%s request without device", req.Op)
		}
		if _, err := schema.ParseLocator(req.Locator); err != nil {
			return &req, fmt.Errorf("%s request: %w", req.Op, err)
		}
	default:
		return &req, fmt.Errorf("unknown op %q", req.Op)
	}
	return &req, nil
}

// ParseResponse decodes a response frame.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid response frame: %w", err)
	}
	if resp.ID == 0 {
		return nil, fmt.Errorf("response without id")
	}
	return &resp, nil
}

// Err converts a failed response back into an error that matches the
// transport sentinels with errors.Is.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	var base error
	switch r.Code {
	case CodeNotConnected:
		base = transport.ErrNotConnected
	case CodeNotFound:
		base = transport.ErrAttributeNotFound
	case CodeRejected:
		base = transport.ErrWriteRejected
	case CodeUnsupported:
		base = ErrUnsupported
	case CodeTimeout:
		base = context.DeadlineExceeded
	}
	if base == nil {
		return fmt.Errorf("bridge: %s", r.Error)
	}
	return fmt.Errorf("bridge: %s: %w", r.Error, base)
}

// CodeFor classifies err into a response code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, transport.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, transport.ErrAttributeNotFound):
		return CodeNotFound
	case errors.Is(err, transport.ErrWriteRejected):
		return CodeRejected
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	case isTimeout(err):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
