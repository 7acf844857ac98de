package protocol

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Request constructors for the bridge client. Every request gets a fresh ID
// so responses can be matched on a shared connection.

var requestIDCounter atomic.Uint32

// GenerateRequestID returns the next request ID. IDs start at 1 and skip 0
// on wraparound since 0 marks a response without an ID.
func GenerateRequestID() uint32 {
	for {
		if id := requestIDCounter.Add(1); id != 0 {
			return id
		}
	}
}

// NewScanRequest builds a scan request bounded by timeout.
func NewScanRequest(timeout time.Duration) *Request {
	return &Request{
		ID:        GenerateRequestID(),
		Op:        OpScan,
		TimeoutMs: timeout.Milliseconds(),
	}
}

// NewEnumerateRequest builds a capability discovery request.
func NewEnumerateRequest(dev transport.Device) *Request {
	return &Request{ID: GenerateRequestID(), Op: OpEnumerate, Device: dev.ID}
}

// NewAttributesRequest builds a request for the attributes found during enumeration.
func NewAttributesRequest(dev transport.Device) *Request {
	return &Request{ID: GenerateRequestID(), Op: OpAttributes, Device: dev.ID}
}

// NewReadRequest builds an attribute read.
func NewReadRequest(dev transport.Device, loc schema.Locator) *Request {
	return &Request{
		ID:      GenerateRequestID(),
		Op:      OpRead,
		Device:  dev.ID,
		Locator: loc.String(),
	}
}

// NewWriteRequest builds a write-with-response.
func NewWriteRequest(dev transport.Device, loc schema.Locator, payload []byte) *Request {
	return &Request{
		ID:      GenerateRequestID(),
		Op:      OpWrite,
		Device:  dev.ID,
		Locator: loc.String(),
		Payload: payload,
	}
}

// NewErrorResponse answers id with err.
func NewErrorResponse(id uint32, err error) *Response {
	return &Response{ID: id, Error: err.Error(), Code: CodeFor(err)}
}

// Marshal encodes a frame for the wire.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bridge frame: %w", err)
	}
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("bridge frame too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}
	return data, nil
}
