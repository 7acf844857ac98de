package protocol

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// DefaultScanTimeout applies when a scan request carries no timeout.
const DefaultScanTimeout = 5 * time.Second

// Handler serves bridge requests against a backend transport. Scan and
// attribute listing are available when the backend implements
// transport.Scanner and transport.AttributeLister.
type Handler struct {
	backend transport.Transport
}

// NewHandler creates a handler for backend.
func NewHandler(backend transport.Transport) *Handler {
	return &Handler{backend: backend}
}

// HandleMessage decodes one request frame and returns the encoded response.
func (h *Handler) HandleMessage(ctx context.Context, remoteAddr string, data []byte) []byte {
	req, err := ParseRequest(data)
	var resp *Response
	if err != nil {
		logging.Warn("Rejected bridge request",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		var id uint32
		if req != nil {
			id = req.ID
		}
		resp = &Response{ID: id, Error: err.Error(), Code: CodeBadRequest}
	} else {
		logging.Debug("Bridge request",
			zap.String("remote_addr", remoteAddr),
			zap.String("request", req.String()),
		)
		resp = h.Handle(ctx, req)
	}

	out, err := Marshal(resp)
	if err != nil {
		out, _ = Marshal(&Response{ID: resp.ID, Error: err.Error(), Code: CodeInternal})
	}
	return out
}

// Handle runs a parsed request.
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	if req.TimeoutMs > 0 && req.Op != OpScan {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	dev := transport.Device{ID: req.Device}
	resp := &Response{ID: req.ID}

	var err error
	switch req.Op {
	case OpScan:
		resp.Devices, err = h.scan(ctx, req)
	case OpEnumerate:
		err = h.backend.Enumerate(ctx, dev)
	case OpAttributes:
		resp.Attributes, err = h.attributes(ctx, dev)
	case OpRead:
		var loc schema.Locator
		if loc, err = schema.ParseLocator(req.Locator); err == nil {
			resp.Payload, err = h.backend.ReadAttribute(ctx, dev, loc)
		}
	case OpWrite:
		var loc schema.Locator
		if loc, err = schema.ParseLocator(req.Locator); err == nil {
			err = h.backend.WriteAttribute(ctx, dev, loc, req.Payload)
		}
	default:
		err = fmt.Errorf("op %q: %w", req.Op, ErrUnsupported)
	}

	if err != nil {
		logging.Debug("Bridge request failed",
			zap.String("request", req.String()),
			zap.Error(err),
		)
		return NewErrorResponse(req.ID, err)
	}
	resp.OK = true
	return resp
}

func (h *Handler) scan(ctx context.Context, req *Request) ([]transport.Device, error) {
	scanner, ok := h.backend.(transport.Scanner)
	if !ok {
		return nil, fmt.Errorf("scan: %w", ErrUnsupported)
	}
	timeout := DefaultScanTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	return scanner.Scan(ctx, timeout)
}

func (h *Handler) attributes(ctx context.Context, dev transport.Device) ([]string, error) {
	lister, ok := h.backend.(transport.AttributeLister)
	if !ok {
		return nil, fmt.Errorf("attributes: %w", ErrUnsupported)
	}
	locs, err := lister.Attributes(ctx, dev)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(locs))
	for i, loc := range locs {
		out[i] = loc.String()
	}
	return out, nil
}
