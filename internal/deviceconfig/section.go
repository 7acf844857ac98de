package deviceconfig

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/codec"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Handle reads and writes one namespace of a session.
//
// A failed read returns no section and leaves the session's last-known
// value untouched. A write that fails validation performs no I/O. A
// transport failure is returned as-is inside a DeviceError and is never
// retried.
type Handle struct {
	session *Session
	ns      schema.Namespace
	phase   atomic.Int32
}

// Namespace returns the handled namespace.
func (h *Handle) Namespace() schema.Namespace {
	return h.ns
}

// Phase returns the most recent pipeline phase.
func (h *Handle) Phase() Phase {
	return Phase(h.phase.Load())
}

func (h *Handle) enter(p Phase) {
	h.phase.Store(int32(p))
	logging.LogPhase(h.session.device.ID, string(h.ns), p.String())
	if hook := h.session.opts.phaseHook; hook != nil {
		hook(h.session.device.ID, h.ns, p)
	}
}

func (h *Handle) fail(err error) error {
	h.enter(PhaseFailed)
	return err
}

// failTransport wraps a transport failure in phase. A failure reporting
// the device as not connected also clears its discovery state.
func (h *Handle) failTransport(phase Phase, err error) error {
	s := h.session
	if errors.Is(err, transport.ErrNotConnected) {
		s.lost()
	}
	return h.fail(NewTransportError(s.device.ID, h.ns, phase, err))
}

func (h *Handle) checkNamespace() error {
	if !h.ns.Valid() {
		return fmt.Errorf("unknown namespace %q", h.ns)
	}
	return nil
}

// Read fetches, decodes and types the section.
func (h *Handle) Read(ctx context.Context) (*schema.Section, error) {
	s := h.session
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := h.checkNamespace(); err != nil {
		return nil, err
	}
	loc := schema.LocatorFor(h.ns)

	h.enter(PhaseDiscovering)
	if err := s.ensureDiscovered(ctx, loc); err != nil {
		return nil, h.failTransport(PhaseDiscovering, err)
	}

	h.enter(PhaseFetching)
	payload, err := s.link.ReadAttribute(ctx, s.device, loc)
	if err != nil {
		return nil, h.failTransport(PhaseFetching, err)
	}
	logging.LogAttribute("read", s.device.ID, loc.String(), payload)

	h.enter(PhaseDecoding)
	doc, err := codec.Decode(payload, string(h.ns))
	if err != nil {
		return nil, h.fail(NewDecodeError(s.device.ID, h.ns, err))
	}
	sec := SectionFromDocument(h.ns, doc)

	if err := s.checkOpen(); err != nil {
		return nil, h.fail(err)
	}
	s.remember(h.ns, sec)
	h.enter(PhaseReady)
	return sec, nil
}

// Prepare canonicalizes, validates and encodes raw without any I/O.
func (h *Handle) Prepare(raw map[string]string) (*Prepared, error) {
	if err := h.checkNamespace(); err != nil {
		return nil, err
	}
	p, err := Prepare(h.ns, raw, h.session.opts.strictNumbers, h.enter)
	if err != nil {
		if devErr, ok := asDeviceError(err); ok {
			devErr.DeviceID = h.session.device.ID
		}
		return nil, err
	}
	return p, nil
}

// Write prepares raw and sends it.
func (h *Handle) Write(ctx context.Context, raw map[string]string) error {
	if err := h.session.checkOpen(); err != nil {
		return err
	}
	p, err := h.Prepare(raw)
	if err != nil {
		return err
	}
	return h.Send(ctx, p)
}

// Send writes an already prepared value.
func (h *Handle) Send(ctx context.Context, p *Prepared) error {
	s := h.session
	if err := s.checkOpen(); err != nil {
		return err
	}
	if p == nil || p.Namespace != h.ns {
		return fmt.Errorf("prepared value does not belong to %s", h.ns)
	}
	loc := schema.LocatorFor(h.ns)

	h.enter(PhaseDiscovering)
	if err := s.ensureDiscovered(ctx, loc); err != nil {
		return h.failTransport(PhaseDiscovering, err)
	}

	h.enter(PhaseSending)
	logging.LogAttribute("write", s.device.ID, loc.String(), p.Payload)
	if err := s.link.WriteAttribute(ctx, s.device, loc, p.Payload); err != nil {
		// The device may or may not have applied the value.
		s.invalidate(h.ns)
		return h.failTransport(PhaseSending, err)
	}

	s.invalidate(h.ns)
	h.enter(PhaseSent)
	logging.Info("Section written",
		zap.String("device_id", s.device.ID),
		zap.String("namespace", string(h.ns)),
	)
	return nil
}

// Update reads the current section, applies changes on top of it and
// writes the merged result. Fields not named in changes keep their
// current device value.
func (h *Handle) Update(ctx context.Context, changes map[string]string) (*Prepared, error) {
	current, err := h.Read(ctx)
	if err != nil {
		return nil, err
	}

	b := NewChangeBuilder(current)
	for k, v := range changes {
		b.Set(k, v)
	}
	raw, err := b.Build()
	if err != nil {
		if devErr, ok := asDeviceError(err); ok {
			devErr.DeviceID = h.session.device.ID
		}
		return nil, err
	}

	p, err := h.Prepare(raw)
	if err != nil {
		return nil, err
	}
	if err := h.Send(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
