package trace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Tracer decorates a transport and records every operation it performs.
// It implements transport.Transport, transport.Scanner and
// transport.AttributeLister; the latter two fail with errors.ErrUnsupported
// when the wrapped link lacks them.
type Tracer struct {
	link      transport.Transport
	recorder  Recorder
	sessionID string
	redact    bool
	now       func() time.Time
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(t *Tracer) { t.sessionID = id }
}

// WithRedaction omits payloads of sections that carry secret fields.
func WithRedaction() Option {
	return func(t *Tracer) { t.redact = true }
}

// NewTracer wraps link. A nil recorder discards events.
func NewTracer(link transport.Transport, recorder Recorder, opts ...Option) *Tracer {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	t := &Tracer{
		link:      link,
		recorder:  recorder,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SessionID returns the ID stamped on every recorded event.
func (t *Tracer) SessionID() string {
	return t.sessionID
}

func (t *Tracer) event(start time.Time, op Op, dev transport.Device, loc *schema.Locator, payload []byte, err error) Event {
	event := Event{
		Timestamp: start,
		SessionID: t.sessionID,
		Op:        op,
		DeviceID:  dev.ID,
		Duration:  t.now().Sub(start),
	}
	if loc != nil {
		event.Locator = loc.String()
		if ns, ok := schema.NamespaceAt(*loc); ok {
			event.Namespace = string(ns)
			if !t.redact || !hasSecrets(ns) {
				event.Payload = append([]byte(nil), payload...)
			}
		} else if !t.redact {
			event.Payload = append([]byte(nil), payload...)
		}
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

func hasSecrets(ns schema.Namespace) bool {
	for _, f := range schema.SchemaFor(ns).Fields {
		if f.Secret {
			return true
		}
	}
	return false
}

// Scan implements transport.Scanner.
func (t *Tracer) Scan(ctx context.Context, timeout time.Duration) ([]transport.Device, error) {
	scanner, ok := t.link.(transport.Scanner)
	if !ok {
		return nil, fmt.Errorf("scan: %w", errors.ErrUnsupported)
	}
	start := t.now()
	devices, err := scanner.Scan(ctx, timeout)
	event := t.event(start, OpScan, transport.Device{}, nil, nil, err)
	event.Devices = len(devices)
	t.recorder.Record(event)
	return devices, err
}

// Enumerate implements transport.Transport.
func (t *Tracer) Enumerate(ctx context.Context, dev transport.Device) error {
	start := t.now()
	err := t.link.Enumerate(ctx, dev)
	t.recorder.Record(t.event(start, OpEnumerate, dev, nil, nil, err))
	return err
}

// Attributes implements transport.AttributeLister.
func (t *Tracer) Attributes(ctx context.Context, dev transport.Device) ([]schema.Locator, error) {
	lister, ok := t.link.(transport.AttributeLister)
	if !ok {
		return nil, fmt.Errorf("attributes: %w", errors.ErrUnsupported)
	}
	start := t.now()
	locs, err := lister.Attributes(ctx, dev)
	t.recorder.Record(t.event(start, OpAttributes, dev, nil, nil, err))
	return locs, err
}

// ReadAttribute implements transport.Transport.
func (t *Tracer) ReadAttribute(ctx context.Context, dev transport.Device, loc schema.Locator) ([]byte, error) {
	start := t.now()
	payload, err := t.link.ReadAttribute(ctx, dev, loc)
	t.recorder.Record(t.event(start, OpRead, dev, &loc, payload, err))
	return payload, err
}

// WriteAttribute implements transport.Transport.
func (t *Tracer) WriteAttribute(ctx context.Context, dev transport.Device, loc schema.Locator, payload []byte) error {
	start := t.now()
	err := t.link.WriteAttribute(ctx, dev, loc, payload)
	t.recorder.Record(t.event(start, OpWrite, dev, &loc, payload, err))
	return err
}
