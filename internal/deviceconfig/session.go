package deviceconfig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/discovery"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// PhaseHook observes every phase transition of every section pipeline.
type PhaseHook func(deviceID string, ns schema.Namespace, phase Phase)

type options struct {
	strictNumbers bool
	locatorCheck  bool
	phaseHook     PhaseHook
}

// Option configures a Manager or a single Session.
type Option func(*options)

// WithStrictNumbers rejects numeric and boolean text that does not parse
// instead of writing zero or false.
func WithStrictNumbers(strict bool) Option {
	return func(o *options) { o.strictNumbers = strict }
}

// WithLocatorCheck verifies after enumeration that the device exposes the
// addressed attribute. It needs a transport that implements
// transport.AttributeLister and is skipped otherwise.
func WithLocatorCheck() Option {
	return func(o *options) { o.locatorCheck = true }
}

// WithPhaseHook installs a phase observer.
func WithPhaseHook(hook PhaseHook) Option {
	return func(o *options) { o.phaseHook = hook }
}

// Manager hands out configuration sessions and enforces one open session
// per device. Its sessions share one discovery cache, so a session opened
// while a closed one is still enumerating waits for that enumeration.
type Manager struct {
	link  transport.Transport
	opts  []Option
	cache *discovery.Cache

	mu   sync.Mutex
	open map[string]*Session
}

// NewManager creates a manager over link. Options apply to every session.
func NewManager(link transport.Transport, opts ...Option) *Manager {
	return &Manager{
		link:  link,
		opts:  opts,
		cache: discovery.NewCache(),
		open:  make(map[string]*Session),
	}
}

// Open binds a session to dev. No enumeration happens until the first
// section is accessed. Opening a second session for the same device ID
// fails with a session conflict.
func (m *Manager) Open(dev transport.Device, opts ...Option) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.open[dev.ID]; busy {
		return nil, NewSessionConflictError(dev.ID)
	}

	var o options
	for _, opt := range m.opts {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		manager:   m,
		device:    dev,
		link:      m.link,
		cache:     m.cache,
		opts:      o,
		handles:   make(map[schema.Namespace]*Handle),
		lastKnown: make(map[schema.Namespace]*schema.Section),
	}
	m.open[dev.ID] = s

	logging.Info("Session opened", zap.String("device_id", dev.ID), zap.String("name", dev.Name))
	return s, nil
}

// Session returns the open session for deviceID, if any.
func (m *Manager) Session(deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.open[deviceID]
	return s, ok
}

// OpenDevices returns the IDs of devices with an open session.
func (m *Manager) OpenDevices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Disconnected clears the discovery state of deviceID after the transport
// reports a disconnect. The session stays open and re-enumerates on its
// next access.
func (m *Manager) Disconnected(deviceID string) {
	m.mu.Lock()
	s, ok := m.open[deviceID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.lost()
}

// LinkLost marks every device with an open session as disconnected. It is
// called when the underlying link goes away as a whole.
func (m *Manager) LinkLost() {
	for _, id := range m.OpenDevices() {
		m.Disconnected(id)
	}
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.open))
	for _, s := range m.open {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open[s.device.ID] == s {
		delete(m.open, s.device.ID)
	}
}

// Session is a configuration session bound to one device.
type Session struct {
	manager *Manager
	device  transport.Device
	link    transport.Transport
	cache   *discovery.Cache
	opts    options
	closed  atomic.Bool

	mu         sync.Mutex
	handles    map[schema.Namespace]*Handle
	lastKnown  map[schema.Namespace]*schema.Section
	attributes map[schema.Locator]bool
}

// Device returns the bound device.
func (s *Session) Device() transport.Device {
	return s.device
}

// Discovered reports whether capability enumeration has completed.
func (s *Session) Discovered() bool {
	return s.cache.IsDiscovered(s.device.ID)
}

// StrictNumbers reports whether the session rejects unparseable numbers.
func (s *Session) StrictNumbers() bool {
	return s.opts.strictNumbers
}

// Section returns the reader/writer for ns.
func (s *Session) Section(ns schema.Namespace) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[ns]
	if !ok {
		h = &Handle{session: s, ns: ns}
		s.handles[ns] = h
	}
	return h
}

// Read reads one section.
func (s *Session) Read(ctx context.Context, ns schema.Namespace) (*schema.Section, error) {
	return s.Section(ns).Read(ctx)
}

// Write validates and writes one section from raw field text.
func (s *Session) Write(ctx context.Context, ns schema.Namespace, raw map[string]string) error {
	return s.Section(ns).Write(ctx, raw)
}

// Update merges changes over the current value of ns and writes the result.
func (s *Session) Update(ctx context.Context, ns schema.Namespace, changes map[string]string) error {
	_, err := s.Section(ns).Update(ctx, changes)
	return err
}

// LastKnown returns a copy of the last successfully read value of ns.
// A failed read never changes it; a successful write clears it.
func (s *Session) LastKnown(ns schema.Namespace) (*schema.Section, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.lastKnown[ns]
	if !ok {
		return nil, false
	}
	return sec.Clone(), true
}

// Close forgets the discovery state and releases the device. The device
// handle itself belongs to the transport and is not disconnected.
// Closing twice is a no-op.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.forgetDiscovery()
	s.manager.release(s)
	logging.Info("Session closed", zap.String("device_id", s.device.ID))
	return nil
}

func (s *Session) checkOpen() error {
	if s.closed.Load() {
		return NewSessionClosedError(s.device.ID)
	}
	return nil
}

// lost clears discovery state after the transport reported the device
// as gone.
func (s *Session) lost() {
	s.forgetDiscovery()
	logging.Info("Device disconnected", zap.String("device_id", s.device.ID))
}

func (s *Session) forgetDiscovery() {
	s.cache.Forget(s.device.ID)
	s.mu.Lock()
	s.attributes = nil
	s.mu.Unlock()
}

// ensureDiscovered enumerates once per connection and, with the locator
// check enabled, confirms the device exposes loc.
func (s *Session) ensureDiscovered(ctx context.Context, loc schema.Locator) error {
	err := s.cache.EnsureDiscovered(ctx, s.device.ID, func(ctx context.Context) error {
		if err := s.link.Enumerate(ctx, s.device); err != nil {
			return err
		}
		if !s.opts.locatorCheck {
			return nil
		}
		lister, ok := s.link.(transport.AttributeLister)
		if !ok {
			return nil
		}
		locs, err := lister.Attributes(ctx, s.device)
		if errors.Is(err, errors.ErrUnsupported) {
			return nil
		}
		if err != nil {
			return err
		}
		attrs := make(map[schema.Locator]bool, len(locs))
		for _, l := range locs {
			attrs[l] = true
		}
		s.mu.Lock()
		s.attributes = attrs
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	attrs := s.attributes
	s.mu.Unlock()
	if attrs != nil && !attrs[loc] {
		return fmt.Errorf("%s: %w", loc, transport.ErrAttributeNotFound)
	}
	return nil
}

func (s *Session) remember(ns schema.Namespace, sec *schema.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKnown[ns] = sec.Clone()
}

func (s *Session) invalidate(ns schema.Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastKnown, ns)
}
