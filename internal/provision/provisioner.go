package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stationlink/stationcfg/internal/config"
	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// DefaultConcurrency is the number of stations provisioned at once.
const DefaultConcurrency = 4

// Target pairs a station with the sheet row to write to it.
type Target struct {
	Device transport.Device
	Entry  *Entry
}

// Match pairs every device with its sheet row. A row matches a device by
// ID, then by the registry nickname, then by the advertised name. reg may
// be nil. Devices without a row are returned in unmatched.
func (s *Sheet) Match(devices []transport.Device, reg *config.Registry) (targets []Target, unmatched []transport.Device) {
	for _, dev := range devices {
		var nickname string
		if reg != nil {
			if d := reg.GetDevice(dev.ID); d != nil {
				nickname = d.Nickname
			}
		}
		if e, ok := s.Lookup(dev.ID, nickname, dev.Name); ok {
			targets = append(targets, Target{Device: dev, Entry: e})
		} else {
			unmatched = append(unmatched, dev)
		}
	}
	return targets, unmatched
}

// Result is the outcome of provisioning one station.
type Result struct {
	Target Target

	// Safe is set when the write was verified
	Safe *deviceconfig.SafeUpdateResult

	Err error
}

// OK reports whether the station was provisioned.
func (r *Result) OK() bool {
	return r.Err == nil
}

func (r *Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("❌ %s: %v", r.Target.Device, r.Err)
	}
	return fmt.Sprintf("✅ %s: devAddr %s", r.Target.Device, deviceconfig.FormatDevAddr(r.Target.Entry.DevAddr))
}

// Provisioner writes LoRaWAN join parameters to stations.
type Provisioner struct {
	manager     *deviceconfig.Manager
	verify      *deviceconfig.VerificationOptions
	concurrency int
	registry    *config.Registry
	now         func() time.Time
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithVerification reads every write back and rolls the section back on a
// mismatch. nil disables verification.
func WithVerification(opts *deviceconfig.VerificationOptions) Option {
	return func(p *Provisioner) { p.verify = opts }
}

// WithConcurrency bounds the number of stations written at once.
func WithConcurrency(n int) Option {
	return func(p *Provisioner) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRegistry records successful provisioning in reg. The caller saves it.
func WithRegistry(reg *config.Registry) Option {
	return func(p *Provisioner) { p.registry = reg }
}

// NewProvisioner creates a provisioner that opens sessions from manager.
func NewProvisioner(manager *deviceconfig.Manager, opts ...Option) *Provisioner {
	p := &Provisioner{
		manager:     manager,
		verify:      deviceconfig.DefaultVerificationOptions(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply provisions a single station.
func (p *Provisioner) Apply(ctx context.Context, t Target) *Result {
	result := &Result{Target: t}

	session, err := p.manager.Open(t.Device)
	if err != nil {
		result.Err = err
		return result
	}
	defer func() { _ = session.Close() }()

	raw := t.Entry.Config().Texts()
	if p.verify == nil {
		result.Err = session.Write(ctx, schema.LoRaWAN, raw)
	} else {
		rm := deviceconfig.NewRollbackManager(session)
		result.Safe = rm.SafeWrite(ctx, schema.LoRaWAN, raw, p.verify, fmt.Sprintf("provision line %d", t.Entry.Line))
		result.Err = result.Safe.Error
	}

	if result.Err != nil {
		logging.Warn("Provisioning failed",
			zap.String("device_id", t.Device.ID),
			zap.Int("line", t.Entry.Line),
			zap.Error(result.Err))
		return result
	}

	logging.Info("Station provisioned",
		zap.String("device_id", t.Device.ID),
		zap.String("dev_addr", deviceconfig.FormatDevAddr(t.Entry.DevAddr)))
	return result
}

// ApplyAll provisions every target, at most the configured number at a
// time. One station failing does not stop the others; results are in
// target order.
func (p *Provisioner) ApplyAll(ctx context.Context, targets []Target) []*Result {
	results := make([]*Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var regMu sync.Mutex
	for i, t := range targets {
		g.Go(func() error {
			r := p.Apply(gctx, t)
			results[i] = r
			if r.OK() && p.registry != nil {
				regMu.Lock()
				p.registry.MarkProvisioned(t.Device.ID, p.now())
				regMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
