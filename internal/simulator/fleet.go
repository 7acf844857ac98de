package simulator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Fleet is an in-memory transport over a set of simulated stations.
type Fleet struct {
	mu       sync.RWMutex
	stations map[string]*Station
}

// NewFleet creates a fleet containing stations.
func NewFleet(stations ...*Station) *Fleet {
	f := &Fleet{stations: make(map[string]*Station)}
	for _, st := range stations {
		f.Add(st)
	}
	return f
}

// Add registers a station, replacing any with the same ID.
func (f *Fleet) Add(st *Station) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stations[st.device.ID] = st
}

// Remove takes a station out of range.
func (f *Fleet) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stations, id)
}

// Station returns the station with the given ID.
func (f *Fleet) Station(id string) (*Station, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.stations[id]
	return st, ok
}

func (f *Fleet) station(ctx context.Context, dev transport.Device) (*Station, error) {
	st, ok := f.Station(dev.ID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", dev.ID, transport.ErrNotConnected)
	}
	if err := wait(ctx, st.snapshotFaults().Delay); err != nil {
		return nil, err
	}
	return st, nil
}

// Scan lists every station in the fleet ordered by ID.
func (f *Fleet) Scan(ctx context.Context, timeout time.Duration) ([]transport.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	devices := make([]transport.Device, 0, len(f.stations))
	for _, st := range f.stations {
		devices = append(devices, st.Device())
	}
	f.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// Enumerate implements transport.Transport.
func (f *Fleet) Enumerate(ctx context.Context, dev transport.Device) error {
	st, err := f.station(ctx, dev)
	if err != nil {
		return err
	}
	return st.enumerate()
}

// Attributes implements transport.AttributeLister.
func (f *Fleet) Attributes(ctx context.Context, dev transport.Device) ([]schema.Locator, error) {
	st, ok := f.Station(dev.ID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", dev.ID, transport.ErrNotConnected)
	}
	return st.attributes(), nil
}

// ReadAttribute implements transport.Transport.
func (f *Fleet) ReadAttribute(ctx context.Context, dev transport.Device, loc schema.Locator) ([]byte, error) {
	st, err := f.station(ctx, dev)
	if err != nil {
		return nil, err
	}
	return st.read(loc)
}

// WriteAttribute implements transport.Transport.
func (f *Fleet) WriteAttribute(ctx context.Context, dev transport.Device, loc schema.Locator, payload []byte) error {
	st, err := f.station(ctx, dev)
	if err != nil {
		return err
	}
	return st.write(loc, payload)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
