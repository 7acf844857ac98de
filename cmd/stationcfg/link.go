package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/bridge"
	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/discovery"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/simulator"
	"github.com/stationlink/stationcfg/internal/trace"
	"github.com/stationlink/stationcfg/internal/transport"
)

// link is the process-wide connection to stations. It is opened on first
// use and shared by every command run from the shell.
type link struct {
	transport transport.Transport
	manager   *deviceconfig.Manager
	describe  string
	closers   []func() error
}

var active *link

// openLink returns the shared link, connecting on first use.
func openLink(ctx context.Context) (*link, error) {
	if active != nil {
		return active, nil
	}

	l := &link{}
	var client *bridge.Client
	switch {
	case simulateCount > 0:
		l.transport = newSimulatedFleet(simulateCount)
		l.describe = fmt.Sprintf("simulator (%d stations)", simulateCount)

	default:
		url := prefs.BridgeURL
		if url == "" {
			b, err := findBridge(ctx)
			if err != nil {
				return nil, err
			}
			url = b.URL()
		}
		var err error
		client, err = bridge.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		l.transport = client
		l.describe = url
		l.closers = append(l.closers, client.Close)
	}

	if prefs.TraceFile != "" {
		rec, err := trace.NewFileRecorder(prefs.TraceFile)
		if err != nil {
			l.close()
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		var opts []trace.Option
		if !prefs.ShowSecrets {
			opts = append(opts, trace.WithRedaction())
		}
		tracer := trace.NewTracer(l.transport, rec, opts...)
		logging.Info("Recording trace", zap.String("file", prefs.TraceFile), zap.String("session_id", tracer.SessionID()))
		l.transport = tracer
		l.closers = append(l.closers, rec.Close)
	}

	l.manager = deviceconfig.NewManager(l.transport, deviceconfig.WithStrictNumbers(prefs.StrictNumbers))
	if client != nil {
		go watchBridge(client, l.manager)
	}
	active = l
	return l, nil
}

// watchBridge clears discovery state of every open session once the
// bridge connection ends.
func watchBridge(client *bridge.Client, mgr *deviceconfig.Manager) {
	<-client.Done()
	logging.Warn("Bridge connection ended", zap.String("url", client.URL()))
	mgr.LinkLost()
}

func findBridge(ctx context.Context) (*discovery.Bridge, error) {
	scanner := discovery.NewScanner()
	scanner.Timeout = prefs.ScanTimeoutDuration()

	b, err := scanner.FindBridge(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("no bridge found via mDNS (use --bridge or --simulate): %w", err)
	}
	fmt.Fprintf(os.Stderr, "Using bridge %s\n", b)
	return b, nil
}

func (l *link) close() {
	if l.manager != nil {
		l.manager.CloseAll()
	}
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil {
			logging.Debug("Close failed", zap.Error(err))
		}
	}
}

func closeLink() {
	if active != nil {
		active.close()
		active = nil
	}
}

// scan lists stations in range and records them in the registry.
func (l *link) scan(ctx context.Context) ([]transport.Device, error) {
	scanner, ok := l.transport.(transport.Scanner)
	if !ok {
		return nil, errors.New("this link cannot scan for stations")
	}
	devices, err := scanner.Scan(ctx, prefs.ScanTimeoutDuration())
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	for _, d := range devices {
		registry.UpdateDeviceLastSeen(d.ID, d.Name)
	}
	return devices, nil
}

// resolveDevice maps --device to a station. Stations known to the registry
// are used directly; anything else is looked up by scanning. With no
// --device, a scan that finds exactly one station selects it.
func (l *link) resolveDevice(ctx context.Context) (transport.Device, error) {
	if deviceQuery != "" {
		if id, ok := registry.ResolveDevice(deviceQuery); ok {
			return transport.Device{ID: id, Name: registry.GetDevice(id).Name}, nil
		}
	}

	devices, err := l.scan(ctx)
	if err != nil {
		return transport.Device{}, err
	}

	if deviceQuery != "" {
		for _, d := range devices {
			if strings.EqualFold(d.ID, deviceQuery) || strings.EqualFold(d.Name, deviceQuery) {
				return d, nil
			}
		}
		return transport.Device{}, fmt.Errorf("station %q not found. Run 'stationcfg scan' to list stations in range", deviceQuery)
	}

	switch len(devices) {
	case 0:
		return transport.Device{}, errors.New("no stations found. Use --device to name one")
	case 1:
		fmt.Fprintf(os.Stderr, "Found station: %s\n", devices[0])
		return devices[0], nil
	default:
		names := make([]string, len(devices))
		for i, d := range devices {
			names[i] = d.String()
		}
		return transport.Device{}, fmt.Errorf("multiple stations found (%s). Use --device to specify which one", strings.Join(names, ", "))
	}
}

// openSession resolves the station and opens a session on it.
func openSession(ctx context.Context, opts ...deviceconfig.Option) (*deviceconfig.Session, error) {
	l, err := openLink(ctx)
	if err != nil {
		return nil, err
	}
	dev, err := l.resolveDevice(ctx)
	if err != nil {
		return nil, err
	}
	s, err := l.manager.Open(dev, opts...)
	if err != nil {
		return nil, err
	}
	registry.UpdateDeviceLastSeen(dev.ID, dev.Name)
	registry.EnsureDevice(dev.ID).LastBridge = l.describe
	return s, nil
}

// newSimulatedFleet builds n stations with stable addresses.
func newSimulatedFleet(n int) *simulator.Fleet {
	fleet := simulator.NewFleet()
	for i := 1; i <= n; i++ {
		st := simulator.NewStation(fmt.Sprintf("C0:FF:EE:00:00:%02X", i), fmt.Sprintf("station-%d", i))
		st.SetFaults(simulator.Faults{Delay: 20 * time.Millisecond})
		fleet.Add(st)
	}
	return fleet
}
