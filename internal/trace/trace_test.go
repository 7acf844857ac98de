package trace

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/simulator"
	"github.com/stationlink/stationcfg/internal/transport"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *memoryRecorder) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func TestEventCBORRoundTrip(t *testing.T) {
	in := Event{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		SessionID: "s-1",
		Op:        OpWrite,
		DeviceID:  "AA",
		Locator:   "180A/2A41",
		Namespace: "lorawan",
		Payload:   []byte("eyJsb3Jhd2FuIjp7fX0="),
		Duration:  1500 * time.Microsecond,
		Error:     "write rejected by device",
	}
	data, err := EncodeEvent(in)
	require.NoError(t, err)
	out, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
	out.Timestamp = in.Timestamp
	assert.Equal(t, in, out)
}

func TestParseOp(t *testing.T) {
	for o := OpScan; o <= OpWrite; o++ {
		got, err := ParseOp(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}
	got, err := ParseOp("read")
	require.NoError(t, err)
	assert.Equal(t, OpRead, got)

	_, err = ParseOp("erase")
	assert.Error(t, err)
}

func TestEventString(t *testing.T) {
	e := Event{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Op:        OpRead,
		DeviceID:  "AA",
		Locator:   "180A/2A37",
		Namespace: "system",
		Payload:   []byte("abcd"),
		Duration:  time.Millisecond,
	}
	assert.Equal(t, "12:00:00.000 READ      AA 180A/2A37 (system) 4 bytes [1ms]", e.String())

	e.Error = "boom"
	assert.Contains(t, e.String(), "ERROR boom")
}

func TestTracerRecordsOperations(t *testing.T) {
	st := simulator.NewStation("AA", "station-a")
	rec := &memoryRecorder{}
	tr := NewTracer(simulator.NewFleet(st), rec, WithSessionID("run-1"))
	ctx := context.Background()
	dev := st.Device()

	devices, err := tr.Scan(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, tr.Enumerate(ctx, dev))
	_, err = tr.Attributes(ctx, dev)
	require.NoError(t, err)
	payload, err := tr.ReadAttribute(ctx, dev, schema.LocatorFor(schema.System))
	require.NoError(t, err)
	err = tr.WriteAttribute(ctx, dev, schema.LocatorFor(schema.System), []byte("bad"))
	require.ErrorIs(t, err, transport.ErrWriteRejected)

	require.Len(t, rec.events, 5)
	assert.Equal(t, []Op{OpScan, OpEnumerate, OpAttributes, OpRead, OpWrite},
		[]Op{rec.events[0].Op, rec.events[1].Op, rec.events[2].Op, rec.events[3].Op, rec.events[4].Op})
	assert.Equal(t, len(devices), rec.events[0].Devices)

	read := rec.events[3]
	assert.Equal(t, "run-1", read.SessionID)
	assert.Equal(t, "system", read.Namespace)
	assert.Equal(t, "180A/2A37", read.Locator)
	assert.Equal(t, payload, read.Payload)
	assert.False(t, read.Failed())

	assert.True(t, rec.events[4].Failed())
}

func TestTracerRedaction(t *testing.T) {
	st := simulator.NewStation("AA", "")
	rec := &memoryRecorder{}
	tr := NewTracer(simulator.NewFleet(st), rec, WithRedaction())
	ctx := context.Background()

	_, err := tr.ReadAttribute(ctx, st.Device(), schema.LocatorFor(schema.LoRaWAN))
	require.NoError(t, err)
	_, err = tr.ReadAttribute(ctx, st.Device(), schema.LocatorFor(schema.PH))
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Empty(t, rec.events[0].Payload, "lorawan payload carries keys")
	assert.NotEmpty(t, rec.events[1].Payload)
	assert.NotEmpty(t, tr.SessionID())
}

func TestTracerWithoutOptionalInterfaces(t *testing.T) {
	tr := NewTracer(transport.Func{}, nil)
	_, err := tr.Scan(context.Background(), time.Second)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	_, err = tr.Attributes(context.Background(), transport.Device{ID: "AA"})
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestFileRecorderAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.trace")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	st := simulator.NewStation("AA", "")
	other := simulator.NewStation("BB", "")
	tr := NewTracer(simulator.NewFleet(st, other), rec)
	ctx := context.Background()
	for _, dev := range []transport.Device{st.Device(), other.Device()} {
		require.NoError(t, tr.Enumerate(ctx, dev))
		_, err := tr.ReadAttribute(ctx, dev, schema.LocatorFor(schema.PH))
		require.NoError(t, err)
	}
	_, err = tr.ReadAttribute(ctx, transport.Device{ID: "ZZ"}, schema.LocatorFor(schema.PH))
	require.Error(t, err)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Record(Event{Op: OpScan}) // ignored after close

	r, err := NewReader(path)
	require.NoError(t, err)
	all, err := r.ReadAll()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Len(t, all, 5)

	read := OpRead
	r, err = NewFilteredReader(path, Filter{DeviceID: "BB", Op: &read})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "BB", e.DeviceID)
	assert.Equal(t, "ph", e.Namespace)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)

	r2, err := NewFilteredReader(path, Filter{FailedOnly: true})
	require.NoError(t, err)
	defer func() { _ = r2.Close() }()
	failed, err := r2.ReadAll()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "ZZ", failed[0].DeviceID)
}
