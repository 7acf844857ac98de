package simulator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Faults injects failures into a station. Zero value means no faults.
type Faults struct {
	// EnumerateErr fails capability enumeration.
	EnumerateErr error
	// ReadErr fails every attribute read.
	ReadErr error
	// WriteErr fails every attribute write.
	WriteErr error
	// Payloads replaces the read payload of a namespace verbatim.
	Payloads map[schema.Namespace][]byte
	// Delay is applied before every operation.
	Delay time.Duration
	// DropWrites acknowledges writes without storing them.
	DropWrites bool
}

// Station is one simulated sensor station. It behaves like the firmware:
// devAddr is reported as a JSON number, keys are reported in the
// comma-grouped form they were written in, and sensor readings are
// refreshed on every read.
type Station struct {
	device transport.Device

	mu       sync.Mutex
	sections map[schema.Namespace]map[string]any
	hidden   map[schema.Namespace]bool
	faults   Faults
	clock    func() time.Time

	enumerations atomic.Int64
	reads        atomic.Int64
	writes       atomic.Int64
}

// NewStation creates a station with factory defaults.
func NewStation(id, name string) *Station {
	st := &Station{
		device:   transport.Device{ID: id, Name: name, RSSI: -60},
		sections: make(map[schema.Namespace]map[string]any),
		hidden:   make(map[schema.Namespace]bool),
		clock:    time.Now,
	}
	for ns, values := range factoryDefaults(id) {
		st.sections[ns] = values
	}
	return st
}

func factoryDefaults(id string) map[schema.Namespace]map[string]any {
	thermistor := func(prefix string, r1, r2, r3 float64) map[string]any {
		return map[string]any{
			prefix + "_t1": 0.0, prefix + "_r1": r1,
			prefix + "_t2": 25.0, prefix + "_r2": r2,
			prefix + "_t3": 50.0, prefix + "_r3": r3,
		}
	}
	return map[schema.Namespace]map[string]any{
		schema.System: {
			"initialized": false,
			"sleep_time":  int64(60),
			"deviceId":    id,
			"stationId":   "",
		},
		schema.NTC100K: thermistor("n100k", 327240, 100000, 35899),
		schema.NTC10K:  thermistor("n10k", 32650, 10000, 3602),
		schema.Conductivity: {
			"c_ct": 25.0, "c_cc": 0.02,
			"c_v1": 0.0, "c_t1": 0.0,
			"c_v2": 0.0, "c_t2": 0.0,
			"c_v3": 0.0, "c_t3": 0.0,
		},
		schema.PH: {
			"ph_v1": 0.0, "ph_t1": 4.0,
			"ph_v2": 0.0, "ph_t2": 7.0,
			"ph_v3": 0.0, "ph_t3": 10.0,
		},
		schema.Sensors: {
			"id": "s0", "t": "ntc_10k", "e": true,
			"ts": int64(0), "v": 0.0,
		},
		schema.LoRaWAN: {
			"devAddr":     float64(0),
			"fNwkSIntKey": "",
			"sNwkSIntKey": "",
			"nwkSEncKey":  "",
			"appSKey":     "",
		},
	}
}

// Device returns the station's advertised device.
func (st *Station) Device() transport.Device {
	st.mu.Lock()
	defer st.mu.Unlock()
	d := st.device
	d.LastSeen = st.clock()
	return d
}

// SetFaults replaces the injected faults.
func (st *Station) SetFaults(f Faults) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.faults = f
}

// SetClock overrides the clock used for sensor timestamps.
func (st *Station) SetClock(clock func() time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.clock = clock
}

// Hide removes a namespace's attribute from the station.
func (st *Station) Hide(ns schema.Namespace) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.hidden[ns] = true
}

// SetSection replaces the stored values of ns. Values are stored as given
// and reported in JSON form on read.
func (st *Station) SetSection(ns schema.Namespace, values map[string]any) {
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	st.sections[ns] = cp
}

// Section returns a copy of the stored values of ns.
func (st *Station) Section(ns schema.Namespace) map[string]any {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[string]any, len(st.sections[ns]))
	for k, v := range st.sections[ns] {
		out[k] = v
	}
	return out
}

// Enumerations returns how many times enumeration ran.
func (st *Station) Enumerations() int64 { return st.enumerations.Load() }

// Reads returns how many attribute reads were served.
func (st *Station) Reads() int64 { return st.reads.Load() }

// Writes returns how many attribute writes were received.
func (st *Station) Writes() int64 { return st.writes.Load() }

func (st *Station) snapshotFaults() Faults {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.faults
}

func (st *Station) enumerate() error {
	st.enumerations.Add(1)
	return st.snapshotFaults().EnumerateErr
}

func (st *Station) attributes() []schema.Locator {
	st.mu.Lock()
	defer st.mu.Unlock()
	var locs []schema.Locator
	for _, ns := range schema.All() {
		if !st.hidden[ns] {
			locs = append(locs, schema.LocatorFor(ns))
		}
	}
	return locs
}

func (st *Station) lookup(loc schema.Locator) (schema.Namespace, error) {
	ns, ok := schema.NamespaceAt(loc)
	if !ok {
		return "", fmt.Errorf("%s: %w", loc, transport.ErrAttributeNotFound)
	}
	st.mu.Lock()
	hidden := st.hidden[ns]
	st.mu.Unlock()
	if hidden {
		return "", fmt.Errorf("%s: %w", loc, transport.ErrAttributeNotFound)
	}
	return ns, nil
}

func (st *Station) read(loc schema.Locator) ([]byte, error) {
	st.reads.Add(1)
	ns, err := st.lookup(loc)
	if err != nil {
		return nil, err
	}

	f := st.snapshotFaults()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	if p, ok := f.Payloads[ns]; ok {
		return append([]byte(nil), p...), nil
	}

	st.mu.Lock()
	if ns == schema.Sensors {
		st.sections[ns]["ts"] = st.clock().Unix()
	}
	body, err := marshalSection(ns, st.sections[ns])
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(len(body)))
	base64.StdEncoding.Encode(out, body)
	return out, nil
}

func (st *Station) write(loc schema.Locator, payload []byte) error {
	st.writes.Add(1)
	ns, err := st.lookup(loc)
	if err != nil {
		return err
	}

	f := st.snapshotFaults()
	if f.WriteErr != nil {
		return f.WriteErr
	}

	values, err := parseWrite(ns, payload)
	if err != nil {
		logging.Warn("Simulated station rejected write",
			zap.String("device_id", st.device.ID),
			zap.String("namespace", string(ns)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", transport.ErrWriteRejected, err)
	}
	if f.DropWrites {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	current := st.sections[ns]
	for k, v := range values {
		if field, ok := schema.SchemaFor(ns).Field(k); ok && field.ReadOnly {
			continue
		}
		current[k] = v
	}
	return nil
}

// parseWrite decodes a written payload the way the firmware does: the
// top-level object must carry exactly the attribute's namespace.
// devAddr text is stored as the number it denotes.
func parseWrite(ns schema.Namespace, payload []byte) (map[string]any, error) {
	body, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("payload is not base64: %w", err)
	}

	var doc map[string]map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("payload is not a section document: %w", err)
	}
	values, ok := doc[string(ns)]
	if !ok || len(doc) != 1 {
		return nil, fmt.Errorf("payload does not address %s", ns)
	}

	for k, v := range values {
		n, isNum := v.(json.Number)
		switch {
		case k == "devAddr":
			s, _ := v.(string)
			addr, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
			if err != nil {
				return nil, fmt.Errorf("devAddr %q: %w", s, err)
			}
			values[k] = float64(addr)
		case isNum:
			if i, err := n.Int64(); err == nil {
				values[k] = i
			} else if f, err := n.Float64(); err == nil {
				values[k] = f
			}
		}
	}
	return values, nil
}

// marshalSection renders a section in schema order so payloads are stable.
func marshalSection(ns schema.Namespace, values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{%q:{`, string(ns))
	first := true
	emit := func(k string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, "%q:", k)
		buf.Write(b)
		return nil
	}

	seen := make(map[string]bool, len(values))
	for _, f := range schema.SchemaFor(ns).Fields {
		v, ok := values[f.Key]
		if !ok {
			continue
		}
		seen[f.Key] = true
		if err := emit(f.Key, v); err != nil {
			return nil, err
		}
	}
	for k, v := range values {
		if seen[k] {
			continue
		}
		if err := emit(k, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
