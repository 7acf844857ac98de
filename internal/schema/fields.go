package schema

import "fmt"

// FieldType is the logical type of a section field.
type FieldType int

const (
	Bool FieldType = iota
	Int
	Float
	Text
	// Hex8 is an 8-digit hexadecimal device address.
	Hex8
	// Hex32 is a 32-digit hexadecimal (128-bit) key.
	Hex32
)

// String returns the type name.
func (t FieldType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case Text:
		return "text"
	case Hex8:
		return "hex8"
	case Hex32:
		return "hex32"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field describes one key inside a namespace.
type Field struct {
	Key   string
	Type  FieldType
	Label string
	// ReadOnly fields are reported by the device and never written.
	ReadOnly bool
	// Secret fields are masked in human-readable output.
	Secret bool
}

// Schema is the ordered field list of a namespace.
type Schema struct {
	Namespace Namespace
	Fields    []Field
}

// Field looks up a field by key.
func (s Schema) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Keys returns every field key in schema order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Writable returns the fields that are sent to the device on write.
func (s Schema) Writable() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !f.ReadOnly {
			out = append(out, f)
		}
	}
	return out
}

// SchemaFor returns the field schema of ns. Unknown namespaces yield an
// empty schema.
func SchemaFor(ns Namespace) Schema {
	e, ok := registry[ns]
	if !ok {
		return Schema{Namespace: ns}
	}
	fields := make([]Field, len(e.fields))
	copy(fields, e.fields)
	return Schema{Namespace: ns, Fields: fields}
}

type entry struct {
	title   string
	locator Locator
	fields  []Field
}

var registry = map[Namespace]entry{
	System: {
		title:   "System",
		locator: Locator{Service: ConfigService, Characteristic: 0x2A37},
		fields: []Field{
			{Key: "initialized", Type: Bool, Label: "Initialized"},
			{Key: "sleep_time", Type: Int, Label: "Sleep time (s)"},
			{Key: "deviceId", Type: Text, Label: "Device ID"},
			{Key: "stationId", Type: Text, Label: "Station ID"},
		},
	},
	NTC100K: {
		title:   "NTC 100K",
		locator: Locator{Service: ConfigService, Characteristic: 0x2A38},
		fields:  thermistorFields("n100k"),
	},
	NTC10K: {
		title:   "NTC 10K",
		locator: Locator{Service: ConfigService, Characteristic: 0x2A39},
		fields:  thermistorFields("n10k"),
	},
	Conductivity: {
		title:   "Conductivity",
		locator: Locator{Service: ConfigService, Characteristic: 0x2A3C},
		fields: []Field{
			{Key: "c_ct", Type: Float, Label: "Calibration temp (°C)"},
			{Key: "c_cc", Type: Float, Label: "Compensation coef."},
			{Key: "c_v1", Type: Float, Label: "Voltage 1"},
			{Key: "c_t1", Type: Float, Label: "T1"},
			{Key: "c_v2", Type: Float, Label: "Voltage 2"},
			{Key: "c_t2", Type: Float, Label: "T2"},
			{Key: "c_v3", Type: Float, Label: "Voltage 3"},
			{Key: "c_t3", Type: Float, Label: "T3"},
		},
	},
	PH: {
		title:   "pH",
		locator: Locator{Service: ConfigService, Characteristic: 0x2A3B},
		fields: []Field{
			{Key: "ph_v1", Type: Float, Label: "Voltage 1"},
			{Key: "ph_t1", Type: Float, Label: "T1"},
			{Key: "ph_v2", Type: Float, Label: "Voltage 2"},
			{Key: "ph_t2", Type: Float, Label: "T2"},
			{Key: "ph_v3", Type: Float, Label: "Voltage 3"},
			{Key: "ph_t3", Type: Float, Label: "T3"},
		},
	},
	Sensors: {
		title:   "Sensors",
		locator: Locator{Service: ConfigService, Characteristic: 0x2A40},
		fields: []Field{
			{Key: "id", Type: Text, Label: "Sensor ID"},
			{Key: "t", Type: Text, Label: "Sensor type"},
			{Key: "e", Type: Bool, Label: "Enabled"},
			{Key: "ts", Type: Int, Label: "Timestamp", ReadOnly: true},
			{Key: "v", Type: Float, Label: "Value", ReadOnly: true},
		},
	},
	LoRaWAN: {
		title:   "LoRaWAN",
		locator: Locator{Service: ConfigService, Characteristic: 0x2A41},
		fields: []Field{
			{Key: "devAddr", Type: Hex8, Label: "DevAddr (hex)"},
			{Key: "fNwkSIntKey", Type: Hex32, Label: "fNwkSIntKey (hex)", Secret: true},
			{Key: "sNwkSIntKey", Type: Hex32, Label: "sNwkSIntKey (hex)", Secret: true},
			{Key: "nwkSEncKey", Type: Hex32, Label: "nwkSEncKey (hex)", Secret: true},
			{Key: "appSKey", Type: Hex32, Label: "appSKey (hex)", Secret: true},
		},
	},
}

func thermistorFields(prefix string) []Field {
	fields := make([]Field, 0, 6)
	for i := 1; i <= 3; i++ {
		fields = append(fields,
			Field{Key: fmt.Sprintf("%s_t%d", prefix, i), Type: Float, Label: fmt.Sprintf("T%d (°C)", i)},
			Field{Key: fmt.Sprintf("%s_r%d", prefix, i), Type: Float, Label: fmt.Sprintf("R%d (Ω)", i)},
		)
	}
	return fields
}
