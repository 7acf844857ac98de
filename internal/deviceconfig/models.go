package deviceconfig

import (
	"strconv"

	"github.com/stationlink/stationcfg/internal/schema"
)

// Record is a typed view of one namespace.
type Record interface {
	// Namespace returns the section the record belongs to.
	Namespace() schema.Namespace
	// Texts returns the writable fields as raw text for a write.
	Texts() map[string]string
}

// recordPtr constrains P to a pointer to a record type that can be
// populated from a typed section.
type recordPtr[T any] interface {
	*T
	Record
	load(sec *schema.Section)
}

// RecordFromSection converts a typed section into its record. Absent
// fields keep their zero value.
func RecordFromSection[T any, P recordPtr[T]](sec *schema.Section) *T {
	rec := P(new(T))
	rec.load(sec)
	return (*T)(rec)
}

// SystemConfig is the system section
type SystemConfig struct {
	Initialized bool   `json:"initialized"`
	SleepTime   int64  `json:"sleep_time"`
	DeviceID    string `json:"deviceId"`
	StationID   string `json:"stationId"`
}

func (c *SystemConfig) Namespace() schema.Namespace { return schema.System }

func (c *SystemConfig) Texts() map[string]string {
	return map[string]string{
		"initialized": strconv.FormatBool(c.Initialized),
		"sleep_time":  strconv.FormatInt(c.SleepTime, 10),
		"deviceId":    c.DeviceID,
		"stationId":   c.StationID,
	}
}

func (c *SystemConfig) load(sec *schema.Section) {
	c.Initialized, _ = sec.Bool("initialized")
	c.SleepTime, _ = sec.Int("sleep_time")
	c.DeviceID, _ = sec.String("deviceId")
	c.StationID, _ = sec.String("stationId")
}

// ThermistorTable holds three temperature/resistance calibration points
type ThermistorTable struct {
	T1 float64
	R1 float64
	T2 float64
	R2 float64
	T3 float64
	R3 float64
}

func (t *ThermistorTable) texts(prefix string) map[string]string {
	return map[string]string{
		prefix + "_t1": formatFloat(t.T1),
		prefix + "_r1": formatFloat(t.R1),
		prefix + "_t2": formatFloat(t.T2),
		prefix + "_r2": formatFloat(t.R2),
		prefix + "_t3": formatFloat(t.T3),
		prefix + "_r3": formatFloat(t.R3),
	}
}

func (t *ThermistorTable) load(prefix string, sec *schema.Section) {
	t.T1, _ = sec.Float(prefix + "_t1")
	t.R1, _ = sec.Float(prefix + "_r1")
	t.T2, _ = sec.Float(prefix + "_t2")
	t.R2, _ = sec.Float(prefix + "_r2")
	t.T3, _ = sec.Float(prefix + "_t3")
	t.R3, _ = sec.Float(prefix + "_r3")
}

// NTC100KConfig is the 100k thermistor calibration section
type NTC100KConfig struct {
	ThermistorTable
}

func (c *NTC100KConfig) Namespace() schema.Namespace { return schema.NTC100K }
func (c *NTC100KConfig) Texts() map[string]string    { return c.texts("n100k") }
func (c *NTC100KConfig) load(sec *schema.Section)    { c.ThermistorTable.load("n100k", sec) }

// NTC10KConfig is the 10k thermistor calibration section
type NTC10KConfig struct {
	ThermistorTable
}

func (c *NTC10KConfig) Namespace() schema.Namespace { return schema.NTC10K }
func (c *NTC10KConfig) Texts() map[string]string    { return c.texts("n10k") }
func (c *NTC10KConfig) load(sec *schema.Section)    { c.ThermistorTable.load("n10k", sec) }

// ConductivityConfig is the conductivity calibration section
type ConductivityConfig struct {
	CalibrationTemp  float64 `json:"c_ct"`
	CompensationCoef float64 `json:"c_cc"`
	V1               float64 `json:"c_v1"`
	T1               float64 `json:"c_t1"`
	V2               float64 `json:"c_v2"`
	T2               float64 `json:"c_t2"`
	V3               float64 `json:"c_v3"`
	T3               float64 `json:"c_t3"`
}

func (c *ConductivityConfig) Namespace() schema.Namespace { return schema.Conductivity }

func (c *ConductivityConfig) Texts() map[string]string {
	return map[string]string{
		"c_ct": formatFloat(c.CalibrationTemp),
		"c_cc": formatFloat(c.CompensationCoef),
		"c_v1": formatFloat(c.V1),
		"c_t1": formatFloat(c.T1),
		"c_v2": formatFloat(c.V2),
		"c_t2": formatFloat(c.T2),
		"c_v3": formatFloat(c.V3),
		"c_t3": formatFloat(c.T3),
	}
}

func (c *ConductivityConfig) load(sec *schema.Section) {
	c.CalibrationTemp, _ = sec.Float("c_ct")
	c.CompensationCoef, _ = sec.Float("c_cc")
	c.V1, _ = sec.Float("c_v1")
	c.T1, _ = sec.Float("c_t1")
	c.V2, _ = sec.Float("c_v2")
	c.T2, _ = sec.Float("c_t2")
	c.V3, _ = sec.Float("c_v3")
	c.T3, _ = sec.Float("c_t3")
}

// PHConfig is the pH calibration section
type PHConfig struct {
	V1 float64 `json:"ph_v1"`
	T1 float64 `json:"ph_t1"`
	V2 float64 `json:"ph_v2"`
	T2 float64 `json:"ph_t2"`
	V3 float64 `json:"ph_v3"`
	T3 float64 `json:"ph_t3"`
}

func (c *PHConfig) Namespace() schema.Namespace { return schema.PH }

func (c *PHConfig) Texts() map[string]string {
	return map[string]string{
		"ph_v1": formatFloat(c.V1),
		"ph_t1": formatFloat(c.T1),
		"ph_v2": formatFloat(c.V2),
		"ph_t2": formatFloat(c.T2),
		"ph_v3": formatFloat(c.V3),
		"ph_t3": formatFloat(c.T3),
	}
}

func (c *PHConfig) load(sec *schema.Section) {
	c.V1, _ = sec.Float("ph_v1")
	c.T1, _ = sec.Float("ph_t1")
	c.V2, _ = sec.Float("ph_v2")
	c.T2, _ = sec.Float("ph_t2")
	c.V3, _ = sec.Float("ph_v3")
	c.T3, _ = sec.Float("ph_t3")
}

// SensorConfig is the sensor metadata section. Timestamp and Value are
// reported by the station and never written.
type SensorConfig struct {
	ID        string  `json:"id"`
	Type      string  `json:"t"`
	Enabled   bool    `json:"e"`
	Timestamp int64   `json:"ts"`
	Value     float64 `json:"v"`
}

func (c *SensorConfig) Namespace() schema.Namespace { return schema.Sensors }

func (c *SensorConfig) Texts() map[string]string {
	return map[string]string{
		"id": c.ID,
		"t":  c.Type,
		"e":  strconv.FormatBool(c.Enabled),
	}
}

func (c *SensorConfig) load(sec *schema.Section) {
	c.ID, _ = sec.String("id")
	c.Type, _ = sec.String("t")
	c.Enabled, _ = sec.Bool("e")
	c.Timestamp, _ = sec.Int("ts")
	c.Value, _ = sec.Float("v")
}

// LoRaWANConfig holds ABP join parameters. Values may be in any accepted
// input form; writes canonicalize them.
type LoRaWANConfig struct {
	DevAddr     string `json:"devAddr" csv:"dev_addr"`
	FNwkSIntKey string `json:"fNwkSIntKey" csv:"fnwk_sint_key"`
	SNwkSIntKey string `json:"sNwkSIntKey" csv:"snwk_sint_key"`
	NwkSEncKey  string `json:"nwkSEncKey" csv:"nwk_senc_key"`
	AppSKey     string `json:"appSKey" csv:"app_skey"`
}

func (c *LoRaWANConfig) Namespace() schema.Namespace { return schema.LoRaWAN }

func (c *LoRaWANConfig) Texts() map[string]string {
	return map[string]string{
		"devAddr":     c.DevAddr,
		"fNwkSIntKey": c.FNwkSIntKey,
		"sNwkSIntKey": c.SNwkSIntKey,
		"nwkSEncKey":  c.NwkSEncKey,
		"appSKey":     c.AppSKey,
	}
}

func (c *LoRaWANConfig) load(sec *schema.Section) {
	c.DevAddr, _ = sec.String("devAddr")
	c.FNwkSIntKey, _ = sec.String("fNwkSIntKey")
	c.SNwkSIntKey, _ = sec.String("sNwkSIntKey")
	c.NwkSEncKey, _ = sec.String("nwkSEncKey")
	c.AppSKey, _ = sec.String("appSKey")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
