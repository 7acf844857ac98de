package deviceconfig

import (
	"strings"
	"testing"

	"github.com/stationlink/stationcfg/internal/schema"
)

const testKey = "2B7E151628AED2A6ABF7158809CF4F3C"

func validLoRaWAN() map[string]string {
	return map[string]string{
		"devAddr":     "00BFE104",
		"fNwkSIntKey": testKey,
		"sNwkSIntKey": testKey,
		"nwkSEncKey":  testKey,
		"appSKey":     testKey,
	}
}

// TestValidateDevAddr tests device address validation on canonical text
func TestValidateDevAddr(t *testing.T) {
	tests := []struct {
		name    string
		devAddr string
		wantErr bool
	}{
		{"Valid: canonical", "0x00BFE104", false},
		{"Valid: no prefix", "00bfe104", false},
		{"Invalid: too short", "0x12", true},
		{"Invalid: too long", "0x00BFE1040", true},
		{"Invalid: non-hex", "0x00BFE10G", true},
		{"Invalid: empty", "", true},
		{"Invalid: uppercase prefix", "0X00BFE104", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDevAddr(tt.devAddr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDevAddr(%q) error = %v, wantErr %v", tt.devAddr, err, tt.wantErr)
			}
		})
	}
}

// TestValidateKey tests 128-bit key validation
func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"Valid: plain", testKey, false},
		{"Valid: lowercase", strings.ToLower(testKey), false},
		{"Valid: comma grouped", FormatKey(testKey), false},
		{"Valid: spaced", "2b7e1516 28aed2a6 abf71588 09cf4f3c", false},
		{"Invalid: short", "2B7E1516", true},
		{"Invalid: 31 digits", testKey[:31], true},
		{"Invalid: non-hex", strings.Replace(testKey, "2", "Z", 1), true},
		{"Invalid: empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey("appSKey", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && !strings.HasPrefix(err.Error(), "appSKey") {
				t.Errorf("reason should name the key, got %q", err.Error())
			}
		})
	}
}

// TestValidateFields_LoRaWAN checks that every offending field is reported
func TestValidateFields_LoRaWAN(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		violations := ValidateFields(schema.LoRaWAN, Canonicalize(schema.LoRaWAN, validLoRaWAN()), false)
		if len(violations) != 0 {
			t.Errorf("expected no violations, got %v", violations)
		}
	})

	t.Run("bad devAddr and key together", func(t *testing.T) {
		raw := validLoRaWAN()
		raw["devAddr"] = "12"
		raw["sNwkSIntKey"] = "ABCD"
		violations := ValidateFields(schema.LoRaWAN, Canonicalize(schema.LoRaWAN, raw), false)
		if len(violations) != 2 {
			t.Fatalf("expected 2 violations, got %v", violations)
		}
		if _, ok := violations["devAddr"]; !ok {
			t.Error("devAddr should be reported")
		}
		if _, ok := violations["sNwkSIntKey"]; !ok {
			t.Error("sNwkSIntKey should be reported")
		}
	})

	t.Run("missing keys are empty", func(t *testing.T) {
		violations := ValidateFields(schema.LoRaWAN, Canonicalize(schema.LoRaWAN, nil), false)
		if len(violations) != 5 {
			t.Errorf("expected all 5 fields reported, got %v", violations)
		}
	})
}

// TestValidateFields_Keys checks unknown and read-only keys
func TestValidateFields_Keys(t *testing.T) {
	raw := map[string]string{"id": "s1", "t": "ph", "e": "true", "ts": "5", "bogus": "1"}
	violations := ValidateFields(schema.Sensors, Canonicalize(schema.Sensors, raw), false)

	if got := violations["ts"]; got != "ts: field is read-only" {
		t.Errorf("ts violation = %q", got)
	}
	if got := violations["bogus"]; got != "bogus: unknown field" {
		t.Errorf("bogus violation = %q", got)
	}
	if len(violations) != 2 {
		t.Errorf("expected 2 violations, got %v", violations)
	}
}

// TestValidateFields_Strict checks numeric and boolean parsing in strict mode
func TestValidateFields_Strict(t *testing.T) {
	tests := []struct {
		name   string
		ns     schema.Namespace
		raw    map[string]string
		key    string
		strict bool
		want   string
	}{
		{
			name: "lenient int accepted",
			ns:   schema.System,
			raw:  map[string]string{"initialized": "true", "sleep_time": "12abc"},
		},
		{
			name:   "strict int rejected",
			ns:     schema.System,
			raw:    map[string]string{"initialized": "true", "sleep_time": "12abc"},
			key:    "sleep_time",
			strict: true,
			want:   "sleep_time must be an integer",
		},
		{
			name:   "strict bool rejected",
			ns:     schema.System,
			raw:    map[string]string{"initialized": "maybe", "sleep_time": "60"},
			key:    "initialized",
			strict: true,
			want:   "initialized must be true or false",
		},
		{
			name:   "strict float rejected",
			ns:     schema.PH,
			raw:    map[string]string{"ph_v1": "1.5V", "ph_t1": "4", "ph_v2": "0", "ph_t2": "7", "ph_v3": "0", "ph_t3": "10"},
			key:    "ph_v1",
			strict: true,
			want:   "ph_v1 must be a number",
		},
		{
			name:   "strict float accepted",
			ns:     schema.PH,
			raw:    map[string]string{"ph_v1": "1.5", "ph_t1": "4", "ph_v2": "-0.25", "ph_t2": "7", "ph_v3": "1e-3", "ph_t3": "10"},
			strict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateFields(tt.ns, Canonicalize(tt.ns, tt.raw), tt.strict)
			if tt.key == "" {
				if len(violations) != 0 {
					t.Errorf("expected no violations, got %v", violations)
				}
				return
			}
			if got := violations[tt.key]; got != tt.want {
				t.Errorf("violation[%s] = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

// TestValidateRecord tests record-level validation through the write path
func TestValidateRecord(t *testing.T) {
	cfg := &LoRaWANConfig{
		DevAddr:     "00bfe104",
		FNwkSIntKey: testKey,
		SNwkSIntKey: "2b 7e 15 16 28 ae d2 a6 ab f7 15 88 09 cf 4f 3c",
		NwkSEncKey:  testKey,
		AppSKey:     "short",
	}
	errs := ValidateRecord(cfg, false)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if fe, ok := errs[0].(*FieldError); !ok || fe.Key != "appSKey" {
		t.Errorf("expected FieldError for appSKey, got %#v", errs[0])
	}

	errs = ValidateRecord(&LoRaWANConfig{}, false)
	keys := make([]string, len(errs))
	for i, err := range errs {
		keys[i] = err.(*FieldError).Key
	}
	want := []string{"devAddr", "fNwkSIntKey", "sNwkSIntKey", "nwkSEncKey", "appSKey"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("errors out of schema order: %v", keys)
	}
}

type textRecord struct {
	ns    schema.Namespace
	texts map[string]string
}

func (r textRecord) Namespace() schema.Namespace { return r.ns }
func (r textRecord) Texts() map[string]string    { return r.texts }

// TestValidateRecordMatchesValidateFields tests that records and raw writes
// share one validation path
func TestValidateRecordMatchesValidateFields(t *testing.T) {
	cfg := textRecord{ns: schema.System, texts: map[string]string{
		"initialized": "maybe",
		"sleep_time":  "abc",
		"deviceId":    "D-1",
		"stationId":   "S-1",
	}}
	if errs := ValidateRecord(cfg, false); len(errs) != 0 {
		t.Errorf("lenient record validation failed: %v", errs)
	}

	errs := ValidateRecord(cfg, true)
	violations := ValidateFields(schema.System, Canonicalize(schema.System, cfg.Texts()), true)
	if len(errs) != 2 || len(violations) != 2 {
		t.Fatalf("ValidateRecord returned %d errors, ValidateFields %d", len(errs), len(violations))
	}
	for _, err := range errs {
		fe := err.(*FieldError)
		if violations[fe.Key] != fe.Reason {
			t.Errorf("%s: got %q, want %q", fe.Key, fe.Reason, violations[fe.Key])
		}
	}
}
