package deviceconfig

import (
	"testing"

	"github.com/stationlink/stationcfg/internal/schema"
)

func sampleSystem() *schema.Section {
	sec := schema.NewSection(schema.System)
	sec.Set("initialized", true)
	sec.Set("sleep_time", int64(60))
	sec.Set("deviceId", "D-1")
	sec.Set("stationId", "ST-1")
	return sec
}

// TestNewChangeBuilder tests builder initialization from a current section
func TestNewChangeBuilder(t *testing.T) {
	t.Run("with current section", func(t *testing.T) {
		b := NewChangeBuilder(sampleSystem())
		if b.HasChanges() {
			t.Error("new builder should have no changes")
		}
		raw, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		want := map[string]string{"initialized": "true", "sleep_time": "60", "deviceId": "D-1", "stationId": "ST-1"}
		for k, v := range want {
			if raw[k] != v {
				t.Errorf("raw[%s] = %q, want %q", k, raw[k], v)
			}
		}
	})

	t.Run("read-only fields are not carried", func(t *testing.T) {
		sec := schema.NewSection(schema.Sensors)
		sec.Set("id", "s1")
		sec.Set("ts", int64(1700000000))
		sec.Set("v", 7.01)

		raw, err := NewChangeBuilder(sec).Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if _, ok := raw["ts"]; ok {
			t.Error("ts should not be part of the write")
		}
		if raw["id"] != "s1" {
			t.Errorf("id = %q", raw["id"])
		}
	})

	t.Run("without baseline", func(t *testing.T) {
		raw, err := NewChangeBuilderFor(schema.PH).SetFloat("ph_v1", 2.5).Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if len(raw) != 1 || raw["ph_v1"] != "2.5" {
			t.Errorf("raw = %v", raw)
		}
	})
}

// TestTypedSetters tests the typed setter helpers
func TestTypedSetters(t *testing.T) {
	b := NewChangeBuilderFor(schema.System).
		SetBool("initialized", false).
		SetInt("sleep_time", 900).
		Set("stationId", "ST-9")

	changes := b.Changes()
	if changes["initialized"] != "false" || changes["sleep_time"] != "900" || changes["stationId"] != "ST-9" {
		t.Errorf("Changes() = %v", changes)
	}
}

// TestHasChanges tests change detection against the baseline
func TestHasChanges(t *testing.T) {
	b := NewChangeBuilder(sampleSystem())

	b.SetInt("sleep_time", 60)
	if b.HasChanges() {
		t.Error("setting the current value is not a change")
	}

	b.SetInt("sleep_time", 61)
	if !b.HasChanges() {
		t.Error("expected a change")
	}
}

// TestBuildRejectsUnknownAndReadOnly tests structural checks in Build
func TestBuildRejectsUnknownAndReadOnly(t *testing.T) {
	_, err := NewChangeBuilderFor(schema.Sensors).
		Set("ts", "1").
		Set("colour", "red").
		Build()
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	v := Violations(err)
	if v["ts"] != "ts: field is read-only" {
		t.Errorf("ts = %q", v["ts"])
	}
	if v["colour"] != "colour: unknown field" {
		t.Errorf("colour = %q", v["colour"])
	}
}

// TestValidate tests full validation of merged values
func TestValidate(t *testing.T) {
	lora := &LoRaWANConfig{
		DevAddr:     "00bfe104",
		FNwkSIntKey: testKey,
		SNwkSIntKey: testKey,
		NwkSEncKey:  testKey,
		AppSKey:     testKey,
	}

	b := NewChangeBuilderFor(schema.LoRaWAN).SetRecord(lora)
	if err := b.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	b.Set("appSKey", "00")
	err := b.Validate()
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := Violations(err)["appSKey"]; !ok {
		t.Error("appSKey should be reported")
	}
}

// TestSetRecordWrongNamespace tests that a record for another section fails Build
func TestSetRecordWrongNamespace(t *testing.T) {
	b := NewChangeBuilderFor(schema.System).SetRecord(&PHConfig{V1: 1})
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error")
	}

	b.Reset()
	if _, err := b.Build(); err != nil {
		t.Errorf("Reset should clear the error, got %v", err)
	}
}

// TestReset tests discarding changes
func TestReset(t *testing.T) {
	b := NewChangeBuilder(sampleSystem()).SetInt("sleep_time", 5)
	b.Reset()
	if b.HasChanges() {
		t.Error("Reset should discard changes")
	}
	raw, _ := b.Build()
	if raw["sleep_time"] != "60" {
		t.Errorf("baseline should survive Reset, got %q", raw["sleep_time"])
	}
}
