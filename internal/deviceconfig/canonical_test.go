package deviceconfig

import (
	"encoding/json"
	"testing"
)

func TestFormatDevAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"00bfe104", "0x00BFE104"},
		{"0x00bfe104", "0x00BFE104"},
		{"0X00BFE104", "0x00BFE104"},
		{"00BFE104", "0x00BFE104"},
		{" 12 ", "0x12"},
		{"", "0x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FormatDevAddr(tt.in); got != tt.want {
				t.Errorf("FormatDevAddr(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		once := FormatDevAddr("00BFE104")
		if twice := FormatDevAddr(once); twice != once {
			t.Errorf("FormatDevAddr not idempotent: %q -> %q", once, twice)
		}
	})
}

func TestFormatKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "2b7e1516", "2B,7E,15,16"},
		{"already grouped", "2B,7E,15,16", "2B,7E,15,16"},
		{"spaces", "2b 7e\t15 16", "2B,7E,15,16"},
		{"odd length keeps last digit", "ABC", "AB,C"},
		{"empty", "", ""},
		{"only separators", " , ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatKey(tt.in); got != tt.want {
				t.Errorf("FormatKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("full key", func(t *testing.T) {
		want := "2B,7E,15,16,28,AE,D2,A6,AB,F7,15,88,09,CF,4F,3C"
		if got := FormatKey(testKey); got != want {
			t.Errorf("FormatKey = %q, want %q", got, want)
		}
	})
}

func TestDevAddrFromDevice(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{"number", json.Number("12574980"), "00BFE104", true},
		{"zero", json.Number("0"), "00000000", true},
		{"max uint32", json.Number("4294967295"), "FFFFFFFF", true},
		{"negative", json.Number("-1"), "", false},
		{"too large", json.Number("4294967296"), "", false},
		{"fractional", json.Number("1.5"), "", false},
		{"prefixed string", "0x00bfe104", "00BFE104", true},
		{"short hex string", "bfe104", "00BFE104", true},
		{"non-hex string kept", "zz", "ZZ", true},
		{"bool", true, "", false},
		{"float64", float64(255), "000000FF", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DevAddrFromDevice(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("DevAddrFromDevice(%v) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestKeyFromDevice(t *testing.T) {
	got, ok := KeyFromDevice("2b,7e,15,16")
	if !ok || got != "2B7E1516" {
		t.Errorf("KeyFromDevice = %q, %v", got, ok)
	}
	if _, ok := KeyFromDevice(json.Number("12")); ok {
		t.Error("numeric key should be absent")
	}
}

func TestParseLenient(t *testing.T) {
	intTests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"60", 60, true},
		{" -5 ", -5, true},
		{"12abc", 12, true},
		{"7.9", 7, true},
		{"abc", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tt := range intTests {
		got, ok := ParseIntLenient(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseIntLenient(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}

	floatTests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"1.5", 1.5, true},
		{"1.5V", 1.5, true},
		{".25", 0.25, true},
		{"-2e3", -2000, true},
		{"1e999", 0, false},
		{"NaN", 0, false},
		{"x", 0, false},
	}
	for _, tt := range floatTests {
		got, ok := ParseFloatLenient(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseFloatLenient(%q) = %g, %v; want %g, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}

	for _, in := range []string{"true", "TRUE", "1", "on", "yes"} {
		if v, ok := ParseBoolText(in); !v || !ok {
			t.Errorf("ParseBoolText(%q) = %v, %v", in, v, ok)
		}
	}
	for _, in := range []string{"false", "0", "off", "No"} {
		if v, ok := ParseBoolText(in); v || !ok {
			t.Errorf("ParseBoolText(%q) = %v, %v", in, v, ok)
		}
	}
	if _, ok := ParseBoolText("maybe"); ok {
		t.Error("ParseBoolText(maybe) should fail")
	}
}
