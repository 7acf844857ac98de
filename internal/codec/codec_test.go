package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func wrap(s string) []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte(s)))
}

func TestEncode(t *testing.T) {
	doc := Document{
		Namespace: "system",
		Fields: []Field{
			{Key: "initialized", Value: true},
			{Key: "sleep_time", Value: int64(60)},
			{Key: "deviceId", Value: "D-1"},
			{Key: "stationId", Value: "<st&1>"},
		},
	}

	got, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := "eyJzeXN0ZW0iOnsiaW5pdGlhbGl6ZWQiOnRydWUsInNsZWVwX3RpbWUiOjYwLCJkZXZpY2VJZCI6IkQtMSIsInN0YXRpb25JZCI6IjxzdCYxPiJ9fQ=="
	if string(got) != want {
		t.Errorf("Encode() = %s\nwant      %s", got, want)
	}
}

func TestMarshalKeepsFieldOrder(t *testing.T) {
	doc := Document{Namespace: "lorawan"}
	doc.Set("devAddr", "0x00BFE104")
	doc.Set("fNwkSIntKey", "2B,7E")
	doc.Set("appSKey", "AA")

	got, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"lorawan":{"devAddr":"0x00BFE104","fNwkSIntKey":"2B,7E","appSKey":"AA"}}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestMarshalFloats(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{float64(25), `{"ph":{"x":25}}`},
		{1.5, `{"ph":{"x":1.5}}`},
		{-0.001, `{"ph":{"x":-0.001}}`},
		{int64(-3), `{"ph":{"x":-3}}`},
		{nil, `{"ph":{"x":null}}`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := Marshal(Document{Namespace: "ph", Fields: []Field{{Key: "x", Value: tt.v}}})
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	doc := Document{Namespace: "cond", Fields: []Field{
		{Key: "c_ct", Value: 25.0},
		{Key: "c_cc", Value: 0.02},
	}}

	first, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := Encode(doc)
		if string(again) != string(first) {
			t.Fatalf("Encode not deterministic: %s vs %s", first, again)
		}
	}
}

func TestDecode(t *testing.T) {
	data := []byte("eyJzeXN0ZW0iOnsiaW5pdGlhbGl6ZWQiOnRydWUsInNsZWVwX3RpbWUiOjYwLCJkZXZpY2VJZCI6IkQtMSIsInN0YXRpb25JZCI6IjxzdCYxPiJ9fQ==")

	doc, err := Decode(data, "system")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if doc.Namespace != "system" {
		t.Errorf("Namespace = %q", doc.Namespace)
	}
	keys := doc.Keys()
	want := []string{"initialized", "sleep_time", "deviceId", "stationId"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %s, want %s", i, keys[i], want[i])
		}
	}

	if v, _ := doc.Get("initialized"); v != true {
		t.Errorf("initialized = %v", v)
	}
	if v, _ := doc.Get("sleep_time"); v != json.Number("60") {
		t.Errorf("sleep_time = %#v, want json.Number(60)", v)
	}
	if v, _ := doc.Get("stationId"); v != "<st&1>" {
		t.Errorf("stationId = %v", v)
	}
}

func TestDecodeUnpadded(t *testing.T) {
	doc, err := Decode([]byte("eyJwaCI6eyJwaF92MSI6MS41fX0"), "ph")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v, _ := doc.Get("ph_v1"); v != json.Number("1.5") {
		t.Errorf("ph_v1 = %#v", v)
	}
}

func TestDecodeMissingFieldsAreAbsent(t *testing.T) {
	doc, err := Decode(wrap(`{"lorawan":{}}`), "lorawan")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := doc.Get("devAddr"); ok {
		t.Error("devAddr should be absent")
	}
}

func TestDecodeDuplicateKeyKeepsLast(t *testing.T) {
	doc, err := Decode(wrap(`{"ph":{"ph_v1":1,"ph_v1":2}}`), "ph")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(doc.Fields) != 1 {
		t.Fatalf("Fields = %v", doc.Fields)
	}
	if v, _ := doc.Get("ph_v1"); v != json.Number("2") {
		t.Errorf("ph_v1 = %v, want 2", v)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		ns       string
		sentinel error
		kind     DecodeErrorKind
	}{
		{"Not base64", []byte("%%%not-base64%%%"), "ph", ErrMalformed, KindMalformed},
		{"Empty payload", []byte(""), "ph", ErrNotStructured, KindNotStructured},
		{"Not JSON", []byte("bm90IGpzb24="), "ph", ErrNotStructured, KindNotStructured},
		{"Array", []byte("WzEsMl0="), "ph", ErrNotStructured, KindNotStructured},
		{"Null document", wrap("null"), "ph", ErrNotStructured, KindNotStructured},
		{"Trailing garbage", wrap(`{"ph":{}} x`), "ph", ErrNotStructured, KindNotStructured},
		{"Namespace missing", wrap(`{"cond":{"c_ct":1}}`), "ph", ErrSchemaMismatch, KindSchemaMismatch},
		{"Namespace null", []byte("eyJwaCI6bnVsbH0="), "ph", ErrSchemaMismatch, KindSchemaMismatch},
		{"Namespace is number", wrap(`{"ph":5}`), "ph", ErrSchemaMismatch, KindSchemaMismatch},
		{"Namespace is array", wrap(`{"ph":[1]}`), "ph", ErrSchemaMismatch, KindSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, tt.ns)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}

			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if decErr.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", decErr.Kind, tt.kind)
			}
			if decErr.Namespace != tt.ns {
				t.Errorf("Namespace = %q, want %q", decErr.Namespace, tt.ns)
			}
		})
	}
}

func TestDecodeErrorDoesNotMatchOtherSentinels(t *testing.T) {
	_, err := Decode([]byte("bm90IGpzb24="), "ph")
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("NotStructured error matched a different sentinel: %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := Document{Namespace: "sensors", Fields: []Field{
		{Key: "id", Value: "S1"},
		{Key: "t", Value: "ph"},
		{Key: "e", Value: false},
	}}

	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(data, "sensors")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(back.Fields) != len(doc.Fields) {
		t.Fatalf("got %d fields, want %d", len(back.Fields), len(doc.Fields))
	}
	for i, f := range doc.Fields {
		if back.Fields[i].Key != f.Key || back.Fields[i].Value != f.Value {
			t.Errorf("field %d = %#v, want %#v", i, back.Fields[i], f)
		}
	}
}
