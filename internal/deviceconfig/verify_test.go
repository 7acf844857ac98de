package deviceconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/simulator"
)

func fastVerification() *VerificationOptions {
	return &VerificationOptions{
		MaxRetries:    2,
		InitialDelay:  0,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	}
}

func TestDefaultVerificationOptions(t *testing.T) {
	opts := DefaultVerificationOptions()

	if opts.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", opts.MaxRetries)
	}
	if opts.InitialDelay != 500*time.Millisecond {
		t.Errorf("Expected InitialDelay=500ms, got %v", opts.InitialDelay)
	}
	if opts.RetryDelay != 1*time.Second {
		t.Errorf("Expected RetryDelay=1s, got %v", opts.RetryDelay)
	}
	if !opts.UseExponentialBackoff {
		t.Error("Expected UseExponentialBackoff=true")
	}
	if opts.MaxRetryDelay != 5*time.Second {
		t.Errorf("Expected MaxRetryDelay=5s, got %v", opts.MaxRetryDelay)
	}
}

func TestWriteAndVerify_Success(t *testing.T) {
	s, st := newTestSession(t)

	result := s.WriteAndVerify(context.Background(), schema.LoRaWAN, validLoRaWAN(), fastVerification())
	if !result.Success {
		t.Fatalf("expected success, got %v (mismatches %v)", result.Error, result.Mismatches)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if st.Writes() != 1 {
		t.Errorf("Writes = %d, want 1", st.Writes())
	}
}

func TestWriteAndVerify_Mismatch(t *testing.T) {
	s, st := newTestSession(t)
	st.SetFaults(simulator.Faults{DropWrites: true})

	raw := map[string]string{"initialized": "true", "sleep_time": "300", "deviceId": "D", "stationId": "S"}
	result := s.WriteAndVerify(context.Background(), schema.System, raw, fastVerification())

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if !IsVerificationError(result.Error) {
		t.Errorf("expected verification error, got %v", result.Error)
	}
	if st.Writes() != 1 {
		t.Errorf("the write must not be repeated, got %d writes", st.Writes())
	}
	if len(result.Mismatches) == 0 {
		t.Error("expected mismatches")
	}
}

func TestWriteAndVerify_ReadErrorsRetried(t *testing.T) {
	s, st := newTestSession(t)

	p, err := s.Section(schema.PH).Prepare(map[string]string{"ph_t1": "4"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Section(schema.PH).Send(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	st.SetFaults(simulator.Faults{ReadErr: errors.New("link busy")})
	result := s.Section(schema.PH).Verify(context.Background(), p, fastVerification())
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if !IsTransportError(result.Error) {
		t.Errorf("expected transport error, got %v", result.Error)
	}
}

func TestWriteAndVerify_ValidationFailure(t *testing.T) {
	s, st := newTestSession(t)

	result := s.WriteAndVerify(context.Background(), schema.LoRaWAN, map[string]string{"devAddr": "1"}, fastVerification())
	if !IsValidationError(result.Error) {
		t.Errorf("expected validation error, got %v", result.Error)
	}
	if result.Attempts != 0 || st.Writes() != 0 {
		t.Error("nothing should be sent or verified")
	}
}

func TestVerify_ContextCancelled(t *testing.T) {
	s, _ := newTestSession(t)
	p, err := s.Section(schema.PH).Prepare(nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := s.Section(schema.PH).Verify(ctx, p, &VerificationOptions{InitialDelay: time.Hour})
	if !errors.Is(result.Error, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.Error)
	}
}

func TestCompareSection(t *testing.T) {
	expected := schema.NewSection(schema.LoRaWAN)
	expected.Set("devAddr", "0x00BFE104")
	expected.Set("fNwkSIntKey", FormatKey(testKey))

	actual := schema.NewSection(schema.LoRaWAN)
	actual.Set("devAddr", "00BFE104")
	actual.Set("fNwkSIntKey", testKey)

	if m := CompareSection(expected, actual); len(m) != 0 {
		t.Errorf("hex forms should compare equal, got %v", m)
	}

	actual.Set("fNwkSIntKey", "00000000000000000000000000000000")
	m := CompareSection(expected, actual)
	if len(m) != 1 || m[0] != "fNwkSIntKey: value differs" {
		t.Errorf("secret mismatch should hide values, got %v", m)
	}

	floats := schema.NewSection(schema.PH)
	floats.Set("ph_v1", 0.1+0.2)
	other := schema.NewSection(schema.PH)
	other.Set("ph_v1", 0.3)
	if m := CompareSection(floats, other); len(m) != 0 {
		t.Errorf("floats within tolerance should match, got %v", m)
	}

	missing := schema.NewSection(schema.PH)
	if m := CompareSection(floats, missing); len(m) != 1 || m[0] != "ph_v1: missing on device" {
		t.Errorf("got %v", m)
	}
}

func TestFormatMismatches(t *testing.T) {
	if got := formatMismatches(nil); got != "none" {
		t.Errorf("got %q", got)
	}
	if got := formatMismatches([]string{"a"}); got != "a" {
		t.Errorf("got %q", got)
	}
	if got := formatMismatches([]string{"a", "b"}); got != "2 mismatches: a; b" {
		t.Errorf("got %q", got)
	}
}
