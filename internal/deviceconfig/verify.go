package deviceconfig

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
)

// VerificationOptions configures read-back verification after a write
type VerificationOptions struct {
	// MaxRetries is the number of re-reads after the first one
	// Default: 3
	MaxRetries int

	// InitialDelay is the delay before the first read-back, giving the
	// station time to persist the value
	// Default: 500ms
	InitialDelay time.Duration

	// RetryDelay is the delay between read-backs
	// Default: 1s
	RetryDelay time.Duration

	// UseExponentialBackoff doubles RetryDelay after each attempt, up to
	// MaxRetryDelay
	// Default: true
	UseExponentialBackoff bool

	// MaxRetryDelay caps the backoff
	// Default: 5s
	MaxRetryDelay time.Duration
}

// DefaultVerificationOptions returns sensible defaults for verification
func DefaultVerificationOptions() *VerificationOptions {
	return &VerificationOptions{
		MaxRetries:            3,
		InitialDelay:          500 * time.Millisecond,
		RetryDelay:            1 * time.Second,
		UseExponentialBackoff: true,
		MaxRetryDelay:         5 * time.Second,
	}
}

// VerificationResult contains the results of a read-back verification
type VerificationResult struct {
	// Success indicates whether the device reported the written values
	Success bool

	// Attempts is the number of read-backs made
	Attempts int

	// Actual is the last section read from the device
	Actual *schema.Section

	// Mismatches lists the fields that differ from the written values
	Mismatches []string

	// Error is any error that occurred during verification
	Error error
}

// Verify re-reads the section until it matches p or the attempts run out.
// Transport and decode failures during read-back are retried; the write
// itself is never repeated.
func (h *Handle) Verify(ctx context.Context, p *Prepared, opts *VerificationOptions) *VerificationResult {
	if opts == nil {
		opts = DefaultVerificationOptions()
	}
	result := &VerificationResult{}

	if err := sleepContext(ctx, opts.InitialDelay); err != nil {
		result.Error = err
		return result
	}

	delay := opts.RetryDelay
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, delay); err != nil {
				result.Error = err
				return result
			}
			if opts.UseExponentialBackoff {
				delay *= 2
				if delay > opts.MaxRetryDelay {
					delay = opts.MaxRetryDelay
				}
			}
		}
		result.Attempts++

		actual, err := h.Read(ctx)
		if err != nil {
			if IsSessionClosed(err) {
				result.Error = err
				return result
			}
			result.Error = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}
		result.Actual = actual
		result.Mismatches = CompareSection(p.Values, actual)

		if len(result.Mismatches) == 0 {
			result.Success = true
			result.Error = nil
			return result
		}
		logging.Debug("Read-back mismatch",
			zap.String("device_id", h.session.device.ID),
			zap.String("namespace", string(h.ns)),
			zap.Int("attempt", attempt+1),
			zap.Strings("mismatches", result.Mismatches),
		)
		result.Error = NewVerificationError(h.session.device.ID, h.ns, result.Mismatches)
	}
	return result
}

// WriteAndVerify writes raw once and verifies the device reports it back.
func (h *Handle) WriteAndVerify(ctx context.Context, raw map[string]string, opts *VerificationOptions) *VerificationResult {
	p, err := h.Prepare(raw)
	if err != nil {
		return &VerificationResult{Error: err}
	}
	if err := h.Send(ctx, p); err != nil {
		return &VerificationResult{Error: err}
	}
	return h.Verify(ctx, p, opts)
}

// WriteAndVerify writes and verifies one section.
func (s *Session) WriteAndVerify(ctx context.Context, ns schema.Namespace, raw map[string]string, opts *VerificationOptions) *VerificationResult {
	return s.Section(ns).WriteAndVerify(ctx, raw, opts)
}

// CompareSection lists the writable fields of expected that actual does
// not match. Hex fields compare without prefix or separators, floats with
// a small relative tolerance. Secret values are never printed.
func CompareSection(expected, actual *schema.Section) []string {
	var mismatches []string
	for _, f := range schema.SchemaFor(expected.Namespace).Writable() {
		want, ok := expected.Get(f.Key)
		if !ok {
			continue
		}
		got, ok := actual.Get(f.Key)
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing on device", f.Key))
			continue
		}
		if valuesEqual(f.Type, want, got) {
			continue
		}
		if f.Secret {
			mismatches = append(mismatches, fmt.Sprintf("%s: value differs", f.Key))
			continue
		}
		mismatches = append(mismatches, fmt.Sprintf("%s: expected %s, got %s",
			f.Key, schema.FormatValue(want), schema.FormatValue(got)))
	}
	return mismatches
}

func valuesEqual(t schema.FieldType, want, got any) bool {
	switch t {
	case schema.Hex8, schema.Hex32:
		return normalizeHex(schema.FormatValue(want)) == normalizeHex(schema.FormatValue(got))
	case schema.Float:
		w, ok1 := want.(float64)
		g, ok2 := got.(float64)
		if !ok1 || !ok2 {
			return false
		}
		return floatsClose(w, g)
	default:
		return want == got
	}
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return strings.ToUpper(StripKey(s))
}

func floatsClose(a, b float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= 1e-9 || diff <= scale*1e-6
}

// formatMismatches creates a human-readable summary of mismatches
func formatMismatches(mismatches []string) string {
	switch len(mismatches) {
	case 0:
		return "none"
	case 1:
		return mismatches[0]
	}
	return fmt.Sprintf("%d mismatches: %s", len(mismatches), strings.Join(mismatches, "; "))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
