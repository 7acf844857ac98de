package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected silent logger when no level is configured")
	}
}

func TestInitializeLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
		{"bogus", zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if err := Initialize(tt.level); err != nil {
				t.Fatalf("Initialize(%q) failed: %v", tt.level, err)
			}
			core := GetLogger().Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("level %s should be enabled", tt.enabled)
			}
			if core.Enabled(tt.muted) {
				t.Errorf("level %s should be muted", tt.muted)
			}
		})
	}
	SetLogger(nil)
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	defer SetLogger(nil)

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv failed: %v", err)
	}
	if !GetLogger().Core().Enabled(zapcore.WarnLevel) {
		t.Error("expected warn level from environment")
	}
}

func TestLogAttributeDumpsPayloadAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogAttribute("read", "AA:BB", "180A/2A37", []byte("eyJ9\x01"))

	entries := logs.FilterMessage("Attribute operation").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["hex_dump"] != "65794a3901" {
		t.Errorf("hex_dump = %v", fields["hex_dump"])
	}
	if fields["ascii"] != "eyJ9." {
		t.Errorf("ascii = %v", fields["ascii"])
	}
	if fields["locator"] != "180A/2A37" {
		t.Errorf("locator = %v", fields["locator"])
	}
}

func TestLogAttributeOmitsPayloadAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogAttribute("write", "AA:BB", "180A/2A41", []byte("secret"))

	if logs.Len() != 0 {
		t.Errorf("expected no debug entries at info level, got %d", logs.Len())
	}
}

func TestHexAndASCIIDumpTruncate(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = 'A'
	}

	if got := hexDump(data); len(got) != 512+3 {
		t.Errorf("hexDump length = %d, want %d", len(got), 512+3)
	}
	if got := asciiDump(data); len(got) != 256 {
		t.Errorf("asciiDump length = %d, want 256", len(got))
	}
	if hexDump(nil) != "" || asciiDump(nil) != "" {
		t.Error("empty input should produce empty dumps")
	}
}
