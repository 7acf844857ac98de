package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationlink/stationcfg/internal/config"
	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/simulator"
	"github.com/stationlink/stationcfg/internal/transport"
)

const testKey = "2B7E151628AED2A6ABF7158809CF4F3C"

const header = "device,dev_addr,fnwk_sint_key,snwk_sint_key,nwk_senc_key,app_skey\n"

func row(device, devAddr string) string {
	return strings.Join([]string{device, devAddr, testKey, testKey, testKey, testKey}, ",") + "\n"
}

func fastVerification() *deviceconfig.VerificationOptions {
	return &deviceconfig.VerificationOptions{
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	}
}

func TestParseSheet(t *testing.T) {
	in := header +
		"# staging stations\n" +
		row("station-1", "00bfe104") +
		row("C0:FF:EE:00:00:02", "0x00BFE105")

	sheet, err := ParseSheet(strings.NewReader(in), ',')
	require.NoError(t, err)
	require.Len(t, sheet.Entries, 2)

	first := sheet.Entries[0]
	assert.Equal(t, "station-1", first.Device)
	assert.Equal(t, "00bfe104", first.DevAddr)
	assert.Equal(t, 3, first.Line)
	assert.Equal(t, testKey, first.Config().AppSKey)
	assert.Equal(t, 4, sheet.Entries[1].Line)
}

func TestParseSheetErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"missing columns", "device,dev_addr\nstation-1,00bfe104\n", "missing columns: fnwk_sint_key"},
		{"bad dev addr", header + row("station-1", "xyz"), "line 2 (station-1): devAddr must be"},
		{"missing device", header + row("", "00bfe104"), "line 2 (<no device>): device is required"},
		{"duplicate device", header + row("station-1", "00bfe104") + row("STATION-1", "00bfe105"), "device already listed on line 2"},
		{"short key", header + "station-1,00bfe104,2B7E,2B7E," + testKey + "," + testKey + "\n", "fNwkSIntKey must be a 32-digit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, err := ParseSheet(strings.NewReader(tt.input), ',')
			require.Error(t, err)
			assert.Nil(t, sheet)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseSheetReportsEveryRow(t *testing.T) {
	in := header + row("a", "bad") + row("b", "00bfe104") + row("c", "also-bad")

	_, err := ParseSheet(strings.NewReader(in), ',')
	require.Error(t, err)

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Contains(t, err.Error(), "line 2 (a)")
	assert.Contains(t, err.Error(), "line 4 (c)")
	assert.NotContains(t, err.Error(), "(b)")
}

func TestLoadSheetTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.tsv")
	content := strings.ReplaceAll(header+row("station-1", "00bfe104"), ",", "\t")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	sheet, err := LoadSheet(path)
	require.NoError(t, err)
	require.Len(t, sheet.Entries, 1)
	assert.Equal(t, "station-1", sheet.Entries[0].Device)

	_, err = LoadSheet(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestSheetLookupAndMatch(t *testing.T) {
	sheet, err := ParseSheet(strings.NewReader(header+
		row("AA", "00000001")+
		row("roof", "00000002")+
		row("Station-C", "00000003")), ',')
	require.NoError(t, err)

	e, ok := sheet.Lookup("", "aa")
	require.True(t, ok)
	assert.Equal(t, "00000001", e.DevAddr)

	_, ok = sheet.Lookup("nobody")
	assert.False(t, ok)

	reg := config.NewRegistry()
	reg.SetDeviceNickname("BB", "roof")

	devices := []transport.Device{
		{ID: "AA"},
		{ID: "BB", Name: "something"},
		{ID: "CC", Name: "station-c"},
		{ID: "DD", Name: "station-d"},
	}
	targets, unmatched := sheet.Match(devices, reg)
	require.Len(t, targets, 3)
	assert.Equal(t, "00000001", targets[0].Entry.DevAddr)
	assert.Equal(t, "00000002", targets[1].Entry.DevAddr)
	assert.Equal(t, "00000003", targets[2].Entry.DevAddr)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "DD", unmatched[0].ID)

	targets, _ = sheet.Match(devices, nil)
	assert.Len(t, targets, 2)
}

func TestProvisionerApplyAll(t *testing.T) {
	a := simulator.NewStation("AA", "station-a")
	b := simulator.NewStation("BB", "station-b")
	fleet := simulator.NewFleet(a, b)

	sheet, err := ParseSheet(strings.NewReader(header+row("station-a", "00bfe104")+row("BB", "00bfe105")), ',')
	require.NoError(t, err)

	reg := config.NewRegistry()
	devices, err := fleet.Scan(context.Background(), 0)
	require.NoError(t, err)
	targets, unmatched := sheet.Match(devices, reg)
	require.Len(t, targets, 2)
	require.Empty(t, unmatched)

	p := NewProvisioner(deviceconfig.NewManager(fleet),
		WithVerification(fastVerification()),
		WithConcurrency(2),
		WithRegistry(reg))
	results := p.ApplyAll(context.Background(), targets)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.OK(), "%s", r)
		require.NotNil(t, r.Safe)
		assert.True(t, r.Safe.Success)
	}
	assert.Equal(t, float64(12574980), a.Section(schema.LoRaWAN)["devAddr"])
	assert.Equal(t, float64(12574981), b.Section(schema.LoRaWAN)["devAddr"])
	assert.False(t, reg.GetDevice("AA").Provisioned.IsZero())
	assert.False(t, reg.GetDevice("BB").Provisioned.IsZero())
}

func TestProvisionerFailureIsolated(t *testing.T) {
	a := simulator.NewStation("AA", "")
	b := simulator.NewStation("BB", "")
	b.SetFaults(simulator.Faults{WriteErr: transport.ErrWriteRejected})
	fleet := simulator.NewFleet(a, b)

	sheet, err := ParseSheet(strings.NewReader(header+row("AA", "00bfe104")+row("BB", "00bfe105")), ',')
	require.NoError(t, err)
	targets, _ := sheet.Match([]transport.Device{a.Device(), b.Device()}, nil)

	reg := config.NewRegistry()
	p := NewProvisioner(deviceconfig.NewManager(fleet), WithVerification(nil), WithRegistry(reg))
	results := p.ApplyAll(context.Background(), targets)

	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.Nil(t, results[0].Safe)
	assert.False(t, results[1].OK())
	assert.True(t, deviceconfig.IsTransportError(results[1].Err), "got %v", results[1].Err)
	assert.Contains(t, results[1].String(), "BB")

	assert.NotNil(t, reg.GetDevice("AA"))
	assert.Nil(t, reg.GetDevice("BB"))
}
