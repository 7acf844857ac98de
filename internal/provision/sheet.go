package provision

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
)

// Entry is one row of a provisioning sheet.
type Entry struct {
	// Device selects the station: a device ID, a registry nickname or an
	// advertised name.
	Device      string `csv:"device"`
	DevAddr     string `csv:"dev_addr"`
	FNwkSIntKey string `csv:"fnwk_sint_key"`
	SNwkSIntKey string `csv:"snwk_sint_key"`
	NwkSEncKey  string `csv:"nwk_senc_key"`
	AppSKey     string `csv:"app_skey"`

	// Line is the 1-based line of the row in the sheet, header included
	Line int `csv:"-"`
}

// Config returns the join parameters of the row.
func (e *Entry) Config() *deviceconfig.LoRaWANConfig {
	return &deviceconfig.LoRaWANConfig{
		DevAddr:     e.DevAddr,
		FNwkSIntKey: e.FNwkSIntKey,
		SNwkSIntKey: e.SNwkSIntKey,
		NwkSEncKey:  e.NwkSEncKey,
		AppSKey:     e.AppSKey,
	}
}

// Sheet is a parsed and validated provisioning sheet.
type Sheet struct {
	Entries []*Entry
}

var requiredColumns = []string{"device", "dev_addr", "fnwk_sint_key", "snwk_sint_key", "nwk_senc_key", "app_skey"}

// RowError reports every problem found in one row.
type RowError struct {
	Line   int
	Device string
	Errs   []error
}

func (e *RowError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	name := e.Device
	if name == "" {
		name = "<no device>"
	}
	return fmt.Sprintf("line %d (%s): %s", e.Line, name, strings.Join(msgs, "; "))
}

func (e *RowError) Unwrap() []error {
	return e.Errs
}

// LoadSheet parses the sheet at path. Files ending in .tsv are read as
// tab-separated, anything else as comma-separated.
func LoadSheet(path string) (_ *Sheet, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open provisioning sheet: %w", err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	comma := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		comma = '\t'
	}
	return ParseSheet(f, comma)
}

// ParseSheet reads a sheet with a header row from r. Every row is
// validated; the returned error joins one RowError per bad row, and no
// sheet is returned unless all rows are valid.
func ParseSheet(r io.Reader, comma rune) (*Sheet, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("provisioning sheet is empty")
		}
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := checkHeader(dec.Header()); err != nil {
		return nil, err
	}

	sheet := &Sheet{}
	seen := make(map[string]int)
	var errs []error

	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		e.Line = line
		e.Device = strings.TrimSpace(e.Device)

		var rowErrs []error
		if e.Device == "" {
			rowErrs = append(rowErrs, fmt.Errorf("device is required"))
		} else if prev, dup := seen[strings.ToLower(e.Device)]; dup {
			rowErrs = append(rowErrs, fmt.Errorf("device already listed on line %d", prev))
		} else {
			seen[strings.ToLower(e.Device)] = e.Line
		}
		rowErrs = append(rowErrs, deviceconfig.ValidateRecord(e.Config(), false)...)

		if len(rowErrs) > 0 {
			errs = append(errs, &RowError{Line: e.Line, Device: e.Device, Errs: rowErrs})
			continue
		}
		sheet.Entries = append(sheet.Entries, &e)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid provisioning sheet: %w", errors.Join(errs...))
	}
	return sheet, nil
}

func checkHeader(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("provisioning sheet is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Lookup returns the row for the first key that names a row. Keys are
// typically a device ID followed by its nickname and advertised name;
// matching is case-insensitive and empty keys are skipped.
func (s *Sheet) Lookup(keys ...string) (*Entry, bool) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		for _, e := range s.Entries {
			if strings.EqualFold(e.Device, key) {
				return e, true
			}
		}
	}
	return nil, false
}
